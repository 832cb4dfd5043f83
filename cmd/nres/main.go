// Command nres is the nemo responder: it listens for probe datagrams,
// timestamps and optionally replies to them, and fans each one out to
// configured plugin sandboxes (spec §1, responder half).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lovasko-rewrite/nemo/internal/config"
	"github.com/lovasko-rewrite/nemo/internal/kernelcheck"
	"github.com/lovasko-rewrite/nemo/internal/logging"
	"github.com/lovasko-rewrite/nemo/internal/metrics"
	"github.com/lovasko-rewrite/nemo/internal/plugin"
	"github.com/lovasko-rewrite/nemo/internal/report"
	"github.com/lovasko-rewrite/nemo/internal/responder"
	"github.com/lovasko-rewrite/nemo/internal/signalctl"
	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/clock"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseResponder(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nres: %v\n", err)
		return 1
	}
	if cfg.Help {
		fmt.Fprintln(os.Stderr, "usage: nres [flags]")
		return 1
	}

	log := logging.New(cfg.Verbosity, cfg.NoColor)
	kernelcheck.Warn(log)

	var ch *channel.Channel
	if cfg.IPv6 {
		ch, err = channel.OpenV6(cfg.Port, int(cfg.RecvBufBytes), int(cfg.SendBufBytes), cfg.TTL)
	} else {
		ch, err = channel.OpenV4(cfg.Port, int(cfg.RecvBufBytes), int(cfg.SendBufBytes), cfg.TTL)
	}
	if err != nil {
		log.Errorf("nres: open channel: %v", err)
		return 1
	}
	defer ch.Close()

	collector := metrics.NewChannelCollector(prometheus.Labels{"role": "responder"})
	collector.Add(ch)
	prometheus.MustRegister(collector)
	serveMetrics(log)

	sink, closeSink, err := buildSink(cfg.BinaryReport, cfg.Quiet)
	if err != nil {
		log.Errorf("nres: build report sink: %v", err)
		return 1
	}
	defer closeSink()

	ctl, latch, err := signalctl.New()
	if err != nil {
		log.Errorf("nres: install signal handlers: %v", err)
		return 1
	}
	defer ctl.Stop()

	var sandbox *plugin.Sandbox
	if len(cfg.PluginPaths) > 0 {
		hostBinary, err := pluginHostPath()
		if err != nil {
			log.Errorf("nres: locate plugin host: %v", err)
			return 1
		}
		sandbox, err = plugin.New(context.Background(), hostBinary, cfg.PluginPaths, log)
		if err != nil {
			log.Errorf("nres: %v", err)
			return 1
		}
		defer sandbox.Shutdown()
	}

	r := &responder.Responder{
		Cfg:     cfg,
		Channel: ch,
		Sandbox: sandbox,
		Sink:    sink,
		Log:     log,
		Clock:   clock.New(),
		Latch:   latch,
		WakeFD:  ctl.WakeFD(),
		Drain:   ctl.Drain,
	}

	if err := r.Run(); err != nil {
		if errors.Is(err, responder.ErrFatal) {
			log.Infof("nres: shutting down on signal")
			return 0
		}
		log.Errorf("nres: %v", err)
		return 1
	}
	return 0
}

// pluginHostPath locates the nemo-plugin-host companion binary,
// expected alongside this binary (spec §4.J's sandbox process).
func pluginHostPath() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(filepath.Dir(self), "nemo-plugin-host")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	if path, err := exec.LookPath("nemo-plugin-host"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("nemo-plugin-host not found next to %s or on PATH", self)
}

func buildSink(binary, quiet bool) (report.Sink, func(), error) {
	if quiet {
		return report.NullSink{}, func() {}, nil
	}
	if binary {
		return report.NewBinarySink(os.Stdout), func() {}, nil
	}
	sink := report.NewCSVSink(os.Stdout)
	return sink, func() { sink.Close() }, nil
}

func serveMetrics(log *logging.Sink) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Warnf("nres: metrics listener unavailable: %v", err)
		return
	}
	log.Infof("nres: metrics available at http://%s/metrics", ln.Addr())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.Serve(ln, mux)
	}()
}
