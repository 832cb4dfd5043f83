// Command nreq is the nemo requester: it periodically dispatches UDP
// probe datagrams to a configured set of targets and reports the round
// trips it observes (spec §1, requester half).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lovasko-rewrite/nemo/internal/config"
	"github.com/lovasko-rewrite/nemo/internal/logging"
	"github.com/lovasko-rewrite/nemo/internal/metrics"
	"github.com/lovasko-rewrite/nemo/internal/report"
	"github.com/lovasko-rewrite/nemo/internal/requester"
	"github.com/lovasko-rewrite/nemo/internal/signalctl"
	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/clock"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.ParseRequester(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nreq: %v\n", err)
		return 1
	}
	if cfg.Help {
		fmt.Fprintln(os.Stderr, "usage: nreq [flags] target [target...]")
		return 1
	}

	log := logging.New(cfg.Verbosity, cfg.NoColor)

	var ch *channel.Channel
	if cfg.IPv6 {
		ch, err = channel.OpenV6(cfg.Port, int(cfg.RecvBufBytes), int(cfg.SendBufBytes), cfg.TTL)
	} else {
		ch, err = channel.OpenV4(cfg.Port, int(cfg.RecvBufBytes), int(cfg.SendBufBytes), cfg.TTL)
	}
	if err != nil {
		log.Errorf("nreq: open channel: %v", err)
		return 1
	}
	defer ch.Close()

	collector := metrics.NewChannelCollector(prometheus.Labels{"role": "requester"})
	collector.Add(ch)
	prometheus.MustRegister(collector)
	serveMetrics(log)

	sink, closeSink, err := buildSink(cfg.BinaryReport, cfg.Quiet)
	if err != nil {
		log.Errorf("nreq: build report sink: %v", err)
		return 1
	}
	defer closeSink()

	ctl, latch, err := signalctl.New()
	if err != nil {
		log.Errorf("nreq: install signal handlers: %v", err)
		return 1
	}
	defer ctl.Stop()

	req, err := requester.New(cfg, ch, sink, log, clock.New(), latch, ctl.WakeFD(), ctl.Drain, net.DefaultResolver)
	if err != nil {
		log.Errorf("nreq: %v", err)
		return 1
	}

	if err := req.Run(context.Background()); err != nil {
		if errors.Is(err, requester.ErrFatal) {
			log.Infof("nreq: shutting down on signal")
			return 0
		}
		log.Errorf("nreq: %v", err)
		return 1
	}
	return 0
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

// serveMetrics exposes the Prometheus collector on an OS-assigned
// loopback port, logging the address so an operator can scrape it;
// spec's CLI table is fixed, so there is deliberately no flag to
// configure this (teacher style: internal/metrics wires the same
// Describe/Collect shape as pkg/exporter, this just serves it).
func serveMetrics(log *logging.Sink) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Warnf("nreq: metrics listener unavailable: %v", err)
		return
	}
	log.Infof("nreq: metrics available at http://%s/metrics", ln.Addr())
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.Serve(ln, mux)
	}()
}
