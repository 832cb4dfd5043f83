// Package config wires spec §6's command-line surface with pflag,
// matching the single-dash short-flag table exactly; requester and
// responder share a common flag set and each adds its own.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Common holds the flags both nreq and nres accept.
type Common struct {
	IPv6          bool
	PluginPaths   []string
	BinaryReport  bool
	ExitOnError   bool
	Help          bool
	Key           uint64
	PayloadLength int
	Monologue     bool
	NoColor       bool
	Port          uint16
	Quiet         bool
	RecvBufBytes  int64
	SendBufBytes  int64
	TTL           int
	Verbosity     int
}

const (
	minPayloadLength = 88
	maxPayloadLength = 64436
	defaultPort      = 23000
	defaultTTL       = 64
)

func bindCommon(fs *pflag.FlagSet, c *Common) (recvBuf, sendBuf, payload *string, key *int64, port *int) {
	fs.BoolVarP(&c.IPv6, "ipv6", "6", false, "IPv6-only (default v4)")
	fs.StringArrayVarP(&c.PluginPaths, "plugin", "a", nil, "attach a plugin shared object (up to 32)")
	fs.BoolVarP(&c.BinaryReport, "binary", "b", false, "binary report mode (no header, raw 88-byte rows)")
	fs.BoolVarP(&c.ExitOnError, "exit-on-error", "e", false, "exit on first network error")
	fs.BoolVarP(&c.Help, "help", "h", false, "print usage and exit failure")
	key = fs.Int64P("key", "k", 0, "identity/filter key (u64 >= 1)")
	payload = fs.StringP("length", "l", "88", "payload length in bytes (>= 88, <= 64436)")
	fs.BoolVarP(&c.Monologue, "monologue", "m", false, "monologue: no replies / no capture")
	fs.BoolVarP(&c.NoColor, "no-color", "n", false, "disable log coloring")
	port = fs.IntP("port", "p", defaultPort, "UDP port (1..65535)")
	fs.BoolVarP(&c.Quiet, "quiet", "q", false, "suppress report stream")
	recvBuf = fs.StringP("recv-buf", "r", "", "socket receive buffer size")
	sendBuf = fs.StringP("send-buf", "s", "", "socket send buffer size")
	fs.IntVarP(&c.TTL, "ttl", "t", defaultTTL, "outgoing hop limit (1..255)")
	fs.CountVarP(&c.Verbosity, "verbose", "v", "bump log verbosity (repeatable)")
	return recvBuf, sendBuf, payload, key, port
}

func finishCommon(c *Common, recvBuf, sendBuf, payload string, key int64, port int) error {
	c.Key = uint64(key)
	c.Port = uint16(port)
	if recvBuf != "" {
		n, err := ParseMemory(recvBuf)
		if err != nil {
			return fmt.Errorf("-r: %w", err)
		}
		c.RecvBufBytes = n
	}
	if sendBuf != "" {
		n, err := ParseMemory(sendBuf)
		if err != nil {
			return fmt.Errorf("-s: %w", err)
		}
		c.SendBufBytes = n
	}
	n, err := ParseMemory(payload)
	if err != nil {
		return fmt.Errorf("-l: %w", err)
	}
	c.PayloadLength = int(n)
	if c.PayloadLength < minPayloadLength || c.PayloadLength > maxPayloadLength {
		return fmt.Errorf("-l: payload length %d out of range [%d, %d]", c.PayloadLength, minPayloadLength, maxPayloadLength)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("-p: port must be in 1..65535")
	}
	if c.TTL < 1 || c.TTL > 255 {
		return fmt.Errorf("-t: ttl must be in 1..255")
	}
	if len(c.PluginPaths) > 32 {
		return fmt.Errorf("-a: at most 32 plugins may be attached")
	}
	return nil
}

// RequesterConfig is nreq's full flag set.
type RequesterConfig struct {
	Common

	RoundCount   int
	Daemonize    bool
	Grouped      bool
	Interval     string
	MaxTargets   int
	ReloadPeriod string
	FinalWait    string
	Targets      []string

	IntervalDur     int64 // nanoseconds, populated by ParseRequester
	ReloadPeriodDur int64
	FinalWaitDur    int64
}

// ParseRequester parses argv per spec §6's requester flags. -d with no
// argument is the daemonize flag in this binary (spec's overload).
func ParseRequester(args []string) (*RequesterConfig, error) {
	cfg := &RequesterConfig{}
	fs := pflag.NewFlagSet("nreq", pflag.ContinueOnError)
	recvBuf, sendBuf, payload, key, port := bindCommon(fs, &cfg.Common)

	fs.IntVarP(&cfg.RoundCount, "count", "c", 1, "requester rounds")
	fs.BoolVarP(&cfg.Daemonize, "daemonize", "d", false, "run forever instead of round_count rounds")
	fs.BoolVarP(&cfg.Grouped, "grouped", "g", false, "grouped rounds (default dispersed)")
	interval := fs.StringP("interval", "i", "1s", "round interval")
	fs.IntVarP(&cfg.MaxTargets, "max-targets", "j", 64, "max targets")
	reload := fs.StringP("reload", "u", "1h", "resolver refresh period")
	finalWait := fs.StringP("final-wait", "w", "1s", "final wait after last round")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Targets = fs.Args()

	if err := finishCommon(&cfg.Common, *recvBuf, *sendBuf, *payload, *key, *port); err != nil {
		return nil, err
	}

	iv, err := ParseDuration(*interval)
	if err != nil {
		return nil, fmt.Errorf("-i: %w", err)
	}
	cfg.IntervalDur = int64(iv)

	rp, err := ParseDuration(*reload)
	if err != nil {
		return nil, fmt.Errorf("-u: %w", err)
	}
	cfg.ReloadPeriodDur = int64(rp)

	fw, err := ParseDuration(*finalWait)
	if err != nil {
		return nil, fmt.Errorf("-w: %w", err)
	}
	cfg.FinalWaitDur = int64(fw)

	if cfg.RoundCount < 1 && !cfg.Daemonize {
		return nil, fmt.Errorf("-c: round count must be >= 1")
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}
	return cfg, nil
}

// ResponderConfig is nres's full flag set.
type ResponderConfig struct {
	Common

	Inactivity    string
	InactivityDur int64 // nanoseconds; 0 means "run forever"
}

// ParseResponder parses argv per spec §6's responder flags. -d here
// takes a duration argument: the inactivity timeout.
func ParseResponder(args []string) (*ResponderConfig, error) {
	cfg := &ResponderConfig{}
	fs := pflag.NewFlagSet("nres", pflag.ContinueOnError)
	recvBuf, sendBuf, payload, key, port := bindCommon(fs, &cfg.Common)

	inactivity := fs.StringP("inactivity", "d", "", "responder inactivity timeout (empty = run forever)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := finishCommon(&cfg.Common, *recvBuf, *sendBuf, *payload, *key, *port); err != nil {
		return nil, err
	}

	if *inactivity != "" {
		d, err := ParseDuration(*inactivity)
		if err != nil {
			return nil, fmt.Errorf("-d: %w", err)
		}
		cfg.InactivityDur = int64(d)
	}
	return cfg, nil
}
