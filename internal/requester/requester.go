// Package requester implements spec §4.G: target resolution, round
// scheduling (grouped vs dispersed), and the interleaved
// send/receive/wait loop nreq runs.
package requester

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lovasko-rewrite/nemo/internal/config"
	"github.com/lovasko-rewrite/nemo/internal/report"
	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/clock"
	"github.com/lovasko-rewrite/nemo/pkg/packetio"
	"github.com/lovasko-rewrite/nemo/pkg/target"
	"github.com/lovasko-rewrite/nemo/pkg/wait"
	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

// Logger is the minimal sink Requester needs.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Requester holds everything one Run call needs: the resolved config,
// an open channel, and the collaborators (resolver, sink, clock,
// signal plumbing) spec §4.G's loop touches.
type Requester struct {
	Cfg     *config.RequesterConfig
	Channel *channel.Channel
	Sink    report.Sink
	Log     Logger
	Clock   clock.Clock
	Latch   wait.Latch
	WakeFD  int
	Drain   func()
	Res     target.Resolver

	targets      []target.Target
	lastResolved uint64
}

// New builds a Requester with its initial target set already resolved
// (spec §4.F runs once before the round loop begins).
func New(cfg *config.RequesterConfig, ch *channel.Channel, sink report.Sink, log Logger, clk clock.Clock, latch wait.Latch, wakeFD int, drain func(), res target.Resolver) (*Requester, error) {
	r := &Requester{
		Cfg: cfg, Channel: ch, Sink: sink, Log: log, Clock: clk,
		Latch: latch, WakeFD: wakeFD, Drain: drain, Res: res,
	}
	if err := r.reresolve(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Requester) reresolve(ctx context.Context) error {
	ts, err := target.Load(ctx, r.Res, r.Cfg.Targets, r.Cfg.IPv6, r.Cfg.MaxTargets, r.Log)
	if err != nil {
		return fmt.Errorf("requester: resolve targets: %w", err)
	}
	r.targets = ts
	r.lastResolved = r.Clock.MonoNow()
	r.Log.Infof("requester: resolved %d targets", len(ts))
	return nil
}

// Run executes spec §4.G's loop: round_count rounds (or forever, if
// cfg.Daemonize), each preceded by a hangup/reload check, followed by
// the final wait to collect late-arriving responses.
func (r *Requester) Run(ctx context.Context) error {
	round := 0
	for r.Cfg.Daemonize || round < r.Cfg.RoundCount {
		if r.Latch.HupPending() || r.Clock.MonoNow()-r.lastResolved > uint64(r.Cfg.ReloadPeriodDur) {
			if err := r.reresolve(ctx); err != nil {
				r.Log.Warnf("requester: re-resolve failed, keeping previous targets: %v", err)
			}
			r.Latch.ClearHup()
		}

		if err := r.dispatchRound(round); err != nil {
			return err
		}
		round++
	}

	return r.wait(time.Duration(r.Cfg.FinalWaitDur))
}

func (r *Requester) dispatchRound(round int) error {
	if r.Cfg.Grouped || len(r.targets) == 0 {
		for _, t := range r.targets {
			r.send(round, t)
		}
		return r.wait(time.Duration(r.Cfg.IntervalDur))
	}
	return r.dispersedRound(round)
}

// dispersedRound implements spec §4.G's dispersed mode: the interval is
// split into 1+⌊interval/n⌋-length slices, and each send is followed by
// one slice's wait, spreading sends across the interval instead of
// bursting them (spec §8's dispersed-fairness property).
func (r *Requester) dispersedRound(round int) error {
	n := len(r.targets)
	slice := time.Duration(r.Cfg.IntervalDur/int64(n) + 1)
	for _, t := range r.targets {
		r.send(round, t)
		if err := r.wait(slice); err != nil {
			return err
		}
	}
	return nil
}

func (r *Requester) send(round int, t target.Target) {
	base := &wire.Base{
		Magic:         wire.Magic,
		FormatVersion: wire.FormatVersion,
		MsgType:       wire.MsgTypeRequest,
		UDPPort:       r.Channel.LocalPort(),
		TTLReqDep:     uint8(r.Cfg.TTL),
		IPVersion:     t.IPVersion,
		PayloadLength: uint16(r.Cfg.PayloadLength),
		SeqNum:        uint64(round),
		SeqLen:        uint64(r.Cfg.RoundCount),
		AddrLow:       t.AddrLow,
		AddrHigh:      t.AddrHigh,
		Key:           r.Cfg.Key,
		MonoReq:       r.Clock.MonoNow(),
		RealReq:       r.Clock.RealNow(),
	}
	dest := &net.UDPAddr{IP: t.Addr(), Port: int(r.Cfg.Port)}
	if err := packetio.SendPacket(r.Channel, base, dest, nil, r.Cfg.ExitOnError, r.Log); err != nil {
		r.Log.Debugf("requester: send to %s failed: %v", dest, err)
	}
}

func (r *Requester) wait(dur time.Duration) error {
	if r.Cfg.Monologue {
		// Monologue mode: no replies are ever expected, so there is
		// nothing to read on the socket; still honor the timing so
		// round spacing behaves identically (spec glossary: "requester
		// does not capture responses").
		err := wait.Run(r.Channel.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, dur, wait.Handlers{
			OnHup: func() { _ = r.reresolve(context.Background()) },
		})
		return translateFatal(err)
	}
	err := wait.Run(r.Channel.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, dur, wait.Handlers{
		OnReadable: r.handleResponse,
		OnHup:      func() { _ = r.reresolve(context.Background()) },
	})
	return translateFatal(err)
}

// ErrFatal is returned by Run when a fatal signal was latched, so main
// can distinguish a clean shutdown (exit 0 after drain) from an init or
// runtime error (exit 1), per spec §7.
var ErrFatal = errors.New("requester: fatal signal received")

func translateFatal(err error) error {
	if errors.Is(err, wait.ErrFatalSignal) {
		return ErrFatal
	}
	return err
}

func (r *Requester) handleResponse() error {
	recv, err := packetio.ReceivePacket(r.Channel, r.Cfg.ExitOnError, r.Log)
	if err != nil {
		if r.Cfg.ExitOnError {
			return err
		}
		return nil
	}

	if err := wire.ValidateType(&recv.Base, wire.MsgTypeResponse); err != nil {
		r.Channel.Counters.RecvTypeMismatch.Add(1)
		r.Log.Debugf("requester: dropping datagram from %s: %v", recv.Peer, err)
		if r.Cfg.ExitOnError {
			return err
		}
		return nil
	}

	row := report.RequesterRow{
		Key:        recv.Base.Key,
		SeqNum:     recv.Base.SeqNum,
		SeqLen:     recv.Base.SeqLen,
		AddrRes:    addrString(recv.Peer),
		TTLDepReq:  recv.Base.TTLReqDep,
		TTLArrRes:  recv.Base.TTLReqArr,
		TTLDepRes:  recv.Base.TTLResDep,
		TTLArrReq:  uint8(recv.HopLimit),
		RealDepReq: recv.Base.RealReq,
		RealArrRes: recv.Base.RealRes,
		RealArrReq: r.Clock.RealNow(),
		MonoDepReq: recv.Base.MonoReq,
		MonoArrRes: recv.Base.MonoRes,
		MonoArrReq: r.Clock.MonoNow(),
	}
	if !r.Cfg.Quiet {
		if err := r.Sink.WriteRequesterRow(row); err != nil {
			r.Log.Warnf("requester: write report row: %v", err)
		}
	}
	return nil
}

func addrString(a net.Addr) string {
	if udp, ok := a.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	return a.String()
}
