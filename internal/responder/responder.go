// Package responder implements spec §4.I: the responder's per-datagram
// filter → mutate → report → plugin-notify → reply pipeline.
package responder

import (
	"errors"
	"net"
	"time"

	"github.com/lovasko-rewrite/nemo/internal/config"
	"github.com/lovasko-rewrite/nemo/internal/plugin"
	"github.com/lovasko-rewrite/nemo/internal/report"
	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/clock"
	"github.com/lovasko-rewrite/nemo/pkg/packetio"
	"github.com/lovasko-rewrite/nemo/pkg/wait"
	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

// yearDuration stands in for "no deadline": the C source's indefinite
// wait_for_events call has no direct analogue in pkg/wait's bounded
// Run, so the steady-state (no -d) responder re-arms a very long wait
// forever instead.
const yearDuration = 365 * 24 * time.Hour

// Logger is the minimal sink Responder needs.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Responder holds everything one Run call needs to drive spec §4.I's
// event loop.
type Responder struct {
	Cfg     *config.ResponderConfig
	Channel *channel.Channel
	Sandbox *plugin.Sandbox // may be nil if no plugins are configured
	Sink    report.Sink
	Log     Logger
	Clock   clock.Clock
	Latch   wait.Latch
	WakeFD  int
	Drain   func()

	activityCount int
}

// ErrFatal mirrors requester.ErrFatal: Run returns it when a fatal
// signal was latched, so main can distinguish clean shutdown from an
// init/runtime error (spec §7).
var ErrFatal = errors.New("responder: fatal signal received")

// Run blocks until either a fatal signal fires or, if cfg.InactivityDur
// is non-zero, that much time elapses with no incoming datagram (spec
// §6's -d responder inactivity timeout). A zero InactivityDur runs
// forever, one wait_for_events call at a time, per spec §4.H/§4.I.
func (r *Responder) Run() error {
	handlers := wait.Handlers{
		OnReadable: r.handleReadable,
		OnUsr1:     r.dumpInfo,
	}

	if r.Cfg.InactivityDur == 0 {
		for {
			// A single very long wait, re-armed forever. wait.Run
			// invokes the handlers inline as datagrams and cooperative
			// signals arrive, and only returns early on a fatal signal
			// or a handler error, both of which end Run here.
			if err := wait.Run(r.Channel.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, yearDuration, handlers); err != nil {
				return translateFatal(err)
			}
		}
	}

	dur := time.Duration(r.Cfg.InactivityDur)
	for {
		before := r.activityCount
		if err := wait.Run(r.Channel.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, dur, handlers); err != nil {
			return translateFatal(err)
		}
		if r.activityCount == before {
			// No datagram arrived during the whole timeout window.
			r.Log.Infof("responder: inactivity timeout reached, shutting down")
			return nil
		}
	}
}

func translateFatal(err error) error {
	if errors.Is(err, wait.ErrFatalSignal) {
		return ErrFatal
	}
	return err
}

func (r *Responder) handleReadable() error {
	recv, err := packetio.ReceivePacket(r.Channel, r.Cfg.ExitOnError, r.Log)
	if err != nil {
		if r.Cfg.ExitOnError {
			return err
		}
		return nil
	}
	r.activityCount++

	if err := wire.ValidateType(&recv.Base, wire.MsgTypeRequest); err != nil {
		r.Channel.Counters.RecvTypeMismatch.Add(1)
		r.Log.Debugf("responder: dropping datagram from %s: %v", recv.Peer, err)
		if r.Cfg.ExitOnError {
			return err
		}
		return nil
	}

	// Filter (spec §4.I step 3): key and length mismatches drop the
	// datagram silently — success, no report row, no reply.
	if r.Cfg.Key != 0 && recv.Base.Key != r.Cfg.Key {
		return nil
	}
	if r.Cfg.PayloadLength != 0 && int(recv.Base.PayloadLength) != r.Cfg.PayloadLength {
		return nil
	}

	// Mutate (spec §4.I step 4).
	base := recv.Base
	base.MsgType = wire.MsgTypeResponse
	base.Key = r.Cfg.Key
	base.MonoRes = r.Clock.MonoNow()
	base.RealRes = r.Clock.RealNow()
	base.TTLReqArr = uint8(recv.HopLimit)
	base.TTLResDep = uint8(r.Cfg.TTL)

	udpPeer, _ := recv.Peer.(*net.UDPAddr)
	row := report.ResponderRow{
		Key:        base.Key,
		SeqNum:     base.SeqNum,
		SeqLen:     base.SeqLen,
		AddrReq:    addrString(recv.Peer),
		PortReq:    portOf(udpPeer, base.UDPPort),
		TTLDepReq:  base.TTLReqDep,
		TTLArrRes:  base.TTLReqArr,
		RealDepReq: base.RealReq,
		RealArrRes: base.RealRes,
		MonoDepReq: base.MonoReq,
		MonoArrRes: base.MonoRes,
	}
	if !r.Cfg.Quiet {
		if err := r.Sink.WriteResponderRow(row); err != nil {
			r.Log.Warnf("responder: write report row: %v", err)
		}
	}

	if r.Sandbox != nil {
		r.Sandbox.Notify(&base)
	}

	if r.Cfg.Monologue {
		return nil
	}
	if err := packetio.SendPacket(r.Channel, &base, recv.Peer, recv.Trailing, r.Cfg.ExitOnError, r.Log); err != nil {
		r.Log.Debugf("responder: reply to %s failed: %v", recv.Peer, err)
		if r.Cfg.ExitOnError {
			return err
		}
	}
	return nil
}

func (r *Responder) dumpInfo() {
	snap := r.Channel.Counters.Snapshot()
	r.Log.Infof("responder info: port=%d key=%d ttl=%d recv_total=%d recv_errors=%d sent_total=%d",
		r.Channel.LocalPort(), r.Cfg.Key, r.Cfg.TTL, snap.RecvTotal, snap.RecvNetworkError, snap.SentTotal)
	if r.Sandbox != nil {
		for _, p := range r.Sandbox.Plugins() {
			r.Log.Infof("responder info: plugin %s (%s) state=%s", p.Name, p.ID, p.State())
		}
	}
}

func addrString(a net.Addr) string {
	if udp, ok := a.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	return a.String()
}

func portOf(udp *net.UDPAddr, fallback uint16) uint16 {
	if udp != nil {
		return uint16(udp.Port)
	}
	return fallback
}
