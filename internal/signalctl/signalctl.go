// Package signalctl implements spec §4.E: a process-wide latch of
// deferred signal flags, and the plumbing that lets pkg/wait's bounded
// wait unblock promptly when one of them fires.
//
// The C source this suite is modeled on blocks every signal except
// SIGKILL/SIGSTOP and only unblocks the five handled signals inside
// pselect's atomic wait-with-mask. Go delivers signals to a dedicated
// goroutine instead of an async-signal-safe handler, so there is no
// mask to build; spec §9's "model as explicit context objects" note is
// followed directly, and a self-pipe reproduces pselect's prompt,
// race-free wakeup.
package signalctl

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// Latch holds the process-wide deferred flags. All fields are safe for
// concurrent access; the notify goroutine is the only one that sets a
// flag, and the Clear methods, called from the main flow, reset them.
type Latch struct {
	Int         atomic.Bool
	Term        atomic.Bool
	Usr1        atomic.Bool
	Hup         atomic.Bool
	ChildExited atomic.Bool
}

// Fatal reports whether a fatal (interrupt or terminate) flag is set.
func (l *Latch) Fatal() bool {
	return l.Int.Load() || l.Term.Load()
}

// Usr1Pending reports whether SIGUSR1 has fired since the last ClearUsr1.
func (l *Latch) Usr1Pending() bool { return l.Usr1.Load() }

// HupPending reports whether SIGHUP has fired since the last ClearHup.
func (l *Latch) HupPending() bool { return l.Hup.Load() }

// ChildExitedPending reports whether SIGCHLD has fired since the last
// ClearChildExited.
func (l *Latch) ChildExitedPending() bool { return l.ChildExited.Load() }

// ClearUsr1 clears the info-dump flag after the wait loop has acted on it.
func (l *Latch) ClearUsr1() { l.Usr1.Store(false) }

// ClearHup clears the reload flag after the requester has re-resolved
// targets.
func (l *Latch) ClearHup() { l.Hup.Store(false) }

// ClearChildExited clears the reap flag after the responder has reaped
// plugin children.
func (l *Latch) ClearChildExited() { l.ChildExited.Store(false) }

// Controller owns the signal.Notify channel and the self-pipe pkg/wait
// polls alongside the channel socket.
type Controller struct {
	latch  *Latch
	sigCh  chan os.Signal
	wakeR  *os.File
	wakeW  *os.File
	closed atomic.Bool
}

// New installs handlers for SIGINT, SIGTERM, SIGUSR1, SIGHUP and SIGCHLD
// and starts the dispatch goroutine.
func New() (*Controller, *Latch, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	if err := syscall.SetNonblock(int(r.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, nil, err
	}
	if err := syscall.SetNonblock(int(w.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, nil, err
	}

	latch := &Latch{}
	c := &Controller{latch: latch, wakeR: r, wakeW: w}

	c.sigCh = make(chan os.Signal, 8)
	signal.Notify(c.sigCh,
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGHUP, syscall.SIGCHLD)

	go c.dispatch()
	return c, latch, nil
}

func (c *Controller) dispatch() {
	for sig := range c.sigCh {
		switch sig {
		case syscall.SIGINT:
			c.latch.Int.Store(true)
		case syscall.SIGTERM:
			c.latch.Term.Store(true)
		case syscall.SIGUSR1:
			c.latch.Usr1.Store(true)
		case syscall.SIGHUP:
			c.latch.Hup.Store(true)
		case syscall.SIGCHLD:
			c.latch.ChildExited.Store(true)
		}
		c.wake()
	}
}

// wake writes a single byte to the self-pipe, unblocking any poller
// watching WakeFD(). Best-effort: a full pipe means a wakeup is already
// pending, which is exactly as good.
func (c *Controller) wake() {
	if c.closed.Load() {
		return
	}
	_, _ = c.wakeW.Write([]byte{0})
}

// WakeFD returns the read end of the self-pipe, to be polled alongside
// the channel socket.
func (c *Controller) WakeFD() int { return int(c.wakeR.Fd()) }

// Drain empties the self-pipe after a wakeup has been consumed.
func (c *Controller) Drain() {
	buf := make([]byte, 64)
	for {
		n, err := c.wakeR.Read(buf)
		if n == 0 || err != nil {
			return
		}
	}
}

// Stop stops signal delivery and closes the self-pipe. Safe to call once.
func (c *Controller) Stop() {
	signal.Stop(c.sigCh)
	close(c.sigCh)
	c.closed.Store(true)
	c.wakeR.Close()
	c.wakeW.Close()
}
