// Package wait implements spec §4.H: the bounded wait-for-events step
// every round of both the requester and responder loops calls between
// sending work and picking up the next batch of work.
//
// The C source blocks signals except inside pselect's atomic
// wait-with-mask, so a signal arriving the instant before the blocking
// call still wakes it. Go has no equivalent syscall that both watches
// an fd set and atomically unmasks signals, so this package reproduces
// the same guarantee with a self-pipe: internal/signalctl's dispatch
// goroutine writes a byte to the pipe the moment a flag is latched,
// and Poll here watches that pipe's read end alongside the channel
// socket with unix.Poll. A flag set before Poll is ever called is
// caught by the up-front latch check, so there is no race between
// "check flags" and "start waiting".
package wait

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lovasko-rewrite/nemo/pkg/clock"
)

// Latch is the subset of signalctl.Latch's accessors Run and Poll need
// to decide why they woke up and to clear a flag once it has been
// handled.
type Latch interface {
	Fatal() bool
	Usr1Pending() bool
	HupPending() bool
	ChildExitedPending() bool
	ClearUsr1()
	ClearHup()
	ClearChildExited()
}

// Result reports why Poll returned.
type Result struct {
	Readable    bool // the channel socket has a datagram waiting
	Fatal       bool // SIGINT or SIGTERM was latched
	Usr1        bool // SIGUSR1 was latched
	Hup         bool // SIGHUP was latched
	ChildExited bool // SIGCHLD was latched
	TimedOut    bool // goalMono was reached with nothing else happening
}

func (r Result) any() bool {
	return r.Readable || r.Fatal || r.Usr1 || r.Hup || r.ChildExited
}

const (
	pollSocketIdx = 0
	pollWakeIdx   = 1
)

// Poll blocks until the channel socket identified by sockFD is
// readable, a latched signal fires, or clk's monotonic clock reaches
// goalMono, whichever happens first. A goalMono of 0 disables the
// deadline and blocks indefinitely; Run never passes 0, since its goal
// is always the current time plus dur. drain must empty the self-pipe behind wakeFD once Poll has
// observed a wakeup on it; signalctl.Controller.Drain satisfies it.
func Poll(sockFD, wakeFD int, latch Latch, drain func(), clk clock.Clock, goalMono uint64) (Result, error) {
	// Flags latched before the caller ever asked to wait must not be
	// missed: check them first, with no syscall in between.
	if r := checkLatch(latch); r.any() {
		return r, nil
	}

	for {
		var timeoutMS int
		if goalMono == 0 {
			timeoutMS = -1
		} else {
			now := clk.MonoNow()
			if now >= goalMono {
				return Result{TimedOut: true}, nil
			}
			remaining := clock.NsToDuration(goalMono - now)
			timeoutMS = int(remaining / time.Millisecond)
			if timeoutMS <= 0 {
				timeoutMS = 1
			}
		}

		fds := []unix.PollFd{
			pollSocketIdx: {Fd: int32(sockFD), Events: unix.POLLIN},
			pollWakeIdx:   {Fd: int32(wakeFD), Events: unix.POLLIN},
		}

		n, err := unix.Poll(fds, timeoutMS)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return Result{}, err
		}
		if n == 0 {
			return Result{TimedOut: true}, nil
		}

		var res Result
		if fds[pollWakeIdx].Revents&unix.POLLIN != 0 {
			drain()
			res = checkLatch(latch)
		}
		if fds[pollSocketIdx].Revents&unix.POLLIN != 0 {
			res.Readable = true
		}
		if res.any() {
			return res, nil
		}
		// Spurious wakeup (e.g. a wake byte for a flag some other
		// caller already cleared): loop and recompute the timeout.
	}
}

// ErrFatalSignal is returned by Run when SIGINT or SIGTERM was latched
// during the wait, per §4.H's "fatal flags propagate out" rule.
var ErrFatalSignal = errors.New("wait: fatal signal received")

// Handlers bundles the component-specific callbacks Run invokes.
// OnReadable runs once per readable event and its error, if any, is
// returned from Run immediately (the caller's raise_on_error policy
// applies at the call site, not here). OnUsr1, OnHup and
// OnChildExited run synchronously before their latch flag is cleared;
// a nil handler means "nothing to do, just clear the flag".
type Handlers struct {
	OnReadable    func() error
	OnUsr1        func()
	OnHup         func()
	OnChildExited func()
}

// Run implements spec §4.H in full: it blocks until dur has elapsed,
// invoking h.OnReadable on every readable event and dispatching
// cooperative signals as they're latched. A fatal signal returns
// ErrFatalSignal immediately, matching "fatal flags propagate out".
// A dur of 0 returns nil at once, without polling. There is no
// "wait forever" value for dur: the responder's indefinite wait is
// expressed by the caller passing a very large dur, since spec §4.I's
// event loop itself runs forever one wait call at a time.
func Run(sockFD, wakeFD int, latch Latch, drain func(), clk clock.Clock, dur time.Duration, h Handlers) error {
	cur := clk.MonoNow()
	goal := cur + uint64(dur)

	for cur < goal {
		res, err := Poll(sockFD, wakeFD, latch, drain, clk, goal)
		if err != nil {
			return err
		}

		if res.Fatal {
			return ErrFatalSignal
		}
		if res.Usr1 {
			if h.OnUsr1 != nil {
				h.OnUsr1()
			}
			latch.ClearUsr1()
		}
		if res.Hup {
			if h.OnHup != nil {
				h.OnHup()
			}
			latch.ClearHup()
		}
		if res.ChildExited {
			if h.OnChildExited != nil {
				h.OnChildExited()
			}
			latch.ClearChildExited()
		}
		if res.Readable && h.OnReadable != nil {
			if err := h.OnReadable(); err != nil {
				return err
			}
		}

		cur = clk.MonoNow()
	}
	return nil
}

func checkLatch(latch Latch) Result {
	return Result{
		Fatal:       latch.Fatal(),
		Usr1:        latch.Usr1Pending(),
		Hup:         latch.HupPending(),
		ChildExited: latch.ChildExitedPending(),
	}
}
