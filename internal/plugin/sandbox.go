// Package plugin implements spec §4.J's plugin sandbox.
//
// The source process forks and dlopen()s each plugin's shared object
// directly inside the child. Go has no fork() and plugin.Open keeps
// a process's plugins resident for its whole lifetime (they cannot be
// unloaded), so the sandbox boundary spec §9 calls "essential" — a
// separate process connected by a pipe — is kept by shelling out to a
// companion binary, cmd/nemo-plugin-host, via os/exec instead of
// fork+dlopen. The companion resolves the plugin ABI with Go's native
// plugin.Open and speaks the same 88-byte-frame-over-stdin protocol
// the source's child loop does.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/xid"

	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

// State mirrors spec §3's plugin record state machine.
type State int32

const (
	StatePrepared State = iota
	StateRunning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Logger is the minimal sink the sandbox needs for non-fatal
// delivery failures (spec §7's PluginIO kind: "non-fatal, logged").
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// outboxDepth bounds the per-plugin delivery queue. A full outbox is
// treated the same as a full kernel pipe: the payload is dropped and
// logged, never blocking the responder's event loop (spec §4.I step 6,
// "best-effort non-blocking").
const outboxDepth = 4

// Plugin is one running plugin child, addressed by a correlation ID
// distinct from its OS pid so log lines survive a pid reuse across
// restarts.
type Plugin struct {
	ID    xid.ID
	Name  string
	Path  string
	state atomic.Int32

	cmd    *exec.Cmd
	stdin  *os.File
	outbox chan [wire.Size]byte
	log    Logger

	wg sync.WaitGroup
}

// State reports the plugin's current lifecycle state.
func (p *Plugin) State() State { return State(p.state.Load()) }

// Sandbox owns every configured plugin's child process and delivery
// queue.
type Sandbox struct {
	HostBinary string // path to the nemo-plugin-host companion binary
	Log        Logger

	plugins []*Plugin
}

// New launches one companion process per plugin path (spec §4.J
// Startup). A plugin whose child fails to start is returned as an
// error, and the caller aborts the whole process, not just this
// plugin. New does not wait for the companion to resolve the plugin's
// symbols: a missing symbol makes that child print an error and exit 1
// after New has returned, and its reaper then marks the plugin stopped.
func New(ctx context.Context, hostBinary string, paths []string, log Logger) (*Sandbox, error) {
	sb := &Sandbox{HostBinary: hostBinary, Log: log}
	for _, path := range paths {
		p, err := launch(ctx, hostBinary, path, log)
		if err != nil {
			sb.Shutdown()
			return nil, fmt.Errorf("plugin: load %q: %w", path, err)
		}
		sb.plugins = append(sb.plugins, p)
	}
	return sb, nil
}

func launch(ctx context.Context, hostBinary, path string, log Logger) (*Plugin, error) {
	id := xid.New()
	cmd := exec.CommandContext(ctx, hostBinary, "--plugin", path, "--id", id.String())
	cmd.Stderr = os.Stderr

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdinFile, ok := stdinPipe.(*os.File)
	if !ok {
		return nil, errors.New("stdin pipe is not a file (unsupported platform)")
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	p := &Plugin{
		ID:     id,
		Name:   path,
		Path:   path,
		cmd:    cmd,
		stdin:  stdinFile,
		outbox: make(chan [wire.Size]byte, outboxDepth),
		log:    log,
	}
	p.state.Store(int32(StateRunning))

	p.wg.Add(2)
	go p.writer()
	go p.reap()
	return p, nil
}

// writer drains the outbox into the child's stdin with a single
// non-blocking write attempt per frame, matching the source's
// O_NONBLOCK pipe: a slow or stuck plugin gets EAGAIN, the frame is
// dropped, and the responder loop never stalls on it (spec §8 scenario
// 6).
func (p *Plugin) writer() {
	defer p.wg.Done()
	for frame := range p.outbox {
		n, err := nonblockingWrite(p.stdin, frame[:])
		if err != nil {
			p.log.Warnf("plugin %s (%s): write failed: %v", p.Name, p.ID, err)
			continue
		}
		if n != wire.Size {
			p.log.Warnf("plugin %s (%s): short write %d/%d bytes, dropped", p.Name, p.ID, n, wire.Size)
		}
	}
}

// reap tracks stop/continue/exit transitions via wait4, per spec §4.J's
// Reaping step. The wait4 call blocks, but only in this plugin's own
// goroutine, so the responder's event loop never waits on it.
// os/exec's Cmd.Wait only reports
// termination, so the sandbox does its own wait4 with WUNTRACED and
// WCONTINUED to see the paused/resumed states the spec's state machine
// requires.
func (p *Plugin) reap() {
	defer p.wg.Done()
	pid := p.cmd.Process.Pid
	for {
		var status syscall.WaitStatus
		wpid, err := syscall.Wait4(pid, &status, syscall.WUNTRACED|syscall.WCONTINUED, nil)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			p.state.Store(int32(StateStopped))
			return
		}
		if wpid == 0 {
			continue
		}
		switch {
		case status.Exited(), status.Signaled():
			p.state.Store(int32(StateStopped))
			return
		case status.Stopped():
			p.state.Store(int32(StatePaused))
		case status.Continued():
			p.state.Store(int32(StateRunning))
		}
	}
}

// nonblockingWrite performs exactly one write(2) attempt on f's raw
// fd, returning whatever syscall.EAGAIN or a short count reports
// rather than waiting for room.
func nonblockingWrite(f *os.File, buf []byte) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var n int
	var werr error
	ctrlErr := rc.Write(func(fd uintptr) bool {
		n, werr = syscall.Write(int(fd), buf)
		return true
	})
	if ctrlErr != nil {
		return n, ctrlErr
	}
	return n, werr
}

// Notify implements spec §4.J's notify_plugins: it iterates every
// plugin, skips non-running ones, and enqueues the base for delivery.
// A full outbox is a dropped delivery, logged at debug (spec's
// "skipping non-running plugins").
func (sb *Sandbox) Notify(base *wire.Base) {
	buf := wire.Encode(base)
	for _, p := range sb.plugins {
		if p.State() != StateRunning {
			continue
		}
		select {
		case p.outbox <- buf:
		default:
			sb.Log.Debugf("plugin %s (%s): outbox full, dropping frame", p.Name, p.ID)
		}
	}
}

// Plugins returns the loaded plugin set, for info-dump reporting.
func (sb *Sandbox) Plugins() []*Plugin { return sb.plugins }

// Shutdown implements spec §4.J's Shutdown: close every write end
// (ending each child's read loop), then join all children. One
// plugin's failure to close cleanly does not stop the others from
// being reaped (spec: "does not abort processing of the others").
func (sb *Sandbox) Shutdown() {
	for _, p := range sb.plugins {
		if p == nil {
			continue
		}
		close(p.outbox)
		if err := p.stdin.Close(); err != nil && sb.Log != nil {
			sb.Log.Warnf("plugin %s (%s): close stdin: %v", p.Name, p.ID, err)
		}
	}
	for _, p := range sb.plugins {
		if p == nil {
			continue
		}
		p.wg.Wait()
	}
}
