package plugin

import (
	"os"
	"testing"

	"github.com/rs/xid"
	"gotest.tools/v3/assert"

	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

type testLog struct{ warns, debugs int }

func (l *testLog) Debugf(string, ...any) { l.debugs++ }
func (l *testLog) Warnf(string, ...any)  { l.warns++ }
func (l *testLog) Errorf(string, ...any) {}

func TestStateString(t *testing.T) {
	assert.Equal(t, StatePrepared.String(), "prepared")
	assert.Equal(t, StateRunning.String(), "running")
	assert.Equal(t, StatePaused.String(), "paused")
	assert.Equal(t, StateStopped.String(), "stopped")
}

func TestNonblockingWriteRoundTrip(t *testing.T) {
	r, w, err := os.Pipe()
	assert.NilError(t, err)
	defer r.Close()
	defer w.Close()

	n, err := nonblockingWrite(w, []byte("hello"))
	assert.NilError(t, err)
	assert.Equal(t, n, 5)

	buf := make([]byte, 5)
	_, err = r.Read(buf)
	assert.NilError(t, err)
	assert.Equal(t, string(buf), "hello")
}

func TestNonblockingWriteReportsEAGAINOnFullPipe(t *testing.T) {
	r, w, err := os.Pipe()
	assert.NilError(t, err)
	defer r.Close()
	defer w.Close()

	big := make([]byte, 1<<20)
	for {
		n, err := nonblockingWrite(w, big)
		if err != nil {
			// Pipe buffer is full: the single attempt reported EAGAIN
			// instead of blocking, which is the property under test.
			return
		}
		if n == 0 {
			t.Fatal("write made no progress and reported no error")
		}
	}
}

func TestNotifySkipsNonRunningPlugins(t *testing.T) {
	log := &testLog{}
	running := &Plugin{ID: xid.New(), Name: "running", outbox: make(chan [wire.Size]byte, outboxDepth), log: log}
	running.state.Store(int32(StateRunning))
	stopped := &Plugin{ID: xid.New(), Name: "stopped", outbox: make(chan [wire.Size]byte, outboxDepth), log: log}
	stopped.state.Store(int32(StateStopped))

	sb := &Sandbox{Log: log, plugins: []*Plugin{running, stopped}}
	sb.Notify(&wire.Base{Key: 42})

	select {
	case got := <-running.outbox:
		decoded := wire.Decode(got)
		assert.Equal(t, decoded.Key, uint64(42))
	default:
		t.Fatal("running plugin did not receive the frame")
	}
	assert.Equal(t, len(stopped.outbox), 0)
}

func TestNotifyDropsWhenOutboxFull(t *testing.T) {
	log := &testLog{}
	p := &Plugin{ID: xid.New(), Name: "slow", outbox: make(chan [wire.Size]byte, 1), log: log}
	p.state.Store(int32(StateRunning))
	sb := &Sandbox{Log: log, plugins: []*Plugin{p}}

	sb.Notify(&wire.Base{Key: 1})
	sb.Notify(&wire.Base{Key: 2})

	assert.Equal(t, log.debugs, 1)
}
