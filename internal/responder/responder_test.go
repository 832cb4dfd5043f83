package responder

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/lovasko-rewrite/nemo/internal/config"
	"github.com/lovasko-rewrite/nemo/internal/report"
	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/clock"
	"github.com/lovasko-rewrite/nemo/pkg/wait"
	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

type testLog struct{}

func (testLog) Debugf(string, ...any) {}
func (testLog) Infof(string, ...any)  {}
func (testLog) Warnf(string, ...any)  {}
func (testLog) Errorf(string, ...any) {}

type noopLatch struct{}

func (noopLatch) Fatal() bool              { return false }
func (noopLatch) Usr1Pending() bool        { return false }
func (noopLatch) HupPending() bool         { return false }
func (noopLatch) ChildExitedPending() bool { return false }
func (noopLatch) ClearUsr1()               {}
func (noopLatch) ClearHup()                {}
func (noopLatch) ClearChildExited()        {}

type rowSink struct {
	rows []report.ResponderRow
}

func (s *rowSink) WriteRequesterRow(report.RequesterRow) error { return nil }
func (s *rowSink) WriteResponderRow(r report.ResponderRow) error {
	s.rows = append(s.rows, r)
	return nil
}
func (s *rowSink) Close() error { return nil }

func newTestResponder(t *testing.T, cfg *config.ResponderConfig, sink report.Sink) (*Responder, *channel.Channel) {
	t.Helper()
	ch, err := channel.OpenV4(0, 0, 0, cfg.TTL)
	assert.NilError(t, err)
	t.Cleanup(func() { ch.Close() })

	return &Responder{
		Cfg:     cfg,
		Channel: ch,
		Sink:    sink,
		Log:     testLog{},
		Clock:   clock.New(),
		Latch:   noopLatch{},
		WakeFD:  -1,
		Drain:   func() {},
	}, ch
}

func sendRequest(t *testing.T, from *channel.Channel, to *channel.Channel, key uint64, payloadLen int) {
	t.Helper()
	base := wire.Base{
		Magic: wire.Magic, FormatVersion: wire.FormatVersion, MsgType: wire.MsgTypeRequest,
		Key: key, PayloadLength: uint16(payloadLen), SeqNum: 0, SeqLen: 1,
	}
	buf := make([]byte, payloadLen)
	enc := wire.Encode(&base)
	copy(buf, enc[:])
	_, err := from.Conn().WriteTo(buf, to.Conn().LocalAddr())
	assert.NilError(t, err)
}

// TestHandleReadableMatchingKeyProducesReplyAndRow reproduces spec §8
// scenario 1's responder side: a matching-key request produces exactly
// one report row and exactly one reply.
func TestHandleReadableMatchingKeyProducesReplyAndRow(t *testing.T) {
	sink := &rowSink{}
	cfg := &config.ResponderConfig{Common: config.Common{Key: 7, TTL: 9, PayloadLength: wire.Size}}
	r, ch := newTestResponder(t, cfg, sink)

	client, err := channel.OpenV4(0, 0, 0, 1)
	assert.NilError(t, err)
	defer client.Close()

	sendRequest(t, client, ch, 7, wire.Size)

	err = wait.Run(ch.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, 200*time.Millisecond, wait.Handlers{
		OnReadable: r.handleReadable,
	})
	assert.NilError(t, err)
	assert.Equal(t, len(sink.rows), 1)
	assert.Equal(t, sink.rows[0].Key, uint64(7))

	buf := make([]byte, wire.Size)
	client.Conn().SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := client.Conn().ReadFrom(buf)
	assert.NilError(t, err)
	assert.Equal(t, n, wire.Size)
	reply := wire.Decode([wire.Size]byte(buf))
	assert.Equal(t, reply.MsgType, wire.MsgTypeResponse)
	assert.Equal(t, reply.TTLResDep, uint8(9))
}

// TestHandleReadableKeyMismatchDropsSilently reproduces spec §8
// scenario 2: a non-matching key produces no row and no reply.
func TestHandleReadableKeyMismatchDropsSilently(t *testing.T) {
	sink := &rowSink{}
	cfg := &config.ResponderConfig{Common: config.Common{Key: 8, TTL: 9, PayloadLength: wire.Size}}
	r, ch := newTestResponder(t, cfg, sink)

	client, err := channel.OpenV4(0, 0, 0, 1)
	assert.NilError(t, err)
	defer client.Close()

	sendRequest(t, client, ch, 7, wire.Size)

	err = wait.Run(ch.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, 100*time.Millisecond, wait.Handlers{
		OnReadable: r.handleReadable,
	})
	assert.NilError(t, err)
	assert.Equal(t, len(sink.rows), 0)

	buf := make([]byte, wire.Size)
	client.Conn().SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = client.Conn().ReadFrom(buf)
	assert.Assert(t, err != nil)
}

// TestHandleReadableLengthMismatchDropsSilently covers the other half
// of spec §8's filter property: length mismatch also drops silently.
func TestHandleReadableLengthMismatchDropsSilently(t *testing.T) {
	sink := &rowSink{}
	cfg := &config.ResponderConfig{Common: config.Common{Key: 0, TTL: 9, PayloadLength: 1000}}
	r, ch := newTestResponder(t, cfg, sink)

	client, err := channel.OpenV4(0, 0, 0, 1)
	assert.NilError(t, err)
	defer client.Close()

	sendRequest(t, client, ch, 0, wire.Size)

	err = wait.Run(ch.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, 100*time.Millisecond, wait.Handlers{
		OnReadable: r.handleReadable,
	})
	assert.NilError(t, err)
	assert.Equal(t, len(sink.rows), 0)
}

// TestHandleReadableExtendedLengthAccepted reproduces spec §8 scenario
// 3: a 1000-byte datagram whose first 88 bytes decode to a valid base
// is accepted and replied to in kind.
func TestHandleReadableExtendedLengthAccepted(t *testing.T) {
	sink := &rowSink{}
	cfg := &config.ResponderConfig{Common: config.Common{Key: 0, TTL: 9, PayloadLength: 1000}}
	r, ch := newTestResponder(t, cfg, sink)

	client, err := channel.OpenV4(0, 0, 0, 1)
	assert.NilError(t, err)
	defer client.Close()

	sendRequest(t, client, ch, 0, 1000)

	err = wait.Run(ch.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, 200*time.Millisecond, wait.Handlers{
		OnReadable: r.handleReadable,
	})
	assert.NilError(t, err)
	assert.Equal(t, len(sink.rows), 1)

	buf := make([]byte, 2000)
	client.Conn().SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := client.Conn().ReadFrom(buf)
	assert.NilError(t, err)
	assert.Equal(t, n, 1000)
}

// TestHandleReadableMonologueSuppressesReply covers the glossary's
// monologue mode: no reply is sent even for a matching datagram.
func TestHandleReadableMonologueSuppressesReply(t *testing.T) {
	sink := &rowSink{}
	cfg := &config.ResponderConfig{Common: config.Common{Key: 0, TTL: 9, PayloadLength: wire.Size, Monologue: true}}
	r, ch := newTestResponder(t, cfg, sink)

	client, err := channel.OpenV4(0, 0, 0, 1)
	assert.NilError(t, err)
	defer client.Close()

	sendRequest(t, client, ch, 0, wire.Size)

	err = wait.Run(ch.Fd(), r.WakeFD, r.Latch, r.Drain, r.Clock, 100*time.Millisecond, wait.Handlers{
		OnReadable: r.handleReadable,
	})
	assert.NilError(t, err)
	assert.Equal(t, len(sink.rows), 1)

	buf := make([]byte, wire.Size)
	client.Conn().SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = client.Conn().ReadFrom(buf)
	assert.Assert(t, err != nil)
}
