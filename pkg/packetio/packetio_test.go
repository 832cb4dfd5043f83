package packetio

import (
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

func TestSendReceiveRoundTrip(t *testing.T) {
	recv, err := channel.OpenV4(0, 0, 0, 64)
	assert.NilError(t, err)
	defer recv.Close()

	send, err := channel.OpenV4(0, 0, 0, 64)
	assert.NilError(t, err)
	defer send.Close()

	dest := recv.Conn().LocalAddr()
	base := &wire.Base{
		Magic:         wire.Magic,
		FormatVersion: wire.FormatVersion,
		MsgType:       wire.MsgTypeRequest,
		IPVersion:     4,
		PayloadLength: wire.Size,
		SeqNum:        3,
		SeqLen:        5,
		Key:           99,
	}

	err = SendPacket(send, base, dest, nil, true, nopLogger{})
	assert.NilError(t, err)

	recv.Conn().SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := ReceivePacket(recv, true, nopLogger{})
	assert.NilError(t, err)
	assert.Equal(t, got.Base.SeqNum, uint64(3))
	assert.Equal(t, got.Base.Key, uint64(99))
	assert.Equal(t, got.TotalLen, wire.Size)
}

func TestSendReceivePreservesTrailingBytes(t *testing.T) {
	recv, err := channel.OpenV4(0, 0, 0, 64)
	assert.NilError(t, err)
	defer recv.Close()

	send, err := channel.OpenV4(0, 0, 0, 64)
	assert.NilError(t, err)
	defer send.Close()

	dest := recv.Conn().LocalAddr()
	base := &wire.Base{
		Magic:         wire.Magic,
		FormatVersion: wire.FormatVersion,
		MsgType:       wire.MsgTypeRequest,
		IPVersion:     4,
		PayloadLength: 1000,
	}
	trailing := make([]byte, 1000-wire.Size)
	for i := range trailing {
		trailing[i] = byte(i)
	}

	err = SendPacket(send, base, dest, trailing, true, nopLogger{})
	assert.NilError(t, err)

	recv.Conn().SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := ReceivePacket(recv, true, nopLogger{})
	assert.NilError(t, err)
	assert.Equal(t, got.TotalLen, 1000)
	assert.DeepEqual(t, got.Trailing, trailing)
}

func TestReceiveRejectsShortDatagram(t *testing.T) {
	recv, err := channel.OpenV4(0, 0, 0, 64)
	assert.NilError(t, err)
	defer recv.Close()

	sender, err := net.Dial("udp4", recv.Conn().LocalAddr().String())
	if err != nil {
		t.Skip("could not dial helper in this environment")
	}
	defer sender.Close()
	_, err = sender.Write([]byte("short"))
	assert.NilError(t, err)

	recv.Conn().SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = ReceivePacket(recv, true, nopLogger{})
	assert.ErrorContains(t, err, "size mismatch")
}
