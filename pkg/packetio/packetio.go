// Package packetio implements spec §4.C: encoding/sending and
// receiving/decoding a single datagram, including the per-datagram
// ancillary hop-limit extraction, against a pkg/channel.Channel.
package packetio

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

// stagingSize matches spec §4.C's "64 KiB staging buffer" — comfortably
// above the largest possible UDP datagram (65507 bytes of payload).
const stagingSize = 65536

// Logger is the minimal sink packetio needs; internal/logging.Sink
// satisfies it.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// SendPacket encodes base (plus any trailing bytes, zero-padded or
// truncated to base.PayloadLength) and sends one non-blocking datagram to
// dest. raiseOnError elevates the log level on failure, per spec §4.C.
func SendPacket(ch *channel.Channel, base *wire.Base, dest net.Addr, trailing []byte, raiseOnError bool, log Logger) error {
	total := int(base.PayloadLength)
	if total < wire.Size {
		total = wire.Size
	}
	buf := make([]byte, total)
	enc := wire.Encode(base)
	copy(buf, enc[:])
	copy(buf[wire.Size:], trailing)

	ch.Counters.SentTotal.Add(1)

	var n int
	var err error
	switch ch.Family() {
	case channel.FamilyV4:
		n, err = ch.IPv4().WriteTo(buf, nil, dest)
	case channel.FamilyV6:
		n, err = ch.IPv6().WriteTo(buf, nil, dest)
	default:
		err = fmt.Errorf("packetio: channel has unknown family %v", ch.Family())
	}

	if err != nil || n != len(buf) {
		ch.Counters.SentNetworkError.Add(1)
		logf := log.Debugf
		if raiseOnError {
			logf = log.Warnf
		}
		if err == nil {
			err = fmt.Errorf("short send: wrote %d of %d bytes", n, len(buf))
		}
		logf("packetio: send to %s failed: %v", dest, err)
		return err
	}
	return nil
}

// Received is the result of a successful ReceivePacket call.
type Received struct {
	Peer     net.Addr
	Base     wire.Base
	HopLimit int
	TotalLen int
	// Trailing holds whatever bytes followed the first 88 on the wire
	// (spec §3: "arbitrary trailing bytes; transmitted and received
	// verbatim"). Empty for a Size-length datagram.
	Trailing []byte
}

// ReceivePacket reads a single datagram, validates it per spec §3/§4.C,
// and extracts the ancillary hop-limit value (0, rendered downstream as
// "N/A", if the kernel didn't supply one). raiseOnError elevates the log
// level for per-datagram drops.
func ReceivePacket(ch *channel.Channel, raiseOnError bool, log Logger) (*Received, error) {
	buf := make([]byte, stagingSize)

	ch.Counters.RecvTotal.Add(1)

	var n, hopLimit int
	var src net.Addr
	var err error
	switch ch.Family() {
	case channel.FamilyV4:
		var cm *ipv4.ControlMessage
		n, cm, src, err = ch.IPv4().ReadFrom(buf)
		if cm != nil {
			hopLimit = cm.TTL
		}
	case channel.FamilyV6:
		var cm *ipv6.ControlMessage
		n, cm, src, err = ch.IPv6().ReadFrom(buf)
		if cm != nil {
			hopLimit = cm.HopLimit
		}
	default:
		err = fmt.Errorf("packetio: channel has unknown family %v", ch.Family())
	}

	if err != nil {
		ch.Counters.RecvNetworkError.Add(1)
		logf := log.Debugf
		if raiseOnError {
			logf = log.Warnf
		}
		logf("packetio: receive failed: %v", err)
		return nil, err
	}

	// A datagram that exactly fills the staging buffer may have been
	// truncated by the kernel; spec's MSG_TRUNC-equivalent signal isn't
	// exposed through golang.org/x/net, so this is the conservative
	// substitute.
	truncated := n >= stagingSize

	if n < wire.Size || truncated {
		ch.Counters.RecvSizeMismatch.Add(1)
		logf := log.Debugf
		if raiseOnError {
			logf = log.Warnf
		}
		logf("packetio: datagram from %s too short or truncated (%d bytes)", src, n)
		return nil, &wire.ValidationError{Kind: wire.ErrKindSize, Want: wire.Size, Got: n}
	}

	var fixed [wire.Size]byte
	copy(fixed[:], buf[:wire.Size])
	base := wire.Decode(fixed)

	if err := wire.Validate(&base, n, truncated); err != nil {
		var verr *wire.ValidationError
		if errors.As(err, &verr) {
			switch verr.Kind {
			case wire.ErrKindSize:
				ch.Counters.RecvSizeMismatch.Add(1)
			case wire.ErrKindMagic:
				ch.Counters.RecvMagicMismatch.Add(1)
			case wire.ErrKindVersion:
				ch.Counters.RecvVersionMismatch.Add(1)
			}
		}
		logf := log.Debugf
		if raiseOnError {
			logf = log.Warnf
		}
		logf("packetio: datagram from %s failed validation: %v", src, err)
		return nil, err
	}

	var trailing []byte
	if n > wire.Size {
		trailing = append([]byte(nil), buf[wire.Size:n]...)
	}
	return &Received{Peer: src, Base: base, HopLimit: hopLimit, TotalLen: n, Trailing: trailing}, nil
}
