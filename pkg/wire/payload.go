// Package wire implements the fixed-layout request/response datagram used
// by the nemo probe suite (see the base layout table in the project spec).
package wire

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed length, in bytes, of the on-wire base payload. A
// payload may carry additional trailing bytes; PayloadLength records the
// total on-wire length including those.
const Size = 88

// Magic is the constant that opens every base payload, the big-endian
// encoding of the ASCII string "nemo".
const Magic uint32 = 0x6e656d6f

// FormatVersion is the only wire version this implementation understands.
const FormatVersion uint8 = 4

// MsgType values.
const (
	MsgTypeResponse uint8 = 1
	MsgTypeRequest  uint8 = 2
)

// Base is the decoded form of the 88-byte wire payload. Field order
// matches the on-wire layout; unexported padding is intentionally absent
// since Encode writes zero for it directly.
type Base struct {
	Magic         uint32
	FormatVersion uint8
	MsgType       uint8
	UDPPort       uint16
	TTLReqDep     uint8
	TTLReqArr     uint8
	TTLResDep     uint8
	IPVersion     uint8
	PayloadLength uint16
	SeqNum        uint64
	SeqLen        uint64
	AddrLow       uint64
	AddrHigh      uint64
	Key           uint64
	MonoReq       uint64
	RealReq       uint64
	MonoRes       uint64
	RealRes       uint64
}

// Encode writes b into an 88-byte wire buffer, big-endian. The two
// reserved bytes at offset 14 are always written as zero.
func Encode(b *Base) [Size]byte {
	var buf [Size]byte
	binary.BigEndian.PutUint32(buf[0:4], b.Magic)
	buf[4] = b.FormatVersion
	buf[5] = b.MsgType
	binary.BigEndian.PutUint16(buf[6:8], b.UDPPort)
	buf[8] = b.TTLReqDep
	buf[9] = b.TTLReqArr
	buf[10] = b.TTLResDep
	buf[11] = b.IPVersion
	binary.BigEndian.PutUint16(buf[12:14], b.PayloadLength)
	// buf[14:16] stays zero (reserved).
	binary.BigEndian.PutUint64(buf[16:24], b.SeqNum)
	binary.BigEndian.PutUint64(buf[24:32], b.SeqLen)
	binary.BigEndian.PutUint64(buf[32:40], b.AddrLow)
	binary.BigEndian.PutUint64(buf[40:48], b.AddrHigh)
	binary.BigEndian.PutUint64(buf[48:56], b.Key)
	binary.BigEndian.PutUint64(buf[56:64], b.MonoReq)
	binary.BigEndian.PutUint64(buf[64:72], b.RealReq)
	binary.BigEndian.PutUint64(buf[72:80], b.MonoRes)
	binary.BigEndian.PutUint64(buf[80:88], b.RealRes)
	return buf
}

// Decode is total: it never fails on a full 88-byte input. Validity is a
// separate concern, checked by Validate.
func Decode(buf [Size]byte) Base {
	return Base{
		Magic:         binary.BigEndian.Uint32(buf[0:4]),
		FormatVersion: buf[4],
		MsgType:       buf[5],
		UDPPort:       binary.BigEndian.Uint16(buf[6:8]),
		TTLReqDep:     buf[8],
		TTLReqArr:     buf[9],
		TTLResDep:     buf[10],
		IPVersion:     buf[11],
		PayloadLength: binary.BigEndian.Uint16(buf[12:14]),
		SeqNum:        binary.BigEndian.Uint64(buf[16:24]),
		SeqLen:        binary.BigEndian.Uint64(buf[24:32]),
		AddrLow:       binary.BigEndian.Uint64(buf[32:40]),
		AddrHigh:      binary.BigEndian.Uint64(buf[40:48]),
		Key:           binary.BigEndian.Uint64(buf[48:56]),
		MonoReq:       binary.BigEndian.Uint64(buf[56:64]),
		RealReq:       binary.BigEndian.Uint64(buf[64:72]),
		MonoRes:       binary.BigEndian.Uint64(buf[72:80]),
		RealRes:       binary.BigEndian.Uint64(buf[80:88]),
	}
}

// ErrorKind identifies which per-datagram validation check failed, so the
// caller can bump the matching channel counter.
type ErrorKind int

const (
	ErrKindNone ErrorKind = iota
	ErrKindSize
	ErrKindMagic
	ErrKindVersion
	ErrKindType
)

func (k ErrorKind) Error() string {
	switch k {
	case ErrKindSize:
		return "size mismatch"
	case ErrKindMagic:
		return "magic mismatch"
	case ErrKindVersion:
		return "version mismatch"
	case ErrKindType:
		return "type mismatch"
	default:
		return "no error"
	}
}

// ValidationError pairs an ErrorKind with the offending values.
type ValidationError struct {
	Kind ErrorKind
	Want any
	Got  any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: want %v, got %v", e.Kind, e.Want, e.Got)
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// Validate checks the invariants a payload must satisfy to be valid on
// receipt: len(receivedLen) >= Size, no truncation, magic matches, and
// format version matches. receivedLen is the length actually read off
// the wire (which may exceed Size for payloads carrying trailing bytes);
// truncated indicates the datagram was reported as truncated by the
// kernel (MSG_TRUNC or equivalent).
func Validate(b *Base, receivedLen int, truncated bool) error {
	if receivedLen < Size || truncated {
		return &ValidationError{Kind: ErrKindSize, Want: Size, Got: receivedLen}
	}
	if int(b.PayloadLength) != receivedLen {
		return &ValidationError{Kind: ErrKindSize, Want: receivedLen, Got: b.PayloadLength}
	}
	if b.Magic != Magic {
		return &ValidationError{Kind: ErrKindMagic, Want: Magic, Got: b.Magic}
	}
	if b.FormatVersion != FormatVersion {
		return &ValidationError{Kind: ErrKindVersion, Want: FormatVersion, Got: b.FormatVersion}
	}
	return nil
}

// ValidateType checks msg_type separately from Validate, since the
// responder and requester expect different types and bump a dedicated
// counter on mismatch (spec §3/§7).
func ValidateType(b *Base, want uint8) error {
	if b.MsgType != want {
		return &ValidationError{Kind: ErrKindType, Want: want, Got: b.MsgType}
	}
	return nil
}
