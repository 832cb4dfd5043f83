// Package report implements spec §6's reporting rows: one CSV or raw
// binary row per observed event, written to an external sink (a file
// or stdout). Grounded on the pack's own CSV exporter pattern
// (malbeclabs-doublezero's internal/exporter/csv.go uses
// encoding/csv directly over a plain *os.File); no example repo pulls
// in a third-party CSV or structured-row library, so the stdlib writer
// is kept here.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/lovasko-rewrite/nemo/pkg/wire"
)

// RequesterRow is one emitted row on the requester side (spec §6).
type RequesterRow struct {
	Key        uint64
	SeqNum     uint64
	SeqLen     uint64
	AddrRes    string // rendered target address
	TTLDepReq  uint8
	TTLArrRes  uint8
	TTLDepRes  uint8
	TTLArrReq  uint8
	RealDepReq uint64
	RealArrRes uint64
	RealArrReq uint64
	MonoDepReq uint64
	MonoArrRes uint64
	MonoArrReq uint64
}

// ResponderRow is one emitted row on the responder side (spec §6).
type ResponderRow struct {
	Key        uint64
	SeqNum     uint64
	SeqLen     uint64
	AddrReq    string
	PortReq    uint16
	TTLDepReq  uint8
	TTLArrRes  uint8
	RealDepReq uint64
	RealArrRes uint64
	MonoDepReq uint64
	MonoArrRes uint64
}

var requesterHeader = []string{
	"key", "seq_num", "seq_len", "addr_res",
	"ttl_dep_req", "ttl_arr_res", "ttl_dep_res", "ttl_arr_req",
	"real_dep_req", "real_arr_res", "real_arr_req",
	"mono_dep_req", "mono_arr_res", "mono_arr_req",
}

var responderHeader = []string{
	"key", "seq_num", "seq_len", "addr_req", "port_req",
	"ttl_dep_req", "ttl_arr_res",
	"real_dep_req", "real_arr_res",
	"mono_dep_req", "mono_arr_res",
}

// na renders a hop limit of 0 (spec §8's hop-limit-extraction property:
// "ttl_req_arr is 0, and the CSV renders it as N/A").
func na(ttl uint8) string {
	if ttl == 0 {
		return "N/A"
	}
	return strconv.Itoa(int(ttl))
}

// Sink is the destination for emitted rows. Both requester and
// responder hold one, selected at startup by -b (binary) and -q
// (suppressed).
type Sink interface {
	WriteRequesterRow(RequesterRow) error
	WriteResponderRow(ResponderRow) error
	Close() error
}

// NullSink discards every row; used when -q is set.
type NullSink struct{}

func (NullSink) WriteRequesterRow(RequesterRow) error { return nil }
func (NullSink) WriteResponderRow(ResponderRow) error { return nil }
func (NullSink) Close() error                         { return nil }

// csvSink writes the header-prefixed CSV rows spec §6 defines.
type csvSink struct {
	w             *csv.Writer
	wroteReqHead  bool
	wroteResHead  bool
}

// NewCSVSink wraps w in the standard CSV report format.
func NewCSVSink(w io.Writer) Sink {
	return &csvSink{w: csv.NewWriter(w)}
}

func (s *csvSink) WriteRequesterRow(r RequesterRow) error {
	if !s.wroteReqHead {
		if err := s.w.Write(requesterHeader); err != nil {
			return err
		}
		s.wroteReqHead = true
	}
	rec := []string{
		strconv.FormatUint(r.Key, 10),
		strconv.FormatUint(r.SeqNum, 10),
		strconv.FormatUint(r.SeqLen, 10),
		r.AddrRes,
		na(r.TTLDepReq), na(r.TTLArrRes), na(r.TTLDepRes), na(r.TTLArrReq),
		strconv.FormatUint(r.RealDepReq, 10),
		strconv.FormatUint(r.RealArrRes, 10),
		strconv.FormatUint(r.RealArrReq, 10),
		strconv.FormatUint(r.MonoDepReq, 10),
		strconv.FormatUint(r.MonoArrRes, 10),
		strconv.FormatUint(r.MonoArrReq, 10),
	}
	if err := s.w.Write(rec); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *csvSink) WriteResponderRow(r ResponderRow) error {
	if !s.wroteResHead {
		if err := s.w.Write(responderHeader); err != nil {
			return err
		}
		s.wroteResHead = true
	}
	rec := []string{
		strconv.FormatUint(r.Key, 10),
		strconv.FormatUint(r.SeqNum, 10),
		strconv.FormatUint(r.SeqLen, 10),
		r.AddrReq,
		strconv.Itoa(int(r.PortReq)),
		na(r.TTLDepReq), na(r.TTLArrRes),
		strconv.FormatUint(r.RealDepReq, 10),
		strconv.FormatUint(r.RealArrRes, 10),
		strconv.FormatUint(r.MonoDepReq, 10),
		strconv.FormatUint(r.MonoArrRes, 10),
	}
	if err := s.w.Write(rec); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *csvSink) Close() error { s.w.Flush(); return s.w.Error() }

// binarySink writes raw 88-byte bases, network byte order, one row per
// event, no separators (spec §6's -b mode). It reconstructs a wire.Base
// from whichever row shape it is given, since the binary frame is
// defined once regardless of which side emits it.
type binarySink struct {
	w io.WriteCloser
}

// NewBinarySink wraps w for -b raw-frame output.
func NewBinarySink(w io.WriteCloser) Sink {
	return &binarySink{w: w}
}

func (s *binarySink) WriteRequesterRow(r RequesterRow) error {
	base := wire.Base{
		Magic:         wire.Magic,
		FormatVersion: wire.FormatVersion,
		MsgType:       wire.MsgTypeResponse,
		Key:           r.Key,
		SeqNum:        r.SeqNum,
		SeqLen:        r.SeqLen,
		TTLReqDep:     r.TTLDepReq,
		TTLReqArr:     r.TTLArrReq,
		TTLResDep:     r.TTLDepRes,
		PayloadLength: wire.Size,
		MonoReq:       r.MonoDepReq,
		RealReq:       r.RealDepReq,
		MonoRes:       r.MonoArrRes,
		RealRes:       r.RealArrRes,
	}
	return s.writeBase(&base)
}

func (s *binarySink) WriteResponderRow(r ResponderRow) error {
	base := wire.Base{
		Magic:         wire.Magic,
		FormatVersion: wire.FormatVersion,
		MsgType:       wire.MsgTypeResponse,
		Key:           r.Key,
		SeqNum:        r.SeqNum,
		SeqLen:        r.SeqLen,
		UDPPort:       r.PortReq,
		TTLReqDep:     r.TTLDepReq,
		TTLReqArr:     r.TTLArrRes,
		PayloadLength: wire.Size,
		MonoReq:       r.MonoDepReq,
		RealReq:       r.RealDepReq,
	}
	return s.writeBase(&base)
}

func (s *binarySink) writeBase(b *wire.Base) error {
	buf := wire.Encode(b)
	n, err := s.w.Write(buf[:])
	if err != nil {
		return err
	}
	if n != wire.Size {
		return fmt.Errorf("report: short binary write: wrote %d of %d bytes", n, wire.Size)
	}
	return nil
}

func (s *binarySink) Close() error { return s.w.Close() }
