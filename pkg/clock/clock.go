// Package clock provides the monotonic/wall-clock sources and the
// IPv6-address-half packing used across the nemo probe suite.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// processStart is captured once, at package init, so MonoNow reports
// nanoseconds elapsed since process start. time.Time retains a monotonic
// reading internally and time.Since keeps using it even after formatting
// or storage, per the time package docs, so subtraction here never
// observes wall-clock adjustments.
var processStart = time.Now()

// Clock is the monotonic/wall-clock source the round engine and wait
// loop depend on, so tests can substitute clockwork.NewFakeClock().
type Clock interface {
	// MonoNow returns nanoseconds on a monotonic source (not comparable
	// across processes or reboots).
	MonoNow() uint64
	// RealNow returns nanoseconds since the Unix epoch on the wall clock.
	RealNow() uint64
	// Underlying exposes the wrapped clockwork.Clock, for callers (the
	// wait loop, the round engine) that need Sleep/After/NewTicker.
	Underlying() clockwork.Clock
}

type realClock struct {
	wall clockwork.Clock
}

// New returns a Clock backed by the real system clock.
func New() Clock {
	return &realClock{wall: clockwork.NewRealClock()}
}

// NewFrom wraps an existing clockwork.Clock (typically a
// clockwork.FakeClock in tests).
func NewFrom(wall clockwork.Clock) Clock {
	return &realClock{wall: wall}
}

func (c *realClock) MonoNow() uint64 {
	return uint64(time.Since(processStart).Nanoseconds())
}

func (c *realClock) RealNow() uint64 {
	return uint64(c.wall.Now().UnixNano())
}

func (c *realClock) Underlying() clockwork.Clock {
	return c.wall
}

// NsToDuration converts a nanosecond count to a time.Duration.
func NsToDuration(ns uint64) time.Duration {
	return time.Duration(ns)
}

// SplitNanos converts a nanosecond count into whole seconds and the
// remaining nanoseconds, the representation pselect/ppoll deadlines need.
func SplitNanos(ns uint64) (sec int64, nsec int64) {
	sec = int64(ns / uint64(time.Second))
	nsec = int64(ns % uint64(time.Second))
	return sec, nsec
}

// PackIPv6 splits a 16-byte IPv6 address into two little-endian-packed
// uint64 halves, low then high, for the wire's addr_low/addr_high
// fields. The i-th low byte of the low half is addr[8+i]; the i-th low
// byte of the high half is addr[i] — the
// shift-and-mask form, not the masking-without-shifting form the spec
// flags as a source of one implementation's bug (see spec §9).
func PackIPv6(addr [16]byte) (low uint64, high uint64) {
	for i := 0; i < 8; i++ {
		high |= uint64(addr[i]) << (uint(i) * 8)
		low |= uint64(addr[8+i]) << (uint(i) * 8)
	}
	return low, high
}

// UnpackIPv6 is the inverse of PackIPv6.
func UnpackIPv6(low, high uint64) [16]byte {
	var addr [16]byte
	for i := 0; i < 8; i++ {
		addr[i] = byte(high >> (uint(i) * 8))
		addr[8+i] = byte(low >> (uint(i) * 8))
	}
	return addr
}
