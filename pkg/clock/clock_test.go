package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"gotest.tools/v3/assert"
)

func TestMonoNowIsNonDecreasing(t *testing.T) {
	c := New()
	a := c.MonoNow()
	time.Sleep(time.Millisecond)
	b := c.MonoNow()
	assert.Assert(t, b >= a)
}

func TestRealNowTracksFakeClock(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := NewFrom(fc)
	want := uint64(fc.Now().UnixNano())
	assert.Equal(t, c.RealNow(), want)
	fc.Advance(5 * time.Second)
	assert.Equal(t, c.RealNow(), uint64(fc.Now().UnixNano()))
}

func TestSplitNanos(t *testing.T) {
	sec, nsec := SplitNanos(1_500_000_001)
	assert.Equal(t, sec, int64(1))
	assert.Equal(t, nsec, int64(500_000_001))
}

func TestIPv6PackUnpackRoundTrip(t *testing.T) {
	addr := [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	low, high := PackIPv6(addr)
	got := UnpackIPv6(low, high)
	assert.DeepEqual(t, addr, got)
}

func TestIPv6PackIsShiftAndMaskNotMaskOnly(t *testing.T) {
	// byte 0 of the low half (addr[8]) must land in bit 0..7 of `low`,
	// not bit 8..15 as a masking-without-shifting bug would produce.
	addr := [16]byte{}
	addr[8] = 0xAB
	low, _ := PackIPv6(addr)
	assert.Equal(t, low&0xff, uint64(0xAB))
}
