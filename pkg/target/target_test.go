package target

import (
	"context"
	"net"
	"testing"

	"gotest.tools/v3/assert"
)

type nullLog struct{ warnings []string }

func (l *nullLog) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, format)
}

type fakeResolver struct {
	byName map[string][]net.IPAddr
}

func (f *fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	return f.byName[host], nil
}

func TestLoadDedupsAndSortsLiterals(t *testing.T) {
	log := &nullLog{}
	out, err := Load(context.Background(), &fakeResolver{}, []string{"1.1.1.1", "1.1.1.1", "2.2.2.2"}, false, DefaultMax, log)
	assert.NilError(t, err)
	assert.Equal(t, len(out), 2)
	assert.Assert(t, less(out[0], out[1]))
}

func TestLoadCombinesLiteralsAndResolvedNames(t *testing.T) {
	res := &fakeResolver{byName: map[string][]net.IPAddr{
		"a.example": {{IP: net.ParseIP("10.0.0.1")}, {IP: net.ParseIP("10.0.0.2")}},
		"b.example": {{IP: net.ParseIP("10.0.0.3")}},
	}}
	log := &nullLog{}
	out, err := Load(context.Background(), res, []string{"a.example", "b.example", "a.example"}, false, DefaultMax, log)
	assert.NilError(t, err)
	assert.Equal(t, len(out), 3)
}

func TestLoadDropsMismatchedFamily(t *testing.T) {
	log := &nullLog{}
	out, err := Load(context.Background(), &fakeResolver{}, []string{"1.1.1.1"}, true, DefaultMax, log)
	assert.NilError(t, err)
	assert.Equal(t, len(out), 0)
}

func TestLoadCapsPerNameResolution(t *testing.T) {
	var addrs []net.IPAddr
	for i := 0; i < 40; i++ {
		addrs = append(addrs, net.IPAddr{IP: net.IPv4(10, 0, byte(i/256), byte(i%256))})
	}
	res := &fakeResolver{byName: map[string][]net.IPAddr{"many.example": addrs}}
	log := &nullLog{}
	out, err := Load(context.Background(), res, []string{"many.example"}, false, DefaultMax, log)
	assert.NilError(t, err)
	assert.Equal(t, len(out), perNameCap)
	assert.Assert(t, len(log.warnings) >= 1)
}

func TestLoadTruncatesToMaxTargets(t *testing.T) {
	log := &nullLog{}
	out, err := Load(context.Background(), &fakeResolver{}, []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, false, 2, log)
	assert.NilError(t, err)
	assert.Equal(t, len(out), 2)
	assert.Assert(t, len(log.warnings) >= 1)
}

func TestAddrRoundTrips(t *testing.T) {
	log := &nullLog{}
	out, err := Load(context.Background(), &fakeResolver{}, []string{"192.0.2.7"}, false, DefaultMax, log)
	assert.NilError(t, err)
	assert.Equal(t, len(out), 1)
	assert.Equal(t, out[0].Addr().String(), "192.0.2.7")
}
