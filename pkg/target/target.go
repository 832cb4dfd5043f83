// Package target implements spec §4.F: parsing, resolving, deduplicating
// and sorting the requester's configured target strings into a stable
// Target list.
//
// Grounded on the pack's only other target-management type,
// malbeclabs-doublezero's internal/gm.TargetSet (telemetry/global-monitor),
// which keys a set of probe targets by an identity and prunes/updates it
// under a mutex for concurrent probing. This suite's round engine is
// single-threaded per spec §5, so there is no concurrent set to guard —
// what's kept from that shape is the "resolve once, produce a stable,
// deduplicated ordering" idea, not the mutex/goroutine-pool machinery.
package target

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"

	"github.com/lovasko-rewrite/nemo/pkg/channel"
	"github.com/lovasko-rewrite/nemo/pkg/clock"
)

// perNameCap bounds how many resolved addresses one name may contribute
// (spec §4.F: "a per-name cap of 32 applies; excess addresses are
// dropped with a warning").
const perNameCap = 32

// DefaultMax and HardCap are the target-count bounds spec §4.F assigns:
// a configurable default of 64, and a hard ceiling of 2048 regardless of
// configuration.
const (
	DefaultMax = 64
	HardCap    = 2048
)

// Target is one resolved destination (spec §3): an address family plus
// the two wire halves of the address, and the source string it came
// from (for logging only — it plays no role in comparison or dedup).
type Target struct {
	IPVersion  uint8
	AddrLow    uint64
	AddrHigh   uint64
	SourceName string
}

// Logger is the minimal sink Load needs to warn about dropped addresses.
type Logger interface {
	Warnf(format string, args ...any)
}

// Resolver is the subset of net.Resolver Load depends on, so tests can
// substitute a fake without touching the network.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Load implements spec §4.F in full: parse every string in names either
// as a literal address or (failing that) as a name to resolve, then
// sort and deduplicate the combined result. v6Enabled selects which
// family literal addresses and resolved addresses must match to be
// kept; maxTargets is the configured upper bound (clamped to HardCap).
func Load(ctx context.Context, res Resolver, names []string, v6Enabled bool, maxTargets int, log Logger) ([]Target, error) {
	if maxTargets <= 0 || maxTargets > HardCap {
		maxTargets = HardCap
	}

	var out []Target
	for _, name := range names {
		if addr, err := netip.ParseAddr(name); err == nil {
			if t, ok := fromLiteral(addr, v6Enabled, name); ok {
				out = append(out, t)
			}
			continue
		}

		addrs, err := res.LookupIPAddr(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("target: resolve %q: %w", name, err)
		}

		matched := 0
		for _, a := range addrs {
			addr, ok := netip.AddrFromSlice(a.IP)
			if !ok {
				continue
			}
			addr = addr.Unmap()
			t, ok := fromLiteral(addr, v6Enabled, name)
			if !ok {
				continue
			}
			if matched >= perNameCap {
				log.Warnf("target: %q resolved to more than %d addresses, dropping the rest", name, perNameCap)
				break
			}
			out = append(out, t)
			matched++
		}
	}

	out = sortAndDedup(out)
	if len(out) > maxTargets {
		log.Warnf("target: %d resolved targets exceeds configured max %d, truncating", len(out), maxTargets)
		out = out[:maxTargets]
	}
	return out, nil
}

func fromLiteral(addr netip.Addr, v6Enabled bool, source string) (Target, bool) {
	if addr.Is4() || addr.Is4In6() {
		if v6Enabled {
			return Target{}, false
		}
		a := addr.As4()
		low, _ := clock.PackIPv6(to16(a[:]))
		return Target{IPVersion: uint8(channel.FamilyV4), AddrLow: low, SourceName: source}, true
	}
	if !v6Enabled {
		return Target{}, false
	}
	low, high := clock.PackIPv6(addr.As16())
	return Target{IPVersion: uint8(channel.FamilyV6), AddrLow: low, AddrHigh: high, SourceName: source}, true
}

func to16(v4 []byte) [16]byte {
	var out [16]byte
	copy(out[12:], v4)
	return out
}

// sortAndDedup sorts by byte-wise lexicographic compare on
// (IPVersion, AddrHigh, AddrLow) and removes exact duplicates, matching
// spec §4.F/§8's "sort by byte-wise lexicographic compare... and
// deduplicate" and the dedup testable property.
func sortAndDedup(in []Target) []Target {
	sort.SliceStable(in, func(i, j int) bool { return less(in[i], in[j]) })

	out := in[:0:0]
	for i, t := range in {
		if i == 0 || !equal(in[i-1], t) {
			out = append(out, t)
		}
	}
	return out
}

func less(a, b Target) bool {
	if a.IPVersion != b.IPVersion {
		return a.IPVersion < b.IPVersion
	}
	if a.AddrHigh != b.AddrHigh {
		return a.AddrHigh < b.AddrHigh
	}
	return a.AddrLow < b.AddrLow
}

func equal(a, b Target) bool {
	return a.IPVersion == b.IPVersion && a.AddrHigh == b.AddrHigh && a.AddrLow == b.AddrLow
}

// Addr renders t back into a net.IP, for building the net.Addr passed to
// packetio.SendPacket and for CSV rows.
func (t Target) Addr() net.IP {
	full := clock.UnpackIPv6(t.AddrLow, t.AddrHigh)
	if t.IPVersion == uint8(channel.FamilyV4) {
		return net.IP(full[12:16])
	}
	return net.IP(full[:])
}
