// Units parsing for spec §6's duration and memory-size flag values.
// No example repo in the retrieved pack imports a suffix-parsing
// library for either (the handful of go.sum references to
// dustin/go-humanize are transitive, never imported by any package
// body), so this is hand-rolled over strconv, matching the
// spec's exact suffix sets and overflow/partial-consumption rules.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var durationUnits = []struct {
	suffix string
	unit   time.Duration
}{
	// Longest suffix first so "ms" isn't swallowed by a stray "m" match.
	{"ns", time.Nanosecond},
	{"us", time.Microsecond},
	{"ms", time.Millisecond},
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// ParseDuration parses spec §6's duration flag syntax: a non-negative
// integer immediately followed by one of ns/us/ms/s/m/h/d/w, no
// intervening characters. An empty suffix defaults to seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	for _, u := range durationUnits {
		if strings.HasSuffix(strings.ToLower(s), u.suffix) {
			numPart := s[:len(s)-len(u.suffix)]
			if numPart == "" {
				return 0, fmt.Errorf("duration %q has no numeric part", s)
			}
			n, err := strconv.ParseUint(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("duration %q: %w", s, err)
			}
			d, overflow := mulDuration(n, u.unit)
			if overflow {
				return 0, fmt.Errorf("duration %q overflows", s)
			}
			return d, nil
		}
	}
	// No recognized suffix: the whole string must be a bare integer of
	// seconds, otherwise this is partial-consumption (e.g. "10xyz").
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("duration %q: unrecognized suffix", s)
	}
	d, overflow := mulDuration(n, time.Second)
	if overflow {
		return 0, fmt.Errorf("duration %q overflows", s)
	}
	return d, nil
}

func mulDuration(n uint64, unit time.Duration) (time.Duration, bool) {
	if unit != 0 && n > uint64(1<<63-1)/uint64(unit) {
		return 0, true
	}
	return time.Duration(n) * unit, false
}

var memoryUnits = []struct {
	suffix     string
	multiplier uint64
}{
	{"gb", 1024 * 1024 * 1024},
	{"g", 1024 * 1024 * 1024},
	{"mb", 1024 * 1024},
	{"m", 1024 * 1024},
	{"kb", 1024},
	{"k", 1024},
	{"b", 1},
}

// ParseMemory parses spec §6's memory-size flag syntax: a non-negative
// integer immediately followed by one of b/k/kb/m/mb/g/gb (base 1024).
// An empty suffix is treated as bytes.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	for _, u := range memoryUnits {
		if strings.HasSuffix(strings.ToLower(s), u.suffix) {
			numPart := s[:len(s)-len(u.suffix)]
			if numPart == "" {
				return 0, fmt.Errorf("size %q has no numeric part", s)
			}
			n, err := strconv.ParseUint(numPart, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("size %q: %w", s, err)
			}
			if n != 0 && n > (1<<63-1)/u.multiplier {
				return 0, fmt.Errorf("size %q overflows", s)
			}
			return int64(n * u.multiplier), nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("size %q: unrecognized suffix", s)
	}
	if n > 1<<63-1 {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return int64(n), nil
}
