package config

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParseDurationSuffixes(t *testing.T) {
	cases := map[string]time.Duration{
		"10ns": 10 * time.Nanosecond,
		"10us": 10 * time.Microsecond,
		"10ms": 10 * time.Millisecond,
		"10s":  10 * time.Second,
		"10m":  10 * time.Minute,
		"10h":  10 * time.Hour,
		"2d":   48 * time.Hour,
		"1w":   7 * 24 * time.Hour,
		"5":    5 * time.Second,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		assert.NilError(t, err, in)
		assert.Equal(t, got, want, in)
	}
}

func TestParseDurationSuffixesCaseInsensitive(t *testing.T) {
	cases := map[string]time.Duration{
		"10S":  10 * time.Second,
		"1MS":  time.Millisecond,
		"2D":   48 * time.Hour,
		"1W":   7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		assert.NilError(t, err, in)
		assert.Equal(t, got, want, in)
	}
}

func TestParseDurationRejectsPartialConsumption(t *testing.T) {
	_, err := ParseDuration("10xyz")
	assert.ErrorContains(t, err, "unrecognized suffix")
}

func TestParseDurationRejectsOverflow(t *testing.T) {
	_, err := ParseDuration("99999999999999999999s")
	assert.ErrorContains(t, err, "")
}

func TestParseMemorySuffixes(t *testing.T) {
	cases := map[string]int64{
		"512b":  512,
		"4k":    4 * 1024,
		"4kb":   4 * 1024,
		"2m":    2 * 1024 * 1024,
		"2mb":   2 * 1024 * 1024,
		"1g":    1024 * 1024 * 1024,
		"1gb":   1024 * 1024 * 1024,
		"1024":  1024,
	}
	for in, want := range cases {
		got, err := ParseMemory(in)
		assert.NilError(t, err, in)
		assert.Equal(t, got, want, in)
	}
}

func TestParseMemoryRejectsPartialConsumption(t *testing.T) {
	_, err := ParseMemory("10xyz")
	assert.ErrorContains(t, err, "unrecognized suffix")
}
