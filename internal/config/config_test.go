package config

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParseRequesterDefaults(t *testing.T) {
	cfg, err := ParseRequester([]string{"127.0.0.1"})
	assert.NilError(t, err)
	assert.Equal(t, cfg.Port, uint16(defaultPort))
	assert.Equal(t, cfg.TTL, defaultTTL)
	assert.Equal(t, cfg.PayloadLength, minPayloadLength)
	assert.Equal(t, cfg.RoundCount, 1)
	assert.Equal(t, cfg.IntervalDur, int64(time.Second))
	assert.DeepEqual(t, cfg.Targets, []string{"127.0.0.1"})
}

func TestParseRequesterBindsKeyAndPort(t *testing.T) {
	cfg, err := ParseRequester([]string{"-k", "7", "-p", "1234", "127.0.0.1"})
	assert.NilError(t, err)
	assert.Equal(t, cfg.Key, uint64(7))
	assert.Equal(t, cfg.Port, uint16(1234))
}

func TestParseRequesterRejectsMissingTargets(t *testing.T) {
	_, err := ParseRequester([]string{"-c", "3"})
	assert.ErrorContains(t, err, "target is required")
}

func TestParseRequesterRejectsOutOfRangePayload(t *testing.T) {
	_, err := ParseRequester([]string{"-l", "10", "127.0.0.1"})
	assert.ErrorContains(t, err, "out of range")
}

func TestParseRequesterParsesPlugins(t *testing.T) {
	cfg, err := ParseRequester([]string{"-a", "/tmp/one.so", "-a", "/tmp/two.so", "127.0.0.1"})
	assert.NilError(t, err)
	assert.DeepEqual(t, cfg.PluginPaths, []string{"/tmp/one.so", "/tmp/two.so"})
}

func TestParseResponderInactivityOptional(t *testing.T) {
	cfg, err := ParseResponder(nil)
	assert.NilError(t, err)
	assert.Equal(t, cfg.InactivityDur, int64(0))

	cfg, err = ParseResponder([]string{"-d", "30s"})
	assert.NilError(t, err)
	assert.Equal(t, cfg.InactivityDur, int64(30*time.Second))
}

func TestParseResponderBindsKeyAndPort(t *testing.T) {
	cfg, err := ParseResponder([]string{"-k", "8", "-p", "1234"})
	assert.NilError(t, err)
	assert.Equal(t, cfg.Key, uint64(8))
	assert.Equal(t, cfg.Port, uint16(1234))
}

func TestParseResponderRejectsBadTTL(t *testing.T) {
	_, err := ParseResponder([]string{"-t", "0"})
	assert.ErrorContains(t, err, "ttl")
}
