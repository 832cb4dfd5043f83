//go:build linux

package kernelcheck

import "testing"

type captureLog struct{ msgs []string }

func (c *captureLog) Warnf(format string, args ...any) { c.msgs = append(c.msgs, format) }

func TestWarnDoesNotPanicOnRealKernel(t *testing.T) {
	log := &captureLog{}
	Warn(log)
	// No assertion on message count: a modern CI kernel is expected to
	// be well above minHopLimitAncillary, so zero warnings is the
	// common case and any warning is still a non-fatal text line.
}
