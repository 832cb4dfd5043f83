//go:build linux

// Package kernelcheck adapts the teacher repo's init-time kernel
// version gating (pkg/linux/init.go: GetKernelVersion + a table of
// CompareKernelVersion thresholds) from sizing the TCP_INFO struct to
// warning when the running kernel predates reliable ancillary
// hop-limit delivery (IP_RECVTTL / IPV6_RECVHOPLIMIT), which spec
// §4.C's control-message extraction depends on.
package kernelcheck

import (
	"github.com/docker/docker/pkg/parsers/kernel"
)

// minHopLimitAncillary is the oldest kernel series this suite assumes
// delivers IP_RECVTTL/IPV6_RECVHOPLIMIT control messages reliably.
var minHopLimitAncillary = kernel.VersionInfo{Kernel: 2, Major: 6, Minor: 0}

// Logger is the minimal sink kernelcheck needs.
type Logger interface {
	Warnf(format string, args ...any)
}

// Warn logs a warning if the running kernel is older than
// minHopLimitAncillary, meaning ttl_req_arr will likely read 0 on
// every packet (spec §8's hop-limit-extraction property already
// covers that case functionally; this just explains why to the
// operator).
func Warn(log Logger) {
	v, err := kernel.GetKernelVersion()
	if err != nil {
		log.Warnf("kernelcheck: could not determine kernel version: %v", err)
		return
	}
	if kernel.CompareKernelVersion(*v, minHopLimitAncillary) < 0 {
		log.Warnf("kernelcheck: kernel %s predates reliable ancillary hop-limit delivery; ttl_req_arr will read 0", v)
	}
}
