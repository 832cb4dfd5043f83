//go:build !linux

package kernelcheck

// Logger is the minimal sink kernelcheck needs.
type Logger interface {
	Warnf(format string, args ...any)
}

// Warn is a no-op outside Linux: docker/docker's kernel.GetKernelVersion
// only parses uname(2)'s release string, which has no equivalent here.
func Warn(log Logger) {}
