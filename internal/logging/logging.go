// Package logging wraps logrus the way the teacher repo calls it
// directly — plain Infof/Warnf/Errorf over a package logger, no
// structured fields — behind the small Logger interfaces pkg/packetio,
// pkg/target and internal/plugin already declare, so callers never
// import logrus themselves.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Sink is the process-wide logger. -v (repeatable) raises verbosity
// from info to debug to trace; -n disables coloring (spec §6).
type Sink struct {
	l *logrus.Logger
}

// New builds a Sink per the CLI flags spec §6 defines.
func New(verbosity int, colorDisabled bool) *Sink {
	l := logrus.New()
	l.Out = os.Stderr
	l.Formatter = &logrus.TextFormatter{
		DisableColors:    colorDisabled,
		FullTimestamp:    true,
		DisableTimestamp: false,
	}
	switch {
	case verbosity >= 2:
		l.SetLevel(logrus.TraceLevel)
	case verbosity == 1:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return &Sink{l: l}
}

func (s *Sink) Debugf(format string, args ...any) { s.l.Debugf(format, args...) }
func (s *Sink) Infof(format string, args ...any)  { s.l.Infof(format, args...) }
func (s *Sink) Warnf(format string, args ...any)  { s.l.Warnf(format, args...) }
func (s *Sink) Errorf(format string, args ...any) { s.l.Errorf(format, args...) }
func (s *Sink) Fatalf(format string, args ...any) { s.l.Fatalf(format, args...) }
