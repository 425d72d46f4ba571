// Package logger provides the minimal Infof/Warnf/Errorf interface every
// long-running engine loop logs through, backed by logrus the way the
// teacher project's scheduler and metrics packages already use it.
package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the interface the scheduler, worker pool, and storage loops
// depend on. It is intentionally narrow so any structured logger can back
// it in a host application.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type logrusLogger struct {
	entry *logrus.Entry
}

var (
	levelMu sync.Mutex
	level   = logrus.InfoLevel
)

// SetLevel parses level (e.g. Config.LogLevel) and applies it to every
// Logger New constructs afterward. An unrecognized level is left as-is and
// reported to the caller rather than silently defaulting.
func SetLevel(l string) error {
	parsed, err := logrus.ParseLevel(l)
	if err != nil {
		return err
	}
	levelMu.Lock()
	level = parsed
	levelMu.Unlock()
	return nil
}

// New returns a logrus-backed Logger tagged with component as a field,
// e.g. logger.New("scheduler"), at the level last set via SetLevel.
func New(component string) Logger {
	levelMu.Lock()
	lvl := level
	levelMu.Unlock()

	l := logrus.New()
	l.SetLevel(lvl)
	return &logrusLogger{entry: l.WithField("component", component)}
}

func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
