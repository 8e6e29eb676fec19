// Package definition holds the default implementations the core falls back
// to when a caller does not supply its own: logger, invoker and config
// construction.
package definition

import (
	"github.com/sirupsen/logrus"

	"github.com/o2ensemble/o2/pkg/o2/types"
)

// LogrusLogger backs types.Logger with github.com/sirupsen/logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewDefaultLogger builds the default Logger used when a Config does not
// supply one.
func NewDefaultLogger() *LogrusLogger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &LogrusLogger{entry: logrus.NewEntry(l)}
}

func (d *LogrusLogger) Info(v ...interface{}) { d.entry.Info(v...) }
func (d *LogrusLogger) Infof(format string, v ...interface{}) { d.entry.Infof(format, v...) }
func (d *LogrusLogger) Warn(v ...interface{}) { d.entry.Warn(v...) }
func (d *LogrusLogger) Warnf(format string, v ...interface{}) { d.entry.Warnf(format, v...) }
func (d *LogrusLogger) Error(v ...interface{}) { d.entry.Error(v...) }
func (d *LogrusLogger) Errorf(format string, v ...interface{}) { d.entry.Errorf(format, v...) }
func (d *LogrusLogger) Fatal(v ...interface{}) { d.entry.Fatal(v...) }
func (d *LogrusLogger) Fatalf(format string, v ...interface{}) { d.entry.Fatalf(format, v...) }

func (d *LogrusLogger) Debug(v ...interface{}) {
	d.entry.Debug(v...)
}

func (d *LogrusLogger) Debugf(format string, v ...interface{}) {
	d.entry.Debugf(format, v...)
}

// ToggleDebug flips the logger's level between Info and Debug, returning
// the new debug state.
func (d *LogrusLogger) ToggleDebug(value bool) bool {
	if value {
		d.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		d.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return value
}

// WithField returns a derived logger carrying a structured context field.
func (d *LogrusLogger) WithField(key string, value interface{}) types.Logger {
	return &LogrusLogger{entry: d.entry.WithField(key, value)}
}

var _ types.Logger = (*LogrusLogger)(nil)
