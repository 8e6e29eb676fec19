package types

// Logger is the interface every component logs through, kept shape-for-shape
// so call sites never depend on a concrete logging library.
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})
	Warn(v ...interface{})
	Warnf(format string, v ...interface{})
	Error(v ...interface{})
	Errorf(format string, v ...interface{})
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})
	ToggleDebug(value bool) bool

	// WithField returns a derived Logger carrying a structured context
	// field (e.g. "peer", "service"). Components that need per-operation
	// context call this instead of formatting the field into the message.
	WithField(key string, value interface{}) Logger
}
