// Package logging defines the logger contract shared by the dispatcher,
// the registry and the transport adapters, plus adapters for slog, Watermill
// and entry-style loggers.
package logging

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// Merge returns a new LogFields containing f overlaid with other.
func (f LogFields) Merge(other LogFields) LogFields {
	if len(f) == 0 && len(other) == 0 {
		return nil
	}
	merged := make(LogFields, len(f)+len(other))
	for k, v := range f {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// ServiceLogger is the minimal logging contract used across dispatchflow.
// It maps directly onto Watermill's logging needs so applications can adapt
// their existing loggers without depending on slog.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// NewNopLogger returns a ServiceLogger that discards everything.
func NewNopLogger() ServiceLogger {
	return nopLogger{}
}

type nopLogger struct{}

func (n nopLogger) With(LogFields) ServiceLogger { return n }
func (nopLogger) Debug(string, LogFields)        {}
func (nopLogger) Info(string, LogFields)         {}
func (nopLogger) Error(string, error, LogFields) {}
func (nopLogger) Trace(string, LogFields)        {}

// OrNop returns log, or a discarding logger when log is nil.
func OrNop(log ServiceLogger) ServiceLogger {
	if log == nil {
		return nopLogger{}
	}
	return log
}
