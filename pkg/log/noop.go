package log

// NoopLogger discards everything. It is the default when no logger is
// injected, keeping the sync core quiet in tests and embedded use.
type NoopLogger struct{}

// NewNoopLogger creates a discarding logger.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (NoopLogger) Debug(msg string, fields ...Field) {}
func (NoopLogger) Info(msg string, fields ...Field)  {}
func (NoopLogger) Warn(msg string, fields ...Field)  {}
func (NoopLogger) Error(msg string, fields ...Field) {}
