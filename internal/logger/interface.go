package logger

// Logger defines the interface for component-scoped logging.
type Logger interface {
	Trace() *LogEvent
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
}
