package logger

import (
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/odysseus/odytelem/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	TraceLevel LogLevel = LogLevel(zerolog.TraceLevel)
	DebugLevel LogLevel = LogLevel(zerolog.DebugLevel)
	InfoLevel  LogLevel = LogLevel(zerolog.InfoLevel)
	WarnLevel  LogLevel = LogLevel(zerolog.WarnLevel)
	ErrorLevel LogLevel = LogLevel(zerolog.ErrorLevel)
	FatalLevel LogLevel = LogLevel(zerolog.FatalLevel)
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// ParseLevel maps a configured level name to a LogLevel. "warning" and
// "warn" are both accepted.
func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(name) {
	case "trace":
		return TraceLevel, true
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return WarnLevel, false
	}
}

// Init initializes the logger based on the given configuration
func Init(level LogLevel, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(level)
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Trace logs a trace message
func Trace() *LogEvent {
	return &LogEvent{log.Trace()}
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Fatal().
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

type componentLogger struct {
	name string
}

// For returns a Logger that tags every event with the component name.
// The underlying writer is resolved per event, so loggers obtained before
// Init pick up the configured output.
func For(component string) Logger {
	return componentLogger{name: component}
}

func (c componentLogger) Trace() *LogEvent { return c.tag(log.Trace()) }
func (c componentLogger) Debug() *LogEvent { return c.tag(log.Debug()) }
func (c componentLogger) Info() *LogEvent  { return c.tag(log.Info()) }
func (c componentLogger) Warn() *LogEvent  { return c.tag(log.Warn()) }
func (c componentLogger) Error() *LogEvent { return c.tag(log.Error()) }

func (c componentLogger) tag(e *zerolog.Event) *LogEvent {
	return &LogEvent{e.Str("component", c.name)}
}
