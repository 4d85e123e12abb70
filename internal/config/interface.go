package config

import "codeberg.org/odysseus/odytelem/internal/logger"

// Option defines a configuration option that can be passed to Load
type Option func(*options)

// options holds internal configuration options
type options struct {
	configPath string
	envPrefix  string
	searchPath string
}

// WithConfigFile specifies an explicit configuration file path. A path
// given with --config or ODYTELEM_CONFIG takes precedence.
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "ODYTELEM"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithSearchPath replaces the directory searched for odytelem.toml when no
// file is named explicitly.
func WithSearchPath(dir string) Option {
	return func(o *options) {
		o.searchPath = dir
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelTrace   LogLevel = "trace"
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	_, ok := logger.ParseLevel(string(l))
	return ok
}

// Level converts l for logger.Init. Unknown names map to warning.
func (l LogLevel) Level() logger.LogLevel {
	level, _ := logger.ParseLevel(string(l))
	return level
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}
