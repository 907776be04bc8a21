package config

import "strings"

// Option adjusts how Load locates its sources.
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile reads path instead of HOSTMON_CONFIG or the default file.
// A missing explicit file is an error.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix changes the environment prefix, HOSTMON by default.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = strings.ToUpper(strings.TrimSuffix(prefix, "_"))
		return nil
	}
}

// LogLevel is a configured log level name.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"

	logLevelWarn LogLevel = "warn"
)

// IsValid reports whether l names a level the logger accepts.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, logLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}
