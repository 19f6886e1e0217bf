package config

// Option defines a configuration option that can be passed to Load
type Option func(*options)

// options holds internal configuration options
type options struct {
	configPath  string
	envPrefix   string
	defaultPath string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) {
		o.configPath = path
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "BMSMON"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// WithDefaultConfigFile replaces the file read when no path is given
func WithDefaultConfigFile(path string) Option {
	return func(o *options) {
		o.defaultPath = path
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// Driver selects the bus backend.
type Driver string

const (
	DriverSocketCAN Driver = "socketcan"
	DriverSLCAN     Driver = "slcan"
	DriverReplay    Driver = "replay"
)

// IsValid returns whether the driver is known
func (d Driver) IsValid() bool {
	switch d {
	case DriverSocketCAN, DriverSLCAN, DriverReplay:
		return true
	default:
		return false
	}
}

func (d Driver) String() string {
	return string(d)
}
