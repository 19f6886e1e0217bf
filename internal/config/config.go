package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/bmsmon/internal/channel"
	"codeberg.org/mutker/bmsmon/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix      = "BMSMON"
	DefaultConfigFile     = "/etc/bmsmon/bmsmon.toml"
	DefaultDriver         = DriverSocketCAN
	DefaultInterface      = "can0"
	DefaultBitrate        = int(channel.DefaultBitrate)
	DefaultSerialBaud     = channel.DefaultSerialBaud
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultJoinTimeout    = 2 * time.Second
	DefaultFaultThreshold = 50
	DefaultLogLevel       = LogLevelInfo
	DefaultMQTTTopic      = "bmsmon/snapshot"
	DefaultMQTTClientID   = "bmsmon"
)

type MQTT struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	QoS      int    `mapstructure:"qos"`
	Retained bool   `mapstructure:"retained"`
}

type Config struct {
	Driver         Driver        `mapstructure:"driver"`
	Interface      string        `mapstructure:"interface"`
	Bitrate        int           `mapstructure:"bitrate"`
	SerialBaud     int           `mapstructure:"serial_baud"`
	ReplayLoop     bool          `mapstructure:"replay_loop"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	JoinTimeout    time.Duration `mapstructure:"join_timeout"`
	FaultThreshold int           `mapstructure:"fault_threshold"`
	LogLevel       LogLevel      `mapstructure:"log_level"`
	MQTT           MQTT          `mapstructure:"mqtt"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"driver":          "driver",
	"interface":       "interface",
	"bitrate":         "bitrate",
	"serial-baud":     "serial_baud",
	"replay-loop":     "replay_loop",
	"poll-interval":   "poll_interval",
	"join-timeout":    "join_timeout",
	"fault-threshold": "fault_threshold",
	"log-level":       "log_level",
	"mqtt":            "mqtt.enabled",
	"mqtt-broker":     "mqtt.broker",
	"mqtt-topic":      "mqtt.topic",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("driver", string(DefaultDriver))
	v.SetDefault("interface", DefaultInterface)
	v.SetDefault("bitrate", DefaultBitrate)
	v.SetDefault("serial_baud", DefaultSerialBaud)
	v.SetDefault("replay_loop", false)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("join_timeout", DefaultJoinTimeout)
	v.SetDefault("fault_threshold", DefaultFaultThreshold)
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", DefaultMQTTTopic)
	v.SetDefault("mqtt.client_id", DefaultMQTTClientID)
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", true)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("bmsmon", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Path to config file")
	fs.StringP("driver", "d", string(DefaultDriver), "Bus driver: socketcan, slcan or replay")
	fs.StringP("interface", "i", DefaultInterface, "CAN interface, serial port or candump log")
	fs.Int("bitrate", DefaultBitrate, "Bus speed in bit/s")
	fs.Int("serial-baud", DefaultSerialBaud, "Serial speed for slcan adapters")
	fs.Bool("replay-loop", false, "Restart the replay log when it ends")
	fs.Duration("poll-interval", DefaultPollInterval, "Idle wait between bus reads")
	fs.Duration("join-timeout", DefaultJoinTimeout, "Warn if shutdown waits longer than this")
	fs.Int("fault-threshold", DefaultFaultThreshold, "Log every Nth consecutive read fault")
	fs.StringP("log-level", "l", string(DefaultLogLevel), "Log level: debug, info, warning, error")
	fs.Bool("mqtt", false, "Publish snapshots over MQTT")
	fs.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	fs.String("mqtt-topic", DefaultMQTTTopic, "MQTT topic for snapshots")
	return fs
}

// Load reads defaults, the config file, environment variables and the
// command line flags in args, in increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix:   DefaultEnvPrefix,
		defaultPath: DefaultConfigFile,
	}
	for _, opt := range opts {
		opt(&o)
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	path, err := configFile(fs, o)
	if err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// configFile resolves the file to read. An explicit path must exist; the
// default path is skipped when missing.
func configFile(fs *pflag.FlagSet, o options) (string, error) {
	path := o.configPath
	if path == "" {
		path, _ = fs.GetString("config")
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", errors.New().Wrap(errors.ErrReadConfig, err)
		}
		return path, nil
	}

	if _, err := os.Stat(o.defaultPath); err == nil {
		return o.defaultPath, nil
	}

	return "", nil
}

// Validate checks every setting that the daemon would otherwise reject later.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if !c.Driver.IsValid() {
		return errFactory.WithData(errors.ErrUnsupportedBus, c.Driver)
	}

	if c.Interface == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "interface must be set")
	}

	if err := channel.Bitrate(c.Bitrate).Validate(); err != nil {
		return err
	}

	if c.Driver == DriverSLCAN && c.SerialBaud <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "serial_baud must be positive")
	}

	if c.PollInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, fmt.Sprintf("poll_interval=%s", c.PollInterval))
	}

	if c.JoinTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, fmt.Sprintf("join_timeout=%s", c.JoinTimeout))
	}

	if c.FaultThreshold <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "fault_threshold must be positive")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "mqtt.broker must be set when mqtt is enabled")
		}
		if c.MQTT.Topic == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "mqtt.topic must be set when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return errFactory.WithData(errors.ErrInvalidConfig, fmt.Sprintf("mqtt.qos=%d", c.MQTT.QoS))
		}
	}

	return nil
}
