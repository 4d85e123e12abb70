// Package config loads agent settings from flags, the environment and an
// optional TOML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"codeberg.org/odysseus/odytelem/internal/cell"
	"codeberg.org/odysseus/odytelem/internal/errors"
	"codeberg.org/odysseus/odytelem/internal/journal"
	"codeberg.org/odysseus/odytelem/internal/mqtt"
	"codeberg.org/odysseus/odytelem/internal/sysinfo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "ODYTELEM"
	DefaultSearchPath = "/etc"
	configName        = "odytelem"
	configType        = "toml"

	DefaultBroker        = "localhost:1883"
	DefaultPIDFile       = "/var/run/mosquitto.pid"
	DefaultQueueCapacity = 500
	DefaultLogLevel      = LogLevelWarning
)

type Config struct {
	Broker         string        `mapstructure:"broker"`
	InboundTopic   string        `mapstructure:"inbound_topic"`
	PIDFile        string        `mapstructure:"pid_file"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	TopicAliasMax  uint16        `mapstructure:"topic_alias_max"`
	ThermalZone    string        `mapstructure:"thermal_zone"`
	ProcRoot       string        `mapstructure:"proc_root"`
	SysRoot        string        `mapstructure:"sys_root"`
	LogLevel       LogLevel      `mapstructure:"log_level"`
	Debug          bool          `mapstructure:"debug"`
	Verbose        bool          `mapstructure:"verbose"`
	MetricsListen  string        `mapstructure:"metrics_listen"`
	Journal        JournalConfig `mapstructure:"journal"`

	// ConfigFile is the file the settings were read from, if any.
	ConfigFile string `mapstructure:"-"`
}

type JournalConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Path          string        `mapstructure:"path"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"config":                 "config",
	"broker":                 "broker",
	"inbound-topic":          "inbound_topic",
	"pid-file":               "pid_file",
	"queue-capacity":         "queue_capacity",
	"keep-alive":             "keep_alive",
	"connect-timeout":        "connect_timeout",
	"publish-timeout":        "publish_timeout",
	"thermal-zone":           "thermal_zone",
	"proc-root":              "proc_root",
	"sys-root":               "sys_root",
	"log-level":              "log_level",
	"debug":                  "debug",
	"verbose":                "verbose",
	"metrics-listen":         "metrics_listen",
	"journal":                "journal.enabled",
	"journal-path":           "journal.path",
	"journal-flush-interval": "journal.flush_interval",
}

func setDefaults(v *viper.Viper) {
	sys := sysinfo.DefaultConfig()
	jrnl := journal.DefaultConfig()

	v.SetDefault("config", "")
	v.SetDefault("broker", DefaultBroker)
	v.SetDefault("inbound_topic", "")
	v.SetDefault("pid_file", DefaultPIDFile)
	v.SetDefault("queue_capacity", DefaultQueueCapacity)
	v.SetDefault("keep_alive", mqtt.DefaultKeepAlive)
	v.SetDefault("connect_timeout", mqtt.DefaultConnectTimeout)
	v.SetDefault("publish_timeout", mqtt.DefaultPublishTimeout)
	v.SetDefault("topic_alias_max", mqtt.DefaultTopicAliasMax)
	v.SetDefault("thermal_zone", sys.ThermalZone)
	v.SetDefault("proc_root", sys.ProcRoot)
	v.SetDefault("sys_root", sys.SysRoot)
	v.SetDefault("log_level", string(DefaultLogLevel))
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("metrics_listen", "")
	v.SetDefault("journal.enabled", jrnl.Enabled)
	v.SetDefault("journal.path", jrnl.Path)
	v.SetDefault("journal.flush_interval", jrnl.FlushInterval)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)

	fs.String("config", "", "Path to a TOML config file")
	fs.String("broker", DefaultBroker, "MQTT broker address (host:port)")
	fs.String("inbound-topic", "", "Topic whose first value is kept as the inbound signal")
	fs.String("pid-file", DefaultPIDFile, "PID file of the process whose CPU usage is reported")
	fs.Int("queue-capacity", DefaultQueueCapacity, "Measurements buffered between sampler and publisher")
	fs.Duration("keep-alive", mqtt.DefaultKeepAlive, "MQTT keep-alive interval")
	fs.Duration("connect-timeout", mqtt.DefaultConnectTimeout, "MQTT connect and subscribe timeout")
	fs.Duration("publish-timeout", mqtt.DefaultPublishTimeout, "Time to wait for a publish to complete")
	fs.String("thermal-zone", sysinfo.DefaultThermalZone, "Thermal zone type or name to read")
	fs.String("proc-root", sysinfo.DefaultProcRoot, "procfs mount point")
	fs.String("sys-root", sysinfo.DefaultSysRoot, "sysfs mount point")
	fs.String("log-level", string(DefaultLogLevel), "Log level (trace, debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("metrics-listen", "", "Address to serve Prometheus metrics on (disabled when empty)")
	fs.Bool("journal", false, "Record the last published frame per topic")
	fs.String("journal-path", journal.DefaultConfig().Path, "Publish journal database")
	fs.Duration("journal-flush-interval", journal.DefaultConfig().FlushInterval, "Publish journal flush interval")

	return fs
}

// Load reads the configuration. args are the command line arguments
// without the program name. Flags override the environment, which
// overrides the config file, which overrides the defaults.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix:  DefaultEnvPrefix,
		searchPath: DefaultSearchPath,
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
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.WithData(errors.ErrBindFlags, struct {
				Flag  string
				Error string
			}{
				Flag:  name,
				Error: err.Error(),
			})
		}
	}

	configFile := v.GetString("config")
	if configFile == "" {
		configFile = o.configPath
	}

	v.SetConfigType(configType)
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(o.searchPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// a missing default file is fine, a missing named file is not
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	// --debug and --verbose are shortcuts for the log level
	switch {
	case cfg.Debug:
		cfg.LogLevel = LogLevelDebug
	case cfg.Verbose:
		cfg.LogLevel = LogLevelInfo
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if _, _, err := mqtt.ParseBroker(c.Broker); err != nil {
		return err
	}

	if c.QueueCapacity <= 0 {
		return invalidField("queue_capacity", c.QueueCapacity)
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"keep_alive", c.KeepAlive},
		{"connect_timeout", c.ConnectTimeout},
		{"publish_timeout", c.PublishTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return invalidField(d.key, d.value)
		}
	}

	if c.PIDFile == "" {
		return invalidField("pid_file", c.PIDFile)
	}

	if err := c.JournalConfig().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}

func invalidField(key string, value any) error {
	return errors.New().WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("invalid %s: %v", key, value))
}

// SysinfoConfig returns the settings for the system reader.
func (c *Config) SysinfoConfig() sysinfo.Config {
	return sysinfo.Config{
		ProcRoot:    c.ProcRoot,
		SysRoot:     c.SysRoot,
		ThermalZone: c.ThermalZone,
	}
}

// JournalConfig returns the settings for the publish journal.
func (c *Config) JournalConfig() journal.Config {
	return journal.Config{
		Path:          c.Journal.Path,
		FlushInterval: c.Journal.FlushInterval,
		Enabled:       c.Journal.Enabled,
	}
}

// ProcessorOptions returns the settings for the MQTT processor. target
// receives the inbound signal; it is ignored when no inbound topic is
// configured.
func (c *Config) ProcessorOptions(target *cell.Cell) mqtt.ProcessorOptions {
	opts := mqtt.ProcessorOptions{
		Broker:         c.Broker,
		KeepAlive:      c.KeepAlive,
		ConnectTimeout: c.ConnectTimeout,
		PublishTimeout: c.PublishTimeout,
		TopicAliasMax:  c.TopicAliasMax,
	}
	if c.InboundTopic != "" && target != nil {
		opts.Inbound = &mqtt.Inbound{Topic: c.InboundTopic, Cell: target}
	}
	return opts
}
