package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/hostmon/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile        = "/etc/hostmon/hostmon.toml"
	DefaultConnectorsDir     = "/etc/hostmon/connectors"
	DefaultLogLevel          = "info"
	DefaultInterval          = 2 * time.Minute
	DefaultDiscoveryCycle    = 30
	DefaultWorkers           = 20
	DefaultStrategyTimeout   = 15 * time.Minute
	DefaultSerializationWait = 2 * time.Minute
	DefaultSSHMaxSessions    = 8
	DefaultHistoryDB         = "/var/lib/hostmon/history.db"
	DefaultBatchSize         = 500
	DefaultBatchTimeout      = 30 * time.Second

	defaultEnvPrefix = "HOSTMON"
)

type Config struct {
	Interval          time.Duration `mapstructure:"interval"`
	DiscoveryCycle    int           `mapstructure:"discovery_cycle"`
	Workers           int           `mapstructure:"workers"`
	StrategyTimeout   time.Duration `mapstructure:"strategy_timeout"`
	SerializationWait time.Duration `mapstructure:"serialization_wait"`
	SSHMaxSessions    int           `mapstructure:"ssh_max_sessions"`
	ConnectorsDir     string        `mapstructure:"connectors_dir"`
	LogLevel          string        `mapstructure:"log_level"`
	MetricsListen     string        `mapstructure:"metrics_listen"`
	Once              bool          `mapstructure:"once"`
	History           History       `mapstructure:"history"`
	Resources         []Resource    `mapstructure:"resources"`
}

// History configures the sqlite metric history.
type History struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// Load reads configuration from the config file, the environment and the
// given command line arguments, in increasing order of precedence.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("hostmon", pflag.ContinueOnError)
	configFlag := fs.String("config", "", "Path to the configuration file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Duration("interval", DefaultInterval, "Interval between collect cycles")
	fs.Int("workers", DefaultWorkers, "Number of resources collected in parallel")
	fs.String("connectors", DefaultConnectorsDir, "Directory holding connector definitions")
	fs.Bool("once", false, "Run one detection with test reports and exit")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	flagKeys := map[string]string{
		"log-level":  "log_level",
		"interval":   "interval",
		"workers":    "workers",
		"connectors": "connectors_dir",
		"once":       "once",
	}
	for flagName, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := o.configPath
	if *configFlag != "" {
		path = *configFlag
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		_, statErr := os.Stat(path)
		if explicit || !os.IsNotExist(statErr) {
			return nil, errFactory.WithData(errors.ErrReadConfig, struct {
				Path  string
				Error string
			}{
				Path:  path,
				Error: err.Error(),
			})
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("discovery_cycle", DefaultDiscoveryCycle)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("strategy_timeout", DefaultStrategyTimeout)
	v.SetDefault("serialization_wait", DefaultSerializationWait)
	v.SetDefault("ssh_max_sessions", DefaultSSHMaxSessions)
	v.SetDefault("connectors_dir", DefaultConnectorsDir)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", DefaultHistoryDB)
	v.SetDefault("history.batch_size", DefaultBatchSize)
	v.SetDefault("history.batch_timeout", DefaultBatchTimeout)
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	for i := range c.Resources {
		r := &c.Resources[i]
		if r.Hostname == "" {
			r.Hostname = r.ID
		}
		r.DeviceKind = strings.ToLower(r.DeviceKind)
		protocols := make(map[string]Protocol, len(r.Protocols))
		for name, p := range r.Protocols {
			protocols[strings.ToLower(name)] = p
		}
		r.Protocols = protocols
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if c.Workers <= 0 || c.DiscoveryCycle <= 0 || c.SSHMaxSessions <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig,
			"workers, discovery_cycle and ssh_max_sessions must be positive")
	}
	if c.StrategyTimeout <= 0 || c.SerializationWait <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig,
			"strategy_timeout and serialization_wait must be positive")
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "history.db_path is required")
	}

	seen := make(map[string]struct{}, len(c.Resources))
	for _, r := range c.Resources {
		if r.ID == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "resource without id")
		}
		if _, dup := seen[r.ID]; dup {
			return errFactory.WithData(errors.ErrInvalidConfig, "duplicate resource id "+r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	return nil
}
