// Package config loads kith's configuration from a YAML file, KITH_*
// environment variables and built-in defaults, in that order of precedence
// below explicitly set flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. KITH_STORE_PATH.
const EnvPrefix = "KITH"

// Config is the root configuration shared by kithd and kith.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Server ServerConfig `mapstructure:"server"`
	Client ClientConfig `mapstructure:"client"`
	Logger LoggerConfig `mapstructure:"logger"`
}

// StoreConfig configures the embedded graph store.
type StoreConfig struct {
	// Path is the store directory. Empty means an in-memory store.
	Path            string        `mapstructure:"path"`
	Sync            bool          `mapstructure:"sync"`
	CompactInterval time.Duration `mapstructure:"compact_interval"`
	CompactMinBytes int64         `mapstructure:"compact_min_bytes"`
	LookupCacheSize int           `mapstructure:"lookup_cache_size"`
}

// ServerConfig configures kithd's HTTP listener.
type ServerConfig struct {
	Listen            string        `mapstructure:"listen"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// ClientConfig configures how the kith CLI reaches a daemon.
type ClientConfig struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" json:"level" yaml:"level"`
	Format      string `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// SetDefaults registers the default for every key so the programs run with
// no config file at all.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "var/kith")
	v.SetDefault("store.sync", true)
	v.SetDefault("store.compact_interval", 10*time.Minute)
	v.SetDefault("store.compact_min_bytes", 64<<20)
	v.SetDefault("store.lookup_cache_size", 1024)

	v.SetDefault("server.listen", "127.0.0.1:7474")
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("client.addr", "http://127.0.0.1:7474")
	v.SetDefault("client.timeout", 10*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "kith")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
}

// NewViper returns a viper instance with defaults, environment binding and,
// if present, the config file applied. cfgFile may be empty, in which case
// ./kith.yaml is used when it exists.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("kith")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for values the programs cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.CompactInterval < 0 {
		errs = append(errs, errors.New("store.compact_interval must not be negative"))
	}
	if c.Store.CompactMinBytes < 0 {
		errs = append(errs, errors.New("store.compact_min_bytes must not be negative"))
	}
	if c.Store.LookupCacheSize < 0 {
		errs = append(errs, errors.New("store.lookup_cache_size must not be negative"))
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Client.Addr == "" {
		errs = append(errs, errors.New("client.addr is required"))
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format))
	}
	return errors.Join(errs...)
}
