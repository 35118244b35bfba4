package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/pulseboard/tsengine/internal/cache"
	"github.com/pulseboard/tsengine/internal/storage"
)

// Config contains the full server configuration.
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server" mapstructure:"server"`
	Storage storage.Config `json:"storage" yaml:"storage" mapstructure:"storage"`
	Cache   CacheConfig    `json:"cache" yaml:"cache" mapstructure:"cache"`
	Logging LoggingConfig  `json:"logging" yaml:"logging" mapstructure:"logging"`
	API     APIConfig      `json:"api" yaml:"api" mapstructure:"api"`
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host" mapstructure:"host"`
	Port            int           `json:"port" yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// CacheConfig selects the cache backend and its limits.
type CacheConfig struct {
	Backend    string            `json:"backend" yaml:"backend" mapstructure:"backend"` // memory, redis
	MaxEntries int               `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`
	Redis      cache.RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"` // text, json
}

// APIConfig bounds response payloads.
type APIConfig struct {
	DefaultMaxPoints int           `json:"default_max_points" yaml:"default_max_points" mapstructure:"default_max_points"`
	RequestTimeout   time.Duration `json:"request_timeout" yaml:"request_timeout" mapstructure:"request_timeout"`
}

// NewDefaultConfig returns the development defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: storage.DefaultConfig(),
		Cache: CacheConfig{
			Backend:    "memory",
			MaxEntries: cache.DefaultMaxEntries,
			Redis:      cache.DefaultRedisConfig(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			DefaultMaxPoints: 2000,
			RequestTimeout:   30 * time.Second,
		},
	}
}

// LoadConfig reads configuration from an optional YAML file and TSENGINE_
// environment overrides, layered over the defaults.
func LoadConfig(cfgFile string) (*Config, error) {
	config := NewDefaultConfig()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tsengine")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("TSENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", config.Server.Host)
	v.SetDefault("server.port", config.Server.Port)
	v.SetDefault("server.read_timeout", config.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", config.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", config.Server.ShutdownTimeout)
	v.SetDefault("storage.backend", config.Storage.Backend)
	v.SetDefault("cache.backend", config.Cache.Backend)
	v.SetDefault("cache.max_entries", config.Cache.MaxEntries)
	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)
	v.SetDefault("api.default_max_points", config.API.DefaultMaxPoints)
	v.SetDefault("api.request_timeout", config.API.RequestTimeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	switch c.Cache.Backend {
	case "memory", "redis", "":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	switch c.Storage.Backend {
	case "memory", "postgres", "influxdb", "":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.API.DefaultMaxPoints <= 0 {
		return fmt.Errorf("default max points must be positive")
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BuildLogger constructs a logrus logger per the logging configuration.
func (c *Config) BuildLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
