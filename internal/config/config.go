// Package config loads gofastd's configuration the way the teacher's
// config.go does: Viper layering defaults, a config file, environment
// variables, and flags, then unmarshaling into a typed struct.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Backend selects which runtime event loop serves connections.
type Backend string

const (
	BackendReadiness  Backend = "readiness"
	BackendCompletion Backend = "completion"
)

// Protocol selects which wire protocol a listener speaks.
type Protocol string

const (
	ProtocolMemcached Protocol = "memcached"
	ProtocolRESP      Protocol = "resp"
	ProtocolPing      Protocol = "ping"
	ProtocolEcho      Protocol = "echo"
)

// Config holds all configuration for gofastd.
type Config struct {
	// Server settings
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Protocol Protocol `mapstructure:"protocol"`

	// Runtime backend
	RuntimeBackend Backend `mapstructure:"runtime_backend"`
	Workers        int     `mapstructure:"workers"`
	BufferSize     int     `mapstructure:"buffer_size"`
	BufferCount    int     `mapstructure:"buffer_count"`
	MaxConnections int     `mapstructure:"max_connections"`
	BatchSize      int     `mapstructure:"batch_size"`
	RingSize       int     `mapstructure:"ring_size"`

	// Store settings
	MaxMemory       string        `mapstructure:"max_memory"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxValueSize    int           `mapstructure:"max_value_size"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Advanced
	TCPKeepAlive bool          `mapstructure:"tcp_keepalive"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            11211,
		Protocol:        ProtocolMemcached,
		RuntimeBackend:  BackendReadiness,
		Workers:         4,
		BufferSize:      16 * 1024,
		BufferCount:     4096,
		MaxConnections:  10000,
		BatchSize:       32,
		RingSize:        4096,
		MaxMemory:       "1GB",
		DefaultTTL:      0,
		CleanupInterval: 10 * time.Second,
		MaxValueSize:    1024 * 1024,
		LogLevel:        "info",
		LogFormat:       "text",
		TCPKeepAlive:    true,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables, config file,
// and command line flags, the way the teacher's LoadConfig does, layered
// through a *viper.Viper instance owned by the caller (cmd/gofastd binds
// cobra flags into it before calling this).
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("gofastd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/gofastd/")
	v.AddConfigPath("$HOME/.gofastd")

	v.SetEnvPrefix("GOFASTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("protocol", string(cfg.Protocol))
	v.SetDefault("runtime_backend", string(cfg.RuntimeBackend))
	v.SetDefault("workers", cfg.Workers)
	v.SetDefault("buffer_size", cfg.BufferSize)
	v.SetDefault("buffer_count", cfg.BufferCount)
	v.SetDefault("max_connections", cfg.MaxConnections)
	v.SetDefault("batch_size", cfg.BatchSize)
	v.SetDefault("ring_size", cfg.RingSize)
	v.SetDefault("max_memory", cfg.MaxMemory)
	v.SetDefault("default_ttl", cfg.DefaultTTL)
	v.SetDefault("cleanup_interval", cfg.CleanupInterval)
	v.SetDefault("max_value_size", cfg.MaxValueSize)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("tcp_keepalive", cfg.TCPKeepAlive)
	v.SetDefault("read_timeout", cfg.ReadTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
}

// Validate checks the configuration for internally-inconsistent or
// out-of-range values, collecting every error found via multierr instead of
// stopping at the first one, so a misconfigured deployment sees the whole
// list in one pass.
func (c *Config) Validate() error {
	var err error

	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port))
	}
	if c.Workers < 1 {
		err = multierr.Append(err, fmt.Errorf("workers must be at least 1"))
	}
	if c.MaxConnections < 1 {
		err = multierr.Append(err, fmt.Errorf("max_connections must be at least 1"))
	}
	if c.BufferSize < 64 {
		err = multierr.Append(err, fmt.Errorf("buffer_size must be at least 64 bytes"))
	}
	if c.MaxValueSize > c.BufferSize*c.BufferCount {
		err = multierr.Append(err, fmt.Errorf("max_value_size (%d) cannot exceed total pool capacity (%d)", c.MaxValueSize, c.BufferSize*c.BufferCount))
	}
	if c.RingSize < 1 || c.RingSize&(c.RingSize-1) != 0 {
		err = multierr.Append(err, fmt.Errorf("ring_size must be a power of two: %d", c.RingSize))
	}

	switch c.Protocol {
	case ProtocolMemcached, ProtocolRESP, ProtocolPing, ProtocolEcho:
	default:
		err = multierr.Append(err, fmt.Errorf("invalid protocol: %s", c.Protocol))
	}

	switch c.RuntimeBackend {
	case BackendReadiness, BackendCompletion:
	default:
		err = multierr.Append(err, fmt.Errorf("invalid runtime_backend: %s", c.RuntimeBackend))
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	valid := false
	for _, lvl := range validLogLevels {
		if c.LogLevel == lvl {
			valid = true
			break
		}
	}
	if !valid {
		err = multierr.Append(err, fmt.Errorf("invalid log_level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	return err
}

// ParseMemorySize converts a human-readable memory size (e.g. "512MB",
// "2GB") to bytes.
func (c *Config) ParseMemorySize() (int64, error) {
	size := strings.ToUpper(c.MaxMemory)
	if size == "" {
		return 0, nil
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(size, "KB"):
		multiplier = 1024
		size = strings.TrimSuffix(size, "KB")
	case strings.HasSuffix(size, "MB"):
		multiplier = 1024 * 1024
		size = strings.TrimSuffix(size, "MB")
	case strings.HasSuffix(size, "GB"):
		multiplier = 1024 * 1024 * 1024
		size = strings.TrimSuffix(size, "GB")
	}

	value, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory size: %s", c.MaxMemory)
	}
	return value * multiplier, nil
}

// WatchConfig re-reads the configuration whenever the config file changes
// and calls onChange with the result after each successful reload. Which
// settings take effect is up to onChange: cmd/gofastd applies the log level
// and default TTL and ignores every other field until the next restart.
func WatchConfig(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := DefaultConfig()
		setDefaults(v, cfg)
		if err := v.Unmarshal(cfg); err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
