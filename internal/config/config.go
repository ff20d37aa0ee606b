// Package config provides configuration management for go-manual
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprintf("%d", s.Port))
}

// StreamConfig configures the WebSocket event stream
type StreamConfig struct {
	// StateInterval re-broadcasts the full state on this cadence; 0 disables it
	StateInterval time.Duration `mapstructure:"state_interval"`
	// BufferSize is the per-hub event buffer
	BufferSize int `mapstructure:"buffer_size"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9010,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			GracefulTimeout: 5 * time.Second,
		},
		Stream: StreamConfig{
			StateInterval: 1 * time.Second,
			BufferSize:    32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ErrNotFound is returned alongside a usable Config when the file is missing.
var ErrNotFound = errors.New("config file not found")

// Load loads configuration from file and environment.
// A missing file yields defaults plus an error wrapping ErrNotFound; any
// other read or parse failure returns a nil Config.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	var missing error

	// Config file
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config: %w", err)
			}
			missing = fmt.Errorf("%w: %s", ErrNotFound, path)
		}
	}

	// Environment variable overrides
	v.SetEnvPrefix("GOMANUAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, missing
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 9010)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.graceful_timeout", "5s")

	// Stream defaults
	v.SetDefault("stream.state_interval", "1s")
	v.SetDefault("stream.buffer_size", 32)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.Host == "" {
		return fmt.Errorf("server host must not be empty")
	}

	if c.Stream.StateInterval < 0 {
		return fmt.Errorf("state_interval must not be negative, got %s", c.Stream.StateInterval)
	}

	if c.Stream.BufferSize < 1 || c.Stream.BufferSize > 4096 {
		return fmt.Errorf("buffer_size must be between 1 and 4096, got %d", c.Stream.BufferSize)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging format must be json or text, got %q", c.Logging.Format)
	}

	return nil
}
