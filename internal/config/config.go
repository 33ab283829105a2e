// Package config handles configuration loading and validation for internex.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the proxy server.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      string `mapstructure:"port"`
	AssetsDir string `mapstructure:"assets_dir"`
}

// ProxyConfig holds upstream-dispatcher tuning values. They are loaded and
// validated here, but nothing else reads them: the dispatcher in
// internal/transport uses its own fixed 30s timeout, 5-redirect budget and
// brotli support, no response size limit, and a 64-entry diagnostics buffer.
type ProxyConfig struct {
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	MaxRedirects      int           `mapstructure:"max_redirects"`
	MaxResponseBytes  int64         `mapstructure:"max_response_bytes"`
	EnableBrotli      bool          `mapstructure:"enable_brotli"`
	DiagnosticsBuffer int           `mapstructure:"diagnostics_buffer"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file and the environment.
// configPath may be empty, in which case only defaults and environment
// variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("INTERNEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Preserve the teacher's bare environment variable names so existing
	// deployments that set PORT/HOST/ASSETS_DIR keep working unprefixed.
	_ = v.BindEnv("server.port", "INTERNEX_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.host", "INTERNEX_SERVER_HOST", "HOST")
	_ = v.BindEnv("server.assets_dir", "INTERNEX_SERVER_ASSETS_DIR", "ASSETS_DIR")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.assets_dir", "assets")

	v.SetDefault("proxy.request_timeout", "30s")
	v.SetDefault("proxy.max_redirects", 5)
	v.SetDefault("proxy.max_response_bytes", int64(64*1024*1024))
	v.SetDefault("proxy.enable_brotli", true)
	v.SetDefault("proxy.diagnostics_buffer", 50)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if c.Proxy.MaxRedirects < 0 {
		return fmt.Errorf("proxy.max_redirects must be >= 0")
	}
	if c.Proxy.RequestTimeout <= 0 {
		return fmt.Errorf("proxy.request_timeout must be positive")
	}
	return nil
}
