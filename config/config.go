// Package config loads typed configuration for a tuyalan-based
// application: connection timing, scanner ports, retry preset, breaker
// thresholds, logging, and metrics, per SPEC_FULL.md §6.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"
)

// Config is the complete configuration surface for a tuyalan deployment.
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ConnectionConfig struct {
	ConnectionTimeout  time.Duration `mapstructure:"connectionTimeout"`
	ResponseTimeout    time.Duration `mapstructure:"responseTimeout"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeatInterval"`
	AutoReconnect      bool          `mapstructure:"autoReconnect"`
	ReconnectDelay     time.Duration `mapstructure:"reconnectDelay"`
	StatusPollInterval time.Duration `mapstructure:"statusPollInterval"`
}

type ScannerConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	Ports    []int         `mapstructure:"ports"`
	BindAddr string        `mapstructure:"bindAddr"`
}

type RetryConfig struct {
	// Preset is one of "none", "quick", "standard", "aggressive", or
	// "custom" (in which case MaxAttempts/InitialDelay/MaxDelay/Factor
	// below are used verbatim).
	Preset       string        `mapstructure:"preset"`
	MaxAttempts  int           `mapstructure:"maxAttempts"`
	InitialDelay time.Duration `mapstructure:"initialDelay"`
	MaxDelay     time.Duration `mapstructure:"maxDelay"`
	Factor       float64       `mapstructure:"factor"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failureThreshold"`
	OpenTimeout      time.Duration `mapstructure:"openTimeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listenAddr"`
}

// defaults returns a fully-populated Config matching SPEC_FULL.md §6's
// example YAML, used as the merge base so Load never returns a zero-value
// field for anything the spec assigns a default.
func defaults() Config {
	return Config{
		Connection: ConnectionConfig{
			ConnectionTimeout: 10 * time.Second,
			ResponseTimeout:   5 * time.Second,
			HeartbeatInterval: 30 * time.Second,
			AutoReconnect:     true,
			ReconnectDelay:    5 * time.Second,
		},
		Scanner: ScannerConfig{
			Timeout:  10 * time.Second,
			Ports:    []int{6666, 6667, 7000},
			BindAddr: "0.0.0.0",
		},
		Retry: RetryConfig{
			Preset: "standard",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			ListenAddr: ":9308",
		},
	}
}

// Load reads configuration from path (if non-empty and present),
// overlays environment variables prefixed TUYALAN_ (e.g.
// TUYALAN_CONNECTION_RESPONSETIMEOUT), and fills any field left unset with
// this package's defaults. Load never fails solely because path is
// missing — an application with no config file still gets a fully
// defaulted Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TUYALAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("tuyalan/config: read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("tuyalan/config: unmarshal: %w", err)
	}

	base := defaults()
	if err := mergo.Merge(&cfg, base); err != nil {
		return nil, fmt.Errorf("tuyalan/config: merge defaults: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("tuyalan/config: %w", err)
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Retry.Preset {
	case "none", "quick", "standard", "aggressive", "custom":
	default:
		return fmt.Errorf("invalid retry preset %q", cfg.Retry.Preset)
	}
	if len(cfg.Scanner.Ports) == 0 {
		return fmt.Errorf("scanner.ports must not be empty")
	}
	return nil
}
