// Package config loads wcbroker settings from a TOML file, WCBROKER_* environment
// variables and built-in defaults, in that order of precedence (environment first).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".wcbroker"
	envPrefix  = "WCBROKER"
)

var validate = validator.New()

type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Chains   ChainsConfig   `mapstructure:"chains"`
	Explorer ExplorerConfig `mapstructure:"explorer"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Broker   BrokerConfig   `mapstructure:"broker"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type StoreConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type ChainsConfig struct {
	DirectoryURL string `mapstructure:"directory_url" validate:"required,url"`
}

type ExplorerConfig struct {
	RateLimit float64 `mapstructure:"rate_limit" validate:"gt=0"`
	Burst     int     `mapstructure:"burst" validate:"min=1"`
	APIKey    string  `mapstructure:"api_key"`
}

type AuthConfig struct {
	// URL of the wallet backend; login is skipped when empty
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type BrokerConfig struct {
	ScanTimeout time.Duration `mapstructure:"scan_timeout" validate:"gt=0"`
	// PromptTimeout bounds a single approval prompt; zero waits indefinitely
	PromptTimeout time.Duration `mapstructure:"prompt_timeout" validate:"gte=0"`
}

type RPCConfig struct {
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Addr is where long-running commands serve /metrics when enabled
	Addr string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// DefaultDir is the directory holding the config file and, by default, the store
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, configDir), nil
}

// DefaultPath is where Load looks for the config file when none is given
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

// Load reads the config file at path (the default location when empty).
// A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	baseDir, err := DefaultDir()
	if err != nil {
		return nil, err
	}
	setDefaults(v, baseDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(configType)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(baseDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field against its constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// NewLogger builds the process logger described by the log section
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Log.SlogLevel()}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SlogLevel maps the configured level name onto slog
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setDefaults(v *viper.Viper, baseDir string) {
	for key, value := range defaults(baseDir) {
		v.SetDefault(key, value)
	}
}

// defaults maps every config key to its default value
func defaults(baseDir string) map[string]any {
	return map[string]any{
		"store.dir":                 filepath.Join(baseDir, "store"),
		"chains.directory_url":      constants.DefaultDirectoryURL,
		"explorer.rate_limit":       5.0,
		"explorer.burst":            5,
		"explorer.api_key":          "",
		"auth.url":                  "",
		"broker.scan_timeout":       constants.ScanTimeout,
		"broker.prompt_timeout":     time.Duration(0),
		"rpc.receipt_poll_interval": constants.ReceiptPollInterval,
		"log.level":                 "info",
		"log.format":                "text",
		"metrics.enabled":           false,
		"metrics.addr":              "127.0.0.1:9464",
	}
}
