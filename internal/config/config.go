// Package config manages application configuration from various sources.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Data defines storage configuration.
type Data struct {
	Directory string `json:"directory,omitempty"`
}

// ServerConfig defines the HTTP server configuration.
type ServerConfig struct {
	Port int `json:"port,omitempty"`
}

// ProviderConfig defines the model provider used for generation calls.
type ProviderConfig struct {
	Name        string  `json:"name,omitempty"`
	APIKey      string  `json:"apiKey,omitempty"`
	BaseURL     string  `json:"baseUrl,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int64   `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerationConfig tunes the fan-out orchestrator.
type GenerationConfig struct {
	Concurrency        int           `json:"concurrency,omitempty"`
	MaxAttempts        int           `json:"maxAttempts,omitempty"`
	RetryDelay         time.Duration `json:"retryDelay,omitempty"`
	ExponentialBackoff bool          `json:"exponentialBackoff,omitempty"`
	AttemptTimeout     time.Duration `json:"attemptTimeout,omitempty"`
}

// CurriculaConfig locates the curriculum schema files.
type CurriculaConfig struct {
	Directory string `json:"directory,omitempty"`
}

// Config is the main configuration structure for the application.
type Config struct {
	Data       Data             `json:"data"`
	WorkingDir string           `json:"wd,omitempty"`
	Debug      bool             `json:"debug,omitempty"`
	Server     ServerConfig     `json:"server"`
	Provider   ProviderConfig   `json:"provider"`
	Generation GenerationConfig `json:"generation"`
	Curricula  CurriculaConfig  `json:"curricula"`
}

// Application constants
const (
	defaultDataDirectory = ".evalscribe"
	defaultLogLevel      = "info"
	appName              = "evalscribe"

	MaxTokensFallbackDefault = 4096
)

// Global configuration instance
var cfg *Config

// Load initializes the configuration from environment variables and config files.
// If debug is true, debug mode is enabled and log level is set to debug.
// It returns an error if configuration loading fails.
func Load(workingDir string, debug bool) (*Config, error) {
	if cfg != nil {
		return cfg, nil
	}

	cfg = &Config{
		WorkingDir: workingDir,
	}

	configureViper()
	setDefaults(debug)

	// Read global config
	if err := readConfig(viper.ReadInConfig()); err != nil {
		return cfg, err
	}

	// Load and merge local config
	mergeLocalConfig(workingDir)

	// Apply configuration to the struct
	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	defaultLevel := slog.LevelInfo
	if cfg.Debug {
		defaultLevel = slog.LevelDebug
	}
	slog.SetLogLoggerLevel(defaultLevel)

	// Validate configuration
	if err := Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// configureViper sets up viper's configuration paths and environment variables.
func configureViper() {
	viper.SetConfigName(fmt.Sprintf(".%s", appName))
	viper.SetConfigType("json")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(fmt.Sprintf("$XDG_CONFIG_HOME/%s", appName))
	viper.AddConfigPath(fmt.Sprintf("$HOME/.config/%s", appName))
	viper.SetEnvPrefix(strings.ToUpper(appName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// setDefaults configures default values for configuration options.
func setDefaults(debug bool) {
	viper.SetDefault("data.directory", defaultDataDirectory)
	viper.SetDefault("server.port", 8911)
	viper.SetDefault("provider.name", "openai")
	viper.SetDefault("provider.model", "gpt-4o")
	viper.SetDefault("provider.maxTokens", MaxTokensFallbackDefault)
	viper.SetDefault("provider.temperature", 0.3)
	viper.SetDefault("generation.concurrency", 5)
	viper.SetDefault("generation.maxAttempts", 3)
	viper.SetDefault("generation.retryDelay", 2*time.Second)
	viper.SetDefault("generation.exponentialBackoff", false)
	viper.SetDefault("generation.attemptTimeout", 120*time.Second)
	viper.SetDefault("curricula.directory", "curricula")

	if debug {
		viper.SetDefault("debug", true)
		viper.Set("log.level", "debug")
	} else {
		viper.SetDefault("debug", false)
		viper.SetDefault("log.level", defaultLogLevel)
	}
}

// readConfig handles the result of reading a configuration file.
func readConfig(err error) error {
	if err == nil {
		return nil
	}

	// It's okay if the config file doesn't exist
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return nil
	}

	return fmt.Errorf("failed to read config: %w", err)
}

// mergeLocalConfig loads and merges configuration from the local directory.
func mergeLocalConfig(workingDir string) {
	local := viper.New()
	local.SetConfigName(fmt.Sprintf(".%s", appName))
	local.SetConfigType("json")
	local.AddConfigPath(workingDir)

	// Merge local config if it exists
	if err := local.ReadInConfig(); err == nil {
		viper.MergeConfigMap(local.AllSettings())
	}
}

// Validate checks if the configuration is valid and applies defaults where needed.
func Validate() error {
	if cfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if cfg.Generation.Concurrency < 1 {
		cfg.Generation.Concurrency = 1
	}
	if cfg.Generation.MaxAttempts < 1 {
		cfg.Generation.MaxAttempts = 1
	}
	return nil
}

// Get returns the current configuration.
// It's safe to call this function multiple times.
func Get() *Config {
	return cfg
}

// WorkingDirectory returns the current working directory from the configuration.
func WorkingDirectory() string {
	if cfg == nil {
		panic("config not loaded")
	}
	return cfg.WorkingDir
}
