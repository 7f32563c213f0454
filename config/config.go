// Package config loads engine and provider settings from a config file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Provider kinds accepted in config.
const (
	KindOpenAICompat = "openai"
	KindAnthropic    = "anthropic"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Session  SessionConfig  `mapstructure:"session"`
	LogLevel string         `mapstructure:"log_level"`
}

type ProviderConfig struct {
	Kind    string `mapstructure:"kind"`
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type EngineConfig struct {
	MaxToolCalls    int     `mapstructure:"max_tool_calls"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
}

type SessionConfig struct {
	// Path of the SQLite conversation store. Empty disables persistence.
	Path string `mapstructure:"path"`
}

func newViper() *viper.Viper {
	v := viper.New()
	// Every key needs a default registered or AutomaticEnv won't see it
	// during Unmarshal.
	v.SetDefault("provider.kind", KindOpenAICompat)
	v.SetDefault("provider.name", "OpenAI")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("engine.max_tool_calls", 50)
	v.SetDefault("engine.max_output_tokens", 0)
	v.SetDefault("engine.temperature", 0.0)
	v.SetDefault("session.path", "")
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.delay", 15*time.Second)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("CONVO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from the given file path, falling back to
// defaults and CONVO_* environment variables. An empty path skips the file
// entirely; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return unpack(v)
}

// Watch is like Load but re-reads the file on change, delivering updated
// configs on the callback. Invalid updates are dropped.
func Watch(path string, onChange func(*Config)) (*Config, error) {
	if path == "" {
		return nil, errors.New("config watch requires a file path")
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := unpack(v)
	if err != nil {
		return nil, err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if updated, err := unpack(v); err == nil {
			onChange(updated)
		}
	})
	v.WatchConfig()
	return cfg, nil
}

func unpack(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Provider.Kind {
	case KindOpenAICompat, KindAnthropic:
	default:
		return fmt.Errorf("unknown provider kind %q (valid: %s, %s)",
			c.Provider.Kind, KindOpenAICompat, KindAnthropic)
	}
	if c.Engine.MaxToolCalls < 0 {
		return fmt.Errorf("engine.max_tool_calls must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	return nil
}
