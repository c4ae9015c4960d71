// Package config handles configuration loading for codeframe. It supports
// XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for codeframe.
type Config struct {
	Anthropic Anthropic `mapstructure:"anthropic"`
	Pool      Pool      `mapstructure:"pool"`
	Context   Context   `mapstructure:"context"`
	Blockers  Blockers  `mapstructure:"blockers"`
	Project   Project   `mapstructure:"project"`
}

// Anthropic holds provider settings.
type Anthropic struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes requests through AWS Bedrock instead of the API.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
	// RequestTimeout bounds each completion call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Pool holds agent pool limits, keyed by agent type.
type Pool struct {
	MaxConcurrency map[string]int `mapstructure:"max_concurrency"`
}

// Context holds context-store tuning.
type Context struct {
	// TokenBudget is the per-agent active context budget.
	TokenBudget int `mapstructure:"token_budget"`
	// TypeWeights overrides the default per-type importance weights.
	TypeWeights map[string]float64 `mapstructure:"type_weights"`
	// DecayHalfLife is the age at which the decay component halves.
	DecayHalfLife time.Duration `mapstructure:"decay_half_life"`
}

// Blockers holds blocker lifecycle settings.
type Blockers struct {
	// TTL is how long a blocker may stay open before expiring.
	TTL time.Duration `mapstructure:"ttl"`
}

// Project holds per-project settings.
type Project struct {
	// Language selects the test command.
	Language string `mapstructure:"language"`
	// CommitChanges enables a git commit after each completed task.
	CommitChanges bool `mapstructure:"commit_changes"`
}

// Load loads configuration with the following precedence (highest first):
// environment variables, project config (.codeframe/config.yaml in the
// current directory or a parent), user config
// (~/.config/codeframe/config.yaml), built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "CODEFRAME_MODEL")
	v.BindEnv("anthropic.use_bedrock", "CLAUDE_CODE_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.request_timeout", "5m")

	v.SetDefault("pool.max_concurrency", map[string]int{
		"lead":     1,
		"backend":  2,
		"frontend": 2,
		"test":     2,
		"review":   1,
	})

	v.SetDefault("context.token_budget", 100000)
	v.SetDefault("context.decay_half_life", "2h")

	v.SetDefault("blockers.ttl", "24h")

	v.SetDefault("project.language", "go")
	v.SetDefault("project.commit_changes", true)
}

// getUserConfigDir returns the XDG config directory for codeframe.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "codeframe")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "codeframe")
	}
	return filepath.Join(home, ".config", "codeframe")
}

// findProjectConfig searches for .codeframe/config.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".codeframe", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}
