// Package config loads the daemon configuration from a TOML file, applies
// defaults and expands ${ENV} references in secret-bearing fields.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full daemon configuration.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Store     StoreConfig     `toml:"store"`
	LLM       LLMConfig       `toml:"llm"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Agent     AgentConfig     `toml:"agent"`
	Notify    NotifyConfig    `toml:"notify"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// StoreConfig configures the SQLite state directory.
type StoreConfig struct {
	StateDir string `toml:"state_dir"`
}

// LLMConfig configures the model provider.
type LLMConfig struct {
	Provider       string `toml:"provider"` // openai, mock
	APIKey         string `toml:"api_key"`
	Endpoint       string `toml:"endpoint"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SchedulerConfig configures the tick cadence and the batch scheduler.
type SchedulerConfig struct {
	// Cadence is a cron spec for the external tick invoker.
	Cadence      string   `toml:"cadence"`
	NamePrefix   string   `toml:"name_prefix"`
	DefaultModel string   `toml:"default_model"`
	SmallModels  []string `toml:"small_models"`
	SmallCap     int      `toml:"small_cap"`
	LargeCap     int      `toml:"large_cap"`
}

// AgentConfig configures the execution controller.
type AgentConfig struct {
	MessagePauseThreshold int      `toml:"message_pause_threshold"`
	HumanInLoopTools      []string `toml:"human_in_loop_tools"`
	Temperature           float64  `toml:"temperature"`
	MaxTokens             int      `toml:"max_tokens"`
	MaxWorkers            int      `toml:"max_workers"`
}

// NotifyConfig configures human notifications.
type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig configures the telegram notifier.
type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Default returns a config with every default applied, for running without a
// file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Store.StateDir == "" {
		cfg.Store.StateDir = "./state"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.Scheduler.Cadence == "" {
		cfg.Scheduler.Cadence = "*/5 * * * *"
	}
	if cfg.Scheduler.NamePrefix == "" {
		cfg.Scheduler.NamePrefix = "⚡️ "
	}
	if cfg.Agent.MessagePauseThreshold == 0 {
		cfg.Agent.MessagePauseThreshold = 4
	}
	if cfg.Agent.Temperature == 0 {
		cfg.Agent.Temperature = 0.7
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Agent.MaxWorkers == 0 {
		cfg.Agent.MaxWorkers = 4
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
}

// expandEnvVars resolves ${VAR} references in secret-bearing fields so keys
// stay out of the config file.
func expandEnvVars(cfg *Config) {
	cfg.LLM.APIKey = expand(cfg.LLM.APIKey)
	cfg.Notify.Telegram.Token = expand(cfg.Notify.Telegram.Token)
}

func expand(value string) string {
	if strings.Contains(value, "${") {
		return os.ExpandEnv(value)
	}
	return value
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm.api_key is required when provider is 'openai'"))
		}
	case "mock":
		// No credentials needed.
	default:
		errs = append(errs, fmt.Errorf("invalid llm.provider: %s (expected: openai, mock)", c.LLM.Provider))
	}

	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.Token == "" {
			errs = append(errs, fmt.Errorf("notify.telegram.token is required when telegram is enabled"))
		}
		if c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, fmt.Errorf("notify.telegram.chat_id is required when telegram is enabled"))
		}
	}

	if c.Scheduler.SmallCap < 0 || c.Scheduler.LargeCap < 0 {
		errs = append(errs, fmt.Errorf("scheduler caps must not be negative"))
	}

	return errs
}
