// Package config loads the YAML configuration file, expands environment
// variables, and applies defaults so the rest of the program never sees a
// zero-valued setting.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	Tools   ToolsConfig   `yaml:"tools"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// AgentConfig configures the turn loop.
type AgentConfig struct {
	Model         string `yaml:"model"`
	SystemPrompt  string `yaml:"system_prompt"`
	MaxIterations int    `yaml:"max_iterations"`
	MaxTokens     int    `yaml:"max_tokens"`
	HistoryLimit  int    `yaml:"history_limit"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	Concurrency    int                      `yaml:"concurrency"`
	Mode           string                   `yaml:"mode"`
	DefaultTimeout time.Duration            `yaml:"default_timeout"`
	Timeouts       map[string]time.Duration `yaml:"timeouts"`
	Truncation     TruncationConfig         `yaml:"truncation"`
}

type TruncationConfig struct {
	MaxBytes  int `yaml:"max_bytes"`
	ArrayKeep int `yaml:"array_keep"`
}

// StoreConfig selects the session store backend.
type StoreConfig struct {
	// Type is "memory" or "sqlite".
	Type string `yaml:"type"`

	// Path is the database file, used when Type is "sqlite".
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file, expanding ${VAR} references
// before decoding and applying defaults after.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no
// providers configured.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.HistoryLimit == 0 {
		cfg.Agent.HistoryLimit = 100
	}
	if cfg.Tools.Concurrency == 0 {
		cfg.Tools.Concurrency = 4
	}
	if cfg.Tools.Mode == "" {
		cfg.Tools.Mode = "parallel"
	}
	if cfg.Tools.DefaultTimeout == 0 {
		cfg.Tools.DefaultTimeout = 30 * time.Second
	}
	if cfg.Tools.Truncation.MaxBytes == 0 {
		cfg.Tools.Truncation.MaxBytes = 16384
	}
	if cfg.Tools.Truncation.ArrayKeep == 0 {
		cfg.Tools.Truncation.ArrayKeep = 10
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "memory"
	}
	if cfg.Store.Type == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = "finch.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.type must be \"memory\" or \"sqlite\", got %q", c.Store.Type)
	}
	switch c.Tools.Mode {
	case "parallel", "sequential":
	default:
		return fmt.Errorf("tools.mode must be \"parallel\" or \"sequential\", got %q", c.Tools.Mode)
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must not be negative")
	}
	return nil
}

// Provider returns the configuration block for the named provider, or a zero
// value if it is not configured.
func (c *Config) Provider(name string) LLMProviderConfig {
	return c.LLM.Providers[name]
}
