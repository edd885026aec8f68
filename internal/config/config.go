// Package config loads chatstage configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all chatstage configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM gateway configuration
	LLM LLMConfig `yaml:"llm"`

	// Delivery pacing
	Pacing PacingConfig `yaml:"pacing"`

	// Memory compaction
	Memory MemoryConfig `yaml:"memory"`

	// Context assembly
	Context ContextConfig `yaml:"context"`

	// Storage
	DatabasePath string `yaml:"database_path"`

	// Lorebook file (optional, hot-reloaded when present)
	LorebookPath string `yaml:"lorebook_path"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion gateway.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	// Timeout for interactive turns; compaction uses Memory.Timeout.
	Timeout         string `yaml:"timeout"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

// PacingConfig bounds the simulated typing delay per delivered message.
type PacingConfig struct {
	MinDelay string `yaml:"min_delay"` // clamp floor (default 1s)
	MaxDelay string `yaml:"max_delay"` // clamp ceiling (default 5s)
	// PerRune scales content length into delay (default 50ms per rune).
	PerRune string `yaml:"per_rune"`
}

// MemoryConfig configures the memory compactor.
type MemoryConfig struct {
	// LookbackRounds is the default round window when the caller passes 0.
	LookbackRounds int `yaml:"lookback_rounds"`
	// TranscriptBudget caps the transcript sent for summarization, in runes.
	TranscriptBudget int `yaml:"transcript_budget"`
	// Timeout bounds the compaction gateway call.
	Timeout string `yaml:"timeout"`
}

// ContextConfig configures the context assembler.
type ContextConfig struct {
	// HistoryWindow is the number of recent messages rendered into context.
	HistoryWindow int `yaml:"history_window"`
	// LorebookScanWindow is how many recent messages are scanned for
	// lorebook keyword triggers.
	LorebookScanWindow int `yaml:"lorebook_scan_window"`
	// ReplyPreviewRunes truncates the quoted reply-to content.
	ReplyPreviewRunes int `yaml:"reply_preview_runes"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "chatstage",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			BaseURL:         "https://api.openai.com/v1",
			Timeout:         "60s",
			MaxOutputTokens: 2048,
		},

		Pacing: PacingConfig{
			MinDelay: "1s",
			MaxDelay: "5s",
			PerRune:  "50ms",
		},

		Memory: MemoryConfig{
			LookbackRounds:   20,
			TranscriptBudget: 12000,
			Timeout:          "5m",
		},

		Context: ContextConfig{
			HistoryWindow:      60,
			LorebookScanWindow: 10,
			ReplyPreviewRunes:  50,
		},

		DatabasePath: "data/chatstage.db",

		Logging: LoggingConfig{
			Debug: false,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides applies environment variable overrides.
// Priority: explicit provider keys first, generic CHATSTAGE_* last.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
	}
	if key := os.Getenv("CHATSTAGE_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if provider := os.Getenv("CHATSTAGE_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if model := os.Getenv("CHATSTAGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("CHATSTAGE_DB"); path != "" {
		c.DatabasePath = path
	}
}

// InteractiveTimeout returns the parsed gateway timeout for chat turns.
func (c *Config) InteractiveTimeout() time.Duration {
	return parseDurationOr(c.LLM.Timeout, 60*time.Second)
}

// CompactionTimeout returns the parsed gateway timeout for compaction.
func (c *Config) CompactionTimeout() time.Duration {
	return parseDurationOr(c.Memory.Timeout, 5*time.Minute)
}

// PacingBounds returns the parsed delay clamp and per-rune scale.
func (c *Config) PacingBounds() (min, max, perRune time.Duration) {
	min = parseDurationOr(c.Pacing.MinDelay, time.Second)
	max = parseDurationOr(c.Pacing.MaxDelay, 5*time.Second)
	perRune = parseDurationOr(c.Pacing.PerRune, 50*time.Millisecond)
	if max < min {
		max = min
	}
	return min, max, perRune
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini", "mock":
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLM.Provider)
	}
	if c.Context.HistoryWindow <= 0 {
		return fmt.Errorf("context.history_window must be positive")
	}
	if c.Memory.TranscriptBudget <= 0 {
		return fmt.Errorf("memory.transcript_budget must be positive")
	}
	return nil
}
