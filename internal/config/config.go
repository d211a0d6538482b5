// Package config loads server configuration: defaults, overlaid with
// an optional JSON file, overlaid with environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"nbcopilot/internal/embedding"
	"nbcopilot/internal/llm"
)

// Config is the full server configuration.
type Config struct {
	// Host and Port for the HTTP/websocket listener. If the port is
	// taken the server probes upward from it.
	Host string `json:"host"`
	Port int    `json:"port"`

	// StaticDir serves the browser client when non-empty.
	StaticDir string `json:"static_dir"`

	// NotebookPath, when set, is loaded at startup and watched for
	// external changes.
	NotebookPath string `json:"notebook_path"`

	// PromptFile optionally overrides the built-in system prompts.
	PromptFile string `json:"prompt_file"`

	// AutoApply commits edit proposals immediately after broadcast.
	// When off, proposals wait for an accept from a subscriber.
	AutoApply bool `json:"auto_apply"`

	// Planner enables the planning pre-pass before each edit loop.
	Planner bool `json:"planner"`

	// MaxRounds caps tool-use rounds per prompt. Zero keeps the
	// built-in default.
	MaxRounds int `json:"max_rounds"`

	// IndexWorkers bounds the embedding worker pool.
	IndexWorkers int `json:"index_workers"`

	Debug bool `json:"debug"`

	LLM       llm.Config       `json:"llm"`
	Embedding embedding.Config `json:"embedding"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         8765,
		AutoApply:    true,
		Planner:      true,
		IndexWorkers: 4,
		LLM:          llm.DefaultConfig(""),
		Embedding:    embedding.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the JSON file at path
// (optional), and environment variables, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overlays environment variables. Only variables that are
// set override anything.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NBCOPILOT_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("NBCOPILOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("NBCOPILOT_STATIC_DIR"); v != "" {
		cfg.StaticDir = v
	}
	if v := os.Getenv("NBCOPILOT_NOTEBOOK"); v != "" {
		cfg.NotebookPath = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("NBCOPILOT_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("NBCOPILOT_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		cfg.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("NBCOPILOT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}
