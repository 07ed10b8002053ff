// Package config loads the process-wide configuration once at startup. The
// resulting Config is read-only for the life of the process; request handling
// never consults the environment directly.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/infrapilot/infrapilot/internal/logger"
)

// ProviderKind names an analysis backend implementation.
type ProviderKind string

const (
	// ProviderGemini is the cloud-hosted backend.
	ProviderGemini ProviderKind = "gemini"
	// ProviderOllama is the locally-hosted backend.
	ProviderOllama ProviderKind = "ollama"
	// ProviderRules is the deterministic backend of last resort.
	ProviderRules ProviderKind = "rules"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Logging   logger.LogConfig `json:"logging"`
	Providers ProvidersConfig  `json:"providers"`
	Autofix   AutofixConfig    `json:"autofix"`
	Storage   StorageConfig    `json:"storage"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	CORSOrigins  []string      `json:"cors_origins"`
	RateLimitRPS int           `json:"rate_limit_rps"`
}

// ProvidersConfig holds the AI backend endpoints and the model routing table.
type ProvidersConfig struct {
	// Default names the pairing used when a request carries no model
	// selector or an unknown one. Empty kind means rules-only mode.
	DefaultKind  ProviderKind `json:"default_kind"`
	DefaultModel string       `json:"default_model"`

	Gemini GeminiConfig `json:"gemini"`
	Ollama OllamaConfig `json:"ollama"`

	// LocalModelPrefixes routes selectors to the local backend by prefix,
	// so version tags (llama3:8b, llama3:70b) need no enumeration.
	LocalModelPrefixes []string `json:"local_model_prefixes"`
}

// GeminiConfig configures the cloud backend.
type GeminiConfig struct {
	APIKey   string        `json:"-"`
	BaseURL  string        `json:"base_url"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout"`
	Disabled bool          `json:"disabled"`
}

// OllamaConfig configures the local backend.
type OllamaConfig struct {
	BaseURL string        `json:"base_url"`
	Model   string        `json:"model"`
	Timeout time.Duration `json:"timeout"`
}

// AutofixConfig configures the external patch agent.
type AutofixConfig struct {
	// AgentPath is the patch agent executable; looked up on PATH when not
	// absolute. Empty disables the agent path entirely.
	AgentPath    string        `json:"agent_path"`
	AgentTimeout time.Duration `json:"agent_timeout"`
	ApplyTimeout time.Duration `json:"apply_timeout"`
}

// StorageConfig configures the analysis history store.
type StorageConfig struct {
	Path string `json:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 180 * time.Second,
			IdleTimeout:  120 * time.Second,
			CORSOrigins:  []string{"*"},
			RateLimitRPS: 20,
		},
		Logging: logger.LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339,
		},
		Providers: ProvidersConfig{
			DefaultKind:  ProviderOllama,
			DefaultModel: "llama3:latest",
			Gemini: GeminiConfig{
				BaseURL: "https://generativelanguage.googleapis.com/v1beta",
				Model:   "gemini-1.5-flash",
				Timeout: 30 * time.Second,
			},
			Ollama: OllamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama3:latest",
				Timeout: 60 * time.Second,
			},
			LocalModelPrefixes: []string{"llama3", "wizardlm2", "qwen2.5", "deepseek-r1"},
		},
		Autofix: AutofixConfig{
			AgentPath:    "cline",
			AgentTimeout: 60 * time.Second,
			ApplyTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Path: "infrapilot.db",
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of file values. Credentials
// only ever come from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Providers.Gemini.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		c.Providers.Gemini.Model = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Providers.Ollama.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.Providers.Ollama.Model = v
		if c.Providers.DefaultKind == ProviderOllama {
			c.Providers.DefaultModel = v
		}
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "gemini":
			c.Providers.DefaultKind = ProviderGemini
			c.Providers.DefaultModel = c.Providers.Gemini.Model
		case "local", "ollama":
			c.Providers.DefaultKind = ProviderOllama
			c.Providers.DefaultModel = c.Providers.Ollama.Model
		case "rules", "none":
			c.Providers.DefaultKind = ProviderRules
			c.Providers.DefaultModel = ""
		}
	}
	if v := os.Getenv("INFRAPILOT_AGENT_PATH"); v != "" {
		c.Autofix.AgentPath = v
	}
	if v := os.Getenv("INFRAPILOT_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Providers.Gemini.Timeout <= 0 {
		return fmt.Errorf("gemini timeout must be positive")
	}
	if c.Providers.Ollama.Timeout <= 0 {
		return fmt.Errorf("ollama timeout must be positive")
	}
	if c.Autofix.AgentTimeout <= 0 {
		return fmt.Errorf("agent timeout must be positive")
	}
	return nil
}

// GeminiEnabled reports whether the cloud backend is usable as configured.
func (c *Config) GeminiEnabled() bool {
	return !c.Providers.Gemini.Disabled && c.Providers.Gemini.APIKey != ""
}

// Resolution is a resolved (provider kind, model) pairing for one request.
type Resolution struct {
	Kind  ProviderKind
	Model string
}

// Resolve maps a model selector onto a provider pairing. Resolution never
// fails: an empty or unknown selector degrades to the configured default
// pairing, and a missing default degrades to rules-only mode.
func (c *Config) Resolve(selector string) Resolution {
	s := strings.ToLower(strings.TrimSpace(selector))

	if s == "" {
		return c.defaultResolution()
	}

	for _, prefix := range c.Providers.LocalModelPrefixes {
		if strings.HasPrefix(s, prefix) {
			return Resolution{Kind: ProviderOllama, Model: selector}
		}
	}

	if strings.HasPrefix(s, "gemini") {
		if !c.GeminiEnabled() {
			return Resolution{Kind: ProviderRules}
		}
		return Resolution{Kind: ProviderGemini, Model: selector}
	}

	// Unknown selector: degrade to the default pairing rather than failing
	// the whole request.
	return c.defaultResolution()
}

func (c *Config) defaultResolution() Resolution {
	switch c.Providers.DefaultKind {
	case ProviderGemini:
		if !c.GeminiEnabled() {
			return Resolution{Kind: ProviderRules}
		}
		model := c.Providers.DefaultModel
		if model == "" {
			model = c.Providers.Gemini.Model
		}
		return Resolution{Kind: ProviderGemini, Model: model}
	case ProviderOllama:
		model := c.Providers.DefaultModel
		if model == "" {
			model = c.Providers.Ollama.Model
		}
		return Resolution{Kind: ProviderOllama, Model: model}
	default:
		return Resolution{Kind: ProviderRules}
	}
}
