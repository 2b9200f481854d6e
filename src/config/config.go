// Package config loads and validates application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
)

// Config represents the complete configuration for convo.
type Config struct {
	// API configuration
	API APIConfig `json:"api"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Log is the minimum log level
	Log LogConfig `json:"log"`
}

// APIConfig configures the completion client.
type APIConfig struct {
	// Key is the API credential. Usually supplied via environment rather
	// than the config file.
	Key string `json:"key,omitempty"`

	// BaseURL of the OpenAI-compatible endpoint
	BaseURL string `json:"base_url" validate:"required,url"`

	// Model identifier sent with every request
	Model string `json:"model" validate:"required"`

	// SystemPrompt is the optional persona injected at request time
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// StorageConfig selects and locates the persistence backend.
type StorageConfig struct {
	// Backend is one of badger, sqlite, file, memory
	Backend string `json:"backend" validate:"required,oneof=badger sqlite file memory"`

	// Dir is where the backend keeps its data; defaults to the XDG state
	// directory
	Dir string `json:"dir,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `json:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-4o-mini",
		},
		Storage: StorageConfig{
			Backend: "badger",
			Dir:     DefaultStateDir(),
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load reads configuration from path, layering it over the defaults. A
// missing file is not an error; the defaults are returned.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fmt.Errorf("invalid config: field %s failed on '%s'", e.Namespace(), e.Tag())
		}
		return err
	}
	return nil
}
