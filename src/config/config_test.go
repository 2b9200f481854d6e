package config

import (
	"testing"

	"github.com/spf13/afero"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.BaseURL == "" {
		t.Error("expected base URL to be set")
	}
	if cfg.API.Model == "" {
		t.Error("expected model to be set")
	}
	if cfg.Storage.Backend != "badger" {
		t.Errorf("expected backend badger, got %s", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing model",
			mutate:  func(c *Config) { c.API.Model = "" },
			wantErr: true,
		},
		{
			name:    "bad base url",
			mutate:  func(c *Config) { c.API.BaseURL = "not a url" },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "postgres" },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "/etc/convo/config.json")
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if cfg.API.Model != DefaultConfig().API.Model {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `{"api":{"model":"custom-model"},"storage":{"backend":"sqlite"}}`
	if err := afero.WriteFile(fs, "/config.json", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(fs, "/config.json")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Model != "custom-model" {
		t.Errorf("expected custom-model, got %s", cfg.API.Model)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Storage.Backend)
	}
	// Untouched fields keep their defaults.
	if cfg.API.BaseURL != DefaultConfig().API.BaseURL {
		t.Error("expected default base URL to survive partial config")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/config.json", []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(fs, "/config.json"); err == nil {
		t.Error("malformed config should error")
	}
}
