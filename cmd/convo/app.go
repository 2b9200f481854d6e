package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ashtin/convo/src/apiclient"
	"github.com/ashtin/convo/src/chatservice"
	"github.com/ashtin/convo/src/config"
	"github.com/ashtin/convo/src/convstore"
	"github.com/ashtin/convo/src/kvstore"
)

// App bundles the wired-up services behind a command.
type App struct {
	Config  *config.Config
	Store   *convstore.Store
	Service *chatservice.Service
	Logger  *slog.Logger

	kv kvstore.Store
}

// buildApp loads configuration, opens the persistence backend, and
// constructs the store, client, and service. The store is loaded from
// persisted state before returning.
func buildApp(ctx context.Context, cli *CLI) (*App, error) {
	configPath := cli.Config
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, err
	}

	// Flags override file configuration.
	if cli.APIKey != "" {
		cfg.API.Key = cli.APIKey
	}
	if cli.BaseURL != "" {
		cfg.API.BaseURL = cli.BaseURL
	}
	if cli.Model != "" {
		cfg.API.Model = cli.Model
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := createCLILogger(cfg.Log.Level)

	kv, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	store := convstore.New(kv, logger)
	store.Load(ctx)

	client := apiclient.NewClient(apiclient.Config{
		APIKey:       cfg.API.Key,
		BaseURL:      cfg.API.BaseURL,
		Model:        cfg.API.Model,
		SystemPrompt: cfg.API.SystemPrompt,
		Logger:       logger,
	})

	return &App{
		Config:  cfg,
		Store:   store,
		Service: chatservice.New(store, client, logger),
		Logger:  logger,
		kv:      kv,
	}, nil
}

// openBackend opens the configured key/value backend.
func openBackend(cfg *config.Config, logger *slog.Logger) (kvstore.Store, error) {
	dir := cfg.Storage.Dir
	if dir == "" {
		dir = config.DefaultStateDir()
	}

	switch cfg.Storage.Backend {
	case "badger":
		return kvstore.OpenBadger(kvstore.BadgerConfig{
			Path:       filepath.Join(dir, "badger"),
			SyncWrites: true,
			Logger:     logger,
		})
	case "sqlite":
		fs := afero.NewOsFs()
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory %s: %w", dir, err)
		}
		return kvstore.OpenSQLite(filepath.Join(dir, "conversations.db"))
	case "file":
		return kvstore.NewFileStore(afero.NewOsFs(), dir), nil
	case "memory":
		return kvstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close releases the service and the persistence backend.
func (a *App) Close() error {
	a.Service.Close()
	return a.kv.Close()
}
