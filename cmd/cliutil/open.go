package cliutil

import (
	"context"
	"fmt"

	"github.com/storacha/queuectl/pkg/config"
	"github.com/storacha/queuectl/pkg/history"
	"github.com/storacha/queuectl/pkg/store"
)

// LoadApp loads and validates the application configuration from the merged
// viper state (defaults, config file, environment, flags).
func LoadApp() (config.App, error) {
	cfg, err := config.Load[config.App]()
	if err != nil {
		return config.App{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// OpenStore opens the queue database named by the configuration, installing
// the schema on first use. Callers own the returned store and must close it.
func OpenStore(ctx context.Context, cfg config.App) (*store.Store, error) {
	s, err := store.Open(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("opening queue database %s: %w", cfg.DB, err)
	}
	return s, nil
}

// OpenHistory opens the execution history database next to the queue
// database.
func OpenHistory(cfg config.App) (*history.Store, error) {
	h, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("opening history database %s: %w", cfg.HistoryPath(), err)
	}
	return h, nil
}
