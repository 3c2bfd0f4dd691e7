package main

import (
	"context"
	"os"

	"github.com/samber/oops"

	"github.com/ayush/tasktracker/backend/internal/config"
	"github.com/ayush/tasktracker/backend/internal/logging"
	"github.com/ayush/tasktracker/backend/internal/store"
)

func runMigrate(ctx context.Context) error {
	cfg := config.Load()
	logger := logging.Setup("tasktracker", version, cfg.LogFormat, os.Stderr)

	if cfg.PostgresDSN == "" {
		err := oops.Code("CONFIG_INVALID").Errorf("POSTGRES_DSN is required")
		logging.LogError(ctx, logger, "invalid configuration", err, false)
		return err
	}
	if err := store.Migrate(ctx, cfg.PostgresDSN); err != nil {
		logging.LogError(ctx, logger, "migration failed", err, !cfg.IsProduction())
		return err
	}
	logger.Info("migrations applied")
	return nil
}
