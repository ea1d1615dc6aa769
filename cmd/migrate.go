package cmd

import (
	"fmt"
	"log/slog"

	"github.com/resourceburglar/localqa/db"
	"github.com/resourceburglar/localqa/internal/config"
)

// runMigrate applies database migrations and exits. Serving also migrates on
// startup; this command exists for deploy pipelines that migrate separately.
func runMigrate() error {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied", "database", cfg.PostgresDBName)
	return nil
}
