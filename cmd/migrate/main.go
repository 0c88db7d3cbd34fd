package main

import (
	"log/slog"
	"os"

	"provisioner/internal/config"
	"provisioner/internal/logging"
	"provisioner/internal/store/pg"
)

func main() {
	cfg := config.LoadMigrate()
	logging.Init("migrate", cfg.LogFormat)

	slog.Info("applying migrations", "dir", cfg.MigrationsDir)
	if err := pg.Migrate(cfg.MigrationsDir, cfg.DBDSN); err != nil {
		slog.Error("migration failed", "err", err)
		os.Exit(1)
	}
	slog.Info("migrations up to date")
}
