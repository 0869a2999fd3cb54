package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joao-fontenele/printhub/internal/config"
	"github.com/joao-fontenele/printhub/internal/database"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		logger.Error("usage: migrate <up|down|version>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Require("POSTGRES_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	m, err := database.NewMigrator(cfg.MigrationsPath, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to create migrator", "error", err)
		os.Exit(1)
	}
	defer func() { _ = m.Close() }()

	switch command := args[0]; command {
	case "up":
		applied, err := m.Up()
		if err != nil {
			logger.Error("migration up failed", "error", err)
			os.Exit(1)
		}
		if !applied {
			logger.Info("no pending migrations")
			return
		}
		logger.Info("migrations applied successfully")

	case "down":
		rolledBack, err := m.Down()
		if err != nil {
			logger.Error("migration down failed", "error", err)
			os.Exit(1)
		}
		if !rolledBack {
			logger.Info("no migrations to rollback")
			return
		}
		logger.Info("migration rolled back successfully")

	case "version":
		version, dirty, applied, err := m.Version()
		if err != nil {
			logger.Error("failed to get version", "error", err)
			os.Exit(1)
		}
		if !applied {
			logger.Info("no migrations applied yet")
			return
		}
		logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	default:
		logger.Error("unknown command", slog.String("command", command))
		os.Exit(1)
	}
}
