package cli

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"forum-quiz-service/internal/config"
	pgmigrations "forum-quiz-service/internal/infra/postgres/migrations"
	"forum-quiz-service/internal/infra/sqlite"
	"forum-quiz-service/internal/logging"
)

// NewMigrateCmd applies database migrations for the configured backends.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log)

	ran := false
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		ran = true
	}
	if cfg.Catalog.Backend == "sqlite" || cfg.QuizLog.Backend == "sqlite" {
		// Open applies pending migrations.
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return err
		}
		_ = db.Close()
		logger.Info("sqlite migrations applied", "path", cfg.SQLite.Path)
		ran = true
	}
	if !ran {
		return errors.New("no database backend configured")
	}
	return nil
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	group, err := migrator.Migrate(ctx)
	if err != nil {
		return err
	}
	if group.IsZero() {
		slog.Info("postgres schema up to date")
		return nil
	}
	slog.Info("postgres migrations applied", "group", group.String())
	return nil
}
