package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Strob0t/CaseForge/internal/adapter/postgres"
	"github.com/Strob0t/CaseForge/internal/adapter/sqlite"
	"github.com/Strob0t/CaseForge/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the storage schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, func(ctx context.Context, m migrator) error {
			if err := m.up(ctx); err != nil {
				return err
			}
			return printVersion(ctx, cmd, m, "migrated")
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			steps = n
		}
		return withMigrator(cmd, func(ctx context.Context, m migrator) error {
			if err := m.down(ctx, steps); err != nil {
				return err
			}
			return printVersion(ctx, cmd, m, "rolled back")
		})
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMigrator(cmd, func(ctx context.Context, m migrator) error {
			return printVersion(ctx, cmd, m, "schema")
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

// migrator abstracts the backend-specific goose calls.
type migrator struct {
	up      func(ctx context.Context) error
	down    func(ctx context.Context, steps int) error
	version func(ctx context.Context) (int64, error)
	close   func()
}

func newMigrator(ctx context.Context, cfg *config.Config) (migrator, error) {
	if cfg.Storage.Backend == "postgres" {
		dsn := cfg.Postgres.DSN
		return migrator{
			up:      func(ctx context.Context) error { return postgres.RunMigrations(ctx, dsn) },
			down:    func(ctx context.Context, steps int) error { return postgres.RollbackMigrations(ctx, dsn, steps) },
			version: func(ctx context.Context) (int64, error) { return postgres.MigrationVersion(ctx, dsn) },
			close:   func() {},
		}, nil
	}
	// sqlite.Open applies pending migrations itself.
	db, err := sqlite.Open(ctx, cfg.Storage.DataDir)
	if err != nil {
		return migrator{}, err
	}
	return migrator{
		up:      func(ctx context.Context) error { return sqlite.Migrate(ctx, db) },
		down:    func(ctx context.Context, steps int) error { return sqlite.Rollback(ctx, db, steps) },
		version: func(ctx context.Context) (int64, error) { return sqlite.MigrationVersion(ctx, db) },
		close:   func() { _ = db.Close() },
	}, nil
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, migrator) error) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	m, err := newMigrator(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.close()
	return fn(ctx, m)
}

func printVersion(ctx context.Context, cmd *cobra.Command, m migrator, label string) error {
	v, err := m.version(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("%s: version %s\n", label, green(v))
	return nil
}
