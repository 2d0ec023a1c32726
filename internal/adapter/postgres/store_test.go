package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Strob0t/CaseForge/internal/adapter/postgres"
	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/port/database"
	"github.com/Strob0t/CaseForge/internal/port/database/databasetest"
)

var _ database.Store = (*postgres.Store)(nil)

// setupStore creates a pool, runs all migrations, and returns a ready-to-use
// Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	cfg := config.Defaults().Postgres
	cfg.DSN = dsn
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

func TestStoreSuite(t *testing.T) {
	databasetest.RunStoreSuite(t, setupStore(t))
}

func TestMigrationVersion(t *testing.T) {
	setupStore(t)
	v, err := postgres.MigrationVersion(context.Background(), os.Getenv("DATABASE_URL"))
	if err != nil {
		t.Fatal(err)
	}
	if v < 1 {
		t.Errorf("expected at least version 1, got %d", v)
	}
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	err := postgres.ClassifyForTest(&pgconn.PgError{Code: "08006"})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for connection failure, got %v", err)
	}
	err = postgres.ClassifyForTest(&pgconn.PgError{Code: "23505"})
	if errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("unique violation must not be classified as unavailable: %v", err)
	}
	if err := postgres.ClassifyForTest(context.DeadlineExceeded); !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for deadline, got %v", err)
	}
}
