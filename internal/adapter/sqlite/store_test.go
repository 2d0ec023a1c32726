package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/CaseForge/internal/adapter/sqlite"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/port/database"
	"github.com/Strob0t/CaseForge/internal/port/database/databasetest"
)

var _ database.Store = (*sqlite.Store)(nil)

func openStore(t *testing.T) (*sqlite.Store, *sql.DB) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := sqlite.NewStore(db)
	t.Cleanup(func() { _ = s.Close() })
	return s, db
}

func TestStoreSuite(t *testing.T) {
	s, _ := openStore(t)
	databasetest.RunStoreSuite(t, s)
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	p := databasetest.NewProject("persisted", time.Now())
	if err := sqlite.NewStore(db).CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	db, err = sqlite.Open(ctx, dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := sqlite.NewStore(db).GetProject(ctx, p.ID); err != nil {
		t.Errorf("expected project to survive reopen: %v", err)
	}
}

func TestJournalModeIsWAL(t *testing.T) {
	_, db := openStore(t)
	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("expected wal journal mode, got %q", mode)
	}
}

func TestDeadlineMapsToUnavailable(t *testing.T) {
	s, _ := openStore(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := s.GetProject(ctx, "PROJ_any")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestDocumentRoundTripKeepsTree(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	p := databasetest.NewProject("tree", now)
	epic, err := project.AddEpic(p, project.Epic{Name: "Image Upload"}, now)
	if err != nil {
		t.Fatal(err)
	}
	feat, err := project.AddFeature(p, epic, project.Feature{Name: "DICOM Validation"}, now)
	if err != nil {
		t.Fatal(err)
	}
	uc, err := project.AddUseCase(p, epic, feat, project.UseCase{Title: "Reject malformed header"}, now)
	if err != nil {
		t.Fatal(err)
	}
	tc := project.TestCase{Title: "zero byte", TestSteps: []string{"a", "b"}, ExpectedResult: "rejected"}
	if _, err := project.AddTestCase(p, epic, feat, uc, tc, now); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	steps := got.Epics[0].Features[0].UseCases[0].TestCases[0].TestSteps
	if len(steps) != 2 || steps[0] != "a" || steps[1] != "b" {
		t.Errorf("expected ordered steps, got %v", steps)
	}
	if !got.Epics[0].UpdatedAt.Equal(now) {
		t.Errorf("expected epic timestamp %v, got %v", now, got.Epics[0].UpdatedAt)
	}
}

func TestMigrationRollbackAndVersion(t *testing.T) {
	_, db := openStore(t)
	ctx := context.Background()

	v, err := sqlite.MigrationVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
	if err := sqlite.Rollback(ctx, db, 1); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if v, _ := sqlite.MigrationVersion(ctx, db); v != 0 {
		t.Errorf("expected version 0 after rollback, got %d", v)
	}
	if err := sqlite.Migrate(ctx, db); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
}
