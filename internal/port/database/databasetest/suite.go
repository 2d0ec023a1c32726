// Package databasetest holds the behavior every database.Store adapter must
// share. Adapter tests call RunStoreSuite with a fresh store.
package databasetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/port/database"
)

// base is far enough in the past that adapters sharing a database with
// other test data still order these projects predictably.
var base = time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)

// NewProject returns a minimal valid project with a unique ID.
func NewProject(name string, created time.Time) *project.Project {
	return &project.Project{
		ID:                   project.PrefixProject + uuid.NewString()[:8],
		Name:                 name,
		Status:               project.StatusActive,
		ComplianceFrameworks: []string{},
		Epics:                []project.Epic{},
		CreatedAt:            created,
		UpdatedAt:            created,
		Version:              1,
	}
}

// RunStoreSuite exercises s against the database.Store contract.
func RunStoreSuite(t *testing.T, s database.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		p := NewProject("Radiology Suite", base)
		if _, err := project.AddEpic(p, project.Epic{Name: "Image Upload"}, base); err != nil {
			t.Fatal(err)
		}
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, err := s.GetProject(ctx, p.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Name != "Radiology Suite" || len(got.Epics) != 1 || got.Epics[0].Name != "Image Upload" {
			t.Errorf("unexpected document %+v", got)
		}
		if got.Version != p.Version {
			t.Errorf("expected version %d, got %d", p.Version, got.Version)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		p := NewProject("dup", base)
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatal(err)
		}
		if err := s.CreateProject(ctx, p); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := s.GetProject(ctx, "PROJ_missing0"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateCompareAndSwap", func(t *testing.T) {
		p := NewProject("cas", base)
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatal(err)
		}
		first, _ := s.GetProject(ctx, p.ID)
		second, _ := s.GetProject(ctx, p.ID)

		first.Description = "first writer"
		if err := s.UpdateProject(ctx, first); err != nil {
			t.Fatalf("first update: %v", err)
		}
		if first.Version != p.Version+1 {
			t.Errorf("expected version bump to %d, got %d", p.Version+1, first.Version)
		}

		second.Description = "second writer"
		if err := s.UpdateProject(ctx, second); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict for stale version, got %v", err)
		}

		got, _ := s.GetProject(ctx, p.ID)
		if got.Description != "first writer" {
			t.Errorf("stale write leaked: %q", got.Description)
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		p := NewProject("gone", base)
		if err := s.UpdateProject(ctx, p); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		p := NewProject("doomed", base)
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteProject(ctx, p.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetProject(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.DeleteProject(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("ListFilters", func(t *testing.T) {
		tag := "FW-" + uuid.NewString()[:8]
		older := NewProject("older", base.Add(time.Hour))
		older.ComplianceFrameworks = []string{tag, "HIPAA"}
		newer := NewProject("newer", base.Add(2*time.Hour))
		newer.ComplianceFrameworks = []string{tag}
		archived := NewProject("archived", base.Add(3*time.Hour))
		archived.ComplianceFrameworks = []string{tag}
		archived.Status = project.StatusArchived
		for _, p := range []*project.Project{older, newer, archived} {
			if err := s.CreateProject(ctx, p); err != nil {
				t.Fatal(err)
			}
		}

		got, err := s.ListProjects(ctx, project.ListFilter{ComplianceFramework: tag})
		if err != nil {
			t.Fatal(err)
		}
		if ids(got) != ids([]project.Project{*archived, *newer, *older}) {
			t.Errorf("expected newest first, got %s", ids(got))
		}

		got, _ = s.ListProjects(ctx, project.ListFilter{ComplianceFramework: tag, Status: project.StatusActive})
		if ids(got) != ids([]project.Project{*newer, *older}) {
			t.Errorf("status filter: got %s", ids(got))
		}

		after := base.Add(90 * time.Minute)
		got, _ = s.ListProjects(ctx, project.ListFilter{ComplianceFramework: tag, CreatedAfter: &after})
		if ids(got) != ids([]project.Project{*archived, *newer}) {
			t.Errorf("created_after filter: got %s", ids(got))
		}

		before := base.Add(150 * time.Minute)
		got, _ = s.ListProjects(ctx, project.ListFilter{ComplianceFramework: tag, CreatedBefore: &before, Limit: 1})
		if ids(got) != ids([]project.Project{*newer}) {
			t.Errorf("created_before+limit: got %s", ids(got))
		}
	})

	t.Run("AllProjects", func(t *testing.T) {
		p := NewProject("all", base)
		if err := s.CreateProject(ctx, p); err != nil {
			t.Fatal(err)
		}
		all, err := s.AllProjects(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for i := range all {
			if all[i].ID == p.ID {
				return
			}
		}
		t.Errorf("expected %s among %d projects", p.ID, len(all))
	})

	t.Run("Ping", func(t *testing.T) {
		if err := s.Ping(ctx); err != nil {
			t.Errorf("ping: %v", err)
		}
	})
}

func ids(ps []project.Project) string {
	var out string
	for i := range ps {
		out += ps[i].ID + ","
	}
	return out
}
