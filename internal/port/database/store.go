// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/CaseForge/internal/domain/project"
)

// Store persists project documents. Each project is read and written as one
// nested unit.
type Store interface {
	// CreateProject writes a new document. It returns domain.ErrConflict if
	// the ID is already taken.
	CreateProject(ctx context.Context, p *project.Project) error

	// GetProject returns domain.ErrNotFound if the project does not exist.
	GetProject(ctx context.Context, id string) (*project.Project, error)

	// UpdateProject rewrites the whole document if its stored version still
	// equals p.Version, then increments p.Version. A stale version yields
	// domain.ErrConflict; a missing row yields domain.ErrNotFound.
	UpdateProject(ctx context.Context, p *project.Project) error

	DeleteProject(ctx context.Context, id string) error

	// ListProjects applies Status, ComplianceFramework, CreatedAfter,
	// CreatedBefore and Limit, newest first. TextSearch and JiraStatus are
	// not evaluated.
	ListProjects(ctx context.Context, f project.ListFilter) ([]project.Project, error)

	// AllProjects returns every stored project.
	AllProjects(ctx context.Context) ([]project.Project, error)

	Ping(ctx context.Context) error
	Close() error
}
