package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
)

// Store implements database.Store using PostgreSQL. Each project is one row
// whose doc column holds the whole tree as JSONB.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project %s: %w", p.ID, err)
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, status, created_at, updated_at, version, doc)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, string(p.Status), p.CreatedAt, p.UpdatedAt, p.Version, doc)
	if err != nil {
		return classify(err, "create project %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create project %s: %w", p.ID, domain.ErrConflict)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT version, doc FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", id)
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	next := *p
	next.Version = p.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal project %s: %w", p.ID, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects
		 SET name = $1, status = $2, updated_at = $3, version = version + 1, doc = $4
		 WHERE id = $5 AND version = $6`,
		p.Name, string(p.Status), p.UpdatedAt, doc, p.ID, p.Version)
	if err != nil {
		return classify(err, "update project %s", p.ID)
	}
	if tag.RowsAffected() == 1 {
		p.Version = next.Version
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, p.ID).Scan(&exists)
	if err != nil {
		return classify(err, "update project %s", p.ID)
	}
	if !exists {
		return fmt.Errorf("update project %s: %w", p.ID, domain.ErrNotFound)
	}
	return fmt.Errorf("update project %s (version %d): %w", p.ID, p.Version, domain.ErrConflict)
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete project %s", id)
}

func (s *Store) ListProjects(ctx context.Context, f project.ListFilter) ([]project.Project, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		where = append(where, "status = "+arg(string(f.Status)))
	}
	if f.ComplianceFramework != "" {
		contains, err := json.Marshal(map[string][]string{"compliance_frameworks": {f.ComplianceFramework}})
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		where = append(where, "doc @> "+arg(contains)+"::jsonb")
	}
	if f.CreatedAfter != nil {
		where = append(where, "created_at > "+arg(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at < "+arg(*f.CreatedBefore))
	}

	q := `SELECT version, doc FROM projects`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		q += " LIMIT " + arg(f.Limit)
	}
	return s.query(ctx, "list projects", q, args...)
}

func (s *Store) AllProjects(ctx context.Context) ([]project.Project, error) {
	return s.query(ctx, "all projects", `SELECT version, doc FROM projects ORDER BY created_at DESC, id`)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify(err, "ping")
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]project.Project, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "%s", op)
	}
	defer rows.Close()

	projects := []project.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "%s", op)
	}
	return projects, nil
}

// scanProject decodes a (version, doc) row. The version column is
// authoritative over the copy embedded in doc.
func scanProject(row scannable) (*project.Project, error) {
	var (
		version int
		doc     []byte
	)
	if err := row.Scan(&version, &doc); err != nil {
		return nil, err
	}
	var p project.Project
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode project document: %w", err)
	}
	p.Version = version
	return &p, nil
}
