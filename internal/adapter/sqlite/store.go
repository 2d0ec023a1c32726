package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
)

// timeLayout sorts lexically in the same order as the instants it encodes.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements database.Store on SQLite. Each project is one row whose
// doc column holds the whole tree as JSON.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database. Use Open to create one.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateProject(ctx context.Context, p *project.Project) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project %s: %w", p.ID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, status, created_at, updated_at, version, doc)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, string(p.Status), stamp(p.CreatedAt), stamp(p.UpdatedAt), p.Version, string(doc))
	if err != nil {
		return classify(err, "create project %s", p.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("create project %s: %w", p.ID, domain.ErrConflict)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT version, doc FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
		}
		return nil, classify(err, "get project %s", id)
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects
		 SET name = ?, status = ?, updated_at = ?, version = version + 1, doc = ?
		 WHERE id = ? AND version = ?`,
		p.Name, string(p.Status), stamp(p.UpdatedAt), string(doc), p.ID, p.Version)
	if err != nil {
		return classify(err, "update project %s", p.ID)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		p.Version = next.Version
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, p.ID).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("update project %s: %w", p.ID, domain.ErrNotFound)
	case err != nil:
		return classify(err, "update project %s", p.ID)
	default:
		return fmt.Errorf("update project %s (version %d): %w", p.ID, p.Version, domain.ErrConflict)
	}
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return classify(err, "delete project %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListProjects(ctx context.Context, f project.ListFilter) ([]project.Project, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ComplianceFramework != "" {
		where = append(where,
			"EXISTS (SELECT 1 FROM json_each(doc, '$.compliance_frameworks') WHERE json_each.value = ?)")
		args = append(args, f.ComplianceFramework)
	}
	if f.CreatedAfter != nil {
		where = append(where, "created_at > ?")
		args = append(args, stamp(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at < ?")
		args = append(args, stamp(*f.CreatedBefore))
	}

	q := `SELECT version, doc FROM projects`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return s.query(ctx, "list projects", q, args...)
}

func (s *Store) AllProjects(ctx context.Context) ([]project.Project, error) {
	return s.query(ctx, "all projects", `SELECT version, doc FROM projects ORDER BY created_at DESC, id`)
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classify(err, "ping")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err, "%s", op)
	}
	defer func() { _ = rows.Close() }()

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

type scannable interface {
	Scan(dest ...any) error
}

// scanProject decodes a (version, doc) row. The version column is
// authoritative over the copy embedded in doc.
func scanProject(row scannable) (*project.Project, error) {
	var (
		version int
		doc     string
	)
	if err := row.Scan(&version, &doc); err != nil {
		return nil, err
	}
	var p project.Project
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decode project document: %w", err)
	}
	p.Version = version
	return &p, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// classify maps driver failures that callers may retry to ErrUnavailable.
func classify(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) || isBusy(err) {
		return fmt.Errorf("%s: %w: %w", msg, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isBusy(err error) bool {
	s := err.Error()
	return strings.Contains(s, "SQLITE_BUSY") || strings.Contains(s, "database is locked")
}
