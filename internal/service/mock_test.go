package service

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/port/cache"
	"github.com/Strob0t/CaseForge/internal/port/database"
	"github.com/Strob0t/CaseForge/internal/port/messagequeue"
	"github.com/Strob0t/CaseForge/internal/port/pipeline"
	"github.com/Strob0t/CaseForge/internal/port/tracker"
)

// Compile-time interface checks.
var (
	_ database.Store     = (*mockStore)(nil)
	_ messagequeue.Queue = (*mockQueue)(nil)
	_ cache.Cache        = (*mockCache)(nil)
	_ pipeline.Runner    = (*mockRunner)(nil)
	_ tracker.Tracker    = (*mockTracker)(nil)
)

// mockStore is an in-memory database.Store. Documents are deep-copied on the
// way in and out, like a real store.
type mockStore struct {
	mu       sync.Mutex
	projects map[string][]byte
	versions map[string]int
	updates  int

	// Error hooks; set these to inject failures.
	getErr    error
	createErr error
	updateErr error
	listErr   error

	// beforeUpdate runs ahead of the version check; tests use it to
	// simulate a concurrent writer.
	beforeUpdate func(m *mockStore, p *project.Project)
	// afterGet runs once a read has taken its snapshot, outside the lock.
	afterGet func()
}

func newMockStore() *mockStore {
	return &mockStore{projects: make(map[string][]byte), versions: make(map[string]int)}
}

func (m *mockStore) CreateProject(_ context.Context, p *project.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.projects[p.ID]; ok {
		return domain.ErrConflict
	}
	m.put(p)
	return nil
}

func (m *mockStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	m.mu.Lock()
	if m.getErr != nil {
		m.mu.Unlock()
		return nil, m.getErr
	}
	p, err := m.load(id)
	hook := m.afterGet
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return p, err
}

func (m *mockStore) UpdateProject(_ context.Context, p *project.Project) error {
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook(m, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	v, ok := m.versions[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if v != p.Version {
		return domain.ErrConflict
	}
	p.Version++
	m.put(p)
	m.updates++
	return nil
}

func (m *mockStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.projects, id)
	delete(m.versions, id)
	return nil
}

func (m *mockStore) ListProjects(ctx context.Context, f project.ListFilter) ([]project.Project, error) {
	all, err := m.AllProjects(ctx)
	if err != nil {
		return nil, err
	}
	var out []project.Project
	for i := range all {
		p := all[i]
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.ComplianceFramework != "" && !slices.Contains(p.ComplianceFrameworks, f.ComplianceFramework) {
			continue
		}
		if f.CreatedAfter != nil && !p.CreatedAt.After(*f.CreatedAfter) {
			continue
		}
		if f.CreatedBefore != nil && !p.CreatedAt.Before(*f.CreatedBefore) {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b project.Project) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *mockStore) AllProjects(_ context.Context) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]project.Project, 0, len(m.projects))
	for id := range m.projects {
		p, _ := m.load(id)
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockStore) Ping(context.Context) error { return m.getErr }
func (m *mockStore) Close() error               { return nil }

// bump rewrites a stored project through fn and advances its version,
// standing in for another writer.
func (m *mockStore) bump(id string, fn func(p *project.Project)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.load(id)
	if err != nil {
		panic(err)
	}
	fn(p)
	p.Version++
	m.put(p)
}

// put and load must be called with m.mu held.
func (m *mockStore) put(p *project.Project) {
	data, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	m.projects[p.ID] = data
	m.versions[p.ID] = p.Version
}

func (m *mockStore) load(id string) (*project.Project, error) {
	data, ok := m.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	var p project.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

type published struct {
	subject string
	data    []byte
}

// mockQueue records published messages.
type mockQueue struct {
	mu       sync.Mutex
	messages []published
	handlers map[string]messagequeue.Handler
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, published{subject: subject, data: data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {}, nil
}

func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.messages))
	for i, m := range q.messages {
		out[i] = m.subject
	}
	return out
}

// mockCache is a map-backed cache.Cache that ignores TTLs.
type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// mockRunner answers queries from a scripted list of responses.
type mockRunner struct {
	mu       sync.Mutex
	requests []pipeline.Request
	answers  []string
	errs     []error
}

func (r *mockRunner) Query(_ context.Context, req pipeline.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := len(r.requests)
	r.requests = append(r.requests, req)
	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(r.answers) {
		return r.answers[i], nil
	}
	return r.answers[len(r.answers)-1], nil
}

// mockTracker hands out sequential issue keys.
type mockTracker struct {
	issues []tracker.Issue
	err    error
}

func (t *mockTracker) Name() string { return "mock" }

func (t *mockTracker) CreateIssue(_ context.Context, issue tracker.Issue) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	t.issues = append(t.issues, issue)
	return issue.ProjectKey + "-" + string(rune('0'+len(t.issues))), nil
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testStorage() config.Storage {
	return config.Storage{Timeout: time.Second, MaxCASRetries: 5}
}

// newTestHierarchy returns a service over a fresh mockStore with a fixed
// clock.
func newTestHierarchy() (*HierarchyService, *mockStore) {
	st := newMockStore()
	svc := NewHierarchyService(st, testStorage())
	svc.now = func() time.Time { return t0 }
	return svc, st
}

func testCase(title string) project.TestCase {
	return project.TestCase{Title: title, TestSteps: []string{"step"}, ExpectedResult: "ok"}
}
