// Package service implements business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Strob0t/CaseForge/internal/adapter/otel"
	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/logger"
	"github.com/Strob0t/CaseForge/internal/port/cache"
	"github.com/Strob0t/CaseForge/internal/port/database"
	"github.com/Strob0t/CaseForge/internal/port/messagequeue"
)

// DefaultListLimit caps ListProjects when the caller gives no limit.
const DefaultListLimit = 50

// HierarchyService owns every read and write of project documents. Writes
// are read-modify-write of the whole document guarded by the store's
// version check; a conflicting write is re-applied on a fresh copy.
type HierarchyService struct {
	store    database.Store
	cfg      config.Storage
	queue    messagequeue.Queue
	cache    cache.Cache
	statsTTL time.Duration
	// statsGen counts invalidations; a rollup computed across one is not
	// cached.
	statsGen atomic.Uint64
	metrics  *otel.Metrics
	notifier Notifier
	now      func() time.Time
}

// Notifier receives every published event in-process, independent of the
// queue. The WebSocket hub implements it.
type Notifier interface {
	Notify(ctx context.Context, subject string, data []byte)
}

// NewHierarchyService creates a HierarchyService.
func NewHierarchyService(store database.Store, cfg config.Storage) *HierarchyService {
	return &HierarchyService{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetQueue sets the queue hierarchy events are published to.
func (s *HierarchyService) SetQueue(q messagequeue.Queue) { s.queue = q }

// SetCache enables caching of statistics rollups for ttl.
func (s *HierarchyService) SetCache(c cache.Cache, ttl time.Duration) {
	s.cache = c
	s.statsTTL = ttl
}

// SetNotifier sets the in-process event listener.
func (s *HierarchyService) SetNotifier(n Notifier) { s.notifier = n }

// SetMetrics sets the metric instruments.
func (s *HierarchyService) SetMetrics(m *otel.Metrics) { s.metrics = m }

// --- Projects ---

// CreateProject validates req and stores a new, empty project.
func (s *HierarchyService) CreateProject(ctx context.Context, req project.CreateRequest) (*project.Project, error) {
	if err := project.ValidateCreateRequest(req); err != nil {
		return nil, err
	}
	now := s.now()
	p := &project.Project{
		Name:                 req.Name,
		Description:          req.Description,
		Status:               project.StatusActive,
		ComplianceFrameworks: nonNil(req.ComplianceFrameworks),
		Epics:                []project.Epic{},
		JiraProjectKey:       req.JiraProjectKey,
		JiraProjectURL:       req.JiraProjectURL,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
		CreatedBy:            req.CreatedBy,
	}

	ctx, span := otel.StartOperationSpan(ctx, "create_project", "")
	var err error
	defer func() { otel.End(span, err) }()

	// IDs are random, so a clash with a stored project is retried with a
	// fresh one rather than reported.
	for range 3 {
		p.ID = project.GenerateID(project.PrefixProject)
		err = s.withTimeout(ctx, func(ctx context.Context) error { return s.store.CreateProject(ctx, p) })
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
	}
	s.metrics.RecordMutation(ctx, "project", err)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	slog.InfoContext(ctx, "project created", "project_id", p.ID, "name", p.Name)
	s.changed(ctx, messagequeue.SubjectProjectCreated, p.ID, p.ID)
	return p, nil
}

// GetProject returns the full project document.
func (s *HierarchyService) GetProject(ctx context.Context, id string) (*project.Project, error) {
	return s.get(ctx, id)
}

// UpdateProject merges the non-nil top-level fields of req. A non-nil
// Epics replaces the whole collection after each epic is validated.
func (s *HierarchyService) UpdateProject(ctx context.Context, id string, req project.UpdateRequest) (*project.Project, error) {
	if err := project.ValidateUpdateRequest(req); err != nil {
		return nil, err
	}

	var updated *project.Project
	_, err := s.mutate(ctx, id, "project", func(p *project.Project, now time.Time) (string, error) {
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Status != nil {
			p.Status = *req.Status
		}
		if req.ComplianceFrameworks != nil {
			p.ComplianceFrameworks = req.ComplianceFrameworks
		}
		if req.CoverageSummary != nil {
			p.CoverageSummary = *req.CoverageSummary
		}
		if req.JiraProjectKey != nil {
			p.JiraProjectKey = *req.JiraProjectKey
		}
		if req.JiraProjectURL != nil {
			p.JiraProjectURL = *req.JiraProjectURL
		}
		if req.Epics != nil {
			epics := make([]project.Epic, len(*req.Epics))
			copy(epics, *req.Epics)
			if err := project.PrepareEpics(epics, now); err != nil {
				return "", err
			}
			p.Epics = epics
		}
		p.UpdatedAt = now
		updated = p
		return p.ID, nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx, messagequeue.SubjectProjectUpdated, id, id)
	return updated, nil
}

// DeleteProject removes a project and its whole tree.
func (s *HierarchyService) DeleteProject(ctx context.Context, id string) error {
	err := s.withTimeout(ctx, func(ctx context.Context) error { return s.store.DeleteProject(ctx, id) })
	s.metrics.RecordMutation(ctx, "project_delete", err)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "project deleted", "project_id", id)
	s.changed(ctx, messagequeue.SubjectProjectDeleted, id, id)
	return nil
}

// ListProjects applies the store-side filters, then the case-insensitive
// text filter on name and description, newest first.
func (s *HierarchyService) ListProjects(ctx context.Context, f project.ListFilter) ([]project.Summary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if f.Status != "" {
		status, err := project.ParseProjectStatus(string(f.Status))
		if err != nil {
			return nil, err
		}
		f.Status = status
	}
	if f.JiraStatus != "" {
		status, err := project.ParseJiraStatus(string(f.JiraStatus))
		if err != nil {
			return nil, err
		}
		f.JiraStatus = status
	}
	// Text and Jira filters run after the store, so the store must not truncate.
	if f.TextSearch != "" || f.JiraStatus != "" {
		f.Limit = 0
	} else {
		f.Limit = limit
	}

	projects, err := withTimeoutValue(ctx, s, func(ctx context.Context) ([]project.Project, error) {
		return s.store.ListProjects(ctx, f)
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	out := make([]project.Summary, 0, min(len(projects), limit))
	for i := range projects {
		if f.TextSearch != "" && !projects[i].MatchesText(f.TextSearch) {
			continue
		}
		if f.JiraStatus != "" && !projects[i].HasEpicInStatus(f.JiraStatus) {
			continue
		}
		out = append(out, projects[i].Summarize())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- Hierarchy mutations ---

// AddEpic appends e to the project, or replaces the epic with the same ID.
func (s *HierarchyService) AddEpic(ctx context.Context, projectID string, e project.Epic) (string, error) {
	id, err := s.mutate(ctx, projectID, "epic", func(p *project.Project, now time.Time) (string, error) {
		return project.AddEpic(p, e, now)
	})
	if err == nil {
		s.changed(ctx, messagequeue.SubjectEpicAdded, projectID, id)
	}
	return id, err
}

// AddFeature appends f under the epic.
func (s *HierarchyService) AddFeature(ctx context.Context, projectID, epicID string, f project.Feature) (string, error) {
	id, err := s.mutate(ctx, projectID, "feature", func(p *project.Project, now time.Time) (string, error) {
		return project.AddFeature(p, epicID, f, now)
	})
	if err == nil {
		s.changed(ctx, messagequeue.SubjectFeatureAdded, projectID, id)
	}
	return id, err
}

// AddUseCase appends u under the feature.
func (s *HierarchyService) AddUseCase(ctx context.Context, projectID, epicID, featureID string, u project.UseCase) (string, error) {
	id, err := s.mutate(ctx, projectID, "use_case", func(p *project.Project, now time.Time) (string, error) {
		return project.AddUseCase(p, epicID, featureID, u, now)
	})
	if err == nil {
		s.changed(ctx, messagequeue.SubjectUseCaseAdded, projectID, id)
	}
	return id, err
}

// AddTestCase appends tc under the use case.
func (s *HierarchyService) AddTestCase(ctx context.Context, projectID, epicID, featureID, useCaseID string, tc project.TestCase) (string, error) {
	id, err := s.mutate(ctx, projectID, "test_case", func(p *project.Project, now time.Time) (string, error) {
		return project.AddTestCase(p, epicID, featureID, useCaseID, tc, now)
	})
	if err == nil {
		s.changed(ctx, messagequeue.SubjectTestCaseAdded, projectID, id)
	}
	return id, err
}

// UpdateJiraStatus records tracker sync state on the entity at pt.
func (s *HierarchyService) UpdateJiraStatus(ctx context.Context, projectID string, pt project.Path, u project.SyncUpdate) error {
	_, err := s.mutate(ctx, projectID, "sync_state", func(p *project.Project, now time.Time) (string, error) {
		if err := project.SetSyncState(p, pt, u, now); err != nil {
			return "", err
		}
		return pt.Target(), nil
	})
	if err == nil {
		s.changed(ctx, messagequeue.SubjectSyncUpdated, projectID, pt.Target())
	}
	return err
}

// UpdateEpicJiraStatus records tracker sync state on an epic.
func (s *HierarchyService) UpdateEpicJiraStatus(ctx context.Context, projectID, epicID string, status project.JiraStatus, issueKey, pushedBy string) error {
	return s.UpdateJiraStatus(ctx, projectID, project.Path{EpicID: epicID}, project.SyncUpdate{
		Status:   status,
		IssueKey: issueKey,
		PushedBy: pushedBy,
	})
}

// --- Reads ---

// ProjectStatistics returns the rollup for one project.
func (s *HierarchyService) ProjectStatistics(ctx context.Context, id string) (*project.Statistics, error) {
	key := cache.ProjectStatisticsKey(id)
	var st project.Statistics
	if s.cached(ctx, key, &st) {
		return &st, nil
	}
	gen := s.statsGen.Load()
	p, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	st = project.ComputeStatistics(p)
	s.remember(ctx, key, st, gen)
	return &st, nil
}

// OverallStatistics returns totals across every stored project.
func (s *HierarchyService) OverallStatistics(ctx context.Context) (*project.OverallStatistics, error) {
	var st project.OverallStatistics
	if s.cached(ctx, cache.KeyOverallStatistics, &st) {
		return &st, nil
	}
	gen := s.statsGen.Load()
	projects, err := withTimeoutValue(ctx, s, s.store.AllProjects)
	if err != nil {
		return nil, fmt.Errorf("overall statistics: %w", err)
	}
	st = project.ComputeOverallStatistics(projects)
	s.remember(ctx, cache.KeyOverallStatistics, st, gen)
	return &st, nil
}

// Epics returns the epics of a project.
func (s *HierarchyService) Epics(ctx context.Context, projectID string) ([]project.Epic, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.Epics, nil
}

// Features returns the features of an epic.
func (s *HierarchyService) Features(ctx context.Context, projectID, epicID string) ([]project.Feature, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return project.FeaturesOf(p, epicID)
}

// UseCases returns the use cases of a feature.
func (s *HierarchyService) UseCases(ctx context.Context, projectID, epicID, featureID string) ([]project.UseCase, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return project.UseCasesOf(p, epicID, featureID)
}

// TestCases returns the test cases of a use case.
func (s *HierarchyService) TestCases(ctx context.Context, projectID, epicID, featureID, useCaseID string) ([]project.TestCase, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return project.TestCasesOf(p, epicID, featureID, useCaseID)
}

// SearchTestCases finds test cases whose title, ID or description contains
// term, in tree order.
func (s *HierarchyService) SearchTestCases(ctx context.Context, projectID, term string) ([]project.SearchHit, error) {
	p, err := s.get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return project.SearchTestCases(p, term)
}

// Ping checks the store.
func (s *HierarchyService) Ping(ctx context.Context) error {
	return s.withTimeout(ctx, s.store.Ping)
}

// --- internals ---

// applyFunc mutates p in place and returns the ID of the affected entity.
type applyFunc func(p *project.Project, now time.Time) (string, error)

// mutate runs get → apply → compare-and-swap update. A version conflict
// re-reads and re-applies up to cfg.MaxCASRetries times. When apply fails
// nothing is written.
func (s *HierarchyService) mutate(ctx context.Context, projectID, kind string, apply applyFunc) (id string, err error) {
	ctx = logger.WithProjectID(ctx, projectID)
	ctx, span := otel.StartOperationSpan(ctx, "mutate_"+kind, projectID)
	defer func() {
		s.metrics.RecordMutation(ctx, kind, err)
		otel.End(span, err)
	}()

	attempts := max(s.cfg.MaxCASRetries, 1)
	for attempt := 1; ; attempt++ {
		p, err := s.get(ctx, projectID)
		if err != nil {
			return "", err
		}
		id, err = apply(p, s.now())
		if err != nil {
			return "", err
		}
		err = s.withTimeout(ctx, func(ctx context.Context) error { return s.store.UpdateProject(ctx, p) })
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return "", err
		}
		if attempt >= attempts {
			return "", fmt.Errorf("%s on project %s after %d attempts: %w", kind, projectID, attempt, err)
		}
		s.metrics.RecordCASRetry(ctx, kind)
		slog.DebugContext(ctx, "version conflict, re-applying", "kind", kind, "attempt", attempt)
	}
}

func (s *HierarchyService) get(ctx context.Context, id string) (*project.Project, error) {
	return withTimeoutValue(ctx, s, func(ctx context.Context) (*project.Project, error) {
		return s.store.GetProject(ctx, id)
	})
}

// withTimeout bounds a store call by cfg.Timeout. Running out of time is
// reported as domain.ErrUnavailable so callers may retry.
func (s *HierarchyService) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	_, err := withTimeoutValue(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func withTimeoutValue[T any](ctx context.Context, s *HierarchyService, fn func(context.Context) (T, error)) (T, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrUnavailable) {
		err = fmt.Errorf("store call exceeded %s: %w: %w", s.cfg.Timeout, domain.ErrUnavailable, err)
	}
	return v, err
}

// changed drops cached rollups for projectID and publishes an event.
func (s *HierarchyService) changed(ctx context.Context, subject, projectID, entityID string) {
	if s.cache != nil {
		s.statsGen.Add(1)
		_ = s.cache.Delete(ctx, cache.ProjectStatisticsKey(projectID))
		_ = s.cache.Delete(ctx, cache.KeyOverallStatistics)
	}
	s.publish(ctx, subject, messagequeue.HierarchyEventPayload{
		ProjectID: projectID,
		EntityID:  entityID,
		Kind:      subject[len("hierarchy."):],
		At:        s.now(),
		RequestID: logger.RequestID(ctx),
	})
}

func (s *HierarchyService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil && s.notifier == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal event", "subject", subject, "error", err)
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, subject, data)
	}
	if s.queue == nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.WarnContext(ctx, "publish event", "subject", subject, "error", err)
	}
}

func (s *HierarchyService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// remember caches v unless an invalidation happened since gen was read. The
// second check covers an invalidation racing the Set.
func (s *HierarchyService) remember(ctx context.Context, key string, v any, gen uint64) {
	if s.cache == nil || s.statsGen.Load() != gen {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.statsTTL); err != nil {
		slog.DebugContext(ctx, "cache set failed", "key", key, "error", err)
		return
	}
	if s.statsGen.Load() != gen {
		_ = s.cache.Delete(ctx, key)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
