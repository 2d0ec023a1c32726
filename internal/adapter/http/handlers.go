package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/service"
)

// Version is reported by GET /api/v1/ and /health.
var Version = "dev"

// Handlers holds the HTTP handler dependencies. Generation and Push are
// optional; their routes answer 503 when unset.
type Handlers struct {
	Hierarchy  *service.HierarchyService
	Importer   *service.Importer
	Generation *service.GenerationService
	Push       *service.PushService
	BodyLimit  int64
	Tools      []string // MCP tool names listed by GET /tools
}

func (h *Handlers) limit() int64 {
	if h.BodyLimit > 0 {
		return h.BodyLimit
	}
	return 1 << 20
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := project.ListFilter{
		Status:              project.ProjectStatus(q.Get("status")),
		ComplianceFramework: q.Get("compliance_framework"),
		TextSearch:          q.Get("q"),
		JiraStatus:          project.JiraStatus(q.Get("jira_status")),
	}
	if f.TextSearch == "" {
		f.TextSearch = q.Get("text_search")
	}
	var err error
	if f.CreatedAfter, err = parseTime(q.Get("created_after")); err != nil {
		writeError(w, http.StatusBadRequest, "created_after must be RFC 3339")
		return
	}
	if f.CreatedBefore, err = parseTime(q.Get("created_before")); err != nil {
		writeError(w, http.StatusBadRequest, "created_before must be RFC 3339")
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}

	items, err := h.Hierarchy.ListProjects(r.Context(), f)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	handleCreate(h.limit(), h.Hierarchy.CreateProject)(w, r)
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Hierarchy.GetProject)(w, r)
}

// UpdateProject handles PUT /api/v1/projects/{id}.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	handleUpdate(h.limit(), h.Hierarchy.UpdateProject)(w, r)
}

// DeleteProject handles DELETE /api/v1/projects/{id}.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Hierarchy.DeleteProject)(w, r)
}

// ---------------------------------------------------------------------------
// Hierarchy
// ---------------------------------------------------------------------------

// AddEpic handles POST /api/v1/projects/{id}/epics.
func (h *Handlers) AddEpic(w http.ResponseWriter, r *http.Request) {
	handleAdd(h.limit(), "epic_id", func(ctx context.Context, c chain, e project.Epic) (string, error) {
		return h.Hierarchy.AddEpic(ctx, c.ProjectID, e)
	})(w, r)
}

// AddFeature handles POST /api/v1/projects/{id}/epics/{eid}/features.
func (h *Handlers) AddFeature(w http.ResponseWriter, r *http.Request) {
	handleAdd(h.limit(), "feature_id", func(ctx context.Context, c chain, f project.Feature) (string, error) {
		return h.Hierarchy.AddFeature(ctx, c.ProjectID, c.EpicID, f)
	})(w, r)
}

// AddUseCase handles POST .../features/{fid}/use-cases.
func (h *Handlers) AddUseCase(w http.ResponseWriter, r *http.Request) {
	handleAdd(h.limit(), "use_case_id", func(ctx context.Context, c chain, u project.UseCase) (string, error) {
		return h.Hierarchy.AddUseCase(ctx, c.ProjectID, c.EpicID, c.FeatureID, u)
	})(w, r)
}

// AddTestCase handles POST .../use-cases/{uid}/test-cases.
func (h *Handlers) AddTestCase(w http.ResponseWriter, r *http.Request) {
	handleAdd(h.limit(), "test_case_id", func(ctx context.Context, c chain, tc project.TestCase) (string, error) {
		return h.Hierarchy.AddTestCase(ctx, c.ProjectID, c.EpicID, c.FeatureID, c.UseCaseID, tc)
	})(w, r)
}

// ListEpics handles GET /api/v1/projects/{id}/epics.
func (h *Handlers) ListEpics(w http.ResponseWriter, r *http.Request) {
	handleChildren(func(ctx context.Context, c chain) ([]project.Epic, error) {
		return h.Hierarchy.Epics(ctx, c.ProjectID)
	})(w, r)
}

// ListFeatures handles GET .../epics/{eid}/features.
func (h *Handlers) ListFeatures(w http.ResponseWriter, r *http.Request) {
	handleChildren(func(ctx context.Context, c chain) ([]project.Feature, error) {
		return h.Hierarchy.Features(ctx, c.ProjectID, c.EpicID)
	})(w, r)
}

// ListUseCases handles GET .../features/{fid}/use-cases.
func (h *Handlers) ListUseCases(w http.ResponseWriter, r *http.Request) {
	handleChildren(func(ctx context.Context, c chain) ([]project.UseCase, error) {
		return h.Hierarchy.UseCases(ctx, c.ProjectID, c.EpicID, c.FeatureID)
	})(w, r)
}

// ListTestCases handles GET .../use-cases/{uid}/test-cases.
func (h *Handlers) ListTestCases(w http.ResponseWriter, r *http.Request) {
	handleChildren(func(ctx context.Context, c chain) ([]project.TestCase, error) {
		return h.Hierarchy.TestCases(ctx, c.ProjectID, c.EpicID, c.FeatureID, c.UseCaseID)
	})(w, r)
}

// UpdateJiraStatus handles PUT .../jira-status at every level below the
// project. The target is the deepest ID in the URL.
func (h *Handlers) UpdateJiraStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := readJSON[project.SyncUpdate](w, r, h.limit())
	if !ok {
		return
	}
	if !requireField(w, string(u.Status), "status") {
		return
	}
	ctx, _ := projectContext(r)
	c := chainFrom(r)
	if err := h.Hierarchy.UpdateJiraStatus(ctx, c.ProjectID, c.Path, u); err != nil {
		writeDomainError(w, err, projectNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// ProjectStatistics handles GET /api/v1/projects/{id}/statistics.
func (h *Handlers) ProjectStatistics(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Hierarchy.ProjectStatistics)(w, r)
}

// OverallStatistics handles GET /api/v1/statistics.
func (h *Handlers) OverallStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.Hierarchy.OverallStatistics(r.Context())
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SearchTestCases handles GET /api/v1/projects/{id}/search?q=.
func (h *Handlers) SearchTestCases(w http.ResponseWriter, r *http.Request) {
	ctx, id := projectContext(r)
	hits, err := h.Hierarchy.SearchTestCases(ctx, id, r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err, projectNotFound)
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// ---------------------------------------------------------------------------
// Import, generation, push
// ---------------------------------------------------------------------------

// ImportFragment handles POST /api/v1/projects/{id}/import. The body is a
// JSON or YAML fragment. Per-epic failures are reported in the result.
func (h *Handlers) ImportFragment(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.limit()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return
	}
	ctx, id := projectContext(r)
	res, err := h.Importer.ImportRaw(ctx, id, data)
	if err != nil {
		if res != nil && res.SuccessCount+res.ErrorCount > 0 {
			writePartialError(w, err, projectNotFound, res)
		} else {
			writeDomainError(w, err, projectNotFound)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Generate handles POST /api/v1/projects/{id}/generate.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	if h.Generation == nil {
		writeError(w, http.StatusServiceUnavailable, "generation pipeline not configured")
		return
	}
	req, ok := readJSON[service.GenerateRequest](w, r, h.limit())
	if !ok {
		return
	}
	ctx, id := projectContext(r)
	res, err := h.Generation.Generate(ctx, id, req)
	if err != nil {
		if res != nil {
			writePartialError(w, err, projectNotFound, res)
		} else {
			writeDomainError(w, err, projectNotFound)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// EndSession handles DELETE /api/v1/sessions/{sid}.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	if h.Generation == nil || !h.Generation.EndSession(urlParam(r, "sid")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pushRequest struct {
	PushedBy string `json:"pushed_by"`
}

// PushEpic handles POST /api/v1/projects/{id}/epics/{eid}/push.
func (h *Handlers) PushEpic(w http.ResponseWriter, r *http.Request) {
	if h.Push == nil {
		writeError(w, http.StatusServiceUnavailable, "issue tracker not configured")
		return
	}
	var body pushRequest
	if r.ContentLength != 0 {
		var ok bool
		if body, ok = readJSON[pushRequest](w, r, h.limit()); !ok {
			return
		}
	}
	ctx, id := projectContext(r)
	res, err := h.Push.PushEpic(ctx, id, urlParam(r, "eid"), body.PushedBy)
	if err != nil {
		if status, _ := domainStatus(err, projectNotFound); status == http.StatusInternalServerError {
			// Unclassified tracker failure; the epic is already marked Failed.
			err = fmt.Errorf("%w: %w", domain.ErrUpstream, err)
		}
		writeDomainError(w, err, projectNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---------------------------------------------------------------------------
// Meta
// ---------------------------------------------------------------------------

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Hierarchy.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

// ListTools handles GET /api/v1/tools.
func (h *Handlers) ListTools(w http.ResponseWriter, _ *http.Request) {
	tools := h.Tools
	if tools == nil {
		tools = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
