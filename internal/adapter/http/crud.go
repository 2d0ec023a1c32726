package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/logger"
)

const projectNotFound = "project not found"

// chain is the ancestor chain addressed by a nested hierarchy URL:
// /projects/{id}/epics/{eid}/features/{fid}/use-cases/{uid}/test-cases/{tid}.
// Segments absent from the route are empty.
type chain struct {
	ProjectID string
	project.Path
}

func chainFrom(r *http.Request) chain {
	return chain{
		ProjectID: chi.URLParam(r, "id"),
		Path: project.Path{
			EpicID:     chi.URLParam(r, "eid"),
			FeatureID:  chi.URLParam(r, "fid"),
			UseCaseID:  chi.URLParam(r, "uid"),
			TestCaseID: chi.URLParam(r, "tid"),
		},
	}
}

// projectContext returns the request context tagged with the {id} project
// for log records, and the project ID itself.
func projectContext(r *http.Request) (context.Context, string) {
	id := chi.URLParam(r, "id")
	return logger.WithProjectID(r.Context(), id), id
}

// handleGet serves a project-scoped read.
func handleGet[T any](getFn func(ctx context.Context, projectID string) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, id := projectContext(r)
		item, err := getFn(ctx, id)
		if err != nil {
			writeDomainError(w, err, projectNotFound)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

// handleChildren serves the direct children of the node the URL's chain
// addresses, as a JSON array.
func handleChildren[T any](listFn func(ctx context.Context, c chain) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := projectContext(r)
		items, err := listFn(ctx, chainFrom(r))
		if err != nil {
			writeDomainError(w, err, projectNotFound)
			return
		}
		if items == nil {
			items = []T{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// handleCreate decodes Req and answers 201 with the created resource.
func handleCreate[Req any, Res any](bodyLimit int64, createFn func(ctx context.Context, req Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readJSON[Req](w, r, bodyLimit)
		if !ok {
			return
		}
		res, err := createFn(r.Context(), req)
		if err != nil {
			writeDomainError(w, err, "creation failed")
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

// handleUpdate decodes Req and applies it to the {id} project.
func handleUpdate[Req any, Res any](bodyLimit int64, updateFn func(ctx context.Context, projectID string, req Req) (*Res, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, id := projectContext(r)
		req, ok := readJSON[Req](w, r, bodyLimit)
		if !ok {
			return
		}
		res, err := updateFn(ctx, id, req)
		if err != nil {
			writeDomainError(w, err, projectNotFound)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleDelete removes the {id} project and answers 204.
func handleDelete(deleteFn func(ctx context.Context, projectID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, id := projectContext(r)
		if err := deleteFn(ctx, id); err != nil {
			writeDomainError(w, err, projectNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleAdd decodes a child entity and inserts it under the URL's chain.
// The response carries the project ID and the new child ID under idField.
func handleAdd[T any](bodyLimit int64, idField string, addFn func(ctx context.Context, c chain, item T) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, ok := readJSON[T](w, r, bodyLimit)
		if !ok {
			return
		}
		ctx, _ := projectContext(r)
		c := chainFrom(r)
		id, err := addFn(ctx, c, item)
		if err != nil {
			writeDomainError(w, err, projectNotFound)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{
			"project_id": c.ProjectID,
			idField:      id,
		})
	}
}
