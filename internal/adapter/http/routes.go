package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Put("/projects/{id}", h.UpdateProject)
		r.Delete("/projects/{id}", h.DeleteProject)

		// Reads
		r.Get("/projects/{id}/statistics", h.ProjectStatistics)
		r.Get("/projects/{id}/search", h.SearchTestCases)
		r.Get("/statistics", h.OverallStatistics)

		// Bulk import and generation
		r.Post("/projects/{id}/import", h.ImportFragment)
		r.Post("/projects/{id}/generate", h.Generate)
		r.Delete("/sessions/{sid}", h.EndSession)

		// Hierarchy (nested under projects)
		r.Route("/projects/{id}/epics", func(r chi.Router) {
			r.Get("/", h.ListEpics)
			r.Post("/", h.AddEpic)
			r.Route("/{eid}", func(r chi.Router) {
				r.Put("/jira-status", h.UpdateJiraStatus)
				r.Post("/push", h.PushEpic)
				r.Get("/features", h.ListFeatures)
				r.Post("/features", h.AddFeature)
				r.Route("/features/{fid}", func(r chi.Router) {
					r.Put("/jira-status", h.UpdateJiraStatus)
					r.Get("/use-cases", h.ListUseCases)
					r.Post("/use-cases", h.AddUseCase)
					r.Route("/use-cases/{uid}", func(r chi.Router) {
						r.Put("/jira-status", h.UpdateJiraStatus)
						r.Get("/test-cases", h.ListTestCases)
						r.Post("/test-cases", h.AddTestCase)
						r.Put("/test-cases/{tid}/jira-status", h.UpdateJiraStatus)
					})
				})
			})
		})

		// Tool surface
		r.Get("/tools", h.ListTools)
	})
}
