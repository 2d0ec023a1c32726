package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/CaseForge/internal/adapter/otel"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/domain/project"
	"github.com/Strob0t/CaseForge/internal/logger"
	"github.com/Strob0t/CaseForge/internal/port/messagequeue"
)

// Importer folds externally produced fragments into existing projects one
// epic at a time. Every level of each epic is validated and ID-assigned
// before insertion; an invalid epic is reported and skipped.
type Importer struct {
	hierarchy *HierarchyService
}

// NewImporter creates an Importer writing through h.
func NewImporter(h *HierarchyService) *Importer {
	return &Importer{hierarchy: h}
}

// ImportRaw decodes a JSON or YAML fragment and imports it.
func (im *Importer) ImportRaw(ctx context.Context, projectID string, data []byte) (*project.ImportResult, error) {
	f, err := project.DecodeFragment(data)
	if err != nil {
		return nil, err
	}
	return im.Import(ctx, projectID, f)
}

// Import inserts every epic of f into the project. Per-epic failures are
// collected in the result. A missing project or a store outage aborts the
// import; the partial result so far is returned with the error.
func (im *Importer) Import(ctx context.Context, projectID string, f *project.Fragment) (res *project.ImportResult, err error) {
	start := time.Now()
	ctx = logger.WithProjectID(ctx, projectID)
	ctx, span := otel.StartImportSpan(ctx, projectID, len(f.Epics))
	res = &project.ImportResult{Errors: []project.ImportError{}, ProcessedIDs: []string{}}
	defer func() {
		im.hierarchy.metrics.RecordImport(ctx, res.SuccessCount, res.ErrorCount, time.Since(start).Seconds())
		otel.End(span, err)
	}()

	if _, err = im.hierarchy.get(ctx, projectID); err != nil {
		return res, err
	}

	for i, raw := range f.Epics {
		key := project.EpicKey(raw, i)
		id, epicErr := im.importEpic(ctx, projectID, raw, i)
		if epicErr == nil {
			res.SuccessCount++
			res.ProcessedIDs = append(res.ProcessedIDs, id)
			continue
		}
		if errors.Is(epicErr, domain.ErrUnavailable) || errors.Is(epicErr, domain.ErrNotFound) {
			err = fmt.Errorf("import %s aborted at %s: %w", projectID, key, epicErr)
			return res, err
		}
		res.ErrorCount++
		res.Errors = append(res.Errors, project.ImportError{Key: key, Error: epicErr.Error()})
		slog.WarnContext(ctx, "epic import failed", "key", key, "error", epicErr)
	}

	if f.CoverageSummary != nil {
		if _, err = im.hierarchy.UpdateProject(ctx, projectID, project.UpdateRequest{CoverageSummary: f.CoverageSummary}); err != nil {
			err = fmt.Errorf("import %s: coverage summary: %w", projectID, err)
			return res, err
		}
	}

	slog.InfoContext(ctx, "import completed",
		"success_count", res.SuccessCount, "error_count", res.ErrorCount)
	im.hierarchy.publish(ctx, messagequeue.SubjectImportDone, messagequeue.ImportCompletedPayload{
		ProjectID:    projectID,
		SuccessCount: res.SuccessCount,
		ErrorCount:   res.ErrorCount,
		ProcessedIDs: res.ProcessedIDs,
		At:           im.hierarchy.now(),
	})
	return res, nil
}

// importEpic validates the whole epic under its fragment path, so errors
// name the offending node, then inserts it.
func (im *Importer) importEpic(ctx context.Context, projectID string, raw []byte, index int) (string, error) {
	e, err := project.DecodeEpic(raw)
	if err != nil {
		return "", err
	}
	if err := project.PrepareEpic(&e, fmt.Sprintf("epics[%d]", index), im.hierarchy.now()); err != nil {
		return "", err
	}
	return im.hierarchy.AddEpic(ctx, projectID, e)
}
