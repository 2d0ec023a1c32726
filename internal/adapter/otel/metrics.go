package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "caseforge"

// Metrics holds all CaseForge metric instruments.
type Metrics struct {
	Mutations      metric.Int64Counter
	CASRetries     metric.Int64Counter
	ImportedEpics  metric.Int64Counter
	ImportDuration metric.Float64Histogram
	TrackerPushes  metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Mutations, err = meter.Int64Counter("caseforge.hierarchy.mutations",
		metric.WithDescription("Hierarchy mutations by kind and outcome"))
	if err != nil {
		return nil, err
	}

	m.CASRetries, err = meter.Int64Counter("caseforge.store.cas_retries",
		metric.WithDescription("Document writes re-applied after a version conflict"))
	if err != nil {
		return nil, err
	}

	m.ImportedEpics, err = meter.Int64Counter("caseforge.import.epics",
		metric.WithDescription("Epics processed by bulk import by outcome"))
	if err != nil {
		return nil, err
	}

	m.ImportDuration, err = meter.Float64Histogram("caseforge.import.duration_seconds",
		metric.WithDescription("Bulk import duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.TrackerPushes, err = meter.Int64Counter("caseforge.tracker.pushes",
		metric.WithDescription("Issue tracker pushes by outcome"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordMutation counts one mutation of kind with its outcome.
func (m *Metrics) RecordMutation(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	m.Mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome(err)),
	))
}

// RecordCASRetry counts one re-applied write.
func (m *Metrics) RecordCASRetry(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.CASRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordImport records an import's per-epic outcomes and duration.
func (m *Metrics) RecordImport(ctx context.Context, succeeded, failed int, seconds float64) {
	if m == nil {
		return
	}
	m.ImportedEpics.Add(ctx, int64(succeeded), metric.WithAttributes(attribute.String("outcome", "ok")))
	m.ImportedEpics.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "error")))
	m.ImportDuration.Record(ctx, seconds)
}

// RecordPush counts one tracker push.
func (m *Metrics) RecordPush(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.TrackerPushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome(err))))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
