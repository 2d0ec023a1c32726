package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "caseforge"

// StartOperationSpan starts a span for a hierarchy service operation.
func StartOperationSpan(ctx context.Context, op, projectID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "hierarchy."+op,
		trace.WithAttributes(attribute.String("project.id", projectID)),
	)
}

// StartImportSpan starts a span for a bulk import.
func StartImportSpan(ctx context.Context, projectID string, epics int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "import",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.Int("import.epics", epics),
		),
	)
}

// StartClientSpan starts a span for an outbound call to a collaborator.
func StartClientSpan(ctx context.Context, peer, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, peer+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("peer.service", peer)),
	)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
