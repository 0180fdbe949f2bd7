package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns the travelgate tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/yairfalse/travelgate")
}

// EvaluationSpan represents one ruleset evaluation
type EvaluationSpan struct {
	span trace.Span
}

// StartEvaluation starts a new evaluation span
func StartEvaluation(
	ctx context.Context,
	tracer trace.Tracer,
	catalog string,
	policyVersion string,
) (context.Context, *EvaluationSpan) {
	ctx, span := tracer.Start(ctx, "evaluate",
		trace.WithAttributes(
			attribute.String("catalog", catalog),
			attribute.String("policy.version", policyVersion),
		),
	)

	return ctx, &EvaluationSpan{span: span}
}

// Span exposes the underlying span for event recording
func (e *EvaluationSpan) Span() trace.Span {
	return e.span
}

// SetResultCounts sets result count attributes
func (e *EvaluationSpan) SetResultCounts(total, failed, blocking int64) {
	e.span.SetAttributes(
		attribute.Int64("results.total", total),
		attribute.Int64("results.failed", failed),
		attribute.Int64("results.blocking", blocking),
	)
}

// End ends the evaluation span
func (e *EvaluationSpan) End(err error) {
	if err != nil {
		e.span.RecordError(err)
		e.span.SetStatus(codes.Error, err.Error())
	}
	e.span.End()
}

// StartAppend starts a snapshot append span
func StartAppend(ctx context.Context, tracer trace.Tracer, tripID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "snapshot.append",
		trace.WithAttributes(
			attribute.String("trip.id", tripID),
		),
	)
}

// EndAppend ends the append span with the stored key and size
func EndAppend(span trace.Span, key string, size int, err error) {
	span.SetAttributes(
		attribute.String("snapshot.key", key),
		attribute.Int("snapshot.size_bytes", size),
	)
	endWithError(span, err)
}

// StartVerify starts a chain verification span
func StartVerify(ctx context.Context, tracer trace.Tracer, tripID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "snapshot.verify_chain",
		trace.WithAttributes(
			attribute.String("trip.id", tripID),
		),
	)
}

// EndVerify ends the verification span
func EndVerify(span trace.Span, length int, err error) {
	span.SetAttributes(
		attribute.Int("chain.length", length),
		attribute.Bool("chain.intact", err == nil),
	)
	endWithError(span, err)
}

// StartSweep starts an escalation sweep span
func StartSweep(ctx context.Context, tracer trace.Tracer) (context.Context, trace.Span) {
	return tracer.Start(ctx, "exceptions.sweep")
}

// EndSweep ends the sweep span with the escalation count
func EndSweep(span trace.Span, scanned, escalated int64) {
	span.SetAttributes(
		attribute.Int64("requests.scanned", scanned),
		attribute.Int64("requests.escalated", escalated),
	)
	span.End()
}

// StartDecision starts an approver decision span
func StartDecision(ctx context.Context, tracer trace.Tracer, requestID, approverID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "exceptions.decide",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("approver.id", approverID),
		),
	)
}

// EndDecision ends the decision span
func EndDecision(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("decision.outcome", outcome))
	endWithError(span, err)
}

// RecordError records an error in a span
func RecordError(span trace.Span, errorMessage string, errorType string) {
	span.SetAttributes(
		attribute.String("error.message", errorMessage),
		attribute.String("error.type", errorType),
		attribute.Bool("error.occurred", true),
	)
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
