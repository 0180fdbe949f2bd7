package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newTestTracer() (trace.Tracer, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	return provider.Tracer("test"), exporter
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value
	}
	return out
}

func TestEvaluationSpan(t *testing.T) {
	tracer, exporter := newTestTracer()

	ctx, span := StartEvaluation(context.Background(), tracer, "policy-lite", "abc123")
	require.NotNil(t, ctx)
	span.SetResultCounts(10, 3, 2)
	RecordRuleFailedEvent(span.Span(), "policy-lite", "fare_comparison", "blocking", true, "too expensive")
	span.End(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "evaluate", spans[0].Name)

	attrs := attrMap(spans[0].Attributes)
	assert.Equal(t, "policy-lite", attrs["catalog"].AsString())
	assert.Equal(t, "abc123", attrs["policy.version"].AsString())
	assert.Equal(t, int64(3), attrs["results.failed"].AsInt64())
	assert.Equal(t, int64(2), attrs["results.blocking"].AsInt64())

	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "compliance.rule.failed", spans[0].Events[0].Name)
	assert.Equal(t, "fare_comparison", attrMap(spans[0].Events[0].Attributes)["rule.id"].AsString())
}

func TestEvaluationSpan_Error(t *testing.T) {
	tracer, exporter := newTestTracer()

	_, span := StartEvaluation(context.Background(), tracer, "validator", "v")
	span.End(assert.AnError)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestSnapshotSpans(t *testing.T) {
	tracer, exporter := newTestTracer()
	ctx := context.Background()

	_, appendSpan := StartAppend(ctx, tracer, "T-1")
	EndAppend(appendSpan, "T-1/key", 812, nil)

	_, verifySpan := StartVerify(ctx, tracer, "T-1")
	RecordChainViolationEvent(verifySpan, "T-1", "T-1/key", "chain hash mismatch")
	EndVerify(verifySpan, 1, assert.AnError)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "snapshot.append", spans[0].Name)
	assert.Equal(t, int64(812), attrMap(spans[0].Attributes)["snapshot.size_bytes"].AsInt64())

	assert.Equal(t, "snapshot.verify_chain", spans[1].Name)
	assert.False(t, attrMap(spans[1].Attributes)["chain.intact"].AsBool())
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	require.Len(t, spans[1].Events, 2) // violation event + recorded error
	assert.Equal(t, "compliance.chain.violation", spans[1].Events[0].Name)
}

func TestExceptionSpans(t *testing.T) {
	tracer, exporter := newTestTracer()
	ctx := context.Background()

	_, sweep := StartSweep(ctx, tracer)
	RecordEscalationEvent(sweep, "req-1", "manager", "director")
	EndSweep(sweep, 5, 1)

	_, decide := StartDecision(ctx, tracer, "req-1", "alice")
	RecordDecisionEvent(decide, "req-1", "alice", "approved", "")
	EndDecision(decide, "approved", nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, int64(1), attrMap(spans[0].Attributes)["requests.escalated"].AsInt64())
	assert.Equal(t, "compliance.exception.escalated", spans[0].Events[0].Name)

	decided := attrMap(spans[1].Events[0].Attributes)
	assert.Equal(t, "approved", decided["outcome"].AsString())
	_, hasNotes := decided["notes"]
	assert.False(t, hasNotes)
}

func TestRecordError(t *testing.T) {
	tracer, exporter := newTestTracer()

	_, span := tracer.Start(context.Background(), "op")
	RecordError(span, "boom", "storage")
	span.End()

	attrs := attrMap(exporter.GetSpans()[0].Attributes)
	assert.True(t, attrs["error.occurred"].AsBool())
	assert.Equal(t, "storage", attrs["error.type"].AsString())
}

func TestEvents_NilSpan(t *testing.T) {
	// Must not panic
	RecordRuleFailedEvent(nil, "c", "r", "error", true, "m")
	RecordChainViolationEvent(nil, "t", "k", "r")
	RecordEscalationEvent(nil, "r", "a", "b")
	RecordDecisionEvent(nil, "r", "a", "approved", "n")
}
