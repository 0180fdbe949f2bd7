package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTELHook_Run(t *testing.T) {
	tests := []struct {
		name      string
		setupCtx  func() context.Context
		expectIDs bool
	}{
		{"no context", func() context.Context { return nil }, false},
		{"context without span", context.Background, false},
		{"context with valid span", createContextWithSpan, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			event := logger.Info().Ctx(tt.setupCtx())
			OTELHook{}.Run(event, zerolog.InfoLevel, "test message")
			event.Msg("test")

			if tt.expectIDs {
				assert.Contains(t, buf.String(), "trace_id")
				assert.Contains(t, buf.String(), "span_id")
			} else {
				assert.NotContains(t, buf.String(), "trace_id")
				assert.NotContains(t, buf.String(), "span_id")
			}
		})
	}
}

func createContextWithSpan() context.Context {
	provider := trace.NewTracerProvider(trace.WithSyncer(tracetest.NewInMemoryExporter()))
	ctx, _ := provider.Tracer("test").Start(context.Background(), "test-span")
	return ctx
}

func TestOTELHook_ErrorLevel(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	ctx, span := provider.Tracer("test").Start(context.Background(), "test-span")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	event := logger.Error().Ctx(ctx)
	OTELHook{}.Run(event, zerolog.ErrorLevel, "error message")
	event.Msg("test error")

	span.End()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "error message", spans[0].Status.Description)
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "test-service")

	logger.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test-service")
	assert.Contains(t, buf.String(), "test message")
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	prev := currentOutput()
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(prev) })

	NewLogger("redirected").Info().Msg("hello")
	assert.Contains(t, buf.String(), "redirected")
}

func TestLogger_LogSpanStart(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}

	logger.LogSpanStart(context.Background(), "evaluate",
		attribute.String("catalog", "policy-lite"),
		attribute.Int("rules", 10),
	)

	output := buf.String()
	assert.Contains(t, output, "span started")
	assert.Contains(t, output, "evaluate")
	assert.Contains(t, output, "policy-lite")
	assert.Contains(t, output, "10")
}

func TestLogger_LogSpanEnd(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}

	logger.LogSpanEnd(context.Background(), "evaluate", nil)
	assert.Contains(t, buf.String(), "span completed")
	assert.Contains(t, buf.String(), `level":"debug`)

	buf.Reset()
	logger.LogSpanEnd(context.Background(), "evaluate", assert.AnError)
	assert.Contains(t, buf.String(), "span failed")
	assert.Contains(t, buf.String(), `level":"error`)
}

func TestAddAttributeToEvent(t *testing.T) {
	tests := []struct {
		name     string
		attr     attribute.KeyValue
		expected string
	}{
		{"string attribute", attribute.String("key", "value"), `"key":"value"`},
		{"int64 attribute", attribute.Int64("count", 42), `"count":42`},
		{"float64 attribute", attribute.Float64("rate", 3.14), `"rate":3.14`},
		{"bool attribute", attribute.Bool("enabled", true), `"enabled":true`},
		{"slice attribute", attribute.StringSlice("tags", []string{"a", "b"}), `"tags":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			addAttributeToEvent(logger.Info(), tt.attr).Msg("test")
			assert.Contains(t, buf.String(), tt.expected)
		})
	}
}

func TestLogger_ConvenienceMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}
	ctx := context.Background()

	logger.LogSnapshotAppended(ctx, "T-1", "T-1/2026-01-01T00:00:00.000000000Z", "abc", 512)
	assert.Contains(t, buf.String(), "snapshot appended")
	assert.Contains(t, buf.String(), `"size_bytes":512`)

	buf.Reset()
	logger.LogChainVerified(ctx, "T-1", 3)
	assert.Contains(t, buf.String(), `"chain_length":3`)

	buf.Reset()
	logger.LogChainViolation(ctx, "T-1", "k", assert.AnError)
	assert.Contains(t, buf.String(), `"security_incident":true`)
	assert.Contains(t, buf.String(), `level":"error`)

	buf.Reset()
	logger.LogEscalation(ctx, "req-1", "manager", "director")
	assert.Contains(t, buf.String(), `"to_level":"director"`)

	buf.Reset()
	logger.LogDecision(ctx, "req-1", "alice", "approved")
	assert.Contains(t, buf.String(), `"approver_id":"alice"`)

	buf.Reset()
	logger.LogStorageError(ctx, "snapshot_append", assert.AnError)
	assert.Contains(t, buf.String(), "storage operation failed")
	assert.Contains(t, buf.String(), `level":"error`)
}
