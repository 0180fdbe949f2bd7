package telemetry

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	outputMu sync.RWMutex
	output   io.Writer = os.Stdout
)

// SetOutput redirects loggers created afterwards. The CLI uses it to switch
// to a console writer before building components.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	output = w
}

func currentOutput() io.Writer {
	outputMu.RLock()
	defer outputMu.RUnlock()
	return output
}

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a component logger writing to the shared output
func NewLogger(service string) *Logger {
	return NewLoggerTo(currentOutput(), service)
}

// NewLoggerTo creates a component logger writing to w
func NewLoggerTo(w io.Writer, service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// LogSpanStart logs the start of a span with attributes
func (l *Logger) LogSpanStart(ctx context.Context, spanName string, attrs ...attribute.KeyValue) {
	logger := l.WithContext(ctx)

	event := logger.Debug().Str("span_name", spanName)
	for _, attr := range attrs {
		event = addAttributeToEvent(event, attr)
	}
	event.Msg("span started")
}

// LogSpanEnd logs the end of a span with results
func (l *Logger) LogSpanEnd(ctx context.Context, spanName string, err error) {
	logger := l.WithContext(ctx)

	if err != nil {
		logger.Error().
			Err(err).
			Str("span_name", spanName).
			Msg("span failed")
	} else {
		logger.Debug().
			Str("span_name", spanName).
			Msg("span completed")
	}
}

func addAttributeToEvent(event *zerolog.Event, attr attribute.KeyValue) *zerolog.Event {
	key := string(attr.Key)

	switch attr.Value.Type() {
	case attribute.STRING:
		return event.Str(key, attr.Value.AsString())
	case attribute.INT64:
		return event.Int64(key, attr.Value.AsInt64())
	case attribute.FLOAT64:
		return event.Float64(key, attr.Value.AsFloat64())
	case attribute.BOOL:
		return event.Bool(key, attr.Value.AsBool())
	default:
		return event.Str(key, attr.Value.Emit())
	}
}

// Convenience methods for snapshot and exception operations

func (l *Logger) LogSnapshotAppended(ctx context.Context, tripID, key, chainHash string, size int) {
	l.WithContext(ctx).Info().
		Str("trip_id", tripID).
		Str("key", key).
		Str("chain_hash", chainHash).
		Int("size_bytes", size).
		Str("operation", "snapshot_append").
		Msg("snapshot appended")
}

func (l *Logger) LogChainVerified(ctx context.Context, tripID string, length int) {
	l.WithContext(ctx).Info().
		Str("trip_id", tripID).
		Int("chain_length", length).
		Str("operation", "verify_chain").
		Msg("snapshot chain verified")
}

// LogChainViolation records a tamper finding. It is a security incident.
func (l *Logger) LogChainViolation(ctx context.Context, tripID, key string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("trip_id", tripID).
		Str("key", key).
		Str("operation", "verify_chain").
		Bool("security_incident", true).
		Msg("snapshot chain integrity violation")
}

func (l *Logger) LogEscalation(ctx context.Context, requestID, from, to string) {
	l.WithContext(ctx).Info().
		Str("request_id", requestID).
		Str("from_level", from).
		Str("to_level", to).
		Str("operation", "escalate").
		Msg("exception request escalated")
}

func (l *Logger) LogDecision(ctx context.Context, requestID, approverID, outcome string) {
	l.WithContext(ctx).Info().
		Str("request_id", requestID).
		Str("approver_id", approverID).
		Str("outcome", outcome).
		Str("operation", "decide").
		Msg("exception request decided")
}

func (l *Logger) LogStorageError(ctx context.Context, operation string, err error) {
	l.WithContext(ctx).Error().
		Err(err).
		Str("operation", operation).
		Msg("storage operation failed")
}
