package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	sweeps        metric.Int64Counter
	sweepDuration metric.Float64Histogram
	escalations   metric.Int64Counter
	compactions   metric.Int64Counter
}

// NewDaemonMetrics creates daemon metrics on the global meter provider
func NewDaemonMetrics() (*DaemonMetrics, error) {
	return NewDaemonMetricsFromMeter(otel.Meter("travelgate.daemon"))
}

// NewDaemonMetricsFromMeter creates daemon metrics on meter
func NewDaemonMetricsFromMeter(meter metric.Meter) (*DaemonMetrics, error) {
	sweeps, err := meter.Int64Counter(
		"travelgate.daemon.sweeps",
		metric.WithDescription("Number of escalation sweeps"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, err
	}

	sweepDuration, err := meter.Float64Histogram(
		"travelgate.daemon.sweep.duration",
		metric.WithDescription("Duration of escalation sweeps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	escalations, err := meter.Int64Counter(
		"travelgate.daemon.sweep.escalations",
		metric.WithDescription("Requests escalated by sweeps"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	compactions, err := meter.Int64Counter(
		"travelgate.daemon.compactions",
		metric.WithDescription("Number of journal compactions"),
		metric.WithUnit("{compaction}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		sweeps:        sweeps,
		sweepDuration: sweepDuration,
		escalations:   escalations,
		compactions:   compactions,
	}, nil
}

// RecordSweep records a sweep run and the requests it escalated
func (m *DaemonMetrics) RecordSweep(ctx context.Context, status string, escalated int) {
	m.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if escalated > 0 {
		m.escalations.Add(ctx, int64(escalated))
	}
}

// RecordSweepDuration records sweep duration
func (m *DaemonMetrics) RecordSweepDuration(ctx context.Context, durationSeconds float64, status string) {
	m.sweepDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// RecordCompaction records a journal compaction
func (m *DaemonMetrics) RecordCompaction(ctx context.Context, status string) {
	m.compactions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
