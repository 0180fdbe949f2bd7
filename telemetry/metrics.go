package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the compliance engine instruments
type Metrics struct {
	// Counters
	Evaluations        metric.Int64Counter
	RuleFailures       metric.Int64Counter
	SnapshotsAppended  metric.Int64Counter
	SnapshotsRejected  metric.Int64Counter
	ChainVerifications metric.Int64Counter
	Escalations        metric.Int64Counter
	Decisions          metric.Int64Counter

	// Gauges
	OpenRequests metric.Int64Gauge

	// Histograms
	EvaluationDuration metric.Float64Histogram
	SweepDuration      metric.Float64Histogram
}

// InitMetrics initializes all instruments on meter
func InitMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	if err := m.initCounters(meter); err != nil {
		return nil, err
	}

	if err := m.initGauges(meter); err != nil {
		return nil, err
	}

	if err := m.initHistograms(meter); err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing. Components use it
// when no meter is wired.
func NoopMetrics() *Metrics {
	m, _ := InitMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *Metrics) initCounters(meter metric.Meter) error {
	var err error

	m.Evaluations, err = meter.Int64Counter(
		"travelgate.evaluations.total",
		metric.WithDescription("Total number of ruleset evaluations"),
		metric.WithUnit("evaluations"),
	)
	if err != nil {
		return err
	}

	m.RuleFailures, err = meter.Int64Counter(
		"travelgate.rule.failures.total",
		metric.WithDescription("Total number of failed rule results"),
		metric.WithUnit("results"),
	)
	if err != nil {
		return err
	}

	m.SnapshotsAppended, err = meter.Int64Counter(
		"travelgate.snapshots.appended.total",
		metric.WithDescription("Total number of validation snapshots appended"),
		metric.WithUnit("snapshots"),
	)
	if err != nil {
		return err
	}

	m.SnapshotsRejected, err = meter.Int64Counter(
		"travelgate.snapshots.rejected.total",
		metric.WithDescription("Total number of snapshot appends refused"),
		metric.WithUnit("snapshots"),
	)
	if err != nil {
		return err
	}

	m.ChainVerifications, err = meter.Int64Counter(
		"travelgate.chain.verifications.total",
		metric.WithDescription("Total number of snapshot chain verifications"),
		metric.WithUnit("verifications"),
	)
	if err != nil {
		return err
	}

	m.Escalations, err = meter.Int64Counter(
		"travelgate.exceptions.escalations.total",
		metric.WithDescription("Total number of exception escalations"),
		metric.WithUnit("escalations"),
	)
	if err != nil {
		return err
	}

	m.Decisions, err = meter.Int64Counter(
		"travelgate.exceptions.decisions.total",
		metric.WithDescription("Total number of exception decisions recorded"),
		metric.WithUnit("decisions"),
	)
	return err
}

func (m *Metrics) initGauges(meter metric.Meter) error {
	var err error

	m.OpenRequests, err = meter.Int64Gauge(
		"travelgate.exceptions.open",
		metric.WithDescription("Current number of open exception requests"),
		metric.WithUnit("requests"),
	)
	return err
}

func (m *Metrics) initHistograms(meter metric.Meter) error {
	var err error

	m.EvaluationDuration, err = meter.Float64Histogram(
		"travelgate.evaluation.duration.ms",
		metric.WithDescription("Time taken to evaluate a ruleset"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.SweepDuration, err = meter.Float64Histogram(
		"travelgate.sweep.duration.ms",
		metric.WithDescription("Time taken by an escalation sweep"),
		metric.WithUnit("ms"),
	)
	return err
}

// RecordEvaluation records one ruleset evaluation and its failed results
func (m *Metrics) RecordEvaluation(
	ctx context.Context,
	catalog string,
	blocked bool,
	failures map[string]string,
	durationMs float64,
) {
	m.Evaluations.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("catalog", catalog),
			attribute.Bool("blocked", blocked),
		)),
	)
	for ruleID, severity := range failures {
		m.RuleFailures.Add(ctx, 1,
			metric.WithAttributeSet(attribute.NewSet(
				attribute.String("catalog", catalog),
				attribute.String("rule_id", ruleID),
				attribute.String("severity", severity),
			)),
		)
	}
	m.EvaluationDuration.Record(ctx, durationMs,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("catalog", catalog),
		)),
	)
}

// RecordSnapshotAppended records a committed snapshot
func (m *Metrics) RecordSnapshotAppended(ctx context.Context, backend string) {
	m.SnapshotsAppended.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("backend", backend),
		)),
	)
}

// RecordSnapshotRejected records a refused append
func (m *Metrics) RecordSnapshotRejected(ctx context.Context, backend, reason string) {
	m.SnapshotsRejected.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("backend", backend),
			attribute.String("reason", reason),
		)),
	)
}

// RecordChainVerification records a chain verification outcome
func (m *Metrics) RecordChainVerification(ctx context.Context, intact bool) {
	m.ChainVerifications.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.Bool("intact", intact),
		)),
	)
}

// RecordEscalation records an escalation between levels
func (m *Metrics) RecordEscalation(ctx context.Context, from, to string) {
	m.Escalations.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("from_level", from),
			attribute.String("to_level", to),
		)),
	)
}

// RecordDecision records an approver decision
func (m *Metrics) RecordDecision(ctx context.Context, level, outcome string) {
	m.Decisions.Add(ctx, 1,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("level", level),
			attribute.String("outcome", outcome),
		)),
	)
}

// RecordOpenRequests records the open request count per level
func (m *Metrics) RecordOpenRequests(ctx context.Context, level string, count int64) {
	m.OpenRequests.Record(ctx, count,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.String("level", level),
		)),
	)
}

// RecordSweepDuration records how long an escalation sweep took
func (m *Metrics) RecordSweepDuration(ctx context.Context, escalated int, durationMs float64) {
	m.SweepDuration.Record(ctx, durationMs,
		metric.WithAttributeSet(attribute.NewSet(
			attribute.Bool("escalated", escalated > 0),
		)),
	)
}
