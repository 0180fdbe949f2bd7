// Package daemon runs the exception router's background work: the
// escalation sweep and periodic journal compaction.
package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yairfalse/travelgate/exception"
	"github.com/yairfalse/travelgate/telemetry"
)

// Router is the part of the exception router the daemon drives
type Router interface {
	Sweep(ctx context.Context) (exception.SweepResult, error)
	Compact(ctx context.Context) (int, error)
}

// Config holds daemon configuration
type Config struct {
	SweepInterval time.Duration
	// CompactInterval of zero disables compaction
	CompactInterval time.Duration
}

// Daemon runs the sweep loop
type Daemon struct {
	router          Router
	sweepInterval   time.Duration
	compactInterval time.Duration
	metrics         *DaemonMetrics
	logger          *telemetry.Logger
	startTime       time.Time
	lastSweep       atomic.Int64
	sweepCount      atomic.Int64
	compactCount    atomic.Int64
}

// NewDaemon creates a new daemon instance
func NewDaemon(router Router, config Config, metrics *DaemonMetrics) (*Daemon, error) {
	if router == nil {
		return nil, errors.New("daemon: router is required")
	}
	if config.SweepInterval <= 0 {
		return nil, errors.New("daemon: sweep interval must be positive")
	}
	if metrics == nil {
		var err error
		if metrics, err = NewDaemonMetrics(); err != nil {
			return nil, err
		}
	}
	return &Daemon{
		router:          router,
		sweepInterval:   config.SweepInterval,
		compactInterval: config.CompactInterval,
		metrics:         metrics,
		logger:          telemetry.NewLogger("sweeper"),
		startTime:       time.Now(),
	}, nil
}

// Start sweeps once immediately, then on every tick until ctx is done
func (d *Daemon) Start(ctx context.Context) error {
	sweep := time.NewTicker(d.sweepInterval)
	defer sweep.Stop()

	var compact <-chan time.Time
	if d.compactInterval > 0 {
		ticker := time.NewTicker(d.compactInterval)
		defer ticker.Stop()
		compact = ticker.C
	}

	d.runSweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep.C:
			d.runSweep(ctx)
		case <-compact:
			d.runCompaction(ctx)
		}
	}
}

// runSweep never stops the loop; failed escalations retry next tick
func (d *Daemon) runSweep(ctx context.Context) {
	start := time.Now()
	result, err := d.router.Sweep(ctx)
	status := "success"
	if err != nil {
		status = "error"
		d.logger.WithContext(ctx).Error().Err(err).
			Int("escalated", len(result.Escalated)).
			Msg("escalation sweep finished with errors")
	} else if len(result.Escalated) > 0 {
		d.logger.WithContext(ctx).Info().
			Int("scanned", result.Scanned).
			Strs("escalated", result.Escalated).
			Msg("escalation sweep")
	}

	d.sweepCount.Add(1)
	d.lastSweep.Store(time.Now().Unix())
	d.metrics.RecordSweep(ctx, status, len(result.Escalated))
	d.metrics.RecordSweepDuration(ctx, time.Since(start).Seconds(), status)
}

func (d *Daemon) runCompaction(ctx context.Context) {
	n, err := d.router.Compact(ctx)
	if err != nil {
		d.metrics.RecordCompaction(ctx, "error")
		d.logger.WithContext(ctx).Error().Err(err).Msg("journal compaction failed")
		return
	}
	d.compactCount.Add(1)
	d.metrics.RecordCompaction(ctx, "success")
	d.logger.WithContext(ctx).Info().Int("files_removed", n).Msg("journal compacted")
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	status := "healthy"
	last := d.lastSweep.Load()
	if last == 0 || time.Since(time.Unix(last, 0)) > 3*d.sweepInterval {
		status = "degraded"
	}
	return HealthStatus{
		Status:    status,
		Uptime:    int64(time.Since(d.startTime).Seconds()),
		LastSweep: last,
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string `json:"status"`
	Uptime    int64  `json:"uptime_seconds"`
	LastSweep int64  `json:"last_sweep_unix"`
}

// SweepCount returns total sweeps run
func (d *Daemon) SweepCount() int64 {
	return d.sweepCount.Load()
}

// CompactionCount returns successful compactions
func (d *Daemon) CompactionCount() int64 {
	return d.compactCount.Load()
}
