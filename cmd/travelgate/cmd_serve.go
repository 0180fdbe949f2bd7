package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/travelgate/exception"
	"github.com/yairfalse/travelgate/internal/daemon"
	itelemetry "github.com/yairfalse/travelgate/internal/telemetry"
	"github.com/yairfalse/travelgate/telemetry"
	"github.com/yairfalse/travelgate/wal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the escalation sweeper with a metrics endpoint",
	Long: `Run travelgate as a long-lived service.

The sweeper escalates exception requests on every sweep interval and
compacts the exception journal on every compact interval. The HTTP
listener serves:

  /metrics    Prometheus metrics
  /healthz    liveness
  /readyz     readiness, failing when sweeps stop running; journal
              maintenance issues are reported without failing it
  /dashboard  exception counts as JSON
  /journal    journal statistics and health as JSON

SIGINT or SIGTERM stops every component.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	provider, err := itelemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.InitMetrics(provider.Meter())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	a, err := newApp(ctx, cfg, withTelemetry(metrics, provider.Tracer()))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	daemonMetrics, err := daemon.NewDaemonMetricsFromMeter(provider.Meter())
	if err != nil {
		return fmt.Errorf("init daemon metrics: %w", err)
	}
	sweeper, err := daemon.NewDaemon(a.router, daemon.Config{
		SweepInterval:   cfg.Exceptions.SweepInterval,
		CompactInterval: cfg.Exceptions.CompactInterval,
	}, daemonMetrics)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Metrics.Addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(provider.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", newReadyzHandler(sweeper.Health, a.journal.GetHealth))
	mux.HandleFunc("/dashboard", newDashboardHandler(a.router))
	mux.HandleFunc("/journal", newJournalHandler(a.journal))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var g run.Group
	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	{
		sweepCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return sweeper.Start(sweepCtx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(func() error {
			log.Info().Str("addr", listener.Addr().String()).Msg("starting metrics server")
			return server.Serve(listener)
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		})
	}

	log.Info().
		Dur("sweep_interval", cfg.Exceptions.SweepInterval).
		Dur("compact_interval", cfg.Exceptions.CompactInterval).
		Str("snapshots", a.backend.Name()).
		Msg("travelgate starting")

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Info().Str("signal", sig.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func newReadyzHandler(sweeper func() daemon.HealthStatus, journal func() wal.HealthStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		status := sweeper()
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("sweeper " + status.Status))
			return
		}

		body := "ok"
		// rotation and cleanup happen on their own; report, don't fail
		if health := journal(); !health.Healthy {
			body += "\njournal: " + strings.Join(health.Issues, "; ")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}
}

// journalReport is the /journal response
type journalReport struct {
	Health wal.HealthStatus `json:"health"`
	Stats  wal.Stats        `json:"stats"`
}

func newJournalHandler(journal *wal.WAL) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(journalReport{
			Health: journal.GetHealth(),
			Stats:  journal.GetStats(),
		})
	}
}

func newDashboardHandler(router *exception.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(router.Dashboard())
	}
}
