package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/travelgate/policy"
	"github.com/yairfalse/travelgate/snapshot"
	"github.com/yairfalse/travelgate/types"
)

var (
	evaluateCapture  bool
	evaluateDiagnose bool
)

// evaluation is the printed result of one evaluate run
type evaluation struct {
	PolicyVersion string               `json:"policy_version"`
	Results       []types.PolicyResult `json:"results"`
	Diagnostics   []policy.Diagnostic  `json:"diagnostics,omitempty"`
	SnapshotKey   string               `json:"snapshot_key,omitempty"`
	ChainHash     string               `json:"chain_hash,omitempty"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <lite|validator|expense> <file|->",
	Short: "Evaluate a trip or expense report against the active rules",
	Long: `Evaluate a JSON document against one rule catalog.

  lite       trip details (fares, hotels, per diem, expenses)
  validator  a trip plan (advance booking, budget, duration)
  expense    an expense report (auto-approve, flag or reject per item)

With --capture the trip input and its results are appended to the trip's
snapshot chain.`,
	Example: `  travelgate evaluate lite trip.json
  travelgate evaluate validator plan.json --capture
  cat report.json | travelgate evaluate expense -`,
	Args: cobra.ExactArgs(2),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().BoolVar(&evaluateCapture, "capture", false, "Append the evaluation to the trip's snapshot chain")
	evaluateCmd.Flags().BoolVar(&evaluateDiagnose, "diagnose", false, "List policy-lite rules skipped for missing inputs")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	switch args[0] {
	case "lite":
		var trip types.TripContext
		if err := readJSON(cmd, args[1], &trip); err != nil {
			return err
		}
		return evaluateWith(cmd, a.store, a.lite, liteRuleset, trip.TripID, trip)
	case "validator":
		var plan types.TripPlan
		if err := readJSON(cmd, args[1], &plan); err != nil {
			return err
		}
		return evaluateWith(cmd, a.store, a.validator, validatorRuleset, plan.TripID, plan)
	case "expense":
		var report types.ExpenseReport
		if err := readJSON(cmd, args[1], &report); err != nil {
			return err
		}
		decision, err := a.expense.EvaluateReport(report)
		if err != nil {
			return err
		}
		return writeJSON(cmd, decision)
	}
	return fmt.Errorf("unknown catalog %q (want lite, validator or expense)", args[0])
}

func evaluateWith[S any](cmd *cobra.Command, store *snapshot.Store, registry *policy.Registry[S], id, tripID string, subject S) error {
	ctx := cmd.Context()
	results, version, err := registry.EvaluateContext(ctx, id, subject)
	if err != nil {
		return err
	}
	out := evaluation{PolicyVersion: version, Results: results}

	if evaluateDiagnose {
		if rs, ok := registry.Get(id); ok {
			out.Diagnostics = rs.DiagnoseMissingInputs(subject)
		}
	}

	if evaluateCapture {
		if tripID == "" {
			return fmt.Errorf("--capture needs a trip_id in the input")
		}
		rs, _ := registry.Get(id)
		snap, err := snapshot.Capture(ctx, store, tripID, subject, results, rs)
		if err != nil {
			return err
		}
		out.SnapshotKey = snap.Key
		out.ChainHash = snap.ChainHash
	}
	return writeJSON(cmd, out)
}
