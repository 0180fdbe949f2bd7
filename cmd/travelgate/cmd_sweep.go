package main

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Escalate exception requests left undecided for 48 hours",
	Long: `Run one escalation sweep over the journaled exception requests.

Each due request moves up one approval level and its 48 hour window
restarts. Running the sweep again right away escalates nothing.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print exception counts by type, requestor, approver, status and policy version",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(dashboardCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	result, err := a.router.Sweep(ctx)
	if werr := writeJSON(cmd, result); werr != nil {
		return werr
	}
	return err
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	return writeJSON(cmd, a.router.Dashboard())
}
