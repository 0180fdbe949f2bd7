package main

import (
	"github.com/spf13/cobra"

	"github.com/yairfalse/travelgate/wal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect and prune the exception journal",
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print file, sequence and entry counts of the exception journal",
	Long: `Print statistics for the exception journal directory.

Stats only read the journal files, so they work next to a running
travelgate serve.`,
	Args: cobra.NoArgs,
	RunE: runJournalStats,
}

var journalCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove journal files past retention",
	Long: `Remove exception journal files older than journal_retention_days.

Cleanup takes the journal directory lock and fails while another
travelgate process has the journal open; a running service prunes its
own journal on every compaction.`,
	Args: cobra.NoArgs,
	RunE: runJournalCleanup,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalStatsCmd, journalCleanupCmd)
}

func runJournalStats(cmd *cobra.Command, _ []string) error {
	stats := wal.GetStatsFromDir(cfg.Exceptions.JournalDir, journalConfig(cfg.Exceptions))
	return writeJSON(cmd, stats)
}

func runJournalCleanup(cmd *cobra.Command, _ []string) error {
	stats, err := wal.CleanupWithStats(cfg.Exceptions.JournalDir, journalConfig(cfg.Exceptions))
	if err != nil {
		return err
	}
	return writeJSON(cmd, stats)
}
