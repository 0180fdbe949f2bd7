package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/travelgate/internal/config"
	"github.com/yairfalse/travelgate/telemetry"
)

var (
	version    = "0.1.0"
	configPath string
	debug      bool
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "travelgate",
		Short: "Travel and expense compliance engine",
		Long: `Travelgate - travel and expense compliance engine

Evaluates trip plans, trip details and expense reports against versioned
policy rules, records every decision in a tamper-evident snapshot chain
and routes policy exceptions to the approval level they need.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Travelgate {{.Version}} - travel and expense compliance engine
`)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// setup loads the config and switches logging to the console
func setup(cmd *cobra.Command, _ []string) error {
	loaded := config.Default()
	if configPath != "" {
		var err error
		if loaded, err = config.Load(configPath); err != nil {
			return err
		}
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = loaded

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}
	log.Logger = log.Output(console)
	telemetry.SetOutput(console)
	return nil
}
