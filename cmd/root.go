// Package cmd implements the energyratio CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/app"
	"github.com/derickschaefer/energyratio/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	Format  string
	Out     string
	DBPath  string
	Quiet   bool
	Verbose bool
	Debug   bool
}

// rootCmd is the base command. Running `energyratio` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "energyratio",
	Short: "energyratio — wind farm energy ratio analysis with block bootstrap uncertainty",
	Long: `energyratio compares the energy produced by a wind farm under two operating
conditions (a reference case and a test case) after binning both by wind
direction and wind speed or reference power.

Uncertainty is estimated with a moving-block bootstrap: each case is cut into
contiguous time blocks which are resampled to build many alternative tables.

Quick start:
  energyratio synth                          # store a synthetic baseline and control
  energyratio ratio range baseline control   # overall ratio with a 90% interval
  energyratio ratio wd baseline control      # ratio per wind direction bin`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute is the entry point called by main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// setupLogging routes slog to stderr: Debug with --debug, Warn otherwise.
func setupLogging() {
	level := slog.LevelWarn
	if globalFlags.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(globalFlags.DBPath)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}

	return app.New(cfg), nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"database path (overrides env ENERGYRATIO_DB_PATH and config.json)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log table builds and bootstrap progress to stderr")
}
