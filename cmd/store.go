package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/render"
	"github.com/derickschaefer/energyratio/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and manage the local database",
	Long: `Commands for inspecting and clearing the local bbolt database.

The store is an intentional data store, not a transparent cache: cases and
saved results persist until you explicitly delete or clear them.`,
}

// ─── store stats ──────────────────────────────────────────────────────────────

var storeStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  energyratio store stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		if resolveFormat(deps.Config.Format) == render.FormatTable {
			fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", deps.Store.Path())
			printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ROWS", "SIZE"}, func(add func(...string)) {
				for _, s := range stats {
					add(s.Name, fmt.Sprintf("%d", s.Count), humanBytes(s.Bytes))
				}
			})
			return nil
		}

		data := model.TableData{Headers: []string{"BUCKET", "ROWS", "BYTES"}}
		for _, s := range stats {
			data.Rows = append(data.Rows, []string{s.Name, fmt.Sprintf("%d", s.Count), fmt.Sprintf("%d", s.Bytes)})
		}
		return emit(deps, buildResult(model.KindTable, "store stats", data, len(stats)))
	},
}

// ─── store clear ──────────────────────────────────────────────────────────────

var (
	storeClearAll    bool
	storeClearBucket string
)

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the local store",
	Long: `Delete entries from one or all buckets.

Note: bbolt does not shrink the database file automatically after clearing.
Free pages are reused internally on the next write. To reclaim disk space,
run 'energyratio store compact' after clearing.`,
	Example: `  energyratio store clear --all
  energyratio store clear --bucket results`,
	RunE: func(cmd *cobra.Command, args []string) error {
		buckets := strings.Join(store.AllBuckets, ", ")
		if !storeClearAll && storeClearBucket == "" {
			return fmt.Errorf("specify --all or --bucket <n>\n\nBuckets: %s", buckets)
		}
		if storeClearBucket != "" && !slices.Contains(store.AllBuckets, storeClearBucket) {
			return fmt.Errorf("unknown bucket %q\n\nBuckets: %s", storeClearBucket, buckets)
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if storeClearAll {
			if err := deps.Store.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all buckets")
			fmt.Fprintln(cmd.OutOrStdout(), "  Run 'energyratio store compact' to reclaim disk space.")
			return nil
		}

		targets := []string{storeClearBucket}
		if storeClearBucket == "cases" || storeClearBucket == "case_meta" {
			// Case records and their summaries are only meaningful together.
			targets = []string{"cases", "case_meta"}
		}
		for _, b := range targets {
			if err := deps.Store.ClearBucket(b); err != nil {
				return fmt.Errorf("clearing bucket %q: %w", b, err)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared bucket %q\n", storeClearBucket)
		fmt.Fprintln(cmd.OutOrStdout(), "  Run 'energyratio store compact' to reclaim disk space.")
		return nil
	},
}

// ─── store compact ────────────────────────────────────────────────────────────

var storeCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim freed disk space",
	Long: `Compact rewrites the entire bbolt database to a new file, recovering space
freed by prior 'store clear' and 'case delete' operations.

All live data is copied to a temporary file first, then the original is
replaced. The database remains fully usable after compaction completes.`,
	Example: `  energyratio store compact`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Compacting %s ...\n", deps.Store.Path())

		before, after, err := deps.Store.Compact()
		if err != nil {
			return fmt.Errorf("compaction failed: %w", err)
		}

		saved := before - after
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Compaction complete\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  Before: %s\n", humanBytes(before))
		fmt.Fprintf(cmd.OutOrStdout(), "  After:  %s\n", humanBytes(after))
		if saved > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "  Saved:  %s\n", humanBytes(saved))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "  No space reclaimed (database was already compact).")
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeClearCmd)
	storeCmd.AddCommand(storeCompactCmd)

	storeClearCmd.Flags().BoolVar(&storeClearAll, "all", false, "clear all buckets")
	storeClearCmd.Flags().StringVar(&storeClearBucket, "bucket", "", "clear a specific bucket: cases|results")
}
