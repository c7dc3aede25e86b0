package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/model"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze case records (reads CSV or JSONL from stdin)",
	Long: `Analyze operators read records from stdin and print results.

Examples:
  energyratio case export baseline | energyratio analyze summary
  energyratio case export baseline | energyratio transform filter --ws 6:12 | energyratio analyze summary`,
}

// ─── analyze summary ─────────────────────────────────────────────────────────

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Descriptive statistics per column: count, missing, mean, std, percentiles",
	Example: `  energyratio case export baseline | energyratio analyze summary
  cat control.csv | energyratio analyze summary --format md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		records, err := readStdinRecords()
		if err != nil {
			return err
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		result := buildResult(model.KindSummary, "analyze summary", summarizeRecords(records), len(records))
		return emit(deps, finish(result, start))
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.AddCommand(analyzeSummaryCmd)
}
