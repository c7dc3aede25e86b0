package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/pipeline"
	"github.com/derickschaefer/energyratio/internal/render"
	"github.com/derickschaefer/energyratio/internal/transform"
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Import, inspect and export cases in the local database",
	Long: `A case is a named, time-ordered set of records for one operating condition,
for example a baseline period and a control period.

Input columns: time (optional), ws, wd, pow_ref and pow_000, pow_001, ...
where the number is the turbine index. At least wd, one of ws or pow_ref, and
one turbine column are required. Missing cells may be empty, NA, NaN or null.`,
}

// ─── case import ──────────────────────────────────────────────────────────────

var caseImportWrap bool

var caseImportCmd = &cobra.Command{
	Use:   "import <NAME> <FILE|->",
	Short: "Import a CSV or JSONL file as a case",
	Example: `  energyratio case import baseline baseline.csv
  energyratio case import control control.jsonl
  energyratio case export baseline | energyratio transform scale --turbine 0 --factor 1.1 | energyratio case import scaled -`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		records, warnings, err := pipeline.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if caseImportWrap {
			records = transform.WrapDirections(records)
		}
		source := "stdin"
		if path != "-" {
			source = filepath.Base(path)
		}
		info, err := deps.Store.PutCase(model.Case{Name: name, Records: records}, source)
		if err != nil {
			return err
		}
		result := buildResult(model.KindCaseInfo, "case import "+name, []model.CaseInfo{info}, 1)
		result.Warnings = warnings
		return emit(deps, result)
	},
}

// ─── case list ────────────────────────────────────────────────────────────────

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored cases",
	Example: `  energyratio case list
  energyratio case list --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		infos, err := deps.Store.ListCases()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(infos) == 0 && resolveFormat(deps.Config.Format) == render.FormatTable {
			fmt.Fprintln(cmd.OutOrStdout(), "No cases in local database.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: energyratio case import <name> <file>   or   energyratio synth")
			return nil
		}
		return emit(deps, buildResult(model.KindCaseInfo, "case list", infos, len(infos)))
	},
}

// ─── case show ────────────────────────────────────────────────────────────────

var caseShowCmd = &cobra.Command{
	Use:   "show <NAME>",
	Short: "Describe every column of a stored case",
	Example: `  energyratio case show baseline
  energyratio case show control --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		c, err := loadCase(deps, args[0])
		if err != nil {
			return err
		}
		sums := summarizeRecords(c.Records)
		result := buildResult(model.KindSummary, "case show "+c.Name, sums, len(c.Records))
		return emit(deps, finish(result, start))
	},
}

// ─── case export ──────────────────────────────────────────────────────────────

var caseExportCmd = &cobra.Command{
	Use:   "export <NAME>",
	Short: "Write a stored case as JSONL (default) or CSV",
	Example: `  energyratio case export baseline > baseline.jsonl
  energyratio case export baseline --format csv --out baseline.csv`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		c, err := loadCase(deps, args[0])
		if err != nil {
			return err
		}
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer closeFn()
		return writeRecords(w, c.Records, globalFlags.Format)
	},
}

// ─── case delete ──────────────────────────────────────────────────────────────

var caseDeleteCmd = &cobra.Command{
	Use:     "delete <NAME>",
	Short:   "Remove a case from the local database",
	Example: `  energyratio case delete control`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		existed, err := deps.Store.DeleteCase(args[0])
		if err != nil {
			return fmt.Errorf("deleting case %s: %w", args[0], err)
		}
		if !existed {
			return fmt.Errorf("no case named %q", args[0])
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted case %q\n", args[0])
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(caseCmd)
	caseCmd.AddCommand(caseImportCmd)
	caseCmd.AddCommand(caseListCmd)
	caseCmd.AddCommand(caseShowCmd)
	caseCmd.AddCommand(caseExportCmd)
	caseCmd.AddCommand(caseDeleteCmd)

	caseImportCmd.Flags().BoolVar(&caseImportWrap, "wrap", false, "wrap wind directions into [0, 360) before storing")
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// writeRecords writes records as CSV when format is csv, JSONL otherwise.
func writeRecords(w io.Writer, records []model.Record, format string) error {
	if format == render.FormatCSV {
		return pipeline.WriteCSV(w, records)
	}
	return pipeline.WriteJSONL(w, records)
}

// stdinIsPipe reports whether stdin carries data rather than a terminal.
func stdinIsPipe() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}
