package cmd

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/pipeline"
	"github.com/derickschaefer/energyratio/internal/render"
	"github.com/derickschaefer/energyratio/internal/transform"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform case records (reads CSV or JSONL from stdin)",
	Long: `Transform operators read records from stdin and write JSONL to stdout.

Pipeline example:
  energyratio case export baseline | energyratio transform filter --wd 250:290 | energyratio case import west -
  energyratio case export baseline | energyratio transform scale --turbine 2 --factor 0.9 | energyratio analyze summary`,
}

// readStdinRecords reads records from stdin, refusing an interactive terminal.
func readStdinRecords() ([]model.Record, error) {
	if !stdinIsPipe() {
		return nil, fmt.Errorf("no input: pipe CSV or JSONL records into stdin")
	}
	records, warnings, err := pipeline.ReadStream(os.Stdin)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "⚠  %s\n", w)
	}
	return records, err
}

// ─── filter ───────────────────────────────────────────────────────────────────

var (
	transformFilterAfter  string
	transformFilterBefore string
	transformFilterWS     string
	transformFilterWD     string
	transformFilterRef    string
	transformFilterDrop   bool
)

var transformFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Keep records inside a time window and condition ranges",
	Example: `  energyratio case export baseline | energyratio transform filter --after 2024-03-01 --before 2024-06-01
  energyratio case export baseline | energyratio transform filter --ws 4:12 --wd 180:270 --drop-missing`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts transform.FilterOptions
		var err error
		if transformFilterAfter != "" {
			if opts.After, err = parseTime(transformFilterAfter); err != nil {
				return fmt.Errorf("--after: %w", err)
			}
		}
		if transformFilterBefore != "" {
			if opts.Before, err = parseTime(transformFilterBefore); err != nil {
				return fmt.Errorf("--before: %w", err)
			}
		}
		if opts.WindSpeed, err = parseRange(transformFilterWS, "--ws"); err != nil {
			return err
		}
		if opts.WindDirection, err = parseRange(transformFilterWD, "--wd"); err != nil {
			return err
		}
		if opts.RefPower, err = parseRange(transformFilterRef, "--pow-ref"); err != nil {
			return err
		}
		opts.DropMissing = transformFilterDrop

		records, err := readStdinRecords()
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, transform.Filter(records, opts))
	},
}

// ─── wrap ─────────────────────────────────────────────────────────────────────

var transformWrapCmd = &cobra.Command{
	Use:     "wrap",
	Short:   "Wrap wind directions into [0, 360)",
	Example: `  cat raw.csv | energyratio transform wrap`,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readStdinRecords()
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, transform.WrapDirections(records))
	},
}

// ─── scale ────────────────────────────────────────────────────────────────────

var (
	transformScaleTurbine int
	transformScaleFactor  float64
	transformScaleMin     float64
	transformScaleMax     float64
)

var transformScaleCmd = &cobra.Command{
	Use:   "scale",
	Short: "Multiply one turbine's power by a factor, optionally clipped",
	Example: `  energyratio case export baseline | energyratio transform scale --turbine 0 --factor 1.25 --min 0 --max 1000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := transform.ScaleOptions{
			Turbine: transformScaleTurbine,
			Factor:  transformScaleFactor,
			Min:     math.NaN(),
			Max:     math.NaN(),
		}
		if cmd.Flags().Changed("min") {
			opts.Min = transformScaleMin
		}
		if cmd.Flags().Changed("max") {
			opts.Max = transformScaleMax
		}
		records, err := readStdinRecords()
		if err != nil {
			return err
		}
		out, err := transform.ScaleTurbine(records, opts)
		if err != nil {
			return err
		}
		return writeTransformOutput(cmd, out)
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(transformCmd)
	transformCmd.AddCommand(transformFilterCmd)
	transformCmd.AddCommand(transformWrapCmd)
	transformCmd.AddCommand(transformScaleCmd)

	// filter flags
	ff := transformFilterCmd.Flags()
	ff.StringVar(&transformFilterAfter, "after", "", "keep records with time > this (RFC 3339 or YYYY-MM-DD)")
	ff.StringVar(&transformFilterBefore, "before", "", "keep records with time < this (RFC 3339 or YYYY-MM-DD)")
	ff.StringVar(&transformFilterWS, "ws", "", "keep wind speed in lo:hi")
	ff.StringVar(&transformFilterWD, "wd", "", "keep wind direction in lo:hi")
	ff.StringVar(&transformFilterRef, "pow-ref", "", "keep reference power in lo:hi")
	ff.BoolVar(&transformFilterDrop, "drop-missing", false, "drop records with any missing turbine power")

	// scale flags
	sf := transformScaleCmd.Flags()
	sf.IntVar(&transformScaleTurbine, "turbine", 0, "turbine index to scale")
	sf.Float64Var(&transformScaleFactor, "factor", 1, "power multiplier")
	sf.Float64Var(&transformScaleMin, "min", 0, "clip scaled power below at this value")
	sf.Float64Var(&transformScaleMax, "max", 0, "clip scaled power above at this value")
}

// ─── Output helper ────────────────────────────────────────────────────────────

// writeTransformOutput writes records to stdout in JSONL (pipeline) or as a
// column summary (terminal).
func writeTransformOutput(cmd *cobra.Command, records []model.Record) error {
	format := resolveFormat("")
	// If no explicit format and stdout is a terminal, summarise instead
	if globalFlags.Format == "" {
		if pipeline.IsTTY() {
			format = render.FormatTable
		} else {
			format = render.FormatJSONL
		}
	}

	w, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeFn()

	switch format {
	case render.FormatJSONL, render.FormatCSV:
		return writeRecords(w, records, format)
	default:
		result := buildResult(model.KindSummary, "transform "+cmd.Name(), summarizeRecords(records), len(records))
		return render.Render(w, result, format)
	}
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q, expected RFC 3339 or YYYY-MM-DD", s)
}
