package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/energyratio/internal/analyze"
	"github.com/derickschaefer/energyratio/internal/app"
	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/pipeline"
	"github.com/derickschaefer/energyratio/internal/render"
	"github.com/derickschaefer/energyratio/internal/util"
)

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// checkFormat rejects unknown --format values before any work is done.
func checkFormat(format string) error {
	if !slices.Contains(render.Formats, format) {
		return fmt.Errorf("unknown format %q (use %s)", format, strings.Join(render.Formats, "|"))
	}
	return nil
}

// outputWriter returns the --out file when set, else def. The returned
// closer must always be called.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// emit renders result in the resolved format and prints the footer to
// stderr unless --quiet.
func emit(deps *app.Deps, result *model.Result) error {
	format := resolveFormat(deps.Config.Format)
	if err := checkFormat(format); err != nil {
		return err
	}
	if deps.Config.Quiet && globalFlags.Out == "" {
		return nil
	}
	if err := render.RenderTo(globalFlags.Out, result, format); err != nil {
		return err
	}
	if !deps.Config.Quiet {
		render.PrintFooter(os.Stderr, result, deps.Config.Verbose)
	}
	return nil
}

// printSimpleTable renders a simple table with headers using tablewriter.
// The add callback is called with row values as variadic strings.
func printSimpleTable(w io.Writer, headers []string, fill func(add func(...string))) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)

	fill(func(cols ...string) {
		tw.Append(cols)
	})
	tw.Render()
}

// printKVTableTo renders a two-column key/value listing with aligned keys.
func printKVTableTo(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}

// parseRange parses "lo:hi", "lo:" or ":hi" into a half-open range.
// An empty string is the full domain.
func parseRange(s, label string) (model.Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Range{}, nil
	}
	lo, hi, ok := strings.Cut(s, ":")
	if !ok {
		return model.Range{}, fmt.Errorf("invalid %s range %q: expected lo:hi, lo: or :hi", label, s)
	}
	var r model.Range
	if lo = strings.TrimSpace(lo); lo != "" {
		v, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return r, fmt.Errorf("invalid %s lower bound %q", label, lo)
		}
		r.Lo, r.HasLo = v, true
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		v, err := strconv.ParseFloat(hi, 64)
		if err != nil {
			return r, fmt.Errorf("invalid %s upper bound %q", label, hi)
		}
		r.Hi, r.HasHi = v, true
	}
	if r.HasLo && r.HasHi && r.Lo >= r.Hi {
		return r, fmt.Errorf("invalid %s range %q: lower bound must be below upper bound", label, s)
	}
	return r, nil
}

// parseTurbines parses a comma-separated turbine index list. Empty means all.
func parseTurbines(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	ids, err := util.ParseIntList(s)
	if err != nil {
		return nil, fmt.Errorf("--turbines: %w", err)
	}
	return ids, nil
}

// loadCase reads a stored case, failing with a hint when it is missing.
func loadCase(deps *app.Deps, name string) (model.Case, error) {
	c, found, err := deps.Store.GetCase(name)
	if err != nil {
		return c, fmt.Errorf("reading case %s: %w", name, err)
	}
	if !found {
		return c, fmt.Errorf("no case named %q\n\n  Use: energyratio case import %s <file>", name, name)
	}
	return c, nil
}

// summarizeRecords describes every populated column of records.
func summarizeRecords(records []model.Record) []analyze.Summary {
	names, cols := pipeline.ToColumns(records)
	out := make([]analyze.Summary, len(names))
	for i, name := range names {
		out[i] = analyze.Summarize(name, cols[name])
	}
	return out
}

// buildResult wraps data in a Result envelope.
func buildResult(kind, command string, data any, items int) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats:       model.ResultStats{Items: items},
	}
}

// finish stamps the elapsed time on result.
func finish(result *model.Result, start time.Time) *model.Result {
	result.Stats.DurationMs = time.Since(start).Milliseconds()
	return result
}

func humanBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
