// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
package render

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/energyratio/internal/analyze"
	"github.com/derickschaefer/energyratio/internal/bootstrap"
	"github.com/derickschaefer/energyratio/internal/model"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// RenderTo writes to stdout by default; if path is non-empty, writes to file.
func RenderTo(path string, result *model.Result, format string) error {
	if path == "" {
		return Render(os.Stdout, result, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()
	return Render(f, result, format)
}

// ─── Tabulation ───────────────────────────────────────────────────────────────

// grid is the row form shared by the table, delimited and markdown renderers.
type grid struct {
	title   string
	headers []string
	rows    [][]string
	numeric []bool // right-align column
}

// tabulate converts result.Data into a grid. ok is false for payloads with
// no row form; callers fall back to JSON.
func tabulate(result *model.Result) (grid, bool) {
	switch d := result.Data.(type) {
	case bootstrap.RangeResult:
		g := reportGrid(d.RatioReport)
		g.rows = append(g.rows, summaryRows(d.Samples)...)
		return g, true
	case *bootstrap.RangeResult:
		return tabulate(&model.Result{Data: *d})
	case model.RatioReport:
		return reportGrid(d), true
	case model.BinnedRatio:
		return binnedGrid(d), true
	case *model.BinnedRatio:
		return binnedGrid(*d), true
	case model.CaseInfo:
		return caseGrid([]model.CaseInfo{d}), true
	case []model.CaseInfo:
		return caseGrid(d), true
	case analyze.Summary:
		return summaryGrid([]analyze.Summary{d}), true
	case []analyze.Summary:
		return summaryGrid(d), true
	case model.TableData:
		return grid{headers: d.Headers, rows: d.Rows}, true
	case *model.TableData:
		return grid{headers: d.Headers, rows: d.Rows}, true
	}
	return grid{}, false
}

func reportGrid(r model.RatioReport) grid {
	return grid{
		title:   r.Label,
		headers: []string{"FIELD", "VALUE"},
		rows: [][]string{
			{"Energy Ratio", formatValue(r.Interval.Nominal)},
			{fmt.Sprintf("P%s", formatPct(r.Percentiles[0])), formatValue(r.Interval.Lower)},
			{fmt.Sprintf("P%s", formatPct(r.Percentiles[1])), formatValue(r.Interval.Upper)},
			{"Bootstraps", fmt.Sprintf("%d", r.Bootstraps)},
			{"Blocks", fmt.Sprintf("%d", r.Blocks)},
		},
		numeric: []bool{false, true},
	}
}

func summaryRows(s analyze.Summary) [][]string {
	return [][]string{
		{"Sample Mean", formatValue(s.Mean)},
		{"Sample Std", formatValue(s.Std)},
		{"Sample Missing", fmt.Sprintf("%d/%d", s.Missing, s.Count)},
	}
}

func binnedGrid(b model.BinnedRatio) grid {
	lo, hi := "P"+formatPct(b.Percentiles[0]), "P"+formatPct(b.Percentiles[1])
	g := grid{
		title:   fmt.Sprintf("%s by %s", b.Label, b.Axis),
		headers: []string{strings.ToUpper(b.Axis), "RATIO", lo, hi},
		numeric: []bool{true, true, true, true},
	}
	for i, c := range b.Centers {
		iv := b.Intervals[i]
		g.rows = append(g.rows, []string{
			formatValue(c),
			formatValue(iv.Nominal),
			formatValue(iv.Lower),
			formatValue(iv.Upper),
		})
	}
	return g
}

func caseGrid(infos []model.CaseInfo) grid {
	g := grid{
		headers: []string{"CASE", "RECORDS", "TURBINES", "POW_REF", "SOURCE", "STORED"},
		numeric: []bool{false, true, true, false, false, false},
	}
	for _, c := range infos {
		ref := "no"
		if c.HasRefPower {
			ref = "yes"
		}
		stored := ""
		if !c.StoredAt.IsZero() {
			stored = c.StoredAt.Format(time.RFC3339)
		}
		g.rows = append(g.rows, []string{
			c.Name,
			fmt.Sprintf("%d", c.Records),
			fmt.Sprintf("%d", c.Turbines),
			ref,
			c.Source,
			stored,
		})
	}
	return g
}

func summaryGrid(sums []analyze.Summary) grid {
	g := grid{
		headers: []string{"NAME", "COUNT", "MISSING", "MEAN", "STD", "MIN", "P5", "MEDIAN", "P95", "MAX"},
		numeric: []bool{false, true, true, true, true, true, true, true, true, true},
	}
	for _, s := range sums {
		g.rows = append(g.rows, []string{
			s.Name,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%d", s.Missing),
			formatValue(s.Mean),
			formatValue(s.Std),
			formatValue(s.Min),
			formatValue(s.P5),
			formatValue(s.Median),
			formatValue(s.P95),
			formatValue(s.Max),
		})
	}
	return g
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// binRow is the JSONL record for one bin of a binned ratio.
type binRow struct {
	Label   string   `json:"label"`
	Axis    string   `json:"axis"`
	Center  float64  `json:"center"`
	Nominal *float64 `json:"nominal"`
	Lower   *float64 `json:"lower"`
	Upper   *float64 `json:"upper"`
}

func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	switch d := result.Data.(type) {
	case model.BinnedRatio:
		for i, c := range d.Centers {
			iv := d.Intervals[i]
			row := binRow{
				Label:   d.Label,
				Axis:    d.Axis,
				Center:  c,
				Nominal: model.Nullable(iv.Nominal),
				Lower:   model.Nullable(iv.Lower),
				Upper:   model.Nullable(iv.Upper),
			}
			if err := enc.Encode(row); err != nil {
				return err
			}
		}
		return nil
	case []model.CaseInfo:
		for _, c := range d {
			if err := enc.Encode(c); err != nil {
				return err
			}
		}
		return nil
	case []analyze.Summary:
		for _, s := range d {
			if err := enc.Encode(s); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(result.Data)
	}
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	g, ok := tabulate(result)
	if !ok {
		// Fallback: JSON
		return renderJSON(w, result)
	}
	if g.title != "" {
		fmt.Fprintf(w, "%s\n\n", g.title)
	}
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(g.headers)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	if len(g.numeric) == len(g.headers) {
		align := make([]int, len(g.numeric))
		for i, n := range g.numeric {
			align[i] = tablewriter.ALIGN_LEFT
			if n {
				align[i] = tablewriter.ALIGN_RIGHT
			}
		}
		tw.SetColumnAlignment(align)
	}
	for _, r := range g.rows {
		tw.Append(r)
	}
	tw.Render()
	return nil
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if g, ok := tabulate(result); ok {
		headers := make([]string, len(g.headers))
		for i, h := range g.headers {
			headers[i] = strings.ToLower(h)
		}
		_ = cw.Write(headers)
		for _, r := range g.rows {
			_ = cw.Write(r)
		}
	} else {
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	g, ok := tabulate(result)
	if !ok {
		return renderJSON(w, result)
	}
	if g.title != "" {
		fmt.Fprintf(w, "**%s**\n\n", mdEscape(g.title))
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(g.headers, " | "))
	sep := make([]string, len(g.headers))
	for i := range sep {
		sep[i] = "----"
		if i < len(g.numeric) && g.numeric[i] {
			sep[i] = "---:"
		}
	}
	fmt.Fprintf(w, "|%s|\n", strings.Join(sep, "|"))
	for _, r := range g.rows {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = mdEscape(c)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		fmt.Fprintf(w, "\n[%s • %d items • %dms]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatValue formats a ratio or statistic for display.
// Always shows at least one decimal place (e.g. 1.0, not 1).
// Trims unnecessary trailing zeros beyond the first (e.g. 1.040000 → 1.04).
// Undefined values (NaN, ±Inf) render as ".".
func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "."
	}
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if strings.HasSuffix(s, ".") {
		s += "0" // "4." → "4.0"
	}
	return s
}

// formatPct renders a percentile bound without trailing zeros: 5, 97.5.
func formatPct(p float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", p), "0"), ".")
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
