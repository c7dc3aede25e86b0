// Package pipeline converts between external tabular formats and
// model.Record slices: column maps, CSV (via gota dataframes) and JSONL,
// the canonical pipe format.
//
// Recognised columns: time, ws, wd, pow_ref and pow_NNN, where NNN is the
// zero-based turbine index. Other columns are dropped with a warning.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/energyratio/internal/model"
)

// Column names.
const (
	ColTime     = "time"
	ColSpeed    = "ws"
	ColDir      = "wd"
	ColRefPower = "pow_ref"
	powerPrefix = "pow_"
)

// TurbineColumn returns the column name of turbine i, e.g. pow_003.
func TurbineColumn(i int) string {
	return fmt.Sprintf("%s%03d", powerPrefix, i)
}

// turbineIndex parses pow_NNN. pow_ref and malformed names are rejected.
func turbineIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, powerPrefix) || name == ColRefPower {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, powerPrefix))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ─── Columns ──────────────────────────────────────────────────────────────────

// Columns is a column-oriented case: column name → values, equal length.
type Columns map[string][]float64

// FromColumns validates cols and builds records. times may be nil; otherwise
// it must match the column length. A wd column, at least one turbine column
// and one of ws or pow_ref are required; absent values are NaN.
func FromColumns(cols Columns, times []time.Time) ([]model.Record, []string, error) {
	var warnings []string
	n := -1
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if n >= 0 && len(cols[name]) != n {
			return nil, nil, fmt.Errorf("column %q has %d values, expected %d", name, len(cols[name]), n)
		}
		n = len(cols[name])
	}
	if times != nil && len(times) != n {
		return nil, nil, fmt.Errorf("time column has %d values, expected %d", len(times), n)
	}

	if _, ok := cols[ColDir]; !ok {
		return nil, nil, fmt.Errorf("missing required column %q", ColDir)
	}
	ws, hasWS := cols[ColSpeed]
	ref, hasRef := cols[ColRefPower]
	if !hasWS && !hasRef {
		return nil, nil, fmt.Errorf("need a %q or %q column", ColSpeed, ColRefPower)
	}

	turbines := map[int][]float64{}
	nTurbines := 0
	for _, name := range names {
		switch name {
		case ColSpeed, ColDir, ColRefPower:
			continue
		}
		i, ok := turbineIndex(name)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("ignoring unrecognised column %q", name))
			continue
		}
		turbines[i] = cols[name]
		if i+1 > nTurbines {
			nTurbines = i + 1
		}
	}
	if nTurbines == 0 {
		return nil, nil, fmt.Errorf("no turbine power columns (expected %s, %s, ...)", TurbineColumn(0), TurbineColumn(1))
	}
	for i := 0; i < nTurbines; i++ {
		if _, ok := turbines[i]; !ok {
			warnings = append(warnings, fmt.Sprintf("column %s missing; turbine %d treated as no data", TurbineColumn(i), i))
		}
	}

	out := make([]model.Record, n)
	wd := cols[ColDir]
	for k := range out {
		r := model.Record{
			WindSpeed:     math.NaN(),
			WindDirection: wd[k],
			Power:         make([]float64, nTurbines),
		}
		if times != nil {
			r.Time = times[k]
		}
		if hasWS {
			r.WindSpeed = ws[k]
		}
		if hasRef {
			r.RefPower = model.Float(ref[k])
		}
		for i := range r.Power {
			if col, ok := turbines[i]; ok {
				r.Power[i] = col[k]
			} else {
				r.Power[i] = math.NaN()
			}
		}
		out[k] = r
	}
	return out, warnings, nil
}

// ToColumns is the inverse of FromColumns: it returns the recognised column
// names in output order (ws, wd, pow_ref, pow_000, ...) and their values.
// Columns with no finite value are omitted.
func ToColumns(records []model.Record) ([]string, Columns) {
	nt := (model.Case{Records: records}).NumTurbines()
	cols := Columns{
		ColSpeed:    make([]float64, len(records)),
		ColDir:      make([]float64, len(records)),
		ColRefPower: make([]float64, len(records)),
	}
	names := []string{ColSpeed, ColDir, ColRefPower}
	for i := range nt {
		name := TurbineColumn(i)
		cols[name] = make([]float64, len(records))
		names = append(names, name)
	}
	for k, r := range records {
		cols[ColSpeed][k] = r.WindSpeed
		cols[ColDir][k] = r.WindDirection
		cols[ColRefPower][k] = r.RefPowerValue()
		for i := range nt {
			cols[TurbineColumn(i)][k] = r.TurbinePower(i)
		}
	}
	kept := names[:0]
	for _, name := range names {
		if slices.ContainsFunc(cols[name], func(v float64) bool { return !math.IsNaN(v) }) {
			kept = append(kept, name)
		} else {
			delete(cols, name)
		}
	}
	return kept, cols
}

// ─── CSV ──────────────────────────────────────────────────────────────────────

var naValues = []string{"", "NA", "NaN", "nan", "null", "."}

// timeLayouts are tried in order for the time column.
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"}

// ReadCSV loads a headered CSV into records.
func ReadCSV(r io.Reader) ([]model.Record, []string, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(naValues),
	)
	if df.Err != nil {
		return nil, nil, fmt.Errorf("reading CSV: %w", df.Err)
	}
	if df.Nrow() == 0 {
		return nil, nil, fmt.Errorf("CSV has no data rows")
	}

	cols := Columns{}
	var times []time.Time
	for _, name := range df.Names() {
		key := strings.ToLower(strings.TrimSpace(name))
		s := df.Col(name)
		if key == ColTime {
			t, err := parseTimes(s.Records())
			if err != nil {
				return nil, nil, err
			}
			times = t
			continue
		}
		// An all-missing column is detected as string; anything else
		// non-numeric is rejected.
		if s.Type() == series.String && !allMissing(s.Records()) {
			if _, known := turbineIndex(key); known || key == ColSpeed || key == ColDir || key == ColRefPower {
				return nil, nil, fmt.Errorf("column %q is not numeric", name)
			}
		}
		cols[key] = s.Float()
	}
	return FromColumns(cols, times)
}

func allMissing(raw []string) bool {
	for _, v := range raw {
		if !slices.Contains(naValues, strings.TrimSpace(v)) {
			return false
		}
	}
	return true
}

func parseTimes(raw []string) ([]time.Time, error) {
	out := make([]time.Time, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || s == "NaN" {
			continue
		}
		var err error
		for _, layout := range timeLayouts {
			if out[i], err = time.Parse(layout, s); err == nil {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid time %q", i+1, s)
		}
	}
	return out, nil
}

// WriteCSV writes records with a header of time, ws, wd, pow_ref and one
// pow_NNN column per turbine. Missing values are written as NaN.
func WriteCSV(w io.Writer, records []model.Record) error {
	nt := (model.Case{Records: records}).NumTurbines()
	ts := make([]string, len(records))
	ws := make([]float64, len(records))
	wd := make([]float64, len(records))
	ref := make([]float64, len(records))
	power := make([][]float64, nt)
	for i := range power {
		power[i] = make([]float64, len(records))
	}
	for k, r := range records {
		if !r.Time.IsZero() {
			ts[k] = r.Time.UTC().Format(time.RFC3339)
		}
		ws[k], wd[k], ref[k] = r.WindSpeed, r.WindDirection, r.RefPowerValue()
		for i := range power {
			power[i][k] = r.TurbinePower(i)
		}
	}
	cols := []series.Series{
		series.New(ts, series.String, ColTime),
		series.New(ws, series.Float, ColSpeed),
		series.New(wd, series.Float, ColDir),
		series.New(ref, series.Float, ColRefPower),
	}
	for i, p := range power {
		cols = append(cols, series.New(p, series.Float, TurbineColumn(i)))
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// ReadMatrixCSV loads a headerless numeric grid, one row per direction bin
// and one column per second-axis bin, for use as a frequency matrix.
func ReadMatrixCSV(r io.Reader) (*mat.Dense, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(false),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.Float),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("reading matrix CSV: %w", df.Err)
	}
	rows, cols := df.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("matrix CSV is empty")
	}
	m := mat.NewDense(rows, cols, nil)
	for j := range cols {
		for i, v := range df.Col(df.Names()[j]).Float() {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("matrix CSV: row %d column %d is not a number", i+1, j+1)
			}
			m.Set(i, j, v)
		}
	}
	return m, nil
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// jsonRecord is the JSONL line format. Pointers carry missing values as null
// rather than NaN, which encoding/json cannot handle.
type jsonRecord struct {
	Time     string     `json:"time,omitempty"`
	WS       *float64   `json:"ws"`
	WD       *float64   `json:"wd"`
	RefPower *float64   `json:"pow_ref"`
	Power    []*float64 `json:"power"`
}

// ReadJSONL reads one record per line. Blank lines and // comments are
// skipped.
func ReadJSONL(r io.Reader) ([]model.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var out []model.Record
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var jr jsonRecord
		if err := json.Unmarshal([]byte(line), &jr); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		rec := model.Record{
			WindSpeed:     model.FromNullable(jr.WS),
			WindDirection: model.FromNullable(jr.WD),
			RefPower:      jr.RefPower,
			Power:         make([]float64, len(jr.Power)),
		}
		if jr.Time != "" {
			t, err := parseTimes([]string{jr.Time})
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid time %q", lineNum, jr.Time)
			}
			rec.Time = t[0]
		}
		for i, p := range jr.Power {
			rec.Power[i] = model.FromNullable(p)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no records read from input (is stdin empty?)")
	}
	return out, nil
}

// WriteJSONL writes one record per line.
func WriteJSONL(w io.Writer, records []model.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		jr := jsonRecord{
			WS:       model.Nullable(r.WindSpeed),
			WD:       model.Nullable(r.WindDirection),
			RefPower: model.Nullable(r.RefPowerValue()),
			Power:    make([]*float64, len(r.Power)),
		}
		if !r.Time.IsZero() {
			jr.Time = r.Time.UTC().Format(time.RFC3339)
		}
		for i, p := range r.Power {
			jr.Power[i] = model.Nullable(p)
		}
		if err := enc.Encode(jr); err != nil {
			return err
		}
	}
	return nil
}

// ─── Files ────────────────────────────────────────────────────────────────────

// ReadFile loads records from path, choosing the format by extension:
// .jsonl/.ndjson as JSONL, anything else as CSV. "-" reads stdin and
// detects the format from its first line.
func ReadFile(path string) ([]model.Record, []string, error) {
	if path == "-" {
		return ReadStream(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		recs, err := ReadJSONL(f)
		return recs, nil, err
	default:
		return ReadCSV(f)
	}
}

// ReadStream reads JSONL when the first non-blank character is '{' or a
// "//" comment, and CSV otherwise.
func ReadStream(r io.Reader) ([]model.Record, []string, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			return nil, nil, fmt.Errorf("no records read from input (is stdin empty?)")
		}
		if b[0] == ' ' || b[0] == '\t' || b[0] == '\r' || b[0] == '\n' {
			_, _ = br.ReadByte()
			continue
		}
		if b[0] == '{' || b[0] == '/' {
			recs, err := ReadJSONL(br)
			return recs, nil, err
		}
		return ReadCSV(br)
	}
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
