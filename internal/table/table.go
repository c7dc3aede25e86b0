// Package table bins wind-farm records into a wind direction × wind speed
// (or reference power) grid per case and answers energy queries over it.
//
// Lifecycle: New → AddCase (any number of times) → Build. After Build the
// table is frozen: cases can no longer be added, and the frequency matrix may
// be overridden with SetFrequencyMatrix. All query methods require a built
// table and fail with model.ErrConfiguration otherwise.
package table

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/energyratio/internal/analyze"
	"github.com/derickschaefer/energyratio/internal/model"
)

// ─── Options ──────────────────────────────────────────────────────────────────

// Default binning configuration.
const (
	DefaultDirectionStep   = 2.0   // degrees
	DefaultSpeedStep       = 1.0   // m/s
	DefaultRefPowerStep    = 100.0 // kW
	DefaultRefPowerMax     = 15000.0
	DefaultSpeedMax        = 50.0
	DefaultMinutesPerPoint = 10.0
)

// Options configures the bin grid of a Table.
type Options struct {
	DirectionEdges Edges
	SpeedEdges     Edges
	RefPowerEdges  Edges
	// UseRefPower bins the second axis on reference power instead of wind
	// speed. The two are never active together.
	UseRefPower bool
	// MinutesPerPoint is the averaging interval of one record. It only
	// converts point counts into hours when energy is computed.
	MinutesPerPoint float64
}

// DefaultOptions returns the standard grid: 2° direction bins over [0, 360],
// 1 m/s speed bins centred on whole numbers, 100 kW reference power bins up
// to 15 MW and 10-minute records.
func DefaultOptions() Options {
	return OptionsWithSteps(DefaultDirectionStep, DefaultSpeedStep, DefaultRefPowerStep)
}

// OptionsWithSteps builds the default grid layout with custom bin widths.
func OptionsWithSteps(wdStep, wsStep, refStep float64) Options {
	return Options{
		DirectionEdges:  Arange(0, 360+wdStep, wdStep),
		SpeedEdges:      Arange(-wsStep/2, DefaultSpeedMax, wsStep),
		RefPowerEdges:   Arange(0, DefaultRefPowerMax+refStep, refStep),
		MinutesPerPoint: DefaultMinutesPerPoint,
	}
}

// Validate checks all three edge sequences and the averaging interval.
func (o Options) Validate() error {
	if err := o.DirectionEdges.Validate("wd"); err != nil {
		return err
	}
	if err := o.SpeedEdges.Validate("ws"); err != nil {
		return err
	}
	if err := o.RefPowerEdges.Validate("pow_ref"); err != nil {
		return err
	}
	if !(o.MinutesPerPoint > 0) {
		return fmt.Errorf("minutes per point must be > 0, got %g: %w", o.MinutesPerPoint, model.ErrConfiguration)
	}
	return nil
}

// AxisEdges returns the edges of the active second axis.
func (o Options) AxisEdges() Edges {
	if o.UseRefPower {
		return o.RefPowerEdges
	}
	return o.SpeedEdges
}

func (o Options) clone() Options {
	out := o
	out.DirectionEdges = o.DirectionEdges.Clone()
	out.SpeedEdges = o.SpeedEdges.Clone()
	out.RefPowerEdges = o.RefPowerEdges.Clone()
	return out
}

// ─── Table ────────────────────────────────────────────────────────────────────

// columnStats holds per-bin aggregates of one power column (a turbine or the
// reference power) for one case. Bins are flattened as i*nAxis + j.
type columnStats struct {
	n      []int
	mean   []float64
	median []float64
}

type caseStats struct {
	name        string
	records     int
	binned      int
	hasRefPower bool
	count       []float64
	turbines    []columnStats
	ref         columnStats
}

// Table is a frequency and power table over one or more cases.
type Table struct {
	opts  Options
	cases []model.Case
	built bool

	nDir, nAxis int
	stats       []caseStats
	freq        *FrequencyMatrix
}

// New validates opts and returns an empty, unbuilt table.
func New(opts Options) (*Table, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Table{opts: opts.clone()}, nil
}

// AddCase appends a deep copy of c. Cases are identified by insertion order:
// ratio queries treat case 0 as the reference and case 1 as the test.
func (t *Table) AddCase(c model.Case) error {
	if t.built {
		return fmt.Errorf("add case %q: table already built: %w", c.Name, model.ErrConfiguration)
	}
	t.cases = append(t.cases, c.Clone())
	return nil
}

// Build bins every case and computes its frequency and power tables.
// Records outside the edges of either axis are dropped from both.
func (t *Table) Build() error {
	if t.built {
		return fmt.Errorf("build: table already built: %w", model.ErrConfiguration)
	}
	if len(t.cases) == 0 {
		return fmt.Errorf("build: no cases added: %w", model.ErrConfiguration)
	}
	t.nDir = t.opts.DirectionEdges.NumBins()
	t.nAxis = t.opts.AxisEdges().NumBins()
	t.stats = make([]caseStats, len(t.cases))
	for ci, c := range t.cases {
		t.stats[ci] = t.buildCase(c)
		slog.Debug("table case built",
			"case", c.Name, "records", t.stats[ci].records, "binned", t.stats[ci].binned,
			"turbines", len(t.stats[ci].turbines))
	}
	t.built = true
	return nil
}

func (t *Table) buildCase(c model.Case) caseStats {
	nb := t.nDir * t.nAxis
	nt := c.NumTurbines()
	cs := caseStats{
		name:        c.Name,
		records:     len(c.Records),
		hasRefPower: c.HasRefPower(),
		count:       make([]float64, nb),
		turbines:    make([]columnStats, nt),
	}

	buckets := make([][][]float64, nt)
	for ti := range buckets {
		buckets[ti] = make([][]float64, nb)
	}
	refBuckets := make([][]float64, nb)

	for _, r := range c.Records {
		k, ok := t.flatIndex(r)
		if !ok {
			continue
		}
		cs.count[k]++
		cs.binned++
		for ti := 0; ti < nt; ti++ {
			if v := r.TurbinePower(ti); isFinite(v) {
				buckets[ti][k] = append(buckets[ti][k], v)
			}
		}
		if r.HasRefPower() {
			refBuckets[k] = append(refBuckets[k], *r.RefPower)
		}
	}

	for ti := range buckets {
		cs.turbines[ti] = aggregate(buckets[ti])
	}
	cs.ref = aggregate(refBuckets)
	return cs
}

// flatIndex locates r in the grid. Direction wraps into [0, 360) first.
func (t *Table) flatIndex(r model.Record) (int, bool) {
	i, ok := t.opts.DirectionEdges.Bin(WrapDirection(r.WindDirection))
	if !ok {
		return 0, false
	}
	v := r.WindSpeed
	if t.opts.UseRefPower {
		v = r.RefPowerValue()
	}
	j, ok := t.opts.AxisEdges().Bin(v)
	if !ok {
		return 0, false
	}
	return i*t.nAxis + j, true
}

func aggregate(buckets [][]float64) columnStats {
	cs := columnStats{
		n:      make([]int, len(buckets)),
		mean:   make([]float64, len(buckets)),
		median: make([]float64, len(buckets)),
	}
	for k, vals := range buckets {
		cs.n[k] = len(vals)
		if len(vals) == 0 {
			cs.mean[k] = math.NaN()
			cs.median[k] = math.NaN()
			continue
		}
		cs.mean[k] = stat.Mean(vals, nil)
		cs.median[k] = analyze.Median(vals)
	}
	return cs
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ─── Frequency override ───────────────────────────────────────────────────────

// SetFrequencyMatrix replaces observed per-case counts with f for every
// subsequent energy query. f must match the grid shape. The table keeps the
// reference; FrequencyMatrix is immutable so sharing it is safe.
func (t *Table) SetFrequencyMatrix(f *FrequencyMatrix) error {
	if !t.built {
		return fmt.Errorf("set frequency matrix: table not built: %w", model.ErrConfiguration)
	}
	if f == nil {
		return fmt.Errorf("set frequency matrix: nil matrix: %w", model.ErrConfiguration)
	}
	r, c := f.Dims()
	if r != t.nDir || c != t.nAxis {
		return fmt.Errorf("set frequency matrix: shape %dx%d does not match grid %dx%d: %w",
			r, c, t.nDir, t.nAxis, model.ErrConfiguration)
	}
	t.freq = f
	return nil
}

// FrequencyOverride returns the user-defined frequency matrix, or nil.
func (t *Table) FrequencyOverride() *FrequencyMatrix {
	return t.freq
}

// ─── Accessors ────────────────────────────────────────────────────────────────

// Options returns a copy of the table configuration.
func (t *Table) Options() Options { return t.opts.clone() }

// Built reports whether Build has completed.
func (t *Table) Built() bool { return t.built }

// NumCases returns the number of cases added.
func (t *Table) NumCases() int { return len(t.cases) }

// CaseNames returns case names in insertion order.
func (t *Table) CaseNames() []string {
	out := make([]string, len(t.cases))
	for i, c := range t.cases {
		out[i] = c.Name
	}
	return out
}

// NumRecords returns the number of records held for case ci.
func (t *Table) NumRecords(ci int) int {
	if ci < 0 || ci >= len(t.cases) {
		return 0
	}
	return len(t.cases[ci].Records)
}

// NumBinned returns how many records of case ci fell inside the grid.
// Zero before Build.
func (t *Table) NumBinned(ci int) int {
	if !t.built || ci < 0 || ci >= len(t.stats) {
		return 0
	}
	return t.stats[ci].binned
}

// NumTurbines returns the widest turbine count across cases.
func (t *Table) NumTurbines() int {
	n := 0
	for _, c := range t.cases {
		if nt := c.NumTurbines(); nt > n {
			n = nt
		}
	}
	return n
}

// Shape returns the number of direction bins and second-axis bins.
func (t *Table) Shape() (int, int) {
	return t.opts.DirectionEdges.NumBins(), t.opts.AxisEdges().NumBins()
}

// DirectionCenters returns the wind direction bin centers.
func (t *Table) DirectionCenters() []float64 { return t.opts.DirectionEdges.Centers() }

// SpeedCenters returns the wind speed bin centers.
func (t *Table) SpeedCenters() []float64 { return t.opts.SpeedEdges.Centers() }

// RefPowerCenters returns the reference power bin centers.
func (t *Table) RefPowerCenters() []float64 { return t.opts.RefPowerEdges.Centers() }

// Frequency returns the observed record counts of case ci as a new
// direction × second-axis matrix.
func (t *Table) Frequency(ci int) (*mat.Dense, error) {
	if err := t.requireCase("frequency", ci); err != nil {
		return nil, err
	}
	data := make([]float64, len(t.stats[ci].count))
	copy(data, t.stats[ci].count)
	return mat.NewDense(t.nDir, t.nAxis, data), nil
}

// Count returns the number of valid readings of turbine ti in bin (i, j)
// for case ci. Zero for unknown turbines or bins.
func (t *Table) Count(ci, ti, i, j int) int {
	col, k, ok := t.column(ci, ti, i, j)
	if !ok {
		return 0
	}
	return col.n[k]
}

// Power returns the aggregated power of turbine ti in bin (i, j) for case ci.
// ok is false where the bin holds no valid reading.
func (t *Table) Power(ci, ti, i, j int, s Statistic) (float64, bool) {
	col, k, ok := t.column(ci, ti, i, j)
	if !ok || col.n[k] == 0 {
		return math.NaN(), false
	}
	if s == StatMedian {
		return col.median[k], true
	}
	return col.mean[k], true
}

func (t *Table) column(ci, ti, i, j int) (columnStats, int, bool) {
	if !t.built || ci < 0 || ci >= len(t.stats) || i < 0 || i >= t.nDir || j < 0 || j >= t.nAxis {
		return columnStats{}, 0, false
	}
	cs := t.stats[ci]
	if ti < 0 || ti >= len(cs.turbines) {
		return columnStats{}, 0, false
	}
	return cs.turbines[ti], i*t.nAxis + j, true
}

func (t *Table) requireCase(op string, ci int) error {
	if !t.built {
		return fmt.Errorf("%s: table not built: %w", op, model.ErrConfiguration)
	}
	if ci < 0 || ci >= len(t.stats) {
		return fmt.Errorf("%s: case index %d out of range [0,%d): %w", op, ci, len(t.stats), model.ErrConfiguration)
	}
	return nil
}
