package table

import (
	"fmt"

	"github.com/derickschaefer/energyratio/internal/model"
)

// ─── Query ────────────────────────────────────────────────────────────────────

// Statistic selects the per-bin power aggregate.
type Statistic string

const (
	StatMean   Statistic = "mean"
	StatMedian Statistic = "median"
)

// FrequencySource selects what weights each bin's power.
type FrequencySource string

const (
	// FrequencyTurbine weights each case by its own observed record counts
	// and sums power over the turbine set.
	FrequencyTurbine FrequencySource = "turbine"
	// FrequencyPooled weights every case by the record counts summed across
	// all cases, so both cases see the same wind resource.
	FrequencyPooled FrequencySource = "pooled"
	// FrequencyRefPower uses the single reference-power column as the power
	// signal instead of the turbine set. Requires reference-power binning.
	FrequencyRefPower FrequencySource = "ref_power"
)

// Query selects the turbines, bin ranges and aggregation for an energy query.
// The zero value means: all turbines, full domain, at least one point per
// bin, mean power, observed per-case frequency.
type Query struct {
	Turbines        []int
	DirectionRange  model.Range
	SpeedRange      model.Range
	RefPowerRange   model.Range
	MinPointsPerBin int
	Statistic       Statistic
	Frequency       FrequencySource
}

// resolved is a validated Query bound to one table.
type resolved struct {
	turbines  []int
	minPoints int
	stat      Statistic
	source    FrequencySource
	dirMask   []bool
	axisMask  []bool
}

func (t *Table) resolve(op string, q Query) (resolved, error) {
	var r resolved
	if !t.built {
		return r, fmt.Errorf("%s: table not built: %w", op, model.ErrConfiguration)
	}

	r.stat = q.Statistic
	if r.stat == "" {
		r.stat = StatMean
	}
	if r.stat != StatMean && r.stat != StatMedian {
		return r, fmt.Errorf("%s: unknown statistic %q (use mean or median): %w", op, q.Statistic, model.ErrConfiguration)
	}

	r.source = q.Frequency
	if r.source == "" {
		r.source = FrequencyTurbine
	}
	switch r.source {
	case FrequencyTurbine, FrequencyPooled:
	case FrequencyRefPower:
		if !t.opts.UseRefPower {
			return r, fmt.Errorf("%s: reference-power weighting requires reference-power binning: %w", op, model.ErrConfiguration)
		}
		for _, cs := range t.stats {
			if !cs.hasRefPower {
				return r, fmt.Errorf("%s: case %q has no reference power column: %w", op, cs.name, model.ErrConfiguration)
			}
		}
	default:
		return r, fmt.Errorf("%s: unknown frequency source %q (use turbine, pooled or ref_power): %w",
			op, q.Frequency, model.ErrConfiguration)
	}

	if t.opts.UseRefPower && !q.SpeedRange.IsFull() {
		return r, fmt.Errorf("%s: speed range given but table is binned on reference power: %w", op, model.ErrConfiguration)
	}
	if !t.opts.UseRefPower && !q.RefPowerRange.IsFull() {
		return r, fmt.Errorf("%s: reference power range given but table is binned on wind speed: %w", op, model.ErrConfiguration)
	}

	r.minPoints = q.MinPointsPerBin
	if r.minPoints < 1 {
		r.minPoints = 1
	}

	if r.source != FrequencyRefPower {
		nt := t.NumTurbines()
		if nt == 0 {
			return r, fmt.Errorf("%s: no turbine power columns: %w", op, model.ErrConfiguration)
		}
		if len(q.Turbines) == 0 {
			r.turbines = make([]int, nt)
			for i := range r.turbines {
				r.turbines[i] = i
			}
		} else {
			seen := make(map[int]bool, len(q.Turbines))
			for _, ti := range q.Turbines {
				if ti < 0 || ti >= nt {
					return r, fmt.Errorf("%s: turbine %d out of range [0,%d): %w", op, ti, nt, model.ErrConfiguration)
				}
				if !seen[ti] {
					seen[ti] = true
					r.turbines = append(r.turbines, ti)
				}
			}
		}
	}

	r.dirMask = mask(t.opts.DirectionEdges, q.DirectionRange)
	axisRange := q.SpeedRange
	if t.opts.UseRefPower {
		axisRange = q.RefPowerRange
	}
	r.axisMask = mask(t.opts.AxisEdges(), axisRange)
	return r, nil
}

func mask(e Edges, rng model.Range) []bool {
	out := make([]bool, e.NumBins())
	for i := range out {
		out[i] = rng.Overlaps(e[i], e[i+1])
	}
	return out
}

// ─── Energy accumulation ──────────────────────────────────────────────────────

// weight returns the frequency applied to bin (i, j) of case ci.
func (t *Table) weight(r resolved, ci, i, j int) float64 {
	if t.freq != nil {
		return t.freq.At(i, j)
	}
	k := i*t.nAxis + j
	if r.source == FrequencyPooled {
		var w float64
		for _, cs := range t.stats {
			w += cs.count[k]
		}
		return w
	}
	return t.stats[ci].count[k]
}

// binPower returns the summed power of the selected columns in bin k.
// Columns with fewer than minPoints valid readings contribute zero.
func (t *Table) binPower(r resolved, ci, k int) float64 {
	cs := t.stats[ci]
	pick := func(col columnStats) float64 {
		if col.n[k] < r.minPoints {
			return 0
		}
		if r.stat == StatMedian {
			return col.median[k]
		}
		return col.mean[k]
	}
	if r.source == FrequencyRefPower {
		return pick(cs.ref)
	}
	var p float64
	for _, ti := range r.turbines {
		if ti < len(cs.turbines) {
			p += pick(cs.turbines[ti])
		}
	}
	return p
}

// each calls fn with the energy (kWh) of every bin of every case that lies
// inside the direction and axis masks selected by useDir and useAxis.
func (t *Table) each(r resolved, useDir, useAxis bool, fn func(ci, i, j int, e float64)) {
	hours := t.opts.MinutesPerPoint / 60
	for ci := range t.stats {
		for i := 0; i < t.nDir; i++ {
			if useDir && !r.dirMask[i] {
				continue
			}
			for j := 0; j < t.nAxis; j++ {
				if useAxis && !r.axisMask[j] {
					continue
				}
				w := t.weight(r, ci, i, j)
				if w == 0 {
					continue
				}
				p := t.binPower(r, ci, i*t.nAxis+j)
				if p == 0 {
					continue
				}
				fn(ci, i, j, p*w*hours)
			}
		}
	}
}

// ─── Energy queries ───────────────────────────────────────────────────────────

// EnergyInRange returns the total energy of each case over the bins that
// intersect the query ranges.
func (t *Table) EnergyInRange(q Query) ([]float64, error) {
	r, err := t.resolve("energy in range", q)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.stats))
	t.each(r, true, true, func(ci, _, _ int, e float64) {
		out[ci] += e
	})
	return out, nil
}

// EnergyPerDirectionBin returns energy[case][direction bin], summed over the
// second axis within its query range. DirectionRange is ignored.
func (t *Table) EnergyPerDirectionBin(q Query) ([][]float64, error) {
	r, err := t.resolve("energy per wd bin", q)
	if err != nil {
		return nil, err
	}
	out := grid(len(t.stats), t.nDir)
	t.each(r, false, true, func(ci, i, _ int, e float64) {
		out[ci][i] += e
	})
	return out, nil
}

// EnergyPerSpeedBin returns energy[case][speed bin], summed over direction
// within DirectionRange. Fails under reference-power binning.
func (t *Table) EnergyPerSpeedBin(q Query) ([][]float64, error) {
	if t.opts.UseRefPower {
		return nil, fmt.Errorf("energy per ws bin: table is binned on reference power: %w", model.ErrConfiguration)
	}
	return t.energyPerAxisBin("energy per ws bin", q)
}

// EnergyPerRefPowerBin returns energy[case][reference power bin], summed
// over direction within DirectionRange. Fails under wind speed binning.
func (t *Table) EnergyPerRefPowerBin(q Query) ([][]float64, error) {
	if !t.opts.UseRefPower {
		return nil, fmt.Errorf("energy per pow_ref bin: table is binned on wind speed: %w", model.ErrConfiguration)
	}
	return t.energyPerAxisBin("energy per pow_ref bin", q)
}

func (t *Table) energyPerAxisBin(op string, q Query) ([][]float64, error) {
	r, err := t.resolve(op, q)
	if err != nil {
		return nil, err
	}
	out := grid(len(t.stats), t.nAxis)
	t.each(r, true, false, func(ci, _, j int, e float64) {
		out[ci][j] += e
	})
	return out, nil
}

func grid(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

// ─── Ratios ───────────────────────────────────────────────────────────────────

// RatioInRange returns energy(test) / energy(reference) over the query range.
func (t *Table) RatioInRange(q Query) (float64, error) {
	if err := t.requirePair("ratio in range"); err != nil {
		return 0, err
	}
	e, err := t.EnergyInRange(q)
	if err != nil {
		return 0, err
	}
	return e[1] / e[0], nil
}

// RatioPerDirectionBin returns the test/reference ratio for each direction bin.
func (t *Table) RatioPerDirectionBin(q Query) ([]float64, error) {
	return t.ratioPerBin("ratio per wd bin", q, t.EnergyPerDirectionBin)
}

// RatioPerSpeedBin returns the test/reference ratio for each speed bin.
func (t *Table) RatioPerSpeedBin(q Query) ([]float64, error) {
	return t.ratioPerBin("ratio per ws bin", q, t.EnergyPerSpeedBin)
}

// RatioPerRefPowerBin returns the test/reference ratio for each reference
// power bin.
func (t *Table) RatioPerRefPowerBin(q Query) ([]float64, error) {
	return t.ratioPerBin("ratio per pow_ref bin", q, t.EnergyPerRefPowerBin)
}

func (t *Table) ratioPerBin(op string, q Query, energy func(Query) ([][]float64, error)) ([]float64, error) {
	if err := t.requirePair(op); err != nil {
		return nil, err
	}
	e, err := energy(q)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(e[0]))
	for b := range out {
		out[b] = e[1][b] / e[0][b]
	}
	return out, nil
}

// requirePair enforces the exactly-two-cases rule of every ratio.
func (t *Table) requirePair(op string) error {
	if len(t.cases) != 2 {
		return fmt.Errorf("%s: need exactly 2 cases, have %d: %w", op, len(t.cases), model.ErrConfiguration)
	}
	return nil
}
