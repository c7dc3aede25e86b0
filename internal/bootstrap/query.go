package bootstrap

import (
	"fmt"

	"github.com/derickschaefer/energyratio/internal/analyze"
	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/table"
)

// Query is a table query plus the percentile bounds to report. A zero
// Percentiles uses the engine's configured bounds.
type Query struct {
	table.Query
	Percentiles [2]float64
}

// RangeResult is the ratio over a whole range with the distribution of the
// bootstrap samples behind its interval.
type RangeResult struct {
	model.RatioReport
	Samples analyze.Summary `json:"samples"`
}

func (e *Engine) percentiles(op string, q Query) ([2]float64, error) {
	if !e.built {
		return [2]float64{}, fmt.Errorf("%s: bootstrap tables not built: %w", op, model.ErrConfiguration)
	}
	p := q.Percentiles
	if p == [2]float64{} {
		p = e.opts.Percentiles
	}
	if err := validPercentiles(p); err != nil {
		return p, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// EnergyInRange returns the test/reference energy ratio over the query range
// on the nominal table with its bootstrap percentile interval.
func (e *Engine) EnergyInRange(q Query) (RangeResult, error) {
	var out RangeResult
	p, err := e.percentiles("energy in range", q)
	if err != nil {
		return out, err
	}
	nominal, err := e.nominal.RatioInRange(q.Query)
	if err != nil {
		return out, err
	}
	samples := make([]float64, len(e.tables))
	for i, t := range e.tables {
		if samples[i], err = t.RatioInRange(q.Query); err != nil {
			return out, fmt.Errorf("bootstrap %d: %w", i, err)
		}
	}
	lo, hi := analyze.PercentileInterval(samples, p[0], p[1])
	out.RatioReport = model.RatioReport{
		Label:       e.Label(),
		Interval:    model.RatioInterval{Nominal: nominal, Lower: lo, Upper: hi},
		Percentiles: p,
		Bootstraps:  len(e.tables),
		Blocks:      e.nBlocks,
	}
	out.Samples = analyze.Summarize("bootstrap ratio", samples)
	return out, nil
}

// EnergyPerDirectionBin returns one ratio interval per direction bin.
func (e *Engine) EnergyPerDirectionBin(q Query) (model.BinnedRatio, error) {
	return e.perBin("energy per wd bin", q, model.AxisDirection,
		(*table.Table).RatioPerDirectionBin, (*table.Table).DirectionCenters)
}

// EnergyPerSpeedBin returns one ratio interval per wind speed bin. Fails
// when the tables are binned on reference power.
func (e *Engine) EnergyPerSpeedBin(q Query) (model.BinnedRatio, error) {
	return e.perBin("energy per ws bin", q, model.AxisSpeed,
		(*table.Table).RatioPerSpeedBin, (*table.Table).SpeedCenters)
}

// EnergyPerRefPowerBin returns one ratio interval per reference power bin.
// Fails when the tables are binned on wind speed.
func (e *Engine) EnergyPerRefPowerBin(q Query) (model.BinnedRatio, error) {
	return e.perBin("energy per pow_ref bin", q, model.AxisRefPower,
		(*table.Table).RatioPerRefPowerBin, (*table.Table).RefPowerCenters)
}

func (e *Engine) perBin(op string, q Query, axis string,
	ratio func(*table.Table, table.Query) ([]float64, error),
	centers func(*table.Table) []float64,
) (model.BinnedRatio, error) {
	var out model.BinnedRatio
	p, err := e.percentiles(op, q)
	if err != nil {
		return out, err
	}
	nominal, err := ratio(e.nominal, q.Query)
	if err != nil {
		return out, err
	}
	// samples[b][i] is the ratio of bin b in bootstrap i.
	samples := make([][]float64, len(nominal))
	for b := range samples {
		samples[b] = make([]float64, len(e.tables))
	}
	for i, t := range e.tables {
		r, err := ratio(t, q.Query)
		if err != nil {
			return out, fmt.Errorf("bootstrap %d: %w", i, err)
		}
		for b, v := range r {
			samples[b][i] = v
		}
	}

	out = model.BinnedRatio{
		Label:       e.Label(),
		Axis:        axis,
		Centers:     centers(e.nominal),
		Intervals:   make([]model.RatioInterval, len(nominal)),
		Percentiles: p,
		Bootstraps:  len(e.tables),
		Blocks:      e.nBlocks,
	}
	for b, v := range nominal {
		lo, hi := analyze.PercentileInterval(samples[b], p[0], p[1])
		out.Intervals[b] = model.RatioInterval{Nominal: v, Lower: lo, Upper: hi}
	}
	return out, nil
}
