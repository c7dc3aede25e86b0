// Package transform implements stateless operators over wind-farm records:
// filtering, direction wrapping, turbine scaling and synthetic case
// generation. Each operator returns new records; inputs are never modified.
package transform

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/table"
)

// ─── Filter ───────────────────────────────────────────────────────────────────

// FilterOptions describes a time/ambient-condition filter predicate.
// Zero-valued fields do not filter.
type FilterOptions struct {
	After         time.Time   // keep records with time > After
	Before        time.Time   // keep records with time < Before
	WindSpeed     model.Range // keep records whose ws lies in the range
	WindDirection model.Range // keep records whose wd (wrapped) lies in the range
	RefPower      model.Range // keep records whose pow_ref lies in the range
	DropMissing   bool        // drop records with any NaN turbine power
}

// Filter returns deep copies of the records matching all criteria in opts.
// A record with a NaN value on a bounded axis never matches that axis.
func Filter(records []model.Record, opts FilterOptions) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if !opts.After.IsZero() && !r.Time.After(opts.After) {
			continue
		}
		if !opts.Before.IsZero() && !r.Time.Before(opts.Before) {
			continue
		}
		if !inRange(opts.WindSpeed, r.WindSpeed) ||
			!inRange(opts.WindDirection, table.WrapDirection(r.WindDirection)) ||
			!inRange(opts.RefPower, r.RefPowerValue()) {
			continue
		}
		if opts.DropMissing && hasMissingPower(r) {
			continue
		}
		out = append(out, r.Clone())
	}
	return out
}

func inRange(rng model.Range, v float64) bool {
	if rng.IsFull() {
		return true
	}
	if math.IsNaN(v) {
		return false
	}
	if rng.HasLo && v < rng.Lo {
		return false
	}
	if rng.HasHi && v >= rng.Hi {
		return false
	}
	return true
}

func hasMissingPower(r model.Record) bool {
	for _, p := range r.Power {
		if math.IsNaN(p) {
			return true
		}
	}
	return false
}

// ─── Direction ────────────────────────────────────────────────────────────────

// WrapDirections returns copies of records with wind direction mapped into
// [0, 360).
func WrapDirections(records []model.Record) []model.Record {
	out := make([]model.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
		out[i].WindDirection = table.WrapDirection(r.WindDirection)
	}
	return out
}

// ─── Scale ────────────────────────────────────────────────────────────────────

// ScaleOptions describes a per-turbine power adjustment.
type ScaleOptions struct {
	Turbine int
	Factor  float64
	// Min and Max clip the scaled power. NaN disables the bound.
	Min float64
	Max float64
}

// ScaleTurbine multiplies one turbine's power by opts.Factor and clips the
// result. Missing readings stay NaN.
func ScaleTurbine(records []model.Record, opts ScaleOptions) ([]model.Record, error) {
	if opts.Turbine < 0 {
		return nil, fmt.Errorf("scale: turbine index must be >= 0, got %d", opts.Turbine)
	}
	if math.IsNaN(opts.Factor) || math.IsInf(opts.Factor, 0) {
		return nil, fmt.Errorf("scale: factor must be finite, got %g", opts.Factor)
	}
	if !math.IsNaN(opts.Min) && !math.IsNaN(opts.Max) && opts.Min > opts.Max {
		return nil, fmt.Errorf("scale: min %g above max %g", opts.Min, opts.Max)
	}
	out := make([]model.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
		if opts.Turbine >= len(r.Power) || math.IsNaN(r.Power[opts.Turbine]) {
			continue
		}
		v := r.Power[opts.Turbine] * opts.Factor
		if !math.IsNaN(opts.Min) && v < opts.Min {
			v = opts.Min
		}
		if !math.IsNaN(opts.Max) && v > opts.Max {
			v = opts.Max
		}
		out[i].Power[opts.Turbine] = v
	}
	return out, nil
}

// ─── Synthetic cases ──────────────────────────────────────────────────────────

// SynthOptions configures Synthesize.
type SynthOptions struct {
	Records  int
	Turbines int
	Seed     uint64
	// Turbine and Factor select the control adjustment.
	Turbine int
	Factor  float64
	// UseRefPower draws a reference power column instead of wind speed and
	// ties the adjusted turbine to it; the control is then left unclipped.
	UseRefPower bool
	// Start and Step stamp record times. A zero Step leaves Time unset.
	Start time.Time
	Step  time.Duration
}

// DefaultSynthOptions returns the baseline/control demo setup: 1000 records,
// three turbines, turbine 0 scaled by 1.25.
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Records:  1000,
		Turbines: 3,
		Factor:   1.25,
		Start:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Step:     10 * time.Minute,
	}
}

// Synthesize generates a uniform baseline case and a control case that is
// identical except for one scaled turbine. Wind speed is uniform on
// [3, 25) m/s, direction on [0, 360) and power on [0, 1000) kW. In speed
// mode the control turbine is clipped to [0, 1000]; in reference-power mode
// the baseline turbine equals pow_ref and the control is pow_ref × Factor.
func Synthesize(opts SynthOptions) (model.Case, model.Case, error) {
	if opts.Records < 1 {
		return model.Case{}, model.Case{}, fmt.Errorf("synth: records must be >= 1, got %d", opts.Records)
	}
	if opts.Turbines < 1 {
		return model.Case{}, model.Case{}, fmt.Errorf("synth: turbines must be >= 1, got %d", opts.Turbines)
	}
	if opts.Turbine < 0 || opts.Turbine >= opts.Turbines {
		return model.Case{}, model.Case{}, fmt.Errorf("synth: turbine %d out of range [0,%d)", opts.Turbine, opts.Turbines)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, 0))
	base := model.Case{Name: "baseline", Records: make([]model.Record, opts.Records)}
	for i := range base.Records {
		r := model.Record{
			WindSpeed:     math.NaN(),
			WindDirection: 360 * rng.Float64(),
			Power:         make([]float64, opts.Turbines),
		}
		if opts.Step > 0 {
			r.Time = opts.Start.Add(time.Duration(i) * opts.Step)
		}
		if opts.UseRefPower {
			r.RefPower = model.Float(1000 * rng.Float64())
		} else {
			r.WindSpeed = 3 + 22*rng.Float64()
		}
		for t := range r.Power {
			r.Power[t] = 1000 * rng.Float64()
		}
		if opts.UseRefPower {
			r.Power[opts.Turbine] = *r.RefPower
		}
		base.Records[i] = r
	}

	scale := ScaleOptions{Turbine: opts.Turbine, Factor: opts.Factor, Min: 0, Max: 1000}
	if opts.UseRefPower {
		scale.Min, scale.Max = math.NaN(), math.NaN()
	}
	ctrlRecords, err := ScaleTurbine(base.Records, scale)
	if err != nil {
		return model.Case{}, model.Case{}, fmt.Errorf("synth: %w", err)
	}
	return base, model.Case{Name: "control", Records: ctrlRecords}, nil
}
