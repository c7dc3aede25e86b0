// Package analyze computes descriptive statistics and percentiles over
// float samples: bootstrap ratio distributions and turbine power columns.
// All functions are pure; no I/O.
package analyze

import (
	"encoding/json"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/derickschaefer/energyratio/internal/model"
)

// ─── Summary ──────────────────────────────────────────────────────────────────

// Summary holds descriptive statistics for a sample.
type Summary struct {
	Name       string  `json:"name"`
	Count      int     `json:"count"`       // total values
	Missing    int     `json:"missing"`     // NaN or ±Inf count
	MissingPct float64 `json:"missing_pct"` // percent missing
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	P5         float64 `json:"p5"`
	Median     float64 `json:"median"`
	P95        float64 `json:"p95"`
	Max        float64 `json:"max"`
	Skew       float64 `json:"skew"`
}

// Summarize computes descriptive statistics over vals.
// Non-finite values are excluded from all numeric computations but counted.
func Summarize(name string, vals []float64) Summary {
	s := Summary{Name: name, Count: len(vals)}
	finite := Finite(vals)
	s.Missing = len(vals) - len(finite)
	if s.Count > 0 {
		s.MissingPct = float64(s.Missing) / float64(s.Count) * 100
	}
	if len(finite) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.P5, s.Median, s.P95, s.Max, s.Skew = nan, nan, nan, nan, nan, nan, nan, nan
		return s
	}

	sort.Float64s(finite)

	s.Min = finite[0]
	s.Max = finite[len(finite)-1]
	s.Mean = stat.Mean(finite, nil)
	if len(finite) > 1 {
		s.Std = stat.StdDev(finite, nil)
	}
	s.P5 = Percentile(finite, 5)
	s.Median = Percentile(finite, 50)
	s.P95 = Percentile(finite, 95)
	s.Skew = skewness(finite, s.Mean, s.Std)
	return s
}

// summaryJSON is the wire form of Summary. Statistics of an all-missing
// sample are written as null.
type summaryJSON struct {
	Name       string   `json:"name"`
	Count      int      `json:"count"`
	Missing    int      `json:"missing"`
	MissingPct float64  `json:"missing_pct"`
	Mean       *float64 `json:"mean"`
	Std        *float64 `json:"std"`
	Min        *float64 `json:"min"`
	P5         *float64 `json:"p5"`
	Median     *float64 `json:"median"`
	P95        *float64 `json:"p95"`
	Max        *float64 `json:"max"`
	Skew       *float64 `json:"skew"`
}

func (s Summary) MarshalJSON() ([]byte, error) {
	n := model.Nullable
	return json.Marshal(summaryJSON{s.Name, s.Count, s.Missing, s.MissingPct,
		n(s.Mean), n(s.Std), n(s.Min), n(s.P5), n(s.Median), n(s.P95), n(s.Max), n(s.Skew)})
}

func (s *Summary) UnmarshalJSON(b []byte) error {
	var raw summaryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	f := model.FromNullable
	*s = Summary{
		Name: raw.Name, Count: raw.Count, Missing: raw.Missing, MissingPct: raw.MissingPct,
		Mean: f(raw.Mean), Std: f(raw.Std), Min: f(raw.Min), P5: f(raw.P5),
		Median: f(raw.Median), P95: f(raw.P95), Max: f(raw.Max), Skew: f(raw.Skew),
	}
	return nil
}

// ─── Percentiles ──────────────────────────────────────────────────────────────

// Percentile returns the p-th percentile (0..100) of an ascending sample,
// interpolating linearly between the two nearest order statistics.
// Returns NaN for an empty sample.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	idx := p / 100 * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// PercentileInterval returns the lo-th and hi-th percentiles of vals.
// Non-finite values are dropped first; if none remain both bounds are NaN.
// vals is not modified.
func PercentileInterval(vals []float64, lo, hi float64) (float64, float64) {
	finite := Finite(vals)
	if len(finite) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(finite)
	return Percentile(finite, lo), Percentile(finite, hi)
}

// Median returns the median of the finite values in vals, NaN if none.
func Median(vals []float64) float64 {
	finite := Finite(vals)
	if len(finite) == 0 {
		return math.NaN()
	}
	sort.Float64s(finite)
	return Percentile(finite, 50)
}

// Finite returns a new slice holding the finite values of vals in order.
func Finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// ─── Math helpers ─────────────────────────────────────────────────────────────

func skewness(vals []float64, mean, std float64) float64 {
	n := float64(len(vals))
	if n < 3 || std == 0 {
		return 0
	}
	var s float64
	for _, v := range vals {
		d := (v - mean) / std
		s += d * d * d
	}
	return s * n / ((n - 1) * (n - 2))
}
