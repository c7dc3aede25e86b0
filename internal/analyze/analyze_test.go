package analyze_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/derickschaefer/energyratio/internal/analyze"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func isNaN(v float64) bool { return math.IsNaN(v) }

// ─── Summarize ────────────────────────────────────────────────────────────────

func TestSummarizeBasicCounts(t *testing.T) {
	s := analyze.Summarize("ratio", []float64{1.0, 2.0, math.NaN(), 4.0, math.Inf(1)})

	if s.Name != "ratio" {
		t.Errorf("Name: expected ratio, got %q", s.Name)
	}
	if s.Count != 5 {
		t.Errorf("Count: expected 5, got %d", s.Count)
	}
	if s.Missing != 2 {
		t.Errorf("Missing: expected 2, got %d", s.Missing)
	}
	if !approxEqual(s.MissingPct, 40.0, 1e-9) {
		t.Errorf("MissingPct: expected 40.0, got %g", s.MissingPct)
	}
}

func TestSummarizeMeanAndStd(t *testing.T) {
	s := analyze.Summarize("x", []float64{1, 2, 3, 4, 5})

	if !approxEqual(s.Mean, 3.0, 1e-9) {
		t.Errorf("Mean: expected 3.0, got %g", s.Mean)
	}
	// Sample std of [1,2,3,4,5] = sqrt(2.5)
	if !approxEqual(s.Std, math.Sqrt(2.5), 1e-9) {
		t.Errorf("Std: expected %g, got %g", math.Sqrt(2.5), s.Std)
	}
	if !approxEqual(s.Min, 1, 1e-12) || !approxEqual(s.Max, 5, 1e-12) {
		t.Errorf("Min/Max: expected 1/5, got %g/%g", s.Min, s.Max)
	}
}

func TestSummarizePercentilesOrdered(t *testing.T) {
	s := analyze.Summarize("x", []float64{9, 1, 5, 3, 7, 2, 8})
	if !(s.Min <= s.P5 && s.P5 <= s.Median && s.Median <= s.P95 && s.P95 <= s.Max) {
		t.Errorf("expected min ≤ p5 ≤ median ≤ p95 ≤ max, got %g %g %g %g %g",
			s.Min, s.P5, s.Median, s.P95, s.Max)
	}
}

func TestSummarizeSkew(t *testing.T) {
	s := analyze.Summarize("x", []float64{1, 2, 3, 4, 5})
	if !approxEqual(s.Skew, 0.0, 1e-9) {
		t.Errorf("Skew of symmetric sample: expected 0.0, got %g", s.Skew)
	}
	skewed := analyze.Summarize("x", []float64{1, 1, 1, 1, 100})
	if skewed.Skew <= 0 {
		t.Errorf("right-skewed sample should have positive skew, got %g", skewed.Skew)
	}
}

func TestSummarizeAllMissing(t *testing.T) {
	s := analyze.Summarize("x", []float64{math.NaN(), math.NaN()})
	if s.Missing != 2 {
		t.Errorf("Missing: expected 2, got %d", s.Missing)
	}
	if !isNaN(s.Mean) || !isNaN(s.Median) || !isNaN(s.P95) {
		t.Errorf("expected NaN statistics, got mean=%g median=%g p95=%g", s.Mean, s.Median, s.P95)
	}
}

func TestSummarizeSingleValue(t *testing.T) {
	s := analyze.Summarize("x", []float64{1.1})
	if s.Std != 0 {
		t.Errorf("Std of single value: expected 0, got %g", s.Std)
	}
	if s.Median != 1.1 || s.P5 != 1.1 || s.P95 != 1.1 {
		t.Errorf("percentiles of single value should equal it, got %g %g %g", s.P5, s.Median, s.P95)
	}
}

// ─── Percentile ───────────────────────────────────────────────────────────────

func TestPercentileLinearInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	cases := []struct {
		p, want float64
	}{
		{0, 1},
		{25, 1.75},
		{50, 2.5},
		{75, 3.25},
		{100, 4},
		{5, 1.15},
		{95, 3.85},
	}
	for _, c := range cases {
		if got := analyze.Percentile(sorted, c.p); !approxEqual(got, c.want, 1e-12) {
			t.Errorf("Percentile(%g): expected %g, got %g", c.p, c.want, got)
		}
	}
}

func TestPercentileEmpty(t *testing.T) {
	if !isNaN(analyze.Percentile(nil, 50)) {
		t.Error("Percentile of empty sample should be NaN")
	}
}

func TestPercentileIntervalDropsNonFinite(t *testing.T) {
	vals := []float64{3, math.NaN(), 1, math.Inf(1), 2}
	lo, hi := analyze.PercentileInterval(vals, 0, 100)
	if lo != 1 || hi != 3 {
		t.Errorf("expected [1, 3], got [%g, %g]", lo, hi)
	}
	// Input must be left untouched.
	if vals[0] != 3 || !isNaN(vals[1]) {
		t.Errorf("PercentileInterval modified its input: %v", vals)
	}
}

func TestPercentileIntervalAllNaN(t *testing.T) {
	lo, hi := analyze.PercentileInterval([]float64{math.NaN()}, 5, 95)
	if !isNaN(lo) || !isNaN(hi) {
		t.Errorf("expected NaN bounds, got [%g, %g]", lo, hi)
	}
}

func TestMedianEvenCount(t *testing.T) {
	if got := analyze.Median([]float64{4, 1, 3, 2}); !approxEqual(got, 2.5, 1e-12) {
		t.Errorf("Median: expected 2.5, got %g", got)
	}
}

func TestMedianIgnoresNaN(t *testing.T) {
	if got := analyze.Median([]float64{math.NaN(), 10, 20, 30}); got != 20 {
		t.Errorf("Median: expected 20, got %g", got)
	}
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func TestSummaryJSONNullForMissing(t *testing.T) {
	s := analyze.Summarize("x", []float64{math.NaN()})
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(b), `"mean":null`) {
		t.Errorf("expected null mean, got %s", b)
	}
	var back analyze.Summary
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !math.IsNaN(back.Mean) || back.Count != 1 || back.Missing != 1 {
		t.Errorf("unexpected decoded summary %+v", back)
	}
}
