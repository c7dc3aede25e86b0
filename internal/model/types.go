// Package model defines the canonical data types used throughout energyratio.
// These types are the single source of truth for wind-farm records, cases,
// bin ranges, ratio results and the result envelope every command returns.
package model

import (
	"math"
	"time"
)

// ─── Records & Cases ──────────────────────────────────────────────────────────

// Record is one observation of ambient conditions and turbine power.
// Absent readings are NaN. RefPower is nil when the record carries no
// reference power, so a Record literal that omits it has none.
// Power[i] is the reading of turbine i in kW.
type Record struct {
	Time          time.Time `json:"time,omitempty"`
	WindSpeed     float64   `json:"ws"`                // m/s
	WindDirection float64   `json:"wd"`                // degrees, wraps at 360
	RefPower      *float64  `json:"pow_ref,omitempty"` // kW
	Power         []float64 `json:"power"`             // kW per turbine
}

// Float returns a pointer to v, or nil when v is NaN or ±Inf.
func Float(v float64) *float64 {
	return Nullable(v)
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.RefPower != nil {
		v := *r.RefPower
		out.RefPower = &v
	}
	if r.Power != nil {
		out.Power = make([]float64, len(r.Power))
		copy(out.Power, r.Power)
	}
	return out
}

// RefPowerValue returns the reference power, or NaN when absent.
func (r Record) RefPowerValue() float64 {
	return FromNullable(r.RefPower)
}

// HasRefPower reports whether r carries a finite reference power.
func (r Record) HasRefPower() bool {
	v := r.RefPowerValue()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// TurbinePower returns the reading for turbine t, or NaN when the record has
// no column for it.
func (r Record) TurbinePower(t int) float64 {
	if t < 0 || t >= len(r.Power) {
		return math.NaN()
	}
	return r.Power[t]
}

// Case is a named, time-ordered dataset representing one operating condition
// (e.g. baseline or control).
type Case struct {
	Name    string   `json:"name"`
	Records []Record `json:"records"`
}

// Clone returns a deep copy of c. The engine never holds caller-owned slices.
func (c Case) Clone() Case {
	out := Case{Name: c.Name, Records: make([]Record, len(c.Records))}
	for i, r := range c.Records {
		out.Records[i] = r.Clone()
	}
	return out
}

// NumTurbines returns the widest Power slice across all records.
func (c Case) NumTurbines() int {
	n := 0
	for _, r := range c.Records {
		if len(r.Power) > n {
			n = len(r.Power)
		}
	}
	return n
}

// HasRefPower reports whether any record carries a reference power value.
// A case ingested without a reference-power column has none.
func (c Case) HasRefPower() bool {
	for _, r := range c.Records {
		if r.HasRefPower() {
			return true
		}
	}
	return false
}

// ─── Ranges ───────────────────────────────────────────────────────────────────

// Range bounds a query along one axis. The zero value is the full domain;
// each bound applies only when its Has flag is set.
type Range struct {
	Lo    float64 `json:"lo,omitempty"`
	Hi    float64 `json:"hi,omitempty"`
	HasLo bool    `json:"has_lo,omitempty"`
	HasHi bool    `json:"has_hi,omitempty"`
}

// Between returns the range [lo, hi).
func Between(lo, hi float64) Range {
	return Range{Lo: lo, Hi: hi, HasLo: true, HasHi: true}
}

// AtLeast returns the range [lo, +inf).
func AtLeast(lo float64) Range {
	return Range{Lo: lo, HasLo: true}
}

// Below returns the range (-inf, hi).
func Below(hi float64) Range {
	return Range{Hi: hi, HasHi: true}
}

// IsFull reports whether neither bound is set.
func (r Range) IsFull() bool {
	return !r.HasLo && !r.HasHi
}

// Overlaps reports whether the bin [binLo, binHi) intersects the range.
func (r Range) Overlaps(binLo, binHi float64) bool {
	if r.HasLo && binHi <= r.Lo {
		return false
	}
	if r.HasHi && binLo >= r.Hi {
		return false
	}
	return true
}

// ─── Ratio Results ────────────────────────────────────────────────────────────

// RatioInterval is a nominal energy ratio with its bootstrap percentile bounds.
type RatioInterval struct {
	Nominal float64 `json:"nominal"`
	Lower   float64 `json:"lower"`
	Upper   float64 `json:"upper"`
}

// RatioReport is the result of a range query: one interval over the whole
// selected domain.
type RatioReport struct {
	Label       string        `json:"label"` // "<test> / <reference>"
	Interval    RatioInterval `json:"interval"`
	Percentiles [2]float64    `json:"percentiles"`
	Bootstraps  int           `json:"bootstraps"`
	Blocks      int           `json:"blocks"`
}

// BinnedRatio is the result of a per-axis query: one interval per bin along
// the output axis, ordered by bin center.
type BinnedRatio struct {
	Label       string          `json:"label"`
	Axis        string          `json:"axis"` // "wd", "ws" or "pow_ref"
	Centers     []float64       `json:"centers"`
	Intervals   []RatioInterval `json:"intervals"`
	Percentiles [2]float64      `json:"percentiles"`
	Bootstraps  int             `json:"bootstraps"`
	Blocks      int             `json:"blocks"`
}

// Axis name constants used in BinnedRatio.Axis.
const (
	AxisDirection = "wd"
	AxisSpeed     = "ws"
	AxisRefPower  = "pow_ref"
)

// ─── Stored Case Metadata ─────────────────────────────────────────────────────

// CaseInfo summarises a case held in the local store.
type CaseInfo struct {
	Name        string    `json:"name"`
	Records     int       `json:"records"`
	Turbines    int       `json:"turbines"`
	HasRefPower bool      `json:"has_pow_ref"`
	Source      string    `json:"source,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries timing metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindRatio       = "ratio"
	KindBinnedRatio = "binned_ratio"
	KindCaseInfo    = "case_info"
	KindSummary     = "summary"
	KindTable       = "table"
)

// TableData is a pre-formatted grid for results that have no dedicated
// renderer, such as store statistics.
type TableData struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}
