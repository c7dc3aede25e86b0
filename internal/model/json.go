package model

import (
	"encoding/json"
	"math"
)

// Nullable returns nil for NaN and ±Inf so the value encodes as JSON null.
// encoding/json refuses non-finite floats.
func Nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FromNullable is the inverse of Nullable: nil decodes to NaN.
func FromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// MarshalJSON encodes undefined ratios (empty reference bins) as null.
func (r RatioInterval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Nominal *float64 `json:"nominal"`
		Lower   *float64 `json:"lower"`
		Upper   *float64 `json:"upper"`
	}{Nullable(r.Nominal), Nullable(r.Lower), Nullable(r.Upper)})
}

// UnmarshalJSON decodes null bounds back to NaN.
func (r *RatioInterval) UnmarshalJSON(b []byte) error {
	var raw struct {
		Nominal *float64 `json:"nominal"`
		Lower   *float64 `json:"lower"`
		Upper   *float64 `json:"upper"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.Nominal = FromNullable(raw.Nominal)
	r.Lower = FromNullable(raw.Lower)
	r.Upper = FromNullable(raw.Upper)
	return nil
}
