// Package util provides shared utilities: value parsing and formatting,
// list flags, and error aggregation.
package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ─── Value Parsing ────────────────────────────────────────────────────────────

// ParseValue parses a numeric cell.
// Returns NaN for missing values ("." , "NA", "NaN" or empty string).
// Uses strconv.ParseFloat to avoid locale issues.
func ParseValue(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", ".", "NA", "NaN", "nan", "null":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// FormatValue formats a float64 for display, showing "." for NaN.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatFixed formats v with prec decimals, showing "." for NaN.
func FormatFixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return "."
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// ─── Lists ────────────────────────────────────────────────────────────────────

// ParseFloatList parses a comma-separated list of numbers such as "5,95".
func ParseFloatList(s string) ([]float64, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = v
	}
	return out, nil
}

// ParseIntList parses a comma-separated list of integers such as "0,2,5".
func ParseIntList(s string) ([]int, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ─── Error Helpers ────────────────────────────────────────────────────────────

// MultiError collects multiple errors and presents them as one.
type MultiError struct {
	Errors []error
}

func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
