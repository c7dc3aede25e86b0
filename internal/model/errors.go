package model

import "errors"

// Error taxonomy. Every validation failure in the engine wraps one of these,
// so callers test with errors.Is.
var (
	// ErrConfiguration covers invalid construction parameters, operations
	// invoked before a required build step, wrong case counts, incompatible
	// axis selection and missing reference-power data.
	ErrConfiguration = errors.New("configuration error")

	// ErrType covers counts that arrive as non-integer values.
	ErrType = errors.New("type error")
)
