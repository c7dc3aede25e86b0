package table

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/energyratio/internal/model"
)

// FrequencyMatrix is an immutable direction × second-axis weight grid used in
// place of observed record counts. One instance may be shared by reference
// across many tables; nothing can modify it after construction.
type FrequencyMatrix struct {
	m *mat.Dense
}

// NewFrequencyMatrix copies m. Every entry must be finite and non-negative.
func NewFrequencyMatrix(m mat.Matrix) (*FrequencyMatrix, error) {
	if m == nil {
		return nil, fmt.Errorf("frequency matrix: nil matrix: %w", model.ErrConfiguration)
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, fmt.Errorf("frequency matrix: empty %dx%d matrix: %w", r, c, model.ErrConfiguration)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("frequency matrix: entry (%d,%d)=%g must be finite and non-negative: %w",
					i, j, v, model.ErrConfiguration)
			}
		}
	}
	return &FrequencyMatrix{m: mat.DenseCopyOf(m)}, nil
}

// Dims returns the number of direction bins and second-axis bins.
func (f *FrequencyMatrix) Dims() (int, int) {
	return f.m.Dims()
}

// At returns the weight of bin (i, j).
func (f *FrequencyMatrix) At(i, j int) float64 {
	return f.m.At(i, j)
}

// Dense returns a copy of the underlying matrix.
func (f *FrequencyMatrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(f.m)
}
