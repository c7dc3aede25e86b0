package table

import (
	"fmt"
	"math"
	"sort"

	"github.com/derickschaefer/energyratio/internal/model"
)

// Edges is an ascending sequence of bin boundaries. Bin i is the half-open
// interval [e[i], e[i+1]).
type Edges []float64

// Arange returns start, start+step, ... up to but excluding stop.
// The count is ceil((stop-start)/step), matching numpy.arange.
func Arange(start, stop, step float64) Edges {
	if step <= 0 || stop <= start {
		return nil
	}
	n := int(math.Ceil((stop - start) / step))
	out := make(Edges, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Validate checks that e has at least two strictly increasing, finite edges.
func (e Edges) Validate(name string) error {
	if len(e) < 2 {
		return fmt.Errorf("%s edges: need at least 2 elements, got %d: %w", name, len(e), model.ErrConfiguration)
	}
	for i, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s edges: element %d is not finite: %w", name, i, model.ErrConfiguration)
		}
		if i > 0 && v <= e[i-1] {
			return fmt.Errorf("%s edges: not strictly increasing at index %d (%g after %g): %w",
				name, i, v, e[i-1], model.ErrConfiguration)
		}
	}
	return nil
}

// NumBins returns len(e)-1.
func (e Edges) NumBins() int {
	if len(e) < 2 {
		return 0
	}
	return len(e) - 1
}

// Centers returns the midpoint of every bin.
func (e Edges) Centers() []float64 {
	out := make([]float64, e.NumBins())
	for i := range out {
		out[i] = (e[i] + e[i+1]) / 2
	}
	return out
}

// Bin returns the index of the bin containing v. Values outside
// [e[0], e[last]) and NaN are reported as not binned.
func (e Edges) Bin(v float64) (int, bool) {
	if len(e) < 2 || math.IsNaN(v) || v < e[0] || v >= e[len(e)-1] {
		return -1, false
	}
	i := sort.SearchFloat64s(e, v)
	if e[i] == v {
		return i, true
	}
	return i - 1, true
}

// Clone returns a copy of e.
func (e Edges) Clone() Edges {
	out := make(Edges, len(e))
	copy(out, e)
	return out
}

// WrapDirection maps a direction in degrees into [0, 360).
func WrapDirection(wd float64) float64 {
	w := math.Mod(wd, 360)
	if w < 0 {
		w += 360
	}
	return w
}
