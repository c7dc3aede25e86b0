package bootstrap

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/derickschaefer/energyratio/internal/model"
)

// ─── Blocks ───────────────────────────────────────────────────────────────────

// Block is the half-open record span [Start, End) of one case.
type Block struct {
	Start int
	End   int
}

// Len returns the number of records in b.
func (b Block) Len() int { return b.End - b.Start }

// Partition splits n records into k contiguous blocks in record order.
// Sizes differ by at most one; the larger blocks come first, so the last
// block is the shorter one when n is not divisible by k.
func Partition(n, k int) ([]Block, error) {
	if k < 1 {
		return nil, fmt.Errorf("partition: block count must be positive, got %d: %w", k, model.ErrConfiguration)
	}
	if n < 0 {
		return nil, fmt.Errorf("partition: negative record count %d: %w", n, model.ErrConfiguration)
	}
	size, extra := n/k, n%k
	out := make([]Block, k)
	start := 0
	for i := range out {
		l := size
		if i < extra {
			l++
		}
		out[i] = Block{Start: start, End: start + l}
		start += l
	}
	return out, nil
}

// concat joins the drawn blocks of records in draw order. Records are
// shared with the input; the table copies them on ingestion.
func concat(records []model.Record, blocks []Block, draw []int) []model.Record {
	n := 0
	for _, b := range draw {
		n += blocks[b].Len()
	}
	out := make([]model.Record, 0, n)
	for _, b := range draw {
		out = append(out, records[blocks[b].Start:blocks[b].End]...)
	}
	return out
}

// ─── Resampling policies ──────────────────────────────────────────────────────

// ResamplePolicy draws the block indices of one bootstrap iteration.
// Draw returns one slice of nBlocks indices in [0, nBlocks) per case.
type ResamplePolicy interface {
	Name() string
	Draw(rng *rand.Rand, nCases, nBlocks int) [][]int
}

// Policy names accepted by PolicyByName.
const (
	PolicyIndependent = "independent"
	PolicyPaired      = "paired"
)

// IndependentBlocks resamples every case with its own draw.
type IndependentBlocks struct{}

func (IndependentBlocks) Name() string { return PolicyIndependent }

func (IndependentBlocks) Draw(rng *rand.Rand, nCases, nBlocks int) [][]int {
	out := make([][]int, nCases)
	for c := range out {
		out[c] = drawIndices(rng, nBlocks)
	}
	return out
}

// PairedBlocks applies one draw to every case, keeping blocks that cover the
// same period together across cases.
type PairedBlocks struct{}

func (PairedBlocks) Name() string { return PolicyPaired }

func (PairedBlocks) Draw(rng *rand.Rand, nCases, nBlocks int) [][]int {
	d := drawIndices(rng, nBlocks)
	out := make([][]int, nCases)
	for c := range out {
		out[c] = d
	}
	return out
}

func drawIndices(rng *rand.Rand, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = rng.IntN(n)
	}
	return out
}

// PolicyByName resolves a policy name. An empty name selects IndependentBlocks.
func PolicyByName(name string) (ResamplePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyIndependent:
		return IndependentBlocks{}, nil
	case PolicyPaired:
		return PairedBlocks{}, nil
	default:
		return nil, fmt.Errorf("unknown resampling policy %q (use independent or paired): %w", name, model.ErrConfiguration)
	}
}
