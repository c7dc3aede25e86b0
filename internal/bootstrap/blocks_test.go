package bootstrap_test

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/derickschaefer/energyratio/internal/bootstrap"
	"github.com/derickschaefer/energyratio/internal/model"
)

func TestPartitionSizesAndCoverage(t *testing.T) {
	for _, tc := range []struct{ n, k int }{
		{1000, 10}, {1003, 10}, {7, 3}, {10, 10}, {5, 1}, {0, 4}, {3, 5},
	} {
		blocks, err := bootstrap.Partition(tc.n, tc.k)
		if err != nil {
			t.Fatalf("Partition(%d,%d): %v", tc.n, tc.k, err)
		}
		if len(blocks) != tc.k {
			t.Fatalf("Partition(%d,%d): expected %d blocks, got %d", tc.n, tc.k, tc.k, len(blocks))
		}
		minLen, maxLen := blocks[0].Len(), blocks[0].Len()
		next := 0
		for i, b := range blocks {
			if b.Start != next {
				t.Errorf("Partition(%d,%d): block %d starts at %d, expected %d", tc.n, tc.k, i, b.Start, next)
			}
			next = b.End
			minLen = min(minLen, b.Len())
			maxLen = max(maxLen, b.Len())
			if i > 0 && b.Len() > blocks[i-1].Len() {
				t.Errorf("Partition(%d,%d): block %d longer than block %d", tc.n, tc.k, i, i-1)
			}
		}
		if next != tc.n {
			t.Errorf("Partition(%d,%d): blocks cover %d records, expected %d", tc.n, tc.k, next, tc.n)
		}
		if maxLen-minLen > 1 {
			t.Errorf("Partition(%d,%d): sizes range %d..%d", tc.n, tc.k, minLen, maxLen)
		}
	}
}

func TestPartitionRejectsZeroBlocks(t *testing.T) {
	_, err := bootstrap.Partition(10, 0)
	if !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestIndependentDrawDiffersPerCase(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	d := bootstrap.IndependentBlocks{}.Draw(rng, 2, 50)
	if len(d) != 2 || len(d[0]) != 50 || len(d[1]) != 50 {
		t.Fatalf("unexpected draw shape %d×%d", len(d), len(d[0]))
	}
	same := true
	for i := range d[0] {
		if d[0][i] < 0 || d[0][i] >= 50 || d[1][i] < 0 || d[1][i] >= 50 {
			t.Fatalf("draw index out of range at %d", i)
		}
		if d[0][i] != d[1][i] {
			same = false
		}
	}
	if same {
		t.Error("independent draws of 50 blocks should not coincide")
	}
}

func TestPairedDrawSharedAcrossCases(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	d := bootstrap.PairedBlocks{}.Draw(rng, 2, 20)
	for i := range d[0] {
		if d[0][i] != d[1][i] {
			t.Fatalf("paired draw differs at %d: %d vs %d", i, d[0][i], d[1][i])
		}
	}
}

func TestPolicyByName(t *testing.T) {
	for name, want := range map[string]string{
		"":            bootstrap.PolicyIndependent,
		"independent": bootstrap.PolicyIndependent,
		"Paired":      bootstrap.PolicyPaired,
	} {
		p, err := bootstrap.PolicyByName(name)
		if err != nil {
			t.Fatalf("PolicyByName(%q): %v", name, err)
		}
		if p.Name() != want {
			t.Errorf("PolicyByName(%q): expected %s, got %s", name, want, p.Name())
		}
	}
	if _, err := bootstrap.PolicyByName("stratified"); !errors.Is(err, model.ErrConfiguration) {
		t.Errorf("unknown policy: expected ErrConfiguration, got %v", err)
	}
}

func TestParseCount(t *testing.T) {
	good := []any{20, int64(20), 20.0, "20", " 20 "}
	for _, v := range good {
		n, err := bootstrap.ParseCount("n_bootstraps", v)
		if err != nil || n != 20 {
			t.Errorf("ParseCount(%v): expected 20, got %d (%v)", v, n, err)
		}
	}
	for _, v := range []any{20.5, "twenty", true, nil} {
		if _, err := bootstrap.ParseCount("n_bootstraps", v); !errors.Is(err, model.ErrType) {
			t.Errorf("ParseCount(%v): expected ErrType, got %v", v, err)
		}
	}
	for _, v := range []any{0, -3, "0"} {
		if _, err := bootstrap.ParseCount("n_blocks", v); !errors.Is(err, model.ErrConfiguration) {
			t.Errorf("ParseCount(%v): expected ErrConfiguration, got %v", v, err)
		}
	}
}
