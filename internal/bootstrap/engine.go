// Package bootstrap estimates uncertainty on energy ratios by block
// bootstrap: each case's records are split into contiguous blocks, blocks
// are redrawn with replacement, and an independent table is built per draw.
//
// Lifecycle: New → AddCase (exactly twice) → BuildBootstrapTables. Queries
// and the frequency override fail with model.ErrConfiguration before the
// tables are built.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/table"
)

// ─── Options ──────────────────────────────────────────────────────────────────

// DefaultPercentiles is the 90% interval reported when none is configured.
var DefaultPercentiles = [2]float64{5, 95}

// Options configures an Engine.
type Options struct {
	Table table.Options
	// Percentiles are the lower and upper bounds reported around the nominal
	// ratio, in [0, 100].
	Percentiles [2]float64
	// Seed fixes every block draw. Iteration i draws from its own stream
	// seeded (Seed, i), so results do not depend on Workers.
	Seed    uint64
	Policy  ResamplePolicy
	Workers int
}

// DefaultOptions returns the default grid, a 5–95 interval, independent
// resampling and a single worker.
func DefaultOptions() Options {
	return Options{
		Table:       table.DefaultOptions(),
		Percentiles: DefaultPercentiles,
		Policy:      IndependentBlocks{},
		Workers:     1,
	}
}

func validPercentiles(p [2]float64) error {
	for _, v := range p {
		if math.IsNaN(v) || v < 0 || v > 100 {
			return fmt.Errorf("percentile %g outside [0, 100]: %w", v, model.ErrConfiguration)
		}
	}
	if p[0] > p[1] {
		return fmt.Errorf("lower percentile %g above upper %g: %w", p[0], p[1], model.ErrConfiguration)
	}
	return nil
}

// ─── Engine ───────────────────────────────────────────────────────────────────

// Engine holds the nominal table and its bootstrap resamples.
type Engine struct {
	opts  Options
	cases []model.Case

	built   bool
	nBlocks int
	nominal *table.Table
	tables  []*table.Table
	freq    *table.FrequencyMatrix
}

// New validates opts and returns an unbuilt engine.
func New(opts Options) (*Engine, error) {
	if err := opts.Table.Validate(); err != nil {
		return nil, err
	}
	if opts.Percentiles == [2]float64{} {
		opts.Percentiles = DefaultPercentiles
	}
	if err := validPercentiles(opts.Percentiles); err != nil {
		return nil, err
	}
	if opts.Policy == nil {
		opts.Policy = IndependentBlocks{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Engine{opts: opts}, nil
}

// AddCase stores a deep copy of c. The first case is the reference, the
// second the test.
func (e *Engine) AddCase(c model.Case) error {
	if e.built {
		return fmt.Errorf("add case %q: bootstrap tables already built: %w", c.Name, model.ErrConfiguration)
	}
	e.cases = append(e.cases, c.Clone())
	return nil
}

// BuildBootstrapTables builds the nominal table over the full data and
// nBootstraps resampled tables, each from nBlocks blocks drawn per case.
func (e *Engine) BuildBootstrapTables(ctx context.Context, nBootstraps, nBlocks int) error {
	if e.built {
		return fmt.Errorf("build bootstrap tables: already built: %w", model.ErrConfiguration)
	}
	if len(e.cases) != 2 {
		return fmt.Errorf("build bootstrap tables: need exactly 2 cases, have %d: %w", len(e.cases), model.ErrConfiguration)
	}
	if nBootstraps < 1 {
		return fmt.Errorf("build bootstrap tables: n_bootstraps must be positive, got %d: %w", nBootstraps, model.ErrConfiguration)
	}
	if nBlocks < 1 {
		return fmt.Errorf("build bootstrap tables: n_blocks must be positive, got %d: %w", nBlocks, model.ErrConfiguration)
	}

	blocks := make([][]Block, len(e.cases))
	// More blocks than records leaves some blocks empty; an empty draw
	// contributes no records.
	for ci, c := range e.cases {
		b, err := Partition(len(c.Records), nBlocks)
		if err != nil {
			return err
		}
		blocks[ci] = b
	}

	start := time.Now()
	nominal, err := e.buildTable(e.cases)
	if err != nil {
		return fmt.Errorf("nominal table: %w", err)
	}

	tables := make([]*table.Table, nBootstraps)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i := range nBootstraps {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(e.opts.Seed, uint64(i)))
			draws := e.opts.Policy.Draw(rng, len(e.cases), nBlocks)
			resampled := make([]model.Case, len(e.cases))
			for ci, c := range e.cases {
				resampled[ci] = model.Case{Name: c.Name, Records: concat(c.Records, blocks[ci], draws[ci])}
			}
			t, err := e.buildTable(resampled)
			if err != nil {
				return fmt.Errorf("bootstrap %d: %w", i, err)
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	e.nominal = nominal
	e.tables = tables
	e.nBlocks = nBlocks
	e.built = true
	slog.Debug("bootstrap tables built",
		"bootstraps", nBootstraps, "blocks", nBlocks, "policy", e.opts.Policy.Name(),
		"workers", e.opts.Workers, "seed", e.opts.Seed, "elapsed", time.Since(start))
	return nil
}

func (e *Engine) buildTable(cases []model.Case) (*table.Table, error) {
	t, err := table.New(e.opts.Table)
	if err != nil {
		return nil, err
	}
	for _, c := range cases {
		if err := t.AddCase(c); err != nil {
			return nil, err
		}
	}
	if err := t.Build(); err != nil {
		return nil, err
	}
	return t, nil
}

// SetUserDefinedFrequencyMatrix installs m as the frequency weights of the
// nominal table and every bootstrap table. m is copied once and the same
// immutable matrix is shared by all of them.
func (e *Engine) SetUserDefinedFrequencyMatrix(m mat.Matrix) error {
	if !e.built {
		return fmt.Errorf("set frequency matrix: bootstrap tables not built: %w", model.ErrConfiguration)
	}
	fm, err := table.NewFrequencyMatrix(m)
	if err != nil {
		return err
	}
	// The nominal table checks the shape before any table is changed.
	if err := e.nominal.SetFrequencyMatrix(fm); err != nil {
		return err
	}
	for i, t := range e.tables {
		if err := t.SetFrequencyMatrix(fm); err != nil {
			return fmt.Errorf("bootstrap %d: %w", i, err)
		}
	}
	e.freq = fm
	return nil
}

// ─── Accessors ────────────────────────────────────────────────────────────────

// Built reports whether BuildBootstrapTables has completed.
func (e *Engine) Built() bool { return e.built }

// Nominal returns the table built over the unresampled data, nil before build.
func (e *Engine) Nominal() *table.Table { return e.nominal }

// Tables returns the bootstrap tables in iteration order.
func (e *Engine) Tables() []*table.Table {
	out := make([]*table.Table, len(e.tables))
	copy(out, e.tables)
	return out
}

// NumBootstraps returns the number of bootstrap tables built.
func (e *Engine) NumBootstraps() int { return len(e.tables) }

// NumBlocks returns the block count used to build the tables.
func (e *Engine) NumBlocks() int { return e.nBlocks }

// FrequencyMatrix returns the user-defined frequency matrix, or nil.
func (e *Engine) FrequencyMatrix() *table.FrequencyMatrix { return e.freq }

// CaseNames returns the case names in insertion order.
func (e *Engine) CaseNames() []string {
	out := make([]string, len(e.cases))
	for i, c := range e.cases {
		out[i] = c.Name
	}
	return out
}

// Label returns "<test> / <reference>".
func (e *Engine) Label() string {
	if len(e.cases) < 2 {
		return ""
	}
	return e.cases[1].Name + " / " + e.cases[0].Name
}
