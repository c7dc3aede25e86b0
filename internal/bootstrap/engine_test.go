package bootstrap_test

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/derickschaefer/energyratio/internal/bootstrap"
	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/table"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// demoCases returns a baseline of n uniform records over three turbines and
// a control whose turbine 0 is scaled by 1.25 and clipped to [0, 1000].
func demoCases(n int, seed uint64) (model.Case, model.Case) {
	rng := rand.New(rand.NewPCG(seed, 0))
	base := model.Case{Name: "baseline", Records: make([]model.Record, n)}
	for i := range base.Records {
		base.Records[i] = model.Record{
			WindSpeed:     3 + 22*rng.Float64(),
			WindDirection: 360 * rng.Float64(),
			Power:         []float64{1000 * rng.Float64(), 1000 * rng.Float64(), 1000 * rng.Float64()},
		}
	}
	ctrl := base.Clone()
	ctrl.Name = "control"
	for i := range ctrl.Records {
		ctrl.Records[i].Power[0] = math.Min(ctrl.Records[i].Power[0]*1.25, 1000)
	}
	return base, ctrl
}

func newEngine(t *testing.T, opts bootstrap.Options, cases ...model.Case) *bootstrap.Engine {
	t.Helper()
	e, err := bootstrap.New(opts)
	if err != nil {
		t.Fatalf("bootstrap.New: %v", err)
	}
	for _, c := range cases {
		if err := e.AddCase(c); err != nil {
			t.Fatalf("AddCase: %v", err)
		}
	}
	return e
}

func builtEngine(t *testing.T, opts bootstrap.Options, nBoot, nBlocks int) *bootstrap.Engine {
	t.Helper()
	base, ctrl := demoCases(1000, 11)
	e := newEngine(t, opts, base, ctrl)
	if err := e.BuildBootstrapTables(context.Background(), nBoot, nBlocks); err != nil {
		t.Fatalf("BuildBootstrapTables: %v", err)
	}
	return e
}

func isConfigErr(err error) bool { return errors.Is(err, model.ErrConfiguration) }

// ─── Build ────────────────────────────────────────────────────────────────────

func TestBuildProducesNominalAndBootstrapTables(t *testing.T) {
	e := builtEngine(t, bootstrap.DefaultOptions(), 20, 10)

	if !e.Built() {
		t.Fatal("engine should report built")
	}
	if e.Nominal() == nil {
		t.Fatal("nominal table missing")
	}
	tables := e.Tables()
	if len(tables) != 20 || e.NumBootstraps() != 20 {
		t.Fatalf("expected 20 bootstrap tables, got %d", len(tables))
	}
	for i, tab := range tables {
		if tab == e.Nominal() {
			t.Errorf("bootstrap %d aliases the nominal table", i)
		}
		for ci := 0; ci < 2; ci++ {
			if got, want := tab.NumRecords(ci), e.Nominal().NumRecords(ci); got != want {
				t.Errorf("bootstrap %d case %d: expected %d records, got %d", i, ci, want, got)
			}
		}
	}
	if e.NumBlocks() != 10 {
		t.Errorf("NumBlocks: expected 10, got %d", e.NumBlocks())
	}
	if e.Label() != "control / baseline" {
		t.Errorf("Label: expected %q, got %q", "control / baseline", e.Label())
	}
}

func TestBuildValidation(t *testing.T) {
	base, ctrl := demoCases(100, 1)
	ctx := context.Background()

	one := newEngine(t, bootstrap.DefaultOptions(), base)
	if err := one.BuildBootstrapTables(ctx, 5, 5); !isConfigErr(err) {
		t.Errorf("one case: expected ErrConfiguration, got %v", err)
	}

	e := newEngine(t, bootstrap.DefaultOptions(), base, ctrl)
	if err := e.BuildBootstrapTables(ctx, 0, 5); !isConfigErr(err) {
		t.Errorf("zero bootstraps: expected ErrConfiguration, got %v", err)
	}
	if err := e.BuildBootstrapTables(ctx, 5, -1); !isConfigErr(err) {
		t.Errorf("negative blocks: expected ErrConfiguration, got %v", err)
	}
	if e.Built() {
		t.Error("failed builds must leave the engine unbuilt")
	}
	if err := e.BuildBootstrapTables(ctx, 5, 5); err != nil {
		t.Fatalf("BuildBootstrapTables: %v", err)
	}
	if err := e.AddCase(base); !isConfigErr(err) {
		t.Errorf("AddCase after build: expected ErrConfiguration, got %v", err)
	}
	if err := e.BuildBootstrapTables(ctx, 5, 5); !isConfigErr(err) {
		t.Errorf("second build: expected ErrConfiguration, got %v", err)
	}
}

func TestBuildHonoursCancelledContext(t *testing.T) {
	base, ctrl := demoCases(200, 1)
	e := newEngine(t, bootstrap.DefaultOptions(), base, ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.BuildBootstrapTables(ctx, 10, 4); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewRejectsBadPercentiles(t *testing.T) {
	o := bootstrap.DefaultOptions()
	o.Percentiles = [2]float64{95, 5}
	if _, err := bootstrap.New(o); !isConfigErr(err) {
		t.Errorf("inverted percentiles: expected ErrConfiguration, got %v", err)
	}
	o.Percentiles = [2]float64{5, 101}
	if _, err := bootstrap.New(o); !isConfigErr(err) {
		t.Errorf("percentile above 100: expected ErrConfiguration, got %v", err)
	}
	o = bootstrap.DefaultOptions()
	o.Table.SpeedEdges = table.Edges{1}
	if _, err := bootstrap.New(o); !isConfigErr(err) {
		t.Errorf("single speed edge: expected ErrConfiguration, got %v", err)
	}
}

// ─── Queries ──────────────────────────────────────────────────────────────────

func TestQueriesBeforeBuildFail(t *testing.T) {
	base, ctrl := demoCases(100, 1)
	e := newEngine(t, bootstrap.DefaultOptions(), base, ctrl)
	if _, err := e.EnergyInRange(bootstrap.Query{}); !isConfigErr(err) {
		t.Errorf("EnergyInRange: expected ErrConfiguration, got %v", err)
	}
	if _, err := e.EnergyPerDirectionBin(bootstrap.Query{}); !isConfigErr(err) {
		t.Errorf("EnergyPerDirectionBin: expected ErrConfiguration, got %v", err)
	}
}

func TestEnergyInRangeInterval(t *testing.T) {
	e := builtEngine(t, bootstrap.DefaultOptions(), 20, 10)
	res, err := e.EnergyInRange(bootstrap.Query{Query: table.Query{Turbines: []int{0}}})
	if err != nil {
		t.Fatalf("EnergyInRange: %v", err)
	}
	iv := res.Interval
	if !(iv.Nominal > 1 && iv.Nominal < 1.25) {
		t.Errorf("nominal: expected in (1, 1.25), got %g", iv.Nominal)
	}
	if math.IsNaN(iv.Lower) || math.IsNaN(iv.Upper) || math.IsInf(iv.Lower, 0) || math.IsInf(iv.Upper, 0) {
		t.Fatalf("bounds should be finite, got [%g, %g]", iv.Lower, iv.Upper)
	}
	if iv.Lower > iv.Upper {
		t.Errorf("lower %g above upper %g", iv.Lower, iv.Upper)
	}
	if res.Percentiles != [2]float64{5, 95} {
		t.Errorf("percentiles: expected [5 95], got %v", res.Percentiles)
	}
	if res.Bootstraps != 20 || res.Blocks != 10 {
		t.Errorf("expected 20 bootstraps / 10 blocks, got %d / %d", res.Bootstraps, res.Blocks)
	}
	if res.Samples.Count != 20 || res.Samples.Missing != 0 {
		t.Errorf("samples: expected 20 finite, got count=%d missing=%d", res.Samples.Count, res.Samples.Missing)
	}
	if res.Label != "control / baseline" {
		t.Errorf("label: got %q", res.Label)
	}
}

func TestNarrowerPercentilesNest(t *testing.T) {
	e := builtEngine(t, bootstrap.DefaultOptions(), 30, 10)
	wide, _ := e.EnergyInRange(bootstrap.Query{Percentiles: [2]float64{5, 95}})
	narrow, err := e.EnergyInRange(bootstrap.Query{Percentiles: [2]float64{25, 75}})
	if err != nil {
		t.Fatalf("EnergyInRange: %v", err)
	}
	if narrow.Interval.Lower < wide.Interval.Lower || narrow.Interval.Upper > wide.Interval.Upper {
		t.Errorf("25–75 [%g,%g] should lie inside 5–95 [%g,%g]",
			narrow.Interval.Lower, narrow.Interval.Upper, wide.Interval.Lower, wide.Interval.Upper)
	}
	if _, err := e.EnergyInRange(bootstrap.Query{Percentiles: [2]float64{80, 20}}); !isConfigErr(err) {
		t.Errorf("inverted query percentiles: expected ErrConfiguration, got %v", err)
	}
}

func TestPerBinIntervals(t *testing.T) {
	e := builtEngine(t, bootstrap.DefaultOptions(), 20, 10)
	q := bootstrap.Query{Query: table.Query{Turbines: []int{0}}}

	ws, err := e.EnergyPerSpeedBin(q)
	if err != nil {
		t.Fatalf("EnergyPerSpeedBin: %v", err)
	}
	if ws.Axis != model.AxisSpeed {
		t.Errorf("axis: expected ws, got %s", ws.Axis)
	}
	centers := e.Nominal().SpeedCenters()
	if len(ws.Centers) != len(centers) || len(ws.Intervals) != len(centers) {
		t.Fatalf("expected %d bins, got %d centers / %d intervals", len(centers), len(ws.Centers), len(ws.Intervals))
	}
	for b, iv := range ws.Intervals {
		if ws.Centers[b] != centers[b] {
			t.Errorf("center %d: expected %g, got %g", b, centers[b], ws.Centers[b])
		}
		if !math.IsNaN(iv.Lower) && iv.Lower > iv.Upper {
			t.Errorf("bin %d: lower %g above upper %g", b, iv.Lower, iv.Upper)
		}
	}

	wd, err := e.EnergyPerDirectionBin(q)
	if err != nil {
		t.Fatalf("EnergyPerDirectionBin: %v", err)
	}
	if len(wd.Intervals) != 180 || wd.Axis != model.AxisDirection {
		t.Errorf("expected 180 wd intervals, got %d (%s)", len(wd.Intervals), wd.Axis)
	}
}

func TestMoreBlocksThanRecords(t *testing.T) {
	base, ctrl := demoCases(8, 2)
	e := newEngine(t, bootstrap.DefaultOptions(), base, ctrl)
	if err := e.BuildBootstrapTables(context.Background(), 10, 12); err != nil {
		t.Fatalf("BuildBootstrapTables with 12 blocks over 8 records: %v", err)
	}
	if e.NumBootstraps() != 10 || e.NumBlocks() != 12 {
		t.Errorf("expected 10 tables of 12 blocks, got %d of %d", e.NumBootstraps(), e.NumBlocks())
	}
	for i, tab := range e.Tables() {
		for ci := range 2 {
			if n := tab.NumRecords(ci); n > 12 {
				t.Errorf("bootstrap %d case %d: %d records from 12 blocks of at most one record", i, ci, n)
			}
		}
	}
	if _, err := e.EnergyInRange(bootstrap.Query{}); err != nil {
		t.Errorf("EnergyInRange: %v", err)
	}
}

func TestAxisMismatch(t *testing.T) {
	speed := builtEngine(t, bootstrap.DefaultOptions(), 3, 5)
	if _, err := speed.EnergyPerRefPowerBin(bootstrap.Query{}); !isConfigErr(err) {
		t.Errorf("pow_ref bins on speed engine: expected ErrConfiguration, got %v", err)
	}

	o := bootstrap.DefaultOptions()
	o.Table.UseRefPower = true
	ref := builtEngine(t, o, 3, 5)
	if _, err := ref.EnergyPerSpeedBin(bootstrap.Query{}); !isConfigErr(err) {
		t.Errorf("ws bins on pow_ref engine: expected ErrConfiguration, got %v", err)
	}
}

func TestRefPowerQueryWithoutRefPowerColumn(t *testing.T) {
	base, ctrl := demoCases(100, 4)
	o := bootstrap.DefaultOptions()
	o.Table.UseRefPower = true
	e := newEngine(t, o, base, ctrl)
	if err := e.BuildBootstrapTables(context.Background(), 5, 4); err != nil {
		t.Fatalf("BuildBootstrapTables: %v", err)
	}
	q := bootstrap.Query{}
	q.Frequency = table.FrequencyRefPower
	if _, err := e.EnergyInRange(q); !isConfigErr(err) {
		t.Errorf("EnergyInRange: expected ErrConfiguration for cases without pow_ref, got %v", err)
	}
	if _, err := e.EnergyPerRefPowerBin(q); !isConfigErr(err) {
		t.Errorf("EnergyPerRefPowerBin: expected ErrConfiguration for cases without pow_ref, got %v", err)
	}
}

// ─── Frequency override ───────────────────────────────────────────────────────

func TestFrequencyOverrideBeforeBuildFails(t *testing.T) {
	base, ctrl := demoCases(100, 1)
	e := newEngine(t, bootstrap.DefaultOptions(), base, ctrl)
	if err := e.SetUserDefinedFrequencyMatrix(mat.NewDense(180, 51, nil)); !isConfigErr(err) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestFrequencyOverrideSharedByAllTables(t *testing.T) {
	e := builtEngine(t, bootstrap.DefaultOptions(), 20, 10)
	nd, na := e.Nominal().Shape()
	w := mat.NewDense(nd, na, nil)
	for i := 0; i < nd; i++ {
		for j := 0; j < na; j++ {
			w.Set(i, j, 1)
		}
	}
	if err := e.SetUserDefinedFrequencyMatrix(w); err != nil {
		t.Fatalf("SetUserDefinedFrequencyMatrix: %v", err)
	}
	fm := e.FrequencyMatrix()
	if fm == nil || e.Nominal().FrequencyOverride() != fm {
		t.Fatal("nominal table does not carry the override")
	}
	for i, tab := range e.Tables() {
		if tab.FrequencyOverride() != fm {
			t.Errorf("bootstrap %d does not share the override", i)
		}
	}

	// The caller's matrix is copied; later writes have no effect.
	w.Set(0, 0, 1e9)
	if fm.At(0, 0) != 1 {
		t.Errorf("override aliases caller matrix: got %g", fm.At(0, 0))
	}

	if err := e.SetUserDefinedFrequencyMatrix(mat.NewDense(2, 2, nil)); !isConfigErr(err) {
		t.Errorf("wrong shape: expected ErrConfiguration, got %v", err)
	}
	if e.FrequencyMatrix() != fm {
		t.Error("failed override must leave the previous matrix installed")
	}
}

// ─── Reproducibility ──────────────────────────────────────────────────────────

func TestSeedDeterminesResultAcrossWorkerCounts(t *testing.T) {
	run := func(workers int, seed uint64) bootstrap.RangeResult {
		o := bootstrap.DefaultOptions()
		o.Seed = seed
		o.Workers = workers
		e := builtEngine(t, o, 15, 8)
		r, err := e.EnergyInRange(bootstrap.Query{})
		if err != nil {
			t.Fatalf("EnergyInRange: %v", err)
		}
		return r
	}
	serial := run(1, 7)
	parallel := run(4, 7)
	if serial.Interval != parallel.Interval {
		t.Errorf("workers changed the result: %+v vs %+v", serial.Interval, parallel.Interval)
	}
	other := run(1, 8)
	if other.Interval == serial.Interval {
		t.Error("different seeds should give different intervals")
	}
}

func TestPairedPolicyRuns(t *testing.T) {
	o := bootstrap.DefaultOptions()
	o.Policy = bootstrap.PairedBlocks{}
	e := builtEngine(t, o, 10, 10)

	// Paired draws give both cases identical record sets for turbines 1 and 2,
	// so every bootstrap ratio over them is exactly 1.
	res, err := e.EnergyInRange(bootstrap.Query{Query: table.Query{Turbines: []int{1, 2}}})
	if err != nil {
		t.Fatalf("EnergyInRange: %v", err)
	}
	if res.Interval.Lower != 1 || res.Interval.Upper != 1 {
		t.Errorf("paired untouched turbines: expected [1,1], got [%g,%g]", res.Interval.Lower, res.Interval.Upper)
	}
}
