package bootstrap_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/derickschaefer/energyratio/internal/bootstrap"
)

// ─── Benchmarks ───────────────────────────────────────────────────────────────

// BenchmarkBuildBootstrapTables measures table construction for a pair of
// 5000-record cases at several worker counts.
func BenchmarkBuildBootstrapTables(b *testing.B) {
	base, ctrl := demoCases(5000, 3)
	for _, workers := range []int{1, 4} {
		b.Run(fmt.Sprintf("workers=%d", workers), func(b *testing.B) {
			opts := bootstrap.DefaultOptions()
			opts.Workers = workers
			for b.Loop() {
				e, err := bootstrap.New(opts)
				if err != nil {
					b.Fatal(err)
				}
				_ = e.AddCase(base)
				_ = e.AddCase(ctrl)
				if err := e.BuildBootstrapTables(context.Background(), 20, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEnergyInRange measures one range query over prebuilt tables.
func BenchmarkEnergyInRange(b *testing.B) {
	base, ctrl := demoCases(5000, 3)
	e, err := bootstrap.New(bootstrap.DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	_ = e.AddCase(base)
	_ = e.AddCase(ctrl)
	if err := e.BuildBootstrapTables(context.Background(), 50, 10); err != nil {
		b.Fatal(err)
	}
	for b.Loop() {
		if _, err := e.EnergyInRange(bootstrap.Query{}); err != nil {
			b.Fatal(err)
		}
	}
}
