package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/bootstrap"
	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/store"
)

// ─── outputWriter ─────────────────────────────────────────────────────────────

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

// ─── Flag parsing ─────────────────────────────────────────────────────────────

func TestParseRange(t *testing.T) {
	r, err := parseRange("250:290", "--wd")
	if err != nil || r != model.Between(250, 290) {
		t.Errorf("250:290: got %+v, %v", r, err)
	}
	r, err = parseRange("6:", "--ws")
	if err != nil || r != model.AtLeast(6) {
		t.Errorf("6: got %+v, %v", r, err)
	}
	r, err = parseRange(":500", "--pow-ref")
	if err != nil || r != model.Below(500) {
		t.Errorf(":500 got %+v, %v", r, err)
	}
	r, err = parseRange("", "--wd")
	if err != nil || !r.IsFull() {
		t.Errorf("empty: expected full range, got %+v, %v", r, err)
	}
	for _, bad := range []string{"5", "a:3", "3:b", "10:5", "5:5"} {
		if _, err := parseRange(bad, "--ws"); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestParseTurbines(t *testing.T) {
	ids, err := parseTurbines("0, 2")
	if err != nil || len(ids) != 2 || ids[1] != 2 {
		t.Errorf("unexpected %v, %v", ids, err)
	}
	if ids, err := parseTurbines(""); err != nil || ids != nil {
		t.Errorf("empty should mean all turbines, got %v, %v", ids, err)
	}
	if _, err := parseTurbines("x"); err == nil {
		t.Error("expected error for non-integer turbine")
	}
}

func TestCheckFormat(t *testing.T) {
	if err := checkFormat("csv"); err != nil {
		t.Errorf("csv should be valid: %v", err)
	}
	if err := checkFormat("xml"); err == nil {
		t.Error("xml should be rejected")
	}
}

func TestDecodeSavedRatio(t *testing.T) {
	data, _ := json.Marshal(bootstrap.RangeResult{
		RatioReport: model.RatioReport{Label: "b / a", Interval: model.RatioInterval{Nominal: 1.1, Lower: 1, Upper: 1.2}},
	})
	got, err := decodeSaved(store.SavedResult{Kind: model.KindRatio, Data: data})
	if err != nil {
		t.Fatalf("decodeSaved: %v", err)
	}
	r, ok := got.(bootstrap.RangeResult)
	if !ok {
		t.Fatalf("expected RangeResult, got %T", got)
	}
	if r.Label != "b / a" || r.Interval.Upper != 1.2 {
		t.Errorf("unexpected decoded result %+v", r)
	}
}

// ─── End to end ───────────────────────────────────────────────────────────────

// runCLI executes the root command in a scratch directory. Every call passes
// its own --out and --format because flag values persist between runs.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(io.Discard)
	return rootCmd.ExecuteContext(context.Background())
}

func TestSynthRatioSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(orig)
		globalFlags.Out, globalFlags.Format, globalFlags.DBPath = "", "", ""
	})
	t.Setenv("ENERGYRATIO_DB_PATH", "")
	t.Setenv("ENERGYRATIO_SEED", "")
	db := filepath.Join(dir, "e.db")
	out := func(name string) string { return filepath.Join(dir, name) }

	if err := runCLI(t, "synth", "--db", db, "--format", "json", "--out", out("synth.json"),
		"--records", "400", "--seed", "3"); err != nil {
		t.Fatalf("synth: %v", err)
	}
	b, _ := os.ReadFile(out("synth.json"))
	if !strings.Contains(string(b), `"baseline"`) || !strings.Contains(string(b), `"control"`) {
		t.Fatalf("synth output missing cases: %s", b)
	}

	if err := runCLI(t, "ratio", "range", "baseline", "control", "--db", db, "--format", "json",
		"--out", out("range.json"), "--bootstraps", "10", "--blocks", "5", "--seed", "1", "--save"); err != nil {
		t.Fatalf("ratio range: %v", err)
	}
	var env struct {
		Kind string                `json:"kind"`
		Data bootstrap.RangeResult `json:"data"`
	}
	b, _ = os.ReadFile(out("range.json"))
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decoding range output: %v\n%s", err, b)
	}
	if env.Kind != model.KindRatio || env.Data.Bootstraps != 10 || env.Data.Blocks != 5 {
		t.Errorf("unexpected envelope %+v", env)
	}
	if iv := env.Data.Interval; !(iv.Nominal > 1) || iv.Lower > iv.Upper {
		t.Errorf("control scales turbine 0 up, expected ratio > 1 with ordered bounds, got %+v", iv)
	}
	if env.Data.Label != "control / baseline" {
		t.Errorf("label: got %q", env.Data.Label)
	}

	err := runCLI(t, "ratio", "range", "baseline", "control", "--db", db, "--format", "json",
		"--out", out("bad.json"), "--bootstraps", "2.5")
	if !errors.Is(err, model.ErrType) {
		t.Errorf("non-integer --bootstraps: expected ErrType, got %v", err)
	}

	if err := runCLI(t, "ratio", "wd", "baseline", "control", "--db", db, "--format", "csv",
		"--out", out("wd.csv"), "--bootstraps", "5", "--blocks", "5"); err != nil {
		t.Fatalf("ratio wd: %v", err)
	}
	b, _ = os.ReadFile(out("wd.csv"))
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if lines[0] != "wd,ratio,p5,p95" || len(lines) != 181 {
		t.Errorf("wd csv: header %q with %d lines", lines[0], len(lines))
	}

	if err := runCLI(t, "results", "list", "--db", db, "--format", "csv", "--out", out("list.csv")); err != nil {
		t.Fatalf("results list: %v", err)
	}
	b, _ = os.ReadFile(out("list.csv"))
	if !strings.Contains(string(b), "r00001,ratio,ratio range baseline control") {
		t.Errorf("saved result not listed: %s", b)
	}
}

// ─── Completion and version ───────────────────────────────────────────────────

func TestCompleteStoredNames(t *testing.T) {
	t.Setenv("ENERGYRATIO_DB_PATH", "")
	db := filepath.Join(t.TempDir(), "c.db")
	st, err := store.Open(db)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	for _, name := range []string{"baseline", "control", "wake-steering"} {
		c := model.Case{Name: name, Records: []model.Record{{WindSpeed: 8, WindDirection: 270, Power: []float64{500}}}}
		if _, err := st.PutCase(c, "test"); err != nil {
			t.Fatalf("PutCase %s: %v", name, err)
		}
	}
	if _, err := st.PutResult(&model.Result{Kind: model.KindRatio, Command: "ratio range baseline control"}); err != nil {
		t.Fatalf("PutResult: %v", err)
	}
	st.Close()

	globalFlags.DBPath = db
	t.Cleanup(func() { globalFlags.DBPath = "" })

	got, dir := completeCases(2)(ratioRangeCmd, []string{"baseline"}, "")
	if dir != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected no file completion, got directive %d", dir)
	}
	if len(got) != 2 || !strings.HasPrefix(got[0], "control\t") || !strings.HasPrefix(got[1], "wake-steering\t") {
		t.Errorf("second case: got %q", got)
	}
	if got, _ := completeCases(2)(ratioRangeCmd, nil, "wa"); len(got) != 1 || !strings.Contains(got[0], "1 records, 1 turbines") {
		t.Errorf("prefix wa: got %q", got)
	}
	if got, _ := completeCases(2)(ratioRangeCmd, []string{"baseline", "control"}, ""); len(got) != 0 {
		t.Errorf("both cases given: expected nothing, got %q", got)
	}
	if got, _ := completeResultIDs(resultsShowCmd, nil, "r"); len(got) != 1 || got[0] != "r00001\tratio range baseline control" {
		t.Errorf("result ids: got %q", got)
	}
}

func TestCompleteWithoutDatabase(t *testing.T) {
	t.Setenv("ENERGYRATIO_DB_PATH", "")
	db := filepath.Join(t.TempDir(), "missing.db")
	globalFlags.DBPath = db
	t.Cleanup(func() { globalFlags.DBPath = "" })

	if got, _ := completeCases(1)(caseShowCmd, nil, ""); len(got) != 0 {
		t.Errorf("expected no names, got %q", got)
	}
	if _, err := os.Stat(db); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("completion must not create the database, stat: %v", err)
	}
}

func TestVersionJSON(t *testing.T) {
	prev := Version
	Version = "v9.9.9"
	t.Cleanup(func() {
		Version = prev
		globalFlags.Format = ""
	})
	var buf bytes.Buffer
	rootCmd.SetArgs([]string{"version", "--format", "json"})
	rootCmd.SetOut(&buf)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	var info buildInfo
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("decoding version output: %v\n%s", err, buf.Bytes())
	}
	if info.Version != "v9.9.9" || info.GoVersion != runtime.Version() || info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("unexpected build info %+v", info)
	}

	buf.Reset()
	rootCmd.SetArgs([]string{"version", "--format", "csv"})
	if err := rootCmd.ExecuteContext(context.Background()); err == nil {
		t.Error("csv: expected unsupported format error")
	}
}
