package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/app"
	"github.com/derickschaefer/energyratio/internal/bootstrap"
	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/pipeline"
	"github.com/derickschaefer/energyratio/internal/table"
	"github.com/derickschaefer/energyratio/internal/util"
)

// ratioFlags is shared by every ratio subcommand; only one runs per process.
var ratioFlags struct {
	Turbines    string
	WD          string
	WS          string
	PowRef      string
	MinPoints   int
	Stat        string
	Freq        string
	FreqFile    string
	Bootstraps  string
	Blocks      string
	Seed        uint64
	Percentiles string
	UsePowRef   bool
	Resampling  string
	Workers     int
	Save        bool
}

var ratioCmd = &cobra.Command{
	Use:   "ratio",
	Short: "Compute energy ratios between two stored cases",
	Long: `Compute the energy ratio test/reference with block bootstrap intervals.

Both cases are binned by wind direction and by wind speed (or reference power
with --use-pow-ref). Energy per bin is the summed turbine power times the bin
frequency times the hours per record. Each case is cut into --blocks
contiguous blocks which are resampled --bootstraps times; the interval is the
--percentiles of the resampled ratios.

Ranges are half-open and written lo:hi, lo: or :hi.`,
}

var ratioRangeCmd = &cobra.Command{
	Use:   "range <REFERENCE> <TEST>",
	Short: "One ratio over the whole selected range",
	Example: `  energyratio ratio range baseline control
  energyratio ratio range baseline control --wd 250:290 --ws 6:12 --turbines 0,1
  energyratio ratio range baseline control --bootstraps 200 --percentiles 2.5,97.5 --save`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRatio(cmd, args, "range")
	},
}

var ratioWDCmd = &cobra.Command{
	Use:   "wd <REFERENCE> <TEST>",
	Short: "Ratio per wind direction bin",
	Example: `  energyratio ratio wd baseline control
  energyratio ratio wd baseline control --ws 8:12 --format csv`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRatio(cmd, args, model.AxisDirection)
	},
}

var ratioWSCmd = &cobra.Command{
	Use:   "ws <REFERENCE> <TEST>",
	Short: "Ratio per wind speed bin",
	Example: `  energyratio ratio ws baseline control --wd 250:290`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRatio(cmd, args, model.AxisSpeed)
	},
}

var ratioPowRefCmd = &cobra.Command{
	Use:   "pow-ref <REFERENCE> <TEST>",
	Short: "Ratio per reference power bin (implies --use-pow-ref)",
	Example: `  energyratio ratio pow-ref base_ref ctrl_ref --freq ref_power`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ratioFlags.UsePowRef = true
		return runRatio(cmd, args, model.AxisRefPower)
	},
}

// runRatio builds the bootstrap engine for args and answers one query.
func runRatio(cmd *cobra.Command, args []string, axis string) error {
	start := time.Now()
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	if err := checkFormat(resolveFormat(deps.Config.Format)); err != nil {
		return err
	}
	if err := applyRatioFlags(cmd, deps); err != nil {
		return err
	}
	query, err := ratioQuery()
	if err != nil {
		return err
	}
	if err := deps.RequireStore(); err != nil {
		return err
	}
	defer deps.Close()

	engine, err := buildEngine(cmd.Context(), deps, args[0], args[1])
	if err != nil {
		return err
	}

	var data any
	items := 1
	switch axis {
	case "range":
		data, err = engine.EnergyInRange(query)
	case model.AxisDirection:
		var b model.BinnedRatio
		b, err = engine.EnergyPerDirectionBin(query)
		data, items = b, len(b.Centers)
	case model.AxisSpeed:
		var b model.BinnedRatio
		b, err = engine.EnergyPerSpeedBin(query)
		data, items = b, len(b.Centers)
	case model.AxisRefPower:
		var b model.BinnedRatio
		b, err = engine.EnergyPerRefPowerBin(query)
		data, items = b, len(b.Centers)
	}
	if err != nil {
		return err
	}

	kind := model.KindBinnedRatio
	if axis == "range" {
		kind = model.KindRatio
	}
	command := fmt.Sprintf("ratio %s %s", cmd.Name(), strings.Join(args, " "))
	result := finish(buildResult(kind, command, data, items), start)

	if ratioFlags.Save {
		saved, err := deps.Store.PutResult(result)
		if err != nil {
			return fmt.Errorf("saving result: %w", err)
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("saved as %s (energyratio results show %s)", saved.ID, saved.ID))
	}
	return emit(deps, result)
}

// applyRatioFlags layers the bootstrap flags over the resolved config.
func applyRatioFlags(cmd *cobra.Command, deps *app.Deps) error {
	cfg := deps.Config
	f := cmd.Flags()
	if f.Changed("bootstraps") {
		n, err := bootstrap.ParseCount("--bootstraps", ratioFlags.Bootstraps)
		if err != nil {
			return err
		}
		cfg.NBootstraps = n
	}
	if f.Changed("blocks") {
		n, err := bootstrap.ParseCount("--blocks", ratioFlags.Blocks)
		if err != nil {
			return err
		}
		cfg.NBlocks = n
	}
	if f.Changed("seed") {
		cfg.Seed = ratioFlags.Seed
	}
	if f.Changed("percentiles") {
		p, err := util.ParseFloatList(ratioFlags.Percentiles)
		if err != nil || len(p) != 2 {
			return fmt.Errorf("--percentiles must be two comma-separated numbers, got %q: %w",
				ratioFlags.Percentiles, model.ErrConfiguration)
		}
		cfg.Percentiles = [2]float64{p[0], p[1]}
	}
	if f.Changed("resampling") {
		cfg.Resampling = ratioFlags.Resampling
	}
	if f.Changed("workers") {
		cfg.Workers = ratioFlags.Workers
	}
	return cfg.Validate()
}

// ratioQuery converts the range and aggregation flags into a query.
func ratioQuery() (bootstrap.Query, error) {
	var q bootstrap.Query
	var err error
	if q.Turbines, err = parseTurbines(ratioFlags.Turbines); err != nil {
		return q, err
	}
	if q.DirectionRange, err = parseRange(ratioFlags.WD, "--wd"); err != nil {
		return q, err
	}
	if q.SpeedRange, err = parseRange(ratioFlags.WS, "--ws"); err != nil {
		return q, err
	}
	if q.RefPowerRange, err = parseRange(ratioFlags.PowRef, "--pow-ref"); err != nil {
		return q, err
	}
	q.MinPointsPerBin = ratioFlags.MinPoints
	q.Statistic = table.Statistic(strings.ToLower(ratioFlags.Stat))
	q.Frequency = table.FrequencySource(strings.ToLower(ratioFlags.Freq))
	return q, nil
}

// buildEngine loads both cases and builds the nominal and bootstrap tables.
func buildEngine(ctx context.Context, deps *app.Deps, refName, testName string) (*bootstrap.Engine, error) {
	cfg := deps.Config
	opts, err := cfg.BootstrapOptions(ratioFlags.UsePowRef)
	if err != nil {
		return nil, err
	}
	engine, err := bootstrap.New(opts)
	if err != nil {
		return nil, err
	}
	for _, name := range []string{refName, testName} {
		c, err := loadCase(deps, name)
		if err != nil {
			return nil, err
		}
		if err := engine.AddCase(c); err != nil {
			return nil, err
		}
	}

	slog.Debug("building bootstrap tables",
		"reference", refName, "test", testName,
		"bootstraps", cfg.NBootstraps, "blocks", cfg.NBlocks,
		"workers", cfg.Workers, "resampling", opts.Policy.Name())
	if err := engine.BuildBootstrapTables(ctx, cfg.NBootstraps, cfg.NBlocks); err != nil {
		return nil, err
	}

	if ratioFlags.FreqFile != "" {
		f, err := os.Open(ratioFlags.FreqFile)
		if err != nil {
			return nil, fmt.Errorf("--freq-file: %w", err)
		}
		defer f.Close()
		m, err := pipeline.ReadMatrixCSV(f)
		if err != nil {
			return nil, fmt.Errorf("--freq-file: %w", err)
		}
		if err := engine.SetUserDefinedFrequencyMatrix(m); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

func addRatioFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&ratioFlags.Turbines, "turbines", "", "comma-separated turbine indices (default: all)")
	f.StringVar(&ratioFlags.WD, "wd", "", "wind direction range in degrees, lo:hi")
	f.StringVar(&ratioFlags.WS, "ws", "", "wind speed range in m/s, lo:hi")
	f.StringVar(&ratioFlags.PowRef, "pow-ref", "", "reference power range in kW, lo:hi (with --use-pow-ref)")
	f.IntVar(&ratioFlags.MinPoints, "min-points", 1, "minimum valid points for a turbine to count in a bin")
	f.StringVar(&ratioFlags.Stat, "stat", string(table.StatMean), "per-bin power statistic: mean|median")
	f.StringVar(&ratioFlags.Freq, "freq", string(table.FrequencyTurbine), "bin frequency source: turbine|pooled|ref_power")
	f.StringVar(&ratioFlags.FreqFile, "freq-file", "", "headerless CSV frequency matrix (direction rows × axis columns)")
	f.StringVar(&ratioFlags.Bootstraps, "bootstraps", "", "number of bootstrap tables (default: config n_bootstraps)")
	f.StringVar(&ratioFlags.Blocks, "blocks", "", "number of time blocks per case (default: config n_blocks)")
	f.Uint64Var(&ratioFlags.Seed, "seed", 0, "random seed (default: config seed)")
	f.StringVar(&ratioFlags.Percentiles, "percentiles", "", "interval percentiles lo,hi (default: 5,95)")
	f.BoolVar(&ratioFlags.UsePowRef, "use-pow-ref", false, "bin on reference power instead of wind speed")
	f.StringVar(&ratioFlags.Resampling, "resampling", "", "block resampling: independent|paired")
	f.IntVar(&ratioFlags.Workers, "workers", 0, "parallel bootstrap workers (default: config workers)")
	f.BoolVar(&ratioFlags.Save, "save", false, "keep the result in the local database")
}

func init() {
	rootCmd.AddCommand(ratioCmd)
	for _, c := range []*cobra.Command{ratioRangeCmd, ratioWDCmd, ratioWSCmd, ratioPowRefCmd} {
		addRatioFlags(c)
		ratioCmd.AddCommand(c)
	}
}
