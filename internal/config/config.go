// Package config handles loading and resolving energyratio configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (--db, --seed, --bootstraps, ...)
//  2. Environment variables ENERGYRATIO_DB_PATH, ENERGYRATIO_SEED
//  3. config.json in the current working directory
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/derickschaefer/energyratio/internal/bootstrap"
	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/table"
	"github.com/derickschaefer/energyratio/internal/util"
)

const (
	DefaultConfigFile  = "config.json"
	DefaultFormat      = "table"
	DefaultBootstraps  = 20
	DefaultBlocks      = 10
	DefaultWorkers     = 1
	DefaultResampling  = bootstrap.PolicyIndependent
	EnvDBPath          = "ENERGYRATIO_DB_PATH"
	EnvSeed            = "ENERGYRATIO_SEED"
	defaultDBDir       = ".energyratio"
	defaultDBFile      = "energyratio.db"
	percentileCount    = 2
	validKeysForErrors = "default_format, db_path, seed, n_bootstraps, n_blocks, percentiles, workers, " +
		"resampling, direction_step, speed_step, ref_power_step, minutes_per_point"
)

// File is the on-disk representation of config.json. Counts are kept as
// json.Number so that non-integral values can be reported as type errors
// instead of being silently truncated.
type File struct {
	DefaultFormat   string      `json:"default_format,omitempty"`
	DBPath          string      `json:"db_path,omitempty"`
	Seed            *uint64     `json:"seed,omitempty"`
	NBootstraps     json.Number `json:"n_bootstraps,omitempty"`
	NBlocks         json.Number `json:"n_blocks,omitempty"`
	Percentiles     []float64   `json:"percentiles,omitempty"`
	Workers         int         `json:"workers,omitempty"`
	Resampling      string      `json:"resampling,omitempty"`
	DirectionStep   float64     `json:"direction_step,omitempty"`
	SpeedStep       float64     `json:"speed_step,omitempty"`
	RefPowerStep    float64     `json:"ref_power_step,omitempty"`
	MinutesPerPoint float64     `json:"minutes_per_point,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	Format          string
	DBPath          string
	ConfigPath      string // path of the config.json that was loaded (empty if none found)
	Seed            uint64
	NBootstraps     int
	NBlocks         int
	Percentiles     [2]float64
	Workers         int
	Resampling      string
	DirectionStep   float64
	SpeedStep       float64
	RefPowerStep    float64
	MinutesPerPoint float64

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Defaults returns the built-in configuration before any source is applied.
func Defaults() *Config {
	return &Config{
		Format:          DefaultFormat,
		NBootstraps:     DefaultBootstraps,
		NBlocks:         DefaultBlocks,
		Percentiles:     bootstrap.DefaultPercentiles,
		Workers:         DefaultWorkers,
		Resampling:      DefaultResampling,
		DirectionStep:   table.DefaultDirectionStep,
		SpeedStep:       table.DefaultSpeedStep,
		RefPowerStep:    table.DefaultRefPowerStep,
		MinutesPerPoint: table.DefaultMinutesPerPoint,
	}
}

// errNoFile marks a missing config.json, which is not an error for Load.
var errNoFile = errors.New("config.json not found")

// Load resolves configuration from config.json and the environment.
// flagDBPath is the value of --db (empty string if not set). Other flags are
// applied by the caller on the returned Config.
func Load(flagDBPath string) (*Config, error) {
	cfg := Defaults()

	// Layer 1: config.json (lowest priority)
	f, path, err := loadFile()
	switch {
	case err == nil:
		if err := applyFile(cfg, f, path); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case !errors.Is(err, errNoFile):
		return nil, err
	}

	// Layer 2: environment variables
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s=%q is not an unsigned integer: %w", EnvSeed, v, model.ErrType)
		}
		cfg.Seed = seed
	}

	// Layer 3: CLI flag (highest priority)
	if flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}

	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, defaultDBDir, defaultDBFile)
		}
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs util.MultiError
	if c.NBootstraps < 1 {
		errs.Add(fmt.Errorf("n_bootstraps must be positive, got %d: %w", c.NBootstraps, model.ErrConfiguration))
	}
	if c.NBlocks < 1 {
		errs.Add(fmt.Errorf("n_blocks must be positive, got %d: %w", c.NBlocks, model.ErrConfiguration))
	}
	if c.Workers < 1 {
		errs.Add(fmt.Errorf("workers must be positive, got %d: %w", c.Workers, model.ErrConfiguration))
	}
	p := c.Percentiles
	if p[0] < 0 || p[1] > 100 || p[0] > p[1] {
		errs.Add(fmt.Errorf("percentiles must satisfy 0 <= lo <= hi <= 100, got %v: %w", p, model.ErrConfiguration))
	}
	if _, err := bootstrap.PolicyByName(c.Resampling); err != nil {
		errs.Add(err)
	}
	for name, v := range map[string]float64{
		"direction_step":    c.DirectionStep,
		"speed_step":        c.SpeedStep,
		"ref_power_step":    c.RefPowerStep,
		"minutes_per_point": c.MinutesPerPoint,
	} {
		if !(v > 0) {
			errs.Add(fmt.Errorf("%s must be > 0, got %g: %w", name, v, model.ErrConfiguration))
		}
	}
	return errs.Err()
}

// TableOptions builds the bin grid described by the configuration.
func (c *Config) TableOptions(useRefPower bool) table.Options {
	o := table.OptionsWithSteps(c.DirectionStep, c.SpeedStep, c.RefPowerStep)
	o.MinutesPerPoint = c.MinutesPerPoint
	o.UseRefPower = useRefPower
	return o
}

// BootstrapOptions builds engine options from the configuration.
func (c *Config) BootstrapOptions(useRefPower bool) (bootstrap.Options, error) {
	policy, err := bootstrap.PolicyByName(c.Resampling)
	if err != nil {
		return bootstrap.Options{}, err
	}
	return bootstrap.Options{
		Table:       c.TableOptions(useRefPower),
		Percentiles: c.Percentiles,
		Seed:        c.Seed,
		Policy:      policy,
		Workers:     c.Workers,
	}, nil
}

// loadFile attempts to read config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w at %s", errNoFile, path)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// ReadFile reads a config file from path without applying it.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// applyFile copies values from a parsed File into cfg, skipping any fields
// that are zero/empty. Non-integral counts fail with model.ErrType.
func applyFile(cfg *Config, f *File, path string) error {
	cfg.ConfigPath = path
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.Seed != nil {
		cfg.Seed = *f.Seed
	}
	var errs util.MultiError
	if f.NBootstraps != "" {
		n, err := bootstrap.ParseCount("n_bootstraps", f.NBootstraps)
		errs.Add(err)
		cfg.NBootstraps = n
	}
	if f.NBlocks != "" {
		n, err := bootstrap.ParseCount("n_blocks", f.NBlocks)
		errs.Add(err)
		cfg.NBlocks = n
	}
	if len(f.Percentiles) > 0 {
		if len(f.Percentiles) != percentileCount {
			errs.Add(fmt.Errorf("percentiles needs exactly 2 values, got %d: %w", len(f.Percentiles), model.ErrConfiguration))
		} else {
			cfg.Percentiles = [2]float64{f.Percentiles[0], f.Percentiles[1]}
		}
	}
	if f.Workers > 0 {
		cfg.Workers = f.Workers
	}
	if f.Resampling != "" {
		cfg.Resampling = f.Resampling
	}
	if f.DirectionStep > 0 {
		cfg.DirectionStep = f.DirectionStep
	}
	if f.SpeedStep > 0 {
		cfg.SpeedStep = f.SpeedStep
	}
	if f.RefPowerStep > 0 {
		cfg.RefPowerStep = f.RefPowerStep
	}
	if f.MinutesPerPoint > 0 {
		cfg.MinutesPerPoint = f.MinutesPerPoint
	}
	return errs.Err()
}

// Template returns a File populated with the defaults, suitable for writing
// an initial config.json via `energyratio config init`.
func Template() File {
	d := Defaults()
	return File{
		DefaultFormat:   d.Format,
		NBootstraps:     json.Number(strconv.Itoa(d.NBootstraps)),
		NBlocks:         json.Number(strconv.Itoa(d.NBlocks)),
		Percentiles:     []float64{d.Percentiles[0], d.Percentiles[1]},
		Workers:         d.Workers,
		Resampling:      d.Resampling,
		DirectionStep:   d.DirectionStep,
		SpeedStep:       d.SpeedStep,
		RefPowerStep:    d.RefPowerStep,
		MinutesPerPoint: d.MinutesPerPoint,
	}
}

// Set assigns key=val on f, validating the value type.
func Set(f *File, key, val string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	val = strings.TrimSpace(val)
	parseFloat := func() (float64, error) {
		v, err := strconv.ParseFloat(val, 64)
		if err != nil || !(v > 0) {
			return 0, fmt.Errorf("%s must be a positive number, got %q", key, val)
		}
		return v, nil
	}

	switch key {
	case "default_format", "format":
		f.DefaultFormat = val
	case "db_path":
		f.DBPath = val
	case "seed":
		s, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("seed must be an unsigned integer, got %q: %w", val, model.ErrType)
		}
		f.Seed = &s
	case "n_bootstraps", "n_blocks":
		n, err := bootstrap.ParseCount(key, val)
		if err != nil {
			return err
		}
		num := json.Number(strconv.Itoa(n))
		if key == "n_bootstraps" {
			f.NBootstraps = num
		} else {
			f.NBlocks = num
		}
	case "percentiles":
		p, err := util.ParseFloatList(val)
		if err != nil || len(p) != percentileCount {
			return fmt.Errorf("percentiles must be two comma-separated numbers, got %q", val)
		}
		f.Percentiles = p
	case "workers":
		n, err := bootstrap.ParseCount(key, val)
		if err != nil {
			return err
		}
		f.Workers = n
	case "resampling":
		if _, err := bootstrap.PolicyByName(val); err != nil {
			return err
		}
		f.Resampling = strings.ToLower(val)
	case "direction_step", "speed_step", "ref_power_step", "minutes_per_point":
		v, err := parseFloat()
		if err != nil {
			return err
		}
		switch key {
		case "direction_step":
			f.DirectionStep = v
		case "speed_step":
			f.SpeedStep = v
		case "ref_power_step":
			f.RefPowerStep = v
		default:
			f.MinutesPerPoint = v
		}
	default:
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s", key, validKeysForErrors)
	}
	return nil
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
