package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/config"
	"github.com/derickschaefer/energyratio/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage energyratio configuration",
	Long:  `Read and write energyratio configuration stored in config.json.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit it to change bootstrap counts, percentiles or bin widths.")
		return nil
	},
}

// configOut is the resolved configuration as printed by `config get`.
type configOut struct {
	Format          string     `json:"default_format"`
	DBPath          string     `json:"db_path"`
	Seed            uint64     `json:"seed"`
	NBootstraps     int        `json:"n_bootstraps"`
	NBlocks         int        `json:"n_blocks"`
	Percentiles     [2]float64 `json:"percentiles"`
	Workers         int        `json:"workers"`
	Resampling      string     `json:"resampling"`
	DirectionStep   float64    `json:"direction_step"`
	SpeedStep       float64    `json:"speed_step"`
	RefPowerStep    float64    `json:"ref_power_step"`
	MinutesPerPoint float64    `json:"minutes_per_point"`
	ConfigFile      string     `json:"config_file"`
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.DBPath)
		if err != nil {
			return err
		}

		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}
		out := configOut{
			Format:          cfg.Format,
			DBPath:          cfg.DBPath,
			Seed:            cfg.Seed,
			NBootstraps:     cfg.NBootstraps,
			NBlocks:         cfg.NBlocks,
			Percentiles:     cfg.Percentiles,
			Workers:         cfg.Workers,
			Resampling:      cfg.Resampling,
			DirectionStep:   cfg.DirectionStep,
			SpeedStep:       cfg.SpeedStep,
			RefPowerStep:    cfg.RefPowerStep,
			MinutesPerPoint: cfg.MinutesPerPoint,
			ConfigFile:      src,
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		printKVTableTo(cmd.OutOrStdout(), [][]string{
			{"default_format", out.Format},
			{"db_path", out.DBPath},
			{"seed", fmt.Sprintf("%d", out.Seed)},
			{"n_bootstraps", fmt.Sprintf("%d", out.NBootstraps)},
			{"n_blocks", fmt.Sprintf("%d", out.NBlocks)},
			{"percentiles", fmt.Sprintf("%g, %g", out.Percentiles[0], out.Percentiles[1])},
			{"workers", fmt.Sprintf("%d", out.Workers)},
			{"resampling", out.Resampling},
			{"direction_step", fmt.Sprintf("%g°", out.DirectionStep)},
			{"speed_step", fmt.Sprintf("%g m/s", out.SpeedStep)},
			{"ref_power_step", fmt.Sprintf("%g kW", out.RefPowerStep)},
			{"minutes_per_point", fmt.Sprintf("%g", out.MinutesPerPoint)},
			{"config_file", src},
		})
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in config.json",
	Example: `  energyratio config set n_bootstraps 200
  energyratio config set percentiles 2.5,97.5
  energyratio config set resampling paired`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])

		// Load existing file or start from template
		path := config.DefaultConfigFile
		f := config.Template()
		if existing, err := config.ReadFile(path); err == nil {
			f = *existing
		} else if !os.IsNotExist(err) {
			return err
		}

		if err := config.Set(&f, key, args[1]); err != nil {
			return err
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}
