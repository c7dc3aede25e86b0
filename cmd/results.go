package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/bootstrap"
	"github.com/derickschaefer/energyratio/internal/model"
	"github.com/derickschaefer/energyratio/internal/render"
	"github.com/derickschaefer/energyratio/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Review ratio results saved with --save",
}

// ─── results list ─────────────────────────────────────────────────────────────

var resultsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List saved results",
	Example: `  energyratio results list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		saved, err := deps.Store.ListResults()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if len(saved) == 0 && resolveFormat(deps.Config.Format) == render.FormatTable {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved results.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: energyratio ratio range <reference> <test> --save")
			return nil
		}
		data := model.TableData{Headers: []string{"ID", "KIND", "COMMAND", "CREATED"}}
		for _, r := range saved {
			data.Rows = append(data.Rows, []string{r.ID, r.Kind, r.Command, r.CreatedAt.Format(time.RFC3339)})
		}
		return emit(deps, buildResult(model.KindTable, "results list", data, len(saved)))
	},
}

// ─── results show ─────────────────────────────────────────────────────────────

var resultsShowCmd = &cobra.Command{
	Use:     "show <ID>",
	Short:   "Render a saved result",
	Example: `  energyratio results show r00001 --format json`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		saved, found, err := deps.Store.GetResult(args[0])
		if err != nil {
			return fmt.Errorf("reading result: %w", err)
		}
		if !found {
			return fmt.Errorf("no saved result %q\n\n  Use: energyratio results list", args[0])
		}
		data, err := decodeSaved(saved)
		if err != nil {
			return err
		}
		result := buildResult(saved.Kind, saved.Command, data, 1)
		result.GeneratedAt = saved.CreatedAt
		return emit(deps, result)
	},
}

// decodeSaved restores the typed payload of a saved result so that it
// renders exactly as it did when computed.
func decodeSaved(saved store.SavedResult) (any, error) {
	var err error
	switch saved.Kind {
	case model.KindRatio:
		var r bootstrap.RangeResult
		err = json.Unmarshal(saved.Data, &r)
		return r, err
	case model.KindBinnedRatio:
		var b model.BinnedRatio
		err = json.Unmarshal(saved.Data, &b)
		return b, err
	default:
		var raw any
		err = json.Unmarshal(saved.Data, &raw)
		return raw, err
	}
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsListCmd)
	resultsCmd.AddCommand(resultsShowCmd)
}
