package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/energyratio/internal/app"
)

// Shell scripts come from cobra's default `completion` command. This file
// supplies the dynamic part: case names and result IDs read from the store.

// completionStore opens the store for a completion request. A database that
// does not exist yet yields nil so that tab never creates one.
func completionStore() *app.Deps {
	deps, err := buildDeps()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(deps.Config.DBPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := deps.RequireStore(); err != nil {
		return nil
	}
	return deps
}

// storedCaseNames lists stored case names with their record counts as
// descriptions, skipping names already on the command line.
func storedCaseNames(deps *app.Deps, used []string, prefix string) []cobra.Completion {
	infos, err := deps.Store.ListCases()
	if err != nil {
		return nil
	}
	var out []cobra.Completion
	for _, ci := range infos {
		if slices.Contains(used, ci.Name) || !strings.HasPrefix(ci.Name, prefix) {
			continue
		}
		out = append(out, cobra.CompletionWithDesc(ci.Name, fmt.Sprintf("%d records, %d turbines", ci.Records, ci.Turbines)))
	}
	return out
}

// completeCases completes up to n positional case names.
func completeCases(n int) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) >= n {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		deps := completionStore()
		if deps == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer deps.Close()
		return storedCaseNames(deps, args, toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

// completeImport completes a new case name freely and then a data file.
func completeImport(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
	if len(args) == 1 {
		return []cobra.Completion{"csv", "jsonl", "json"}, cobra.ShellCompDirectiveFilterFileExt
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

// completeResultIDs completes saved result IDs with the command that
// produced them.
func completeResultIDs(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	deps := completionStore()
	if deps == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	defer deps.Close()
	saved, err := deps.Store.ListResults()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []cobra.Completion
	for _, r := range saved {
		if strings.HasPrefix(r.ID, toComplete) {
			out = append(out, cobra.CompletionWithDesc(r.ID, r.Command))
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	caseShowCmd.ValidArgsFunction = completeCases(1)
	caseExportCmd.ValidArgsFunction = completeCases(1)
	caseDeleteCmd.ValidArgsFunction = completeCases(1)
	caseImportCmd.ValidArgsFunction = completeImport
	resultsShowCmd.ValidArgsFunction = completeResultIDs
	for _, c := range []*cobra.Command{ratioRangeCmd, ratioWDCmd, ratioWSCmd, ratioPowRefCmd} {
		c.ValidArgsFunction = completeCases(2)
	}
}
