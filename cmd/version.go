package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is overridden at link time with
// -ldflags "-X github.com/derickschaefer/energyratio/cmd.Version=v0.2.0".
// When left empty the module version recorded by the go tool is used.
var Version = ""

// engineLibs are the dependencies whose versions change numeric results or
// the on-disk format, reported so a saved result can be traced to them.
var engineLibs = []string{
	"gonum.org/v1/gonum",
	"go.etcd.io/bbolt",
	"github.com/go-gota/gota",
}

type buildInfo struct {
	Version   string            `json:"version"`
	Module    string            `json:"module,omitempty"`
	Revision  string            `json:"revision,omitempty"`
	Committed string            `json:"committed,omitempty"`
	Dirty     bool              `json:"dirty,omitempty"`
	GoVersion string            `json:"go_version"`
	Platform  string            `json:"platform"`
	Libraries map[string]string `json:"libraries,omitempty"`
}

// readBuildInfo merges the link-time Version with what the binary records
// about itself. Test binaries and stripped builds carry no module info.
func readBuildInfo() buildInfo {
	info := buildInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if ok {
		info.Module = bi.Main.Path
		if info.Version == "" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				info.Revision = s.Value
			case "vcs.time":
				info.Committed = s.Value
			case "vcs.modified":
				info.Dirty = s.Value == "true"
			}
		}
		for _, dep := range bi.Deps {
			for _, lib := range engineLibs {
				if dep.Path != lib {
					continue
				}
				if info.Libraries == nil {
					info.Libraries = make(map[string]string)
				}
				info.Libraries[lib] = dep.Version
			}
		}
	}
	if info.Version == "" {
		info.Version = "(devel)"
	}
	return info
}

func (b buildInfo) rows() [][]string {
	rows := [][]string{{"version", b.Version}}
	if b.Revision != "" {
		rev := b.Revision
		if b.Dirty {
			rev += " (modified)"
		}
		rows = append(rows, []string{"revision", rev})
	}
	if b.Committed != "" {
		rows = append(rows, []string{"committed", b.Committed})
	}
	rows = append(rows, []string{"go", b.GoVersion}, []string{"platform", b.Platform})
	for _, lib := range engineLibs {
		if v, ok := b.Libraries[lib]; ok {
			rows = append(rows, []string{lib, v})
		}
	}
	return rows
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the build and the numeric/storage libraries it was linked with",
	Example: `  energyratio version
  energyratio version --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := readBuildInfo()
		w := cmd.OutOrStdout()
		switch globalFlags.Format {
		case "json", "jsonl":
			enc := json.NewEncoder(w)
			if globalFlags.Format == "json" {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(info)
		case "", "table":
			fmt.Fprintln(w, "energyratio")
			printKVTableTo(w, info.rows())
			return nil
		default:
			return fmt.Errorf("version supports --format table|json|jsonl, got %q", globalFlags.Format)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
