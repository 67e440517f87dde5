package commands

import (
	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/cli/ui"
	"github.com/EPICLab/synectic/internal/core/store"
)

var statusAll bool

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the version status of a file or directory",
	Long: `Reconcile the metafile at path (the working directory by default) with
git and list the paths whose version status differs from HEAD.

A leading '*' marks changes that are not staged.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "Include unmodified paths")
}

type statusEntry struct {
	Path      string              `json:"path"`
	Kind      store.Kind          `json:"kind"`
	Status    store.VersionStatus `json:"status"`
	Conflicts []string            `json:"conflicts,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	metafiles, err := c.Engine.Status(cmd.Context(), path)
	if err != nil {
		return err
	}

	if ui.GlobalFormatter.IsJSON() {
		entries := make([]statusEntry, 0, len(metafiles))
		for _, mf := range metafiles {
			if !mf.Versioned() || (!statusAll && !mf.Version.Status.Changed()) {
				continue
			}
			entries = append(entries, statusEntry{
				Path:      mf.Path,
				Kind:      mf.Kind,
				Status:    mf.Version.Status,
				Conflicts: mf.Version.Conflicts,
			})
		}
		return ui.GlobalFormatter.Output(entries)
	}

	top := metafiles[0]
	if top.Version == nil {
		ui.Warning("%s is not inside a git repository", path)
		return nil
	}
	if b, ok := c.Engine.Store().Branch(top.Version.Branch); ok {
		ui.OutputLine("%s On branch %s", ui.BranchIcon, ui.BoldStyle.Render(b.Ref))
	}
	ui.PrintStatusList(metafiles, statusAll)
	return nil
}
