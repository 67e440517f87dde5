package commands

import (
	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/cli/ui"
	"github.com/EPICLab/synectic/internal/core/store"
)

var stageCmd = &cobra.Command{
	Use:   "stage <path>",
	Short: "Stage the changes at path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexOp(cmd, args, true)
	},
}

var unstageCmd = &cobra.Command{
	Use:   "unstage <path>",
	Short: "Remove the changes at path from the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndexOp(cmd, args, false)
	},
}

func runIndexOp(cmd *cobra.Command, args []string, stage bool) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	var mf *store.Metafile
	verb := "Staged"
	if stage {
		mf, err = c.Engine.Stage(cmd.Context(), path)
	} else {
		verb = "Unstaged"
		mf, err = c.Engine.Unstage(cmd.Context(), path)
	}
	if err != nil {
		return err
	}

	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(mf)
	}
	if mf.Version == nil {
		ui.Success("%s %s", verb, mf.Path)
		return nil
	}
	status := mf.Version.Status
	ui.Success("%s %s %s", verb, mf.Path, ui.StatusStyle(status).Render(string(status)))
	return nil
}
