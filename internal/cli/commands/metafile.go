package commands

import (
	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/cli/ui"
	"github.com/EPICLab/synectic/internal/core/metafile"
)

var metafileHandler string

var metafileCmd = &cobra.Command{
	Use:     "metafile <path>",
	Aliases: []string{"mf"},
	Short:   "Open a path and show its metafile",
	Args:    cobra.ExactArgs(1),
	RunE:    runMetafile,
}

func init() {
	metafileCmd.Flags().StringVar(&metafileHandler, "handler", "", "Open with this handler instead of the filetype default")
}

func runMetafile(cmd *cobra.Command, args []string) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	mf, err := c.Engine.OpenWith(cmd.Context(), metafile.Query{Path: path, Handler: metafileHandler})
	if err != nil {
		return err
	}

	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(mf)
	}
	ui.PrintMetafile(*mf)
	return nil
}
