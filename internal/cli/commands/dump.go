package commands

import (
	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/cli/ui"
)

var dumpCmd = &cobra.Command{
	Use:   "dump [path]",
	Short: "Print the entity store as JSON",
	Long: `Load path (the working directory by default) and print every
repository, branch, metafile and cache entry the engine tracks as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Engine.Status(cmd.Context(), path); err != nil {
		return err
	}
	return ui.NewJSONFormatter(cmd.OutOrStdout(), cmd.ErrOrStderr()).Output(c.Engine.Store().Snapshot())
}
