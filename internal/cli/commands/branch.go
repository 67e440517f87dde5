package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/cli/ui"
	"github.com/EPICLab/synectic/internal/core/branch"
)

var (
	branchRepo     string
	branchHead     string
	branchContinue bool
)

var branchCmd = &cobra.Command{
	Use:     "branch",
	Aliases: []string{"br"},
	Short:   "Inspect and manage branches",
}

var branchListCmd = &cobra.Command{
	Use:     "list [path]",
	Aliases: []string{"ls"},
	Short:   "List the branches of the repository containing path",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runBranchList,
}

var branchAddCmd = &cobra.Command{
	Use:   "add <ref>",
	Short: "Make a branch available, creating a linked worktree when needed",
	Long: `Make ref usable alongside the current checkout.

A ref that is checked out already is returned as is. Otherwise a linked
worktree is created next to the repository, tracking the remote branch
when only a remote ref exists and creating a new branch when neither does.
With --head, a new branch named <ref>-<head> starts at that commit.`,
	Args: cobra.ExactArgs(1),
	RunE: runBranchAdd,
}

var branchRemoveCmd = &cobra.Command{
	Use:     "rm <ref>",
	Aliases: []string{"remove"},
	Short:   "Remove a local branch and its linked worktree",
	Args:    cobra.ExactArgs(1),
	RunE:    runBranchRemove,
}

var branchMergeCmd = &cobra.Command{
	Use:   "merge <base> [compare]",
	Short: "Merge compare into base",
	Long: `Merge compare into base. The merge runs in the worktree where base is
checked out. Conflicts leave base unmerged; resolve them and run
'synectic branch merge <base> --continue'.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runBranchMerge,
}

func init() {
	branchCmd.PersistentFlags().StringVarP(&branchRepo, "repo", "C", "", "Path inside the repository (default: working directory)")
	branchAddCmd.Flags().StringVar(&branchHead, "head", "", "Start a new branch at this commit")
	branchMergeCmd.Flags().BoolVar(&branchContinue, "continue", false, "Conclude a merge after resolving conflicts")

	branchCmd.AddCommand(branchListCmd)
	branchCmd.AddCommand(branchAddCmd)
	branchCmd.AddCommand(branchRemoveCmd)
	branchCmd.AddCommand(branchMergeCmd)
}

func repoPath(args []string) (string, error) {
	if len(args) > 0 {
		return pathArg(args)
	}
	return pathArg([]string{branchRepo})
}

func runBranchList(cmd *cobra.Command, args []string) error {
	path, err := repoPath(args)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	view, err := c.Engine.FetchRepo(cmd.Context(), path)
	if err != nil {
		return err
	}
	if view == nil {
		return fmt.Errorf("%s is not inside a git repository", path)
	}

	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(view)
	}
	ui.PrintRepository(view.Repository, view.Branches())
	return nil
}

func runBranchAdd(cmd *cobra.Command, args []string) error {
	path, err := repoPath(nil)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	b, err := c.Engine.AddBranch(cmd.Context(), path, args[0], branchHead)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("failed to add branch %s", args[0])
	}

	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(b)
	}
	ui.Success("Branch %s available at %s", b.Ref, b.Root)
	return nil
}

func runBranchRemove(cmd *cobra.Command, args []string) error {
	path, err := repoPath(nil)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	removed, err := c.Engine.RemoveBranch(cmd.Context(), path, args[0])
	if err != nil {
		return err
	}

	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(map[string]any{"ref": args[0], "removed": removed})
	}
	if !removed {
		return fmt.Errorf("branch %s was not removed", args[0])
	}
	ui.Success("Removed branch %s", args[0])
	return nil
}

func runBranchMerge(cmd *cobra.Command, args []string) error {
	if !branchContinue && len(args) < 2 {
		return fmt.Errorf("merge requires <base> and <compare>, or --continue")
	}
	path, err := repoPath(nil)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	compare := ""
	if len(args) > 1 {
		compare = args[1]
	}
	res, err := c.Engine.MergeBranch(cmd.Context(), path, args[0], compare, branchContinue)
	if err != nil {
		return err
	}

	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(res)
	}
	if res.Output != "" {
		ui.OutputLine("%s", ui.DimStyle.Render(res.Output))
	}
	if res.Status == branch.MergeFailing {
		ui.Error("Merge into %s failed", args[0])
		return fmt.Errorf("merge failed")
	}
	ui.Success("Merged into %s", args[0])
	return nil
}
