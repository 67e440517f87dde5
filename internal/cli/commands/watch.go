package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/cli/ui"
	"github.com/EPICLab/synectic/internal/core/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Keep a checkout synchronized and print store changes",
	Long: `Open path (the working directory by default), watch the checkout that
contains it and print every change the engine applies to the store until
interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := pathArg(args)
	if err != nil {
		return err
	}
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	e := c.Engine
	changes, unsubscribe := e.Store().Subscribe(c.Config.Watch.Buffer)
	defer unsubscribe()

	if _, err := e.Open(ctx, path); err != nil {
		return err
	}
	h, err := e.Watch(path)
	if err != nil {
		return err
	}
	if !ui.GlobalFormatter.IsJSON() {
		ui.Info("Watching %s (Ctrl-C to stop)", h.Root())
	}

	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	for {
		select {
		case err := <-errc:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			if err := printChange(e.Store(), ch); err != nil {
				return err
			}
		}
	}
}

func printChange(s *store.Store, ch store.Change) error {
	if ui.GlobalFormatter.IsJSON() {
		return ui.GlobalFormatter.Output(ch)
	}

	label := ch.ID
	switch ch.Kind {
	case store.EntityMetafile:
		if mf, ok := s.Metafile(store.MetafileID(ch.ID)); ok {
			label = mf.Name
			if mf.Versioned() {
				label += " " + ui.StatusStyle(mf.Version.Status).Render(string(mf.Version.Status))
			}
		}
	case store.EntityBranch:
		if b, ok := s.Branch(store.BranchID(ch.ID)); ok {
			label = b.Ref + " " + ui.BranchStatusStyle(b.Status).Render(string(b.Status))
		}
	case store.EntityRepository:
		if r, ok := s.Repository(store.RepositoryID(ch.ID)); ok {
			label = r.Name
		}
	}
	ui.OutputLine("%s %s %s", ui.DimStyle.Render(string(ch.Action)), ch.Kind, label)
	return nil
}
