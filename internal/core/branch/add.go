package branch

import (
	"context"
	"fmt"

	"github.com/EPICLab/synectic/internal/core/git"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

// AddBranch makes opts.Ref checked out and usable, creating a linked
// worktree when needed. It returns nil when the branch could not be
// materialized; worktree failures are logged, not returned.
func (m *Manager) AddBranch(ctx context.Context, opts AddOptions) (*store.Branch, error) {
	b, _, err := m.addBranch(ctx, opts)
	return b, err
}

func (m *Manager) addBranch(ctx context.Context, opts AddOptions) (*store.Branch, Transition, error) {
	wt := worktree.Resolve(opts.Root)
	if !wt.Found() || opts.Ref == "" {
		return nil, TransitionNone, nil
	}
	main := wt.Dir

	current, err := m.git.CurrentBranch(ctx, main)
	if err != nil {
		return nil, TransitionNone, fmt.Errorf("failed to read current branch: %w", err)
	}
	if current == opts.Ref {
		b, err := m.FetchBranch(ctx, Query{Identifiers: Identifiers{Root: main, Ref: opts.Ref, Scope: store.ScopeLocal}})
		return b, TransitionCurrent, err
	}

	worktrees, err := m.git.WorktreeList(ctx, main)
	if err != nil {
		return nil, TransitionNone, err
	}
	for i, w := range worktrees {
		if i == 0 || w.Branch != opts.Ref || w.Prunable {
			continue
		}
		b, err := m.FetchBranch(ctx, Query{Identifiers: Identifiers{Root: w.Path, Ref: opts.Ref, Scope: store.ScopeLocal}})
		return b, TransitionLinked, err
	}

	local, err := m.git.ResolveRef(ctx, main, git.BranchRef{Name: opts.Ref})
	if err != nil {
		return nil, TransitionNone, err
	}

	ref := opts.Ref
	var add git.WorktreeAddOptions
	var transition Transition

	switch {
	case local != "":
		transition = TransitionLocal
		if opts.Head != "" {
			ref = fmt.Sprintf("%s-%s", opts.Ref, shortOid(opts.Head))
			add = git.WorktreeAddOptions{Ref: ref, NewBranch: true, Start: opts.Head}
		} else {
			add = git.WorktreeAddOptions{Ref: ref}
		}
	default:
		remote := git.BranchRef{Name: opts.Ref, Remote: m.remoteName(ctx, main, opts.Ref)}
		tracking, err := m.git.ResolveRef(ctx, main, remote)
		if err != nil {
			return nil, TransitionNone, err
		}
		if tracking != "" {
			transition = TransitionRemote
			add = git.WorktreeAddOptions{Ref: ref, NewBranch: true, Start: remote.ShortName(), Track: true}
		} else {
			transition = TransitionNew
			start := opts.Head
			if start == "" {
				start = "HEAD"
			}
			add = git.WorktreeAddOptions{Ref: ref, NewBranch: true, Start: start}
		}
	}

	add.Path = worktree.LinkedPath(m.worktreeDir, main, ref)
	if err := m.git.WorktreeAdd(ctx, main, add); err != nil {
		m.log.Warn("failed to create linked worktree", "ref", ref, "path", add.Path, "transition", transition, "error", err)
		return nil, transition, nil
	}
	m.log.Info("created linked worktree", "ref", ref, "path", add.Path, "transition", transition)

	b, err := m.BuildBranch(ctx, Identifiers{Root: add.Path, Ref: ref, Scope: store.ScopeLocal})
	if err != nil {
		return nil, transition, err
	}
	if err := m.SyncRepository(ctx, main); err != nil {
		m.log.Warn("failed to sync repository after add", "root", main, "error", err)
	}
	return b, transition, nil
}

func shortOid(oid string) string {
	if len(oid) > 7 {
		return oid[:7]
	}
	return oid
}
