package branch

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

// FetchBranches returns every local and remote branch of the repository
// containing root, building the ones not yet in the store
func (m *Manager) FetchBranches(ctx context.Context, root string) (local, remote []store.Branch, err error) {
	wt := worktree.Resolve(root)
	if !wt.Found() {
		return nil, nil, nil
	}

	for _, scope := range []store.Scope{store.ScopeLocal, store.ScopeRemote} {
		refs, err := m.git.ListBranches(ctx, wt.Dir, scope)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list %s branches: %w", scope, err)
		}
		for _, ref := range refs {
			b, err := m.FetchBranch(ctx, Query{Identifiers: Identifiers{Root: wt.Dir, Ref: ref.Name, Scope: scope}})
			if err != nil {
				return nil, nil, err
			}
			if b == nil {
				continue
			}
			if scope == store.ScopeLocal {
				local = append(local, *b)
			} else {
				remote = append(remote, *b)
			}
		}
	}
	return local, remote, nil
}

// SyncRepository rewrites the branch id lists of the repository rooted at
// root and drops stored branches whose refs no longer exist
func (m *Manager) SyncRepository(ctx context.Context, root string) error {
	main := worktree.Resolve(root).Dir
	if main == "" {
		return nil
	}

	local, remote, err := m.FetchBranches(ctx, main)
	if err != nil {
		return err
	}

	keep := map[store.BranchID]bool{}
	localIDs := make([]store.BranchID, 0, len(local))
	for _, b := range local {
		keep[b.ID] = true
		localIDs = append(localIDs, b.ID)
	}
	remoteIDs := make([]store.BranchID, 0, len(remote))
	for _, b := range remote {
		keep[b.ID] = true
		remoteIDs = append(remoteIDs, b.ID)
	}

	stale := m.store.FindBranches(func(b store.Branch) bool {
		return !keep[b.ID] && worktree.Resolve(b.Root).Dir == main
	})
	for _, b := range stale {
		if err := m.store.RemoveBranch(b.ID); err != nil {
			m.log.Debug("stale branch already removed", "ref", b.Ref)
		}
	}

	repo, ok := m.store.FindRepositoryByRoot(main)
	if !ok {
		return nil
	}
	if slices.Equal(repo.Local, localIDs) && slices.Equal(repo.Remote, remoteIDs) {
		return nil
	}
	repo.Local = localIDs
	repo.Remote = remoteIDs
	if err := m.store.UpdateRepository(repo); err != nil {
		return fmt.Errorf("failed to update repository branches: %w", err)
	}
	return nil
}

// UpdateBranches rebuilds branches concurrently and returns those that still exist
func (m *Manager) UpdateBranches(ctx context.Context, branches []store.Branch) ([]store.Branch, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	var mu sync.Mutex
	results := make([]*store.Branch, len(branches))
	for i, b := range branches {
		g.Go(func() error {
			updated, err := m.UpdateBranch(ctx, b)
			if err != nil {
				return fmt.Errorf("failed to update branch %s: %w", b.Ref, err)
			}
			mu.Lock()
			results[i] = updated
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]store.Branch, 0, len(results))
	for _, b := range results {
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, nil
}
