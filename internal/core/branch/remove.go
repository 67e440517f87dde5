package branch

import (
	"context"
	"fmt"

	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

// RemoveBranch removes a local branch and its linked worktree. It refuses,
// returning false, to remove the branch checked out in the main worktree or
// a remote-tracking branch. The repository's branch lists are re-synced
// whether or not removal succeeded.
func (m *Manager) RemoveBranch(ctx context.Context, b store.Branch) (removed bool, err error) {
	main := worktree.Resolve(b.Root).Dir
	if main == "" || b.Scope != store.ScopeLocal {
		return false, nil
	}

	current, err := m.git.CurrentBranch(ctx, main)
	if err != nil {
		return false, fmt.Errorf("failed to read current branch: %w", err)
	}
	if current == b.Ref {
		m.log.Warn("refusing to remove the current branch", "ref", b.Ref)
		return false, nil
	}

	defer func() {
		if serr := m.SyncRepository(ctx, main); serr != nil {
			m.log.Warn("failed to sync repository after remove", "root", main, "error", serr)
		}
	}()

	worktrees, err := m.git.WorktreeList(ctx, main)
	if err != nil {
		return false, err
	}
	for i, w := range worktrees {
		if i == 0 || w.Branch != b.Ref {
			continue
		}
		if err := m.git.WorktreeRemove(ctx, main, w.Path); err != nil {
			return false, err
		}
	}

	if err := m.git.DeleteBranch(ctx, main, b.Ref); err != nil {
		return false, err
	}
	if err := m.store.RemoveBranch(b.ID); err != nil {
		m.log.Debug("branch was not stored", "id", b.ID)
	}
	m.log.Info("removed branch", "ref", b.Ref)
	return true, nil
}
