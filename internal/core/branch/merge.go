package branch

import (
	"context"

	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

// MergeBranch merges compare into base within the repository at root.
// Failures, conflicts included, are returned as a Failing result. The base
// branch is rebuilt afterwards so its status reflects the outcome.
func (m *Manager) MergeBranch(ctx context.Context, root, base, compare string) (*MergeResult, error) {
	target, res := m.mergeTarget(ctx, root, base)
	if res != nil {
		return res, nil
	}

	output, err := m.git.Merge(ctx, target.Root, compare)
	result := &MergeResult{Status: MergePassing, Output: output}
	if err != nil {
		m.log.Warn("merge failed", "base", base, "compare", compare, "error", err)
		result.Status = MergeFailing
		if result.Output == "" {
			result.Output = err.Error()
		}
	}

	result.Branch = m.refresh(ctx, *target)
	return result, nil
}

// MergeBranchContinue concludes a merge into base after conflicts are resolved
func (m *Manager) MergeBranchContinue(ctx context.Context, root, base string) (*MergeResult, error) {
	target, res := m.mergeTarget(ctx, root, base)
	if res != nil {
		return res, nil
	}

	output, err := m.git.MergeContinue(ctx, target.Root)
	result := &MergeResult{Status: MergePassing, Output: output}
	if err != nil {
		m.log.Warn("merge continue failed", "base", base, "error", err)
		result.Status = MergeFailing
		if result.Output == "" {
			result.Output = err.Error()
		}
	}

	result.Branch = m.refresh(ctx, *target)
	return result, nil
}

// mergeTarget locates a worktree where base is checked out, creating a
// linked one if necessary. A non-nil result means the merge cannot start.
func (m *Manager) mergeTarget(ctx context.Context, root, base string) (*store.Branch, *MergeResult) {
	main := worktree.Resolve(root).Dir
	if main == "" {
		return nil, &MergeResult{Status: MergeFailing, Output: "not a git repository: " + root}
	}

	// Merging mutates the worktree, so where base lives must be current
	target, err := m.BuildBranch(ctx, Identifiers{Root: main, Ref: base, Scope: store.ScopeLocal})
	if err != nil {
		return nil, &MergeResult{Status: MergeFailing, Output: err.Error()}
	}
	if target == nil {
		return nil, &MergeResult{Status: MergeFailing, Output: "unknown branch: " + base}
	}
	if !target.Current {
		target, err = m.AddBranch(ctx, AddOptions{Root: main, Ref: base})
		if err != nil {
			return nil, &MergeResult{Status: MergeFailing, Output: err.Error()}
		}
		if target == nil {
			return nil, &MergeResult{Status: MergeFailing, Output: "failed to check out " + base}
		}
	}
	return target, nil
}

func (m *Manager) refresh(ctx context.Context, b store.Branch) *store.Branch {
	updated, err := m.UpdateBranch(ctx, b)
	if err != nil {
		m.log.Warn("failed to update branch after merge", "ref", b.Ref, "error", err)
		return &b
	}
	return updated
}
