package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorktreeAdd creates a linked worktree at opts.Path
func (o *Operations) WorktreeAdd(ctx context.Context, dir string, opts WorktreeAddOptions) error {
	o.track("worktree-add", "dir", dir, "path", opts.Path, "ref", opts.Ref, "new", opts.NewBranch)
	if opts.Path == "" || opts.Ref == "" {
		return fmt.Errorf("worktree path and ref are required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create worktree parent: %w", err)
	}

	args := []string{"worktree", "add"}
	if opts.Track {
		args = append(args, "--track")
	}
	if opts.NewBranch {
		args = append(args, "-b", opts.Ref, opts.Path)
		if opts.Start != "" {
			args = append(args, opts.Start)
		}
	} else {
		args = append(args, opts.Path, opts.Ref)
	}

	if _, err := o.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("failed to create worktree: %w", err)
	}
	return nil
}

// WorktreeList returns every worktree of the repository containing dir,
// main worktree first
func (o *Operations) WorktreeList(ctx context.Context, dir string) ([]WorktreeInfo, error) {
	o.track("worktree-list", "dir", dir)
	out, err := o.runRaw(ctx, dir, nil, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to list worktrees: %w", err)
	}
	return parseWorktreeList([]byte(out)), nil
}

// WorktreeRemove force-removes the linked worktree at path
func (o *Operations) WorktreeRemove(ctx context.Context, dir, path string) error {
	o.track("worktree-remove", "dir", dir, "path", path)
	if _, err := o.run(ctx, dir, "worktree", "remove", "--force", path); err != nil {
		return fmt.Errorf("failed to remove worktree: %w", err)
	}
	return nil
}

// WorktreePrune drops administrative records of worktrees whose directory is gone
func (o *Operations) WorktreePrune(ctx context.Context, dir string) error {
	o.track("worktree-prune", "dir", dir)
	if _, err := o.run(ctx, dir, "worktree", "prune"); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}
	return nil
}

func parseWorktreeList(output []byte) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current *WorktreeInfo

	flush := func() {
		if current != nil {
			worktrees = append(worktrees, *current)
			current = nil
		}
	}

	for _, line := range bytes.Split(output, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			flush()
			continue
		}

		key, value, _ := strings.Cut(string(line), " ")
		switch key {
		case "worktree":
			flush()
			current = &WorktreeInfo{Path: filepath.Clean(value)}
		case "branch":
			if current != nil {
				current.Branch = strings.TrimPrefix(value, "refs/heads/")
			}
		case "HEAD":
			if current != nil {
				current.Commit = value
			}
		case "bare":
			if current != nil {
				current.Bare = true
			}
		case "detached":
			if current != nil {
				current.Detached = true
			}
		case "prunable":
			if current != nil {
				current.Prunable = true
			}
		}
	}
	flush()

	return worktrees
}
