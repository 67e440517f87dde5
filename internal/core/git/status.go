package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/EPICLab/synectic/internal/core/store"
)

// WorktreeStatus reports every path in the worktree at root whose status
// differs from HEAD. Returned paths are absolute.
func (o *Operations) WorktreeStatus(ctx context.Context, root string, pathspec ...string) ([]StatusEntry, error) {
	o.track("status", "root", root, "pathspec", pathspec)
	return o.status(ctx, root, false, pathspec...)
}

func (o *Operations) status(ctx context.Context, root string, ignored bool, pathspec ...string) ([]StatusEntry, error) {
	args := []string{"--no-optional-locks", "status", "--porcelain=v1", "-z"}
	if ignored {
		args = append(args, "--ignored=matching")
	}
	if len(pathspec) > 0 {
		args = append(args, "--")
		for _, p := range pathspec {
			args = append(args, relativeTo(root, p))
		}
	}
	out, err := o.runRaw(ctx, root, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read status: %w", err)
	}
	return parsePorcelainStatus(root, out), nil
}

// FileStatus returns the status of a single path, including paths git does
// not report because they are unchanged or missing
func (o *Operations) FileStatus(ctx context.Context, root, path string) (store.VersionStatus, error) {
	o.track("file-status", "root", root, "path", path)
	entries, err := o.status(ctx, root, true, path)
	if err != nil {
		return "", err
	}

	target := filepath.Clean(path)
	for _, e := range entries {
		if e.Path == target || (e.Dir && isWithin(e.Path, target)) {
			return e.Status, nil
		}
	}

	if _, err := os.Lstat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store.StatusAbsent, nil
		}
		return "", fmt.Errorf("failed to stat %s: %w", target, err)
	}
	return store.StatusUnmodified, nil
}

// CheckUnmergedPath lists the absolute paths under path that have unresolved
// merge conflicts
func (o *Operations) CheckUnmergedPath(ctx context.Context, root, path string) ([]string, error) {
	o.track("unmerged", "root", root, "path", path)
	out, err := o.runRaw(ctx, root, nil, "--no-optional-locks", "diff", "--name-only", "--diff-filter=U", "-z", "--", relativeTo(root, path))
	if err != nil {
		return nil, fmt.Errorf("failed to list unmerged paths: %w", err)
	}

	var conflicts []string
	for _, rel := range strings.Split(out, "\x00") {
		if rel == "" {
			continue
		}
		conflicts = append(conflicts, filepath.Join(root, filepath.FromSlash(rel)))
	}
	return conflicts, nil
}

// parsePorcelainStatus decodes `git status --porcelain=v1 -z` output
func parsePorcelainStatus(root, out string) []StatusEntry {
	var entries []StatusEntry
	index := map[string]int{}

	records := strings.Split(out, "\x00")
	for i := 0; i < len(records); i++ {
		rec := records[i]
		if len(rec) < 4 {
			continue
		}
		xy, rel := rec[:2], rec[3:]

		// Renames and copies carry the original path as the next record
		if xy[0] == 'R' || xy[0] == 'C' {
			i++
		}

		entry := StatusEntry{
			Path:     filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(rel, "/"))),
			Dir:      strings.HasSuffix(rel, "/"),
			Status:   statusFromXY(xy),
			Unmerged: isUnmerged(xy),
		}

		// A staged deletion followed by an untracked file of the same name
		if prev, ok := index[entry.Path]; ok {
			if entries[prev].Status == store.StatusDeleted && entry.Status == store.StatusUnstagedAdded {
				entries[prev].Status = store.StatusUnstagedUndelete
			}
			continue
		}
		index[entry.Path] = len(entries)
		entries = append(entries, entry)
	}
	return entries
}

func isUnmerged(xy string) bool {
	switch xy {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	}
	return false
}

// statusFromXY maps a porcelain index/worktree code pair onto VersionStatus
func statusFromXY(xy string) store.VersionStatus {
	if isUnmerged(xy) {
		return store.StatusUnstagedModified
	}
	switch xy {
	case "??":
		return store.StatusUnstagedAdded
	case "!!":
		return store.StatusIgnored
	}

	x, y := xy[0], xy[1]
	switch x {
	case 'A', 'R', 'C':
		switch y {
		case 'D':
			return store.StatusUnstagedAbsent
		case 'M', 'T':
			return store.StatusUnstagedAdded
		}
		return store.StatusAdded
	case 'D':
		return store.StatusDeleted
	case 'M', 'T':
		switch y {
		case 'D':
			return store.StatusUnstagedDeleted
		case 'M', 'T':
			return store.StatusUnstagedModified
		}
		return store.StatusModified
	}

	switch y {
	case 'M', 'T':
		return store.StatusUnstagedModified
	case 'D':
		return store.StatusUnstagedDeleted
	case 'A':
		return store.StatusUnstagedAdded
	}
	return store.StatusUnmodified
}

func relativeTo(root, path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

// isWithin reports whether path equals dir or lies beneath it
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
