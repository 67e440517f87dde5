package git

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Merge merges compare into the branch checked out in dir. The combined git
// output is returned even when the merge fails.
func (o *Operations) Merge(ctx context.Context, dir, compare string) (string, error) {
	o.track("merge", "dir", dir, "compare", compare)
	out, err := o.runRaw(ctx, dir, nil, "merge", "--no-edit", compare)
	if err != nil {
		var gerr *GitError
		if errors.As(err, &gerr) {
			return strings.TrimSpace(out + gerr.Output), err
		}
		return strings.TrimSpace(out), err
	}
	return strings.TrimSpace(out), nil
}

// MergeContinue concludes a merge whose conflicts have been resolved
func (o *Operations) MergeContinue(ctx context.Context, dir string) (string, error) {
	o.track("merge-continue", "dir", dir)
	out, err := o.runRaw(ctx, dir, nil, "-c", "core.editor=true", "merge", "--continue")
	if err != nil {
		var gerr *GitError
		if errors.As(err, &gerr) {
			return strings.TrimSpace(out + gerr.Output), err
		}
		return strings.TrimSpace(out), err
	}
	return strings.TrimSpace(out), nil
}

var mergeMsgPattern = regexp.MustCompile(`^Merge (?:remote-tracking )?branch '([^']+)'(?: into (\S+))?`)

// MergeInProgress inspects gitDir for an unresolved merge. It returns nil
// when no MERGE_HEAD exists.
func (o *Operations) MergeInProgress(ctx context.Context, gitDir string) (*MergeState, error) {
	o.track("merge-state", "gitdir", gitDir)
	head, err := os.ReadFile(filepath.Join(gitDir, "MERGE_HEAD"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read MERGE_HEAD: %w", err)
	}

	state := &MergeState{Head: firstLine(head)}

	if ref, err := os.ReadFile(filepath.Join(gitDir, "HEAD")); err == nil {
		state.Base = strings.TrimPrefix(firstLine(ref), "ref: refs/heads/")
	}

	if msg, err := os.ReadFile(filepath.Join(gitDir, "MERGE_MSG")); err == nil {
		if m := mergeMsgPattern.FindStringSubmatch(firstLine(msg)); m != nil {
			state.Compare = m[1]
			if state.Base == "" && m[2] != "" {
				state.Base = m[2]
			}
		}
	}
	if state.Compare == "" {
		state.Compare = state.Head
	}
	return state, nil
}

func firstLine(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}
