// Package git implements the version control backend consumed by the
// synchronization engine. Reference and history reads go through go-git;
// worktree, status and merge operations shell out to the git CLI because
// go-git does not support linked worktrees.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/store"
)

// Operations is the Backend backed by go-git and the git executable
type Operations struct {
	binary string
	log    logger.Logger
	calls  atomic.Int64
}

var _ Backend = (*Operations)(nil)

// Option configures Operations
type Option func(*Operations)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(o *Operations) { o.log = logger.Component(l, "git") }
}

// WithBinary overrides the git executable
func WithBinary(path string) Option {
	return func(o *Operations) { o.binary = path }
}

// NewOperations creates a git backend
func NewOperations(opts ...Option) *Operations {
	o := &Operations{
		binary: "git",
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Calls returns how many backend operations have been issued
func (o *Operations) Calls() int64 {
	return o.calls.Load()
}

func (o *Operations) track(op string, args ...any) {
	o.calls.Add(1)
	o.log.Debug(op, args...)
}

// run executes git in dir and returns trimmed stdout
func (o *Operations) run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := o.runRaw(ctx, dir, nil, args...)
	return strings.TrimSpace(out), err
}

func (o *Operations) runRaw(ctx context.Context, dir string, stdin []byte, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, o.binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}
		return stdout.String(), &GitError{Args: args, Output: output, Err: err}
	}
	return stdout.String(), nil
}

// exitCode extracts the process exit code from a git error, or -1
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func open(dir string) (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", dir, err)
	}
	return repo, nil
}

// IsGitRepository reports whether dir is inside a git repository
func (o *Operations) IsGitRepository(dir string) bool {
	_, err := open(dir)
	return err == nil
}

// RevParse runs `git rev-parse`. Unknown revisions yield an empty string.
func (o *Operations) RevParse(ctx context.Context, dir string, args ...string) (string, error) {
	o.track("rev-parse", "dir", dir, "args", args)
	out, err := o.run(ctx, dir, append([]string{"rev-parse"}, args...)...)
	if err != nil {
		var gerr *GitError
		if errors.As(err, &gerr) && isUnknownRevision(gerr.Output) {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

func isUnknownRevision(output string) bool {
	return strings.Contains(output, "unknown revision") ||
		strings.Contains(output, "ambiguous argument") ||
		strings.Contains(output, "Needed a single revision")
}

// CurrentBranch returns the branch checked out in dir, or "" when HEAD is detached
func (o *Operations) CurrentBranch(ctx context.Context, dir string) (string, error) {
	o.track("current-branch", "dir", dir)
	out, err := o.run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		if exitCode(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return out, nil
}

// DefaultBranch returns the remote default branch, falling back to main or master
func (o *Operations) DefaultBranch(ctx context.Context, dir string) (string, error) {
	o.track("default-branch", "dir", dir)
	out, err := o.run(ctx, dir, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		if branch := strings.TrimPrefix(out, "refs/remotes/origin/"); branch != "" {
			return branch, nil
		}
	}

	repo, err := open(dir)
	if err != nil {
		return "", err
	}
	for _, name := range []string{"main", "master"} {
		if _, err := repo.Reference(plumbing.NewBranchReferenceName(name), false); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// ListBranches lists local branches, or remote-tracking branches for ScopeRemote
func (o *Operations) ListBranches(ctx context.Context, dir string, scope store.Scope) ([]BranchRef, error) {
	o.track("list-branches", "dir", dir, "scope", scope)
	repo, err := open(dir)
	if err != nil {
		return nil, err
	}

	refs, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer refs.Close()

	var out []BranchRef
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		switch {
		case scope == store.ScopeLocal && name.IsBranch():
			out = append(out, BranchRef{Name: name.Short(), Hash: ref.Hash().String()})
		case scope == store.ScopeRemote && name.IsRemote():
			remote, branch, ok := strings.Cut(strings.TrimPrefix(name.String(), "refs/remotes/"), "/")
			if !ok || branch == "HEAD" {
				return nil
			}
			out = append(out, BranchRef{Name: branch, Remote: remote, Hash: ref.Hash().String()})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveRef returns the commit a branch points at, or "" if it does not exist
func (o *Operations) ResolveRef(ctx context.Context, dir string, ref BranchRef) (string, error) {
	o.track("resolve-ref", "dir", dir, "ref", ref.FullName())
	repo, err := open(dir)
	if err != nil {
		return "", err
	}
	r, err := repo.Reference(plumbing.ReferenceName(ref.FullName()), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to resolve %s: %w", ref.FullName(), err)
	}
	return r.Hash().String(), nil
}

// Log returns commit oids reachable from ref, most recent first. A depth of
// zero walks the whole history.
func (o *Operations) Log(ctx context.Context, dir string, ref BranchRef, depth int) ([]string, error) {
	o.track("log", "dir", dir, "ref", ref.FullName(), "depth", depth)
	repo, err := open(dir)
	if err != nil {
		return nil, err
	}
	r, err := repo.Reference(plumbing.ReferenceName(ref.FullName()), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to resolve %s: %w", ref.FullName(), err)
	}

	iter, err := repo.Log(&gogit.LogOptions{From: r.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to read log of %s: %w", ref.FullName(), err)
	}
	defer iter.Close()

	var oids []string
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		oids = append(oids, c.Hash.String())
		if depth > 0 && len(oids) >= depth {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return oids, nil
}

// CreateBranch creates branch at start. An existing branch is left untouched.
func (o *Operations) CreateBranch(ctx context.Context, dir, branch, start string) error {
	o.track("create-branch", "dir", dir, "branch", branch, "start", start)
	args := []string{"branch", branch}
	if start != "" {
		args = append(args, start)
	}
	_, err := o.run(ctx, dir, args...)
	if err != nil {
		var gerr *GitError
		if errors.As(err, &gerr) && strings.Contains(gerr.Output, "already exists") {
			return nil
		}
		return fmt.Errorf("failed to create branch: %w", err)
	}
	return nil
}

// DeleteBranch force-deletes a local branch
func (o *Operations) DeleteBranch(ctx context.Context, dir, branch string) error {
	o.track("delete-branch", "dir", dir, "branch", branch)
	if _, err := o.run(ctx, dir, "branch", "-D", branch); err != nil {
		return fmt.Errorf("failed to delete branch: %w", err)
	}
	return nil
}

// GetConfig reads a config value; a missing key yields ok == false
func (o *Operations) GetConfig(ctx context.Context, dir, key string) (string, bool, error) {
	o.track("config-get", "dir", dir, "key", key)
	out, err := o.run(ctx, dir, "config", "--get", key)
	if err != nil {
		if exitCode(err) == 1 {
			return "", false, nil
		}
		return "", false, err
	}
	return out, true, nil
}

// SetConfig writes a local config value
func (o *Operations) SetConfig(ctx context.Context, dir, key, value string) error {
	o.track("config-set", "dir", dir, "key", key)
	if _, err := o.run(ctx, dir, "config", key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Add stages path
func (o *Operations) Add(ctx context.Context, root, path string) error {
	o.track("add", "root", root, "path", path)
	if _, err := o.run(ctx, root, "add", "--", path); err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}
	return nil
}

// Restore unstages path when staged is true, otherwise discards worktree changes
func (o *Operations) Restore(ctx context.Context, root, path string, staged bool) error {
	o.track("restore", "root", root, "path", path, "staged", staged)
	args := []string{"restore"}
	if staged {
		args = append(args, "--staged")
	}
	args = append(args, "--", path)
	if _, err := o.run(ctx, root, args...); err != nil {
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	return nil
}

// CheckoutPathspec replaces path with its content at ref
func (o *Operations) CheckoutPathspec(ctx context.Context, root, ref, path string) error {
	o.track("checkout-pathspec", "root", root, "ref", ref, "path", path)
	if ref == "" {
		ref = "HEAD"
	}
	if _, err := o.run(ctx, root, "checkout", ref, "--", path); err != nil {
		return fmt.Errorf("failed to checkout %s at %s: %w", path, ref, err)
	}
	return nil
}

// Commit records the index and returns the new HEAD oid
func (o *Operations) Commit(ctx context.Context, root, message string) (string, error) {
	o.track("commit", "root", root)
	if _, err := o.run(ctx, root, "commit", "--no-verify", "-m", message); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return o.run(ctx, root, "rev-parse", "HEAD")
}
