package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/EPICLab/synectic/internal/core/store"
)

// Backend is the capability set the engine consumes from version control.
// Missing refs, config keys or merge state are reported as zero values, not
// errors; errors mean the tool itself failed.
type Backend interface {
	RevParse(ctx context.Context, dir string, args ...string) (string, error)
	CurrentBranch(ctx context.Context, dir string) (string, error)
	DefaultBranch(ctx context.Context, dir string) (string, error)
	ListBranches(ctx context.Context, dir string, scope store.Scope) ([]BranchRef, error)
	ResolveRef(ctx context.Context, dir string, ref BranchRef) (string, error)
	Log(ctx context.Context, dir string, ref BranchRef, depth int) ([]string, error)

	WorktreeAdd(ctx context.Context, dir string, opts WorktreeAddOptions) error
	WorktreeList(ctx context.Context, dir string) ([]WorktreeInfo, error)
	WorktreeRemove(ctx context.Context, dir, path string) error
	WorktreePrune(ctx context.Context, dir string) error
	WorktreeStatus(ctx context.Context, root string, pathspec ...string) ([]StatusEntry, error)
	FileStatus(ctx context.Context, root, path string) (store.VersionStatus, error)
	CheckUnmergedPath(ctx context.Context, root, path string) ([]string, error)

	Merge(ctx context.Context, dir, compare string) (string, error)
	MergeContinue(ctx context.Context, dir string) (string, error)
	MergeInProgress(ctx context.Context, gitDir string) (*MergeState, error)

	GetConfig(ctx context.Context, dir, key string) (string, bool, error)
	SetConfig(ctx context.Context, dir, key, value string) error
	GetRemoteConfig(ctx context.Context, dir string) (*RemoteConfig, error)
	GetCredentials(ctx context.Context, dir, url string) (*Credentials, error)

	Add(ctx context.Context, root, path string) error
	Restore(ctx context.Context, root, path string, staged bool) error
	CheckoutPathspec(ctx context.Context, root, ref, path string) error
	CreateBranch(ctx context.Context, dir, branch, start string) error
	DeleteBranch(ctx context.Context, dir, branch string) error
	Commit(ctx context.Context, root, message string) (string, error)
}

// BranchRef names a branch. Remote is set only for remote-tracking refs.
type BranchRef struct {
	Name   string
	Remote string
	Hash   string
}

// Scope returns the scope the ref belongs to
func (r BranchRef) Scope() store.Scope {
	if r.Remote != "" {
		return store.ScopeRemote
	}
	return store.ScopeLocal
}

// FullName returns the fully qualified reference name
func (r BranchRef) FullName() string {
	if r.Remote != "" {
		return fmt.Sprintf("refs/remotes/%s/%s", r.Remote, r.Name)
	}
	return "refs/heads/" + r.Name
}

// ShortName returns the name git accepts on the command line
func (r BranchRef) ShortName() string {
	if r.Remote != "" {
		return r.Remote + "/" + r.Name
	}
	return r.Name
}

// WorktreeInfo is one record of `git worktree list --porcelain`
type WorktreeInfo struct {
	Path     string
	Branch   string
	Commit   string
	Bare     bool
	Detached bool
	Prunable bool
}

// WorktreeAddOptions selects how a linked worktree is created
type WorktreeAddOptions struct {
	Path string
	// Ref is the branch checked out in the new worktree
	Ref string
	// NewBranch creates Ref starting at Start
	NewBranch bool
	Start     string
	// Track sets upstream tracking when Start is a remote ref
	Track bool
}

// StatusEntry is one path reported by worktree status. Dir is set for
// untracked directories git collapses into a single entry.
type StatusEntry struct {
	Path     string
	Status   store.VersionStatus
	Dir      bool
	Unmerged bool
}

// MergeState describes an unresolved merge found in a git directory
type MergeState struct {
	Base    string
	Compare string
	Head    string
}

// RemoteConfig describes the configured remote of a repository
type RemoteConfig struct {
	Name     string
	URL      string
	Protocol string
	Host     string
	Owner    string
	Repo     string
}

// Credentials are the values returned by the git credential helper
type Credentials struct {
	Username string
	Password string
}

// GitError carries the output of a failed git invocation
type GitError struct {
	Args   []string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), out)
}

func (e *GitError) Unwrap() error {
	return e.Err
}
