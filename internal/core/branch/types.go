package branch

import (
	"github.com/EPICLab/synectic/internal/core/store"
)

// Identifiers select a branch by worktree root, ref name and scope. Root may
// be the main worktree or any linked worktree of the repository.
type Identifiers struct {
	Root  string
	Ref   string
	Scope store.Scope
}

// Query selects a branch either by identifiers or by a metafile whose
// branch should be resolved. Metafile takes precedence for steps that need it.
type Query struct {
	Identifiers
	Metafile *store.Metafile
}

// AddOptions describe a ref that should be checked out and usable
type AddOptions struct {
	Root string
	Ref  string
	// Head optionally pins the commit a new branch starts from
	Head string
}

// Transition names which path AddBranch took
type Transition int

const (
	TransitionNone Transition = iota
	// TransitionCurrent: ref is already checked out in the main worktree
	TransitionCurrent
	// TransitionLinked: ref already has a linked worktree
	TransitionLinked
	// TransitionLocal: a linked worktree was created for an existing local branch
	TransitionLocal
	// TransitionRemote: a linked worktree was created tracking a remote branch
	TransitionRemote
	// TransitionNew: a new branch and linked worktree were created
	TransitionNew
)

func (t Transition) String() string {
	switch t {
	case TransitionCurrent:
		return "current"
	case TransitionLinked:
		return "linked"
	case TransitionLocal:
		return "local"
	case TransitionRemote:
		return "remote"
	case TransitionNew:
		return "new"
	default:
		return "none"
	}
}

// MergeStatus is the outcome of a merge attempt
type MergeStatus string

const (
	MergePassing MergeStatus = "Passing"
	MergeFailing MergeStatus = "Failing"
)

// MergeResult reports a merge outcome. Conflicts are a Failing result, not an error.
type MergeResult struct {
	Status MergeStatus   `json:"status"`
	Output string        `json:"output"`
	Branch *store.Branch `json:"branch,omitempty"`
}
