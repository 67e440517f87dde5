package store

import (
	"slices"
	"time"
)

// RepositoryID identifies a Repository entity
type RepositoryID string

// BranchID identifies a Branch entity
type BranchID string

// MetafileID identifies a Metafile entity
type MetafileID string

// Repository is the identity of one git project
type Repository struct {
	ID            RepositoryID `json:"id"`
	Name          string       `json:"name"`
	Root          string       `json:"root"`
	URL           string       `json:"url,omitempty"`
	DefaultBranch string       `json:"defaultBranch,omitempty"`
	Local         []BranchID   `json:"local"`
	Remote        []BranchID   `json:"remote"`

	// Credentials stay in memory and are never serialized
	OAuth    string `json:"-"`
	Username string `json:"-"`
	Password string `json:"-"`
	Token    string `json:"-"`
}

func (r Repository) clone() Repository {
	r.Local = slices.Clone(r.Local)
	r.Remote = slices.Clone(r.Remote)
	return r
}

// Scope distinguishes local refs from remote-tracking refs
type Scope string

const (
	ScopeLocal  Scope = "local"
	ScopeRemote Scope = "remote"
)

// BranchStatus is the worktree-level state of a branch
type BranchStatus string

const (
	BranchClean       BranchStatus = "clean"
	BranchUncommitted BranchStatus = "uncommitted"
	BranchUnmerged    BranchStatus = "unmerged"
)

// Merging describes an unresolved merge of Compare into Base
type Merging struct {
	Base    string `json:"base"`
	Compare string `json:"compare"`
}

// Branch is one ref in one worktree
type Branch struct {
	ID      BranchID     `json:"id"`
	Ref     string       `json:"ref"`
	Scope   Scope        `json:"scope"`
	Root    string       `json:"root"`
	GitDir  string       `json:"gitdir"`
	Linked  bool         `json:"linked"`
	Current bool         `json:"current"`
	Bare    bool         `json:"bare"`
	Status  BranchStatus `json:"status"`
	Commits []string     `json:"commits"`
	Head    string       `json:"head"`
	Merging *Merging     `json:"merging,omitempty"`
}

func (b Branch) clone() Branch {
	b.Commits = slices.Clone(b.Commits)
	if b.Merging != nil {
		m := *b.Merging
		b.Merging = &m
	}
	return b
}

// Equal reports whether two branches carry identical state
func (b Branch) Equal(o Branch) bool {
	if b.ID != o.ID || b.Ref != o.Ref || b.Scope != o.Scope || b.Root != o.Root ||
		b.GitDir != o.GitDir || b.Linked != o.Linked || b.Current != o.Current ||
		b.Bare != o.Bare || b.Status != o.Status || b.Head != o.Head {
		return false
	}
	if !slices.Equal(b.Commits, o.Commits) {
		return false
	}
	switch {
	case b.Merging == nil && o.Merging == nil:
		return true
	case b.Merging == nil || o.Merging == nil:
		return false
	default:
		return *b.Merging == *o.Merging
	}
}

// Kind tags the variant of a Metafile
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	KindVirtual   Kind = "virtual"
	KindDiff      Kind = "diff"
)

// FileState tracks whether in-memory content diverges from disk
type FileState string

const (
	StateUnmodified FileState = "unmodified"
	StateModified   FileState = "modified"
)

// VersionStatus is the VCS status of a path. A leading '*' marks a change
// that is not staged in the index.
type VersionStatus string

const (
	StatusUnmodified       VersionStatus = "unmodified"
	StatusModified         VersionStatus = "modified"
	StatusAdded            VersionStatus = "added"
	StatusDeleted          VersionStatus = "deleted"
	StatusAbsent           VersionStatus = "absent"
	StatusUnstagedModified VersionStatus = "*modified"
	StatusUnstagedAdded    VersionStatus = "*added"
	StatusUnstagedDeleted  VersionStatus = "*deleted"
	StatusUnstagedAbsent   VersionStatus = "*absent"
	StatusUnstagedUndelete VersionStatus = "*undeleted"
	StatusIgnored          VersionStatus = "ignored"
)

// Unstaged reports whether the status carries unstaged changes
func (s VersionStatus) Unstaged() bool {
	return len(s) > 0 && s[0] == '*'
}

// Changed reports whether the status differs from the committed state
func (s VersionStatus) Changed() bool {
	return s != "" && s != StatusUnmodified && s != StatusIgnored
}

// Version is the optional VCS information carried by filebased metafiles
type Version struct {
	Repo      RepositoryID  `json:"repo"`
	Branch    BranchID      `json:"branch"`
	Status    VersionStatus `json:"status"`
	Conflicts []string      `json:"conflicts"`
}

// Metafile is the in-memory representation of one trackable content unit.
// Which fields are meaningful depends on Kind:
//
//	file:      Path, Mtime, State, Content
//	directory: Path, Mtime, State, Contains
//	virtual:   Content, Targets
//	diff:      Content, Targets
//
// Version is present only on filebased metafiles inside a repository.
type Metafile struct {
	ID       MetafileID   `json:"id"`
	Name     string       `json:"name"`
	Kind     Kind         `json:"kind"`
	Handler  string       `json:"handler"`
	Filetype string       `json:"filetype"`
	Path     string       `json:"path,omitempty"`
	Mtime    time.Time    `json:"mtime,omitempty"`
	State    FileState    `json:"state,omitempty"`
	Content  string       `json:"content,omitempty"`
	Contains []MetafileID `json:"contains,omitempty"`
	Targets  []MetafileID `json:"targets,omitempty"`
	Version  *Version     `json:"version,omitempty"`
}

func (m Metafile) clone() Metafile {
	m.Contains = slices.Clone(m.Contains)
	m.Targets = slices.Clone(m.Targets)
	if m.Version != nil {
		v := *m.Version
		v.Conflicts = slices.Clone(v.Conflicts)
		m.Version = &v
	}
	return m
}

// Clone returns a deep copy safe to mutate
func (m Metafile) Clone() Metafile {
	return m.clone()
}

// Filebased reports whether the metafile is backed by a filesystem path
func (m Metafile) Filebased() bool {
	return m.Kind == KindFile || m.Kind == KindDirectory
}

// IsDirectory reports whether the metafile is a directory
func (m Metafile) IsDirectory() bool {
	return m.Kind == KindDirectory
}

// Versioned reports whether the metafile carries VCS information
func (m Metafile) Versioned() bool {
	return m.Filebased() && m.Version != nil
}

// MetafileCases is the set of handlers passed to Match; every kind must be covered
type MetafileCases[T any] struct {
	File      func(m Metafile) T
	Directory func(m Metafile) T
	Virtual   func(m Metafile) T
	Diff      func(m Metafile) T
}

// Match dispatches on the metafile kind. It panics on an unknown kind or a
// missing case, which is a programming error.
func Match[T any](m Metafile, c MetafileCases[T]) T {
	var fn func(Metafile) T
	switch m.Kind {
	case KindFile:
		fn = c.File
	case KindDirectory:
		fn = c.Directory
	case KindVirtual:
		fn = c.Virtual
	case KindDiff:
		fn = c.Diff
	default:
		panic("store: unknown metafile kind " + string(m.Kind))
	}
	if fn == nil {
		panic("store: no case for metafile kind " + string(m.Kind))
	}
	return fn(m)
}

// CacheEntry records which owners hold a reservation on a path's content
type CacheEntry struct {
	Path     string   `json:"path"`
	Reserved []string `json:"reserved"`
	Hash     string   `json:"hash,omitempty"`
}

func (c CacheEntry) clone() CacheEntry {
	c.Reserved = slices.Clone(c.Reserved)
	return c
}

// EntityKind names an entity table in the store
type EntityKind string

const (
	EntityRepository EntityKind = "repository"
	EntityBranch     EntityKind = "branch"
	EntityMetafile   EntityKind = "metafile"
	EntityCache      EntityKind = "cache"
)

// Action is the CRUD action that produced a Change
type Action string

const (
	ActionAdded   Action = "added"
	ActionUpdated Action = "updated"
	ActionRemoved Action = "removed"
)

// Change is published to subscribers after every store write
type Change struct {
	Action Action     `json:"action"`
	Kind   EntityKind `json:"kind"`
	ID     string     `json:"id"`
}

// Equal reports whether two metafiles carry identical state
func (m Metafile) Equal(o Metafile) bool {
	if m.ID != o.ID || m.Name != o.Name || m.Kind != o.Kind || m.Handler != o.Handler ||
		m.Filetype != o.Filetype || m.Path != o.Path || !m.Mtime.Equal(o.Mtime) ||
		m.State != o.State || m.Content != o.Content {
		return false
	}
	if !slices.Equal(m.Contains, o.Contains) || !slices.Equal(m.Targets, o.Targets) {
		return false
	}
	switch {
	case m.Version == nil && o.Version == nil:
		return true
	case m.Version == nil || o.Version == nil:
		return false
	}
	return m.Version.Repo == o.Version.Repo && m.Version.Branch == o.Version.Branch &&
		m.Version.Status == o.Version.Status && slices.Equal(m.Version.Conflicts, o.Version.Conflicts)
}
