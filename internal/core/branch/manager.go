// Package branch resolves, builds and mutates Branch entities and owns the
// lifecycle of linked worktrees.
package branch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/git"
	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

const defaultRemote = "origin"

// Manager manages Branch entities in a store
type Manager struct {
	store       *store.Store
	git         git.Backend
	worktreeDir string
	concurrency int
	log         logger.Logger
	builds      singleflight.Group
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = logger.Component(l, "branch") }
}

// WithWorktreeDir sets the directory name linked worktrees are created under
func WithWorktreeDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.worktreeDir = dir
		}
	}
}

// WithConcurrency bounds how many branches UpdateBranches rebuilds at once
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewManager creates a branch manager
func NewManager(s *store.Store, backend git.Backend, opts ...Option) *Manager {
	m := &Manager{
		store:       s,
		git:         backend,
		worktreeDir: config.DefaultWorktreeDir,
		concurrency: 4,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FetchBranch returns the branch selected by q, consulting the store before
// paying for a build. It returns nil when no such branch exists.
func (m *Manager) FetchBranch(ctx context.Context, q Query) (*store.Branch, error) {
	scope := q.Scope
	if scope == "" {
		scope = store.ScopeLocal
	}

	root := q.Root
	if root == "" && q.Metafile != nil && q.Metafile.Path != "" {
		root = worktree.Resolve(q.Metafile.Path).Root()
	}

	// 1. exact match in the store
	if q.Ref != "" && root != "" {
		if b, ok := m.lookup(root, q.Ref, scope); ok {
			return &b, nil
		}
	}

	// 2. the branch recorded on the metafile, then 3. on its parent directory
	if q.Metafile != nil {
		if b, ok := m.recorded(*q.Metafile); ok {
			return &b, nil
		}
		if q.Metafile.Path != "" {
			parent := filepath.Dir(q.Metafile.Path)
			for _, p := range m.store.FindMetafilesByPath(parent) {
				if !p.IsDirectory() {
					continue
				}
				if b, ok := m.recorded(p); ok {
					return &b, nil
				}
			}
		}
	}

	if root == "" {
		return nil, nil
	}

	// 4. whatever is checked out at root
	if scope == store.ScopeLocal {
		if b, ok := m.store.FindCurrentBranch(root); ok && (q.Ref == "" || q.Ref == b.Ref) {
			return &b, nil
		}
	}

	// 5. build from git
	ref := q.Ref
	if ref == "" {
		current, err := m.git.CurrentBranch(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to read current branch: %w", err)
		}
		if current == "" {
			return nil, nil
		}
		ref = current
	}
	return m.BuildBranch(ctx, Identifiers{Root: root, Ref: ref, Scope: scope})
}

func (m *Manager) recorded(mf store.Metafile) (store.Branch, bool) {
	if mf.Version == nil || mf.Version.Branch == "" {
		return store.Branch{}, false
	}
	return m.store.Branch(mf.Version.Branch)
}

// lookup finds a stored branch for ref and scope at root, or anywhere in
// the repository owning root
func (m *Manager) lookup(root, ref string, scope store.Scope) (store.Branch, bool) {
	if b, ok := m.store.FindBranch(root, ref, scope); ok {
		return b, true
	}
	main := worktree.Resolve(root).Dir
	if main == "" {
		return store.Branch{}, false
	}
	return m.findInRepo(main, ref, scope)
}

func (m *Manager) findInRepo(main, ref string, scope store.Scope) (store.Branch, bool) {
	found := m.store.FindBranches(func(b store.Branch) bool {
		return b.Ref == ref && b.Scope == scope && worktree.Resolve(b.Root).Dir == main
	})
	if len(found) == 0 {
		return store.Branch{}, false
	}
	return found[0], true
}

// BuildBranch derives a Branch from git and writes it to the store. The id of
// an existing entity with the same scope and ref in the repository is kept.
// It returns nil when the ref does not exist.
func (m *Manager) BuildBranch(ctx context.Context, ids Identifiers) (*store.Branch, error) {
	wt := worktree.Resolve(ids.Root)
	if !wt.Found() {
		return nil, nil
	}
	if ids.Scope == "" {
		ids.Scope = store.ScopeLocal
	}

	key := fmt.Sprintf("%s|%s|%s", wt.Dir, ids.Scope, ids.Ref)
	v, err, _ := m.builds.Do(key, func() (any, error) {
		return m.build(ctx, wt, ids)
	})
	if err != nil {
		return nil, err
	}
	b, _ := v.(*store.Branch)
	if b == nil {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (m *Manager) build(ctx context.Context, wt worktree.Worktree, ids Identifiers) (*store.Branch, error) {
	main := wt.Dir
	ref := git.BranchRef{Name: ids.Ref}
	if ids.Scope == store.ScopeRemote {
		ref.Remote = m.remoteName(ctx, main, ids.Ref)
	}

	head, err := m.git.ResolveRef(ctx, main, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", ref.ShortName(), err)
	}
	if head == "" {
		m.log.Debug("ref does not exist", "root", main, "ref", ref.ShortName())
		return nil, nil
	}

	b := store.Branch{
		Ref:    ids.Ref,
		Scope:  ids.Scope,
		Root:   main,
		GitDir: wt.GitDir,
		Head:   head,
		Status: store.BranchClean,
	}

	worktrees, err := m.git.WorktreeList(ctx, main)
	if err != nil {
		return nil, err
	}
	if len(worktrees) > 0 {
		b.Bare = worktrees[0].Bare
	}
	if ids.Scope == store.ScopeLocal {
		for i, w := range worktrees {
			if w.Branch != ids.Ref || w.Prunable {
				continue
			}
			b.Current = true
			if i > 0 {
				b.Linked = true
				b.Root = w.Path
				b.GitDir = worktree.Resolve(w.Path).ActiveGitDir()
			}
			break
		}
	}

	commits, err := m.git.Log(ctx, main, ref, 0)
	if err != nil {
		return nil, err
	}
	b.Commits = commits

	// A ref checked out nowhere cannot have worktree changes
	if b.Current || b.Linked {
		if err := m.deriveStatus(ctx, &b); err != nil {
			return nil, err
		}
	}

	if existing, ok := m.findInRepo(main, ids.Ref, ids.Scope); ok {
		b.ID = existing.ID
		if existing.Equal(b) {
			return &existing, nil
		}
		err = m.store.UpdateBranch(b)
	} else {
		b.ID = store.BranchID(uuid.New().String())
		err = m.store.AddBranch(b)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store branch: %w", err)
	}

	if b.Current {
		m.demoteOthers(b)
	}
	m.log.Debug("built branch", "ref", b.Ref, "scope", b.Scope, "root", b.Root, "status", b.Status)
	return &b, nil
}

func (m *Manager) deriveStatus(ctx context.Context, b *store.Branch) error {
	merge, err := m.git.MergeInProgress(ctx, b.GitDir)
	if err != nil {
		return err
	}
	if merge != nil {
		base := merge.Base
		if base == "" {
			base = b.Ref
		}
		b.Status = store.BranchUnmerged
		b.Merging = &store.Merging{Base: base, Compare: merge.Compare}
		return nil
	}

	entries, err := m.git.WorktreeStatus(ctx, b.Root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Status.Changed() {
			b.Status = store.BranchUncommitted
			break
		}
	}
	return nil
}

// demoteOthers clears the current flag of any other branch sharing b's root
func (m *Manager) demoteOthers(b store.Branch) {
	stale := m.store.FindBranches(func(o store.Branch) bool {
		return o.ID != b.ID && o.Current && filepath.Clean(o.Root) == filepath.Clean(b.Root)
	})
	for _, o := range stale {
		o.Current = false
		if !o.Linked {
			o.Status = store.BranchClean
			o.Merging = nil
		}
		if err := m.store.UpdateBranch(o); err != nil {
			m.log.Warn("failed to demote branch", "ref", o.Ref, "error", err)
		}
	}
}

func (m *Manager) remoteName(ctx context.Context, dir, ref string) string {
	if name, ok, err := m.git.GetConfig(ctx, dir, "branch."+ref+".remote"); err == nil && ok && name != "." {
		return name
	}
	return defaultRemote
}

// UpdateBranch rebuilds b from git. A branch whose ref no longer exists is
// removed from the store and nil is returned.
func (m *Manager) UpdateBranch(ctx context.Context, b store.Branch) (*store.Branch, error) {
	updated, err := m.BuildBranch(ctx, Identifiers{Root: b.Root, Ref: b.Ref, Scope: b.Scope})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		if err := m.store.RemoveBranch(b.ID); err != nil {
			m.log.Debug("branch already gone", "id", b.ID)
		}
		return nil, nil
	}
	return updated, nil
}
