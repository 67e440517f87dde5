// Package version reconciles the VCS status recorded on metafiles with the
// live status reported by git.
package version

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/EPICLab/synectic/internal/core/branch"
	"github.com/EPICLab/synectic/internal/core/git"
	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/metafile"
	"github.com/EPICLab/synectic/internal/core/repo"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

// Report counts the work a reconciliation pass performed
type Report struct {
	// Updated counts descendants whose explicit status entry changed them
	Updated int `json:"updated"`
	// Created counts metafiles created for status entries with no metafile
	Created int `json:"created"`
	// Inherited counts descendants without an entry that took an ancestor's
	// status or the unmodified default
	Inherited int `json:"inherited"`
}

// Reconciler updates versioned metafiles
type Reconciler struct {
	store     *store.Store
	git       git.Backend
	metafiles *metafile.Manager
	branches  *branch.Manager
	repos     *repo.Resolver
	log       logger.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(r *Reconciler) { r.log = logger.Component(l, "version") }
}

// NewReconciler creates a reconciler
func NewReconciler(s *store.Store, backend git.Backend, metafiles *metafile.Manager, branches *branch.Manager, repos *repo.Resolver, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:     s,
		git:       backend,
		metafiles: metafiles,
		branches:  branches,
		repos:     repos,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// scope is the repository context a reconciliation runs in
type scope struct {
	repo   store.RepositoryID
	branch store.BranchID
	root   string
}

// UpdateVersionedMetafile re-derives the VCS status of mf and, for
// directories, of every known descendant. Metafiles outside a repository
// are returned unchanged.
func (r *Reconciler) UpdateVersionedMetafile(ctx context.Context, mf store.Metafile) (*store.Metafile, Report, error) {
	var report Report
	if current, ok := r.store.Metafile(mf.ID); ok {
		mf = current
	}
	if !mf.Filebased() {
		return &mf, report, nil
	}

	sc, ok, err := r.resolve(ctx, mf)
	if err != nil || !ok {
		return &mf, report, err
	}

	var status store.VersionStatus
	if mf.IsDirectory() {
		status, report, err = r.reconcileDirectory(ctx, mf, sc)
	} else {
		status, err = r.git.FileStatus(ctx, sc.root, mf.Path)
	}
	if err != nil {
		return nil, report, err
	}

	conflicts, err := r.git.CheckUnmergedPath(ctx, sc.root, mf.Path)
	if err != nil {
		return nil, report, err
	}

	// Descendant writes may have raced with us; start from the stored copy
	if current, ok := r.store.Metafile(mf.ID); ok {
		mf = current
	}
	updated, err := r.apply(mf, sc, status, conflicts)
	if err != nil {
		return nil, report, err
	}
	r.log.Debug("reconciled", "path", mf.Path, "status", status,
		"updated", report.Updated, "created", report.Created, "inherited", report.Inherited)
	return updated, report, nil
}

func (r *Reconciler) resolve(ctx context.Context, mf store.Metafile) (scope, bool, error) {
	rp, err := r.repos.FetchRepo(ctx, repo.Query{Metafile: &mf})
	if err != nil {
		return scope{}, false, fmt.Errorf("failed to resolve repository: %w", err)
	}
	if rp == nil {
		return scope{}, false, nil
	}
	b, err := r.branches.FetchBranch(ctx, branch.Query{Metafile: &mf})
	if err != nil {
		return scope{}, false, fmt.Errorf("failed to resolve branch: %w", err)
	}
	if b == nil {
		return scope{}, false, nil
	}
	root := worktree.Resolve(mf.Path).Root()
	if root == "" {
		root = b.Root
	}
	return scope{repo: rp.ID, branch: b.ID, root: root}, true, nil
}

// reconcileDirectory matches live status entries under dir against the
// stored descendants and returns the directory's own status
func (r *Reconciler) reconcileDirectory(ctx context.Context, dir store.Metafile, sc scope) (store.VersionStatus, Report, error) {
	var report Report

	entries, err := r.git.WorktreeStatus(ctx, sc.root, dir.Path)
	if err != nil {
		return "", report, err
	}

	byPath := make(map[string]git.StatusEntry, len(entries))
	for _, e := range entries {
		byPath[e.Path] = e
	}

	descendants := r.store.Descendants(dir.Path)
	known := make(map[string]bool, len(descendants))

	for _, d := range descendants {
		if !d.Filebased() {
			continue
		}
		known[d.Path] = true

		if e, ok := byPath[d.Path]; ok {
			changed, err := r.applyEntry(d, sc, e)
			if err != nil {
				return "", report, err
			}
			if changed {
				report.Updated++
			}
			continue
		}

		status := inherit(byPath, dir.Path, d.Path)
		if _, err := r.apply(d, sc, status, nil); err != nil {
			return "", report, err
		}
		report.Inherited++
	}

	// Entries git reports that no metafile represents yet
	for _, e := range entries {
		if known[e.Path] || e.Path == dir.Path || !worktree.Contains(dir.Path, e.Path) {
			continue
		}
		created, err := r.create(ctx, e)
		if err != nil {
			return "", report, err
		}
		if _, err := r.applyEntry(*created, sc, e); err != nil {
			return "", report, err
		}
		known[e.Path] = true
		report.Created++
	}

	return directoryStatus(byPath, entries, dir.Path), report, nil
}

func (r *Reconciler) create(ctx context.Context, e git.StatusEntry) (*store.Metafile, error) {
	if e.Dir {
		// Untracked directories are represented without walking them
		return r.metafiles.CreateMetafile(ctx, metafile.Descriptor{Path: e.Path})
	}
	return r.metafiles.FetchMetafile(ctx, metafile.Query{Path: e.Path})
}

// inherit walks from path's parent up to dir looking for an explicit entry
func inherit(byPath map[string]git.StatusEntry, dir, path string) store.VersionStatus {
	for p := filepath.Dir(path); worktree.Contains(dir, p); p = filepath.Dir(p) {
		if e, ok := byPath[p]; ok {
			return e.Status
		}
		if p == dir {
			break
		}
	}
	return store.StatusUnmodified
}

// directoryStatus derives a directory's own status: an explicit entry for
// the directory or an enclosing untracked directory wins; otherwise any
// changed descendant makes it modified.
func directoryStatus(byPath map[string]git.StatusEntry, entries []git.StatusEntry, dir string) store.VersionStatus {
	if e, ok := byPath[dir]; ok {
		return e.Status
	}
	for _, e := range entries {
		if e.Dir && worktree.Contains(e.Path, dir) {
			return e.Status
		}
	}

	status := store.StatusUnmodified
	for _, e := range entries {
		if !e.Status.Changed() || !worktree.Contains(dir, e.Path) {
			continue
		}
		if e.Status.Unstaged() {
			return store.StatusUnstagedModified
		}
		status = store.StatusModified
	}
	return status
}

func (r *Reconciler) applyEntry(mf store.Metafile, sc scope, e git.StatusEntry) (bool, error) {
	var conflicts []string
	if e.Unmerged {
		conflicts = []string{e.Path}
	}
	before := mf
	updated, err := r.apply(mf, sc, e.Status, conflicts)
	if err != nil {
		return false, err
	}
	return !before.Equal(*updated), nil
}

// apply writes the version fields only when they differ from what is stored
func (r *Reconciler) apply(mf store.Metafile, sc scope, status store.VersionStatus, conflicts []string) (*store.Metafile, error) {
	next := &store.Version{
		Repo:      sc.repo,
		Branch:    sc.branch,
		Status:    status,
		Conflicts: slices.Clone(conflicts),
	}
	if v := mf.Version; v != nil && v.Repo == next.Repo && v.Branch == next.Branch &&
		v.Status == next.Status && slices.Equal(v.Conflicts, next.Conflicts) {
		return &mf, nil
	}

	updated := mf.Clone()
	updated.Version = next
	if err := r.store.UpdateMetafile(updated); err != nil {
		return nil, fmt.Errorf("failed to update version of %s: %w", mf.Path, err)
	}
	return &updated, nil
}
