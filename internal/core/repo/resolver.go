// Package repo resolves Repository entities for paths and metafiles.
package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/EPICLab/synectic/internal/core/branch"
	"github.com/EPICLab/synectic/internal/core/git"
	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

// Query selects the repository owning Path or Metafile
type Query struct {
	Path     string
	Metafile *store.Metafile
}

// Resolver finds or builds repositories
type Resolver struct {
	store    *store.Store
	git      git.Backend
	branches *branch.Manager
	log      logger.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) { r.log = logger.Component(l, "repo") }
}

// NewResolver creates a repository resolver
func NewResolver(s *store.Store, backend git.Backend, branches *branch.Manager, opts ...Option) *Resolver {
	r := &Resolver{
		store:    s,
		git:      backend,
		branches: branches,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchRepo returns the repository for q, checking the metafile, its parent
// directory and the store before building. It returns nil when the path is
// not inside a repository.
func (r *Resolver) FetchRepo(ctx context.Context, q Query) (*store.Repository, error) {
	path := q.Path
	if q.Metafile != nil {
		if repo, ok := r.recorded(*q.Metafile); ok {
			return &repo, nil
		}
		if q.Metafile.Path != "" {
			for _, p := range r.store.FindMetafilesByPath(filepath.Dir(q.Metafile.Path)) {
				if !p.IsDirectory() {
					continue
				}
				if repo, ok := r.recorded(p); ok {
					return &repo, nil
				}
			}
			if path == "" {
				path = q.Metafile.Path
			}
		}
	}
	if path == "" {
		return nil, nil
	}

	wt := worktree.Resolve(path)
	if !wt.Found() {
		return nil, nil
	}
	if repo, ok := r.store.FindRepositoryByRoot(wt.Dir); ok {
		return &repo, nil
	}
	return r.BuildRepo(ctx, wt.Dir)
}

func (r *Resolver) recorded(mf store.Metafile) (store.Repository, bool) {
	if mf.Version == nil || mf.Version.Repo == "" {
		return store.Repository{}, false
	}
	return r.store.Repository(mf.Version.Repo)
}

// BuildRepo creates the repository rooted at root along with its branches.
// Stale worktree records are pruned first so they do not surface as branches.
func (r *Resolver) BuildRepo(ctx context.Context, root string) (*store.Repository, error) {
	wt := worktree.Resolve(root)
	if !wt.Found() {
		return nil, nil
	}
	if err := r.git.WorktreePrune(ctx, wt.Dir); err != nil {
		r.log.Warn("failed to prune worktrees", "root", wt.Dir, "error", err)
	}

	repo := store.Repository{
		ID:   store.RepositoryID(uuid.New().String()),
		Name: filepath.Base(wt.Dir),
		Root: wt.Dir,
	}
	if err := r.describe(ctx, &repo); err != nil {
		return nil, err
	}

	local, remote, err := r.branches.FetchBranches(ctx, wt.Dir)
	if err != nil {
		return nil, err
	}
	repo.Local = ids(local)
	repo.Remote = ids(remote)

	if err := r.store.AddRepository(repo); err != nil {
		var dup store.ErrDuplicateRoot
		if existing, ok := r.store.FindRepositoryByRoot(wt.Dir); ok && errors.As(err, &dup) {
			// Lost a race with a concurrent build
			return &existing, nil
		}
		return nil, fmt.Errorf("failed to store repository: %w", err)
	}
	r.log.Info("tracking repository", "name", repo.Name, "root", repo.Root, "branches", len(repo.Local)+len(repo.Remote))
	return &repo, nil
}

// UpdateRepo re-reads remote, default branch, credentials and branch lists
func (r *Resolver) UpdateRepo(ctx context.Context, id store.RepositoryID) (*store.Repository, error) {
	repo, ok := r.store.Repository(id)
	if !ok {
		return nil, nil
	}
	if err := r.git.WorktreePrune(ctx, repo.Root); err != nil {
		r.log.Warn("failed to prune worktrees", "root", repo.Root, "error", err)
	}
	if err := r.describe(ctx, &repo); err != nil {
		return nil, err
	}
	if err := r.store.UpdateRepository(repo); err != nil {
		return nil, fmt.Errorf("failed to update repository: %w", err)
	}
	if err := r.branches.SyncRepository(ctx, repo.Root); err != nil {
		return nil, err
	}
	updated, _ := r.store.Repository(id)
	return &updated, nil
}

// describe fills remote, default branch and credential fields
func (r *Resolver) describe(ctx context.Context, repo *store.Repository) error {
	remote, err := r.git.GetRemoteConfig(ctx, repo.Root)
	if err != nil {
		return fmt.Errorf("failed to read remote: %w", err)
	}
	if remote != nil {
		repo.URL = remote.URL
		if remote.Repo != "" {
			repo.Name = remote.Repo
		}
		creds, err := r.git.GetCredentials(ctx, repo.Root, remote.URL)
		if err != nil {
			r.log.Warn("failed to read credentials", "url", remote.URL, "error", err)
		} else if creds != nil {
			repo.Username = creds.Username
			repo.Password = creds.Password
		}
	}

	def, err := r.git.DefaultBranch(ctx, repo.Root)
	if err != nil {
		return fmt.Errorf("failed to read default branch: %w", err)
	}
	repo.DefaultBranch = def
	return nil
}

func ids(branches []store.Branch) []store.BranchID {
	out := make([]store.BranchID, 0, len(branches))
	for _, b := range branches {
		out = append(out, b.ID)
	}
	return out
}
