package engine

import (
	"context"
	"path/filepath"

	"github.com/EPICLab/synectic/internal/core/branch"
	"github.com/EPICLab/synectic/internal/core/metafile"
	"github.com/EPICLab/synectic/internal/core/repo"
	"github.com/EPICLab/synectic/internal/core/store"
)

// RepositoryView is a repository together with its stored branches
type RepositoryView struct {
	Repository store.Repository `json:"repository"`
	Local      []store.Branch   `json:"local"`
	Remote     []store.Branch   `json:"remote"`
}

// Branches returns local then remote branches
func (v RepositoryView) Branches() []store.Branch {
	out := make([]store.Branch, 0, len(v.Local)+len(v.Remote))
	out = append(out, v.Local...)
	return append(out, v.Remote...)
}

// FetchRepo returns the repository containing path. It returns nil when
// path is not inside a repository.
func (e *Engine) FetchRepo(ctx context.Context, path string) (*RepositoryView, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	r, err := e.repos.FetchRepo(ctx, repo.Query{Path: abs})
	if err != nil || r == nil {
		return nil, err
	}
	if e.discarded() {
		return nil, ErrClosed
	}
	return e.view(*r), nil
}

func (e *Engine) view(r store.Repository) *RepositoryView {
	v := &RepositoryView{Repository: r}
	for _, id := range r.Local {
		if b, ok := e.store.Branch(id); ok {
			v.Local = append(v.Local, b)
		}
	}
	for _, id := range r.Remote {
		if b, ok := e.store.Branch(id); ok {
			v.Remote = append(v.Remote, b)
		}
	}
	return v
}

// FetchBranch returns the branch ref in the repository containing root.
// An empty ref selects whatever is checked out at root.
func (e *Engine) FetchBranch(ctx context.Context, root, ref string, scope store.Scope) (*store.Branch, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return e.branches.FetchBranch(ctx, branch.Query{
		Identifiers: branch.Identifiers{Root: abs, Ref: ref, Scope: scope},
	})
}

// AddBranch makes ref usable in the repository containing root
func (e *Engine) AddBranch(ctx context.Context, root, ref, head string) (*store.Branch, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	b, err := e.branches.AddBranch(ctx, branch.AddOptions{Root: abs, Ref: ref, Head: head})
	if err != nil {
		return nil, err
	}
	if e.discarded() {
		return nil, ErrClosed
	}
	return b, nil
}

// RemoveBranch removes the local branch ref and its linked worktree. It
// returns false when the branch does not exist or may not be removed.
func (e *Engine) RemoveBranch(ctx context.Context, root, ref string) (bool, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return false, err
	}
	defer done()

	abs, err := filepath.Abs(root)
	if err != nil {
		return false, err
	}
	b, err := e.branches.FetchBranch(ctx, branch.Query{
		Identifiers: branch.Identifiers{Root: abs, Ref: ref, Scope: store.ScopeLocal},
	})
	if err != nil || b == nil {
		return false, err
	}
	return e.branches.RemoveBranch(ctx, *b)
}

// MergeBranch merges compare into base. With cont set, an interrupted merge
// into base is concluded instead and compare is ignored.
func (e *Engine) MergeBranch(ctx context.Context, root, base, compare string, cont bool) (*branch.MergeResult, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if cont {
		return e.branches.MergeBranchContinue(ctx, abs, base)
	}
	return e.branches.MergeBranch(ctx, abs, base, compare)
}

// Stage adds the changes at path to the index
func (e *Engine) Stage(ctx context.Context, path string) (*store.Metafile, error) {
	return e.indexOp(ctx, path, e.versions.Stage)
}

// Unstage removes the changes at path from the index
func (e *Engine) Unstage(ctx context.Context, path string) (*store.Metafile, error) {
	return e.indexOp(ctx, path, e.versions.Unstage)
}

func (e *Engine) indexOp(ctx context.Context, path string, op func(context.Context, store.MetafileID) (*store.Metafile, error)) (*store.Metafile, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	mf, err := e.metafiles.FetchMetafile(ctx, metafile.Query{Path: abs})
	if err != nil {
		return nil, err
	}
	return op(ctx, mf.ID)
}

// Status reconciles the metafile at path and returns it followed by every
// tracked metafile beneath it
func (e *Engine) Status(ctx context.Context, path string) ([]store.Metafile, error) {
	mf, err := e.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	out := []store.Metafile{*mf}
	if mf.IsDirectory() {
		out = append(out, e.store.Descendants(mf.Path)...)
	}
	return out, nil
}
