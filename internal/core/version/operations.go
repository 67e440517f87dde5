package version

import (
	"context"
	"fmt"

	"github.com/EPICLab/synectic/internal/core/store"
)

// Stage adds the metafile's path to the index and reconciles it
func (r *Reconciler) Stage(ctx context.Context, id store.MetafileID) (*store.Metafile, error) {
	return r.indexOp(ctx, id, "stage", func(ctx context.Context, root, path string) error {
		return r.git.Add(ctx, root, path)
	})
}

// Unstage removes the metafile's path from the index and reconciles it
func (r *Reconciler) Unstage(ctx context.Context, id store.MetafileID) (*store.Metafile, error) {
	return r.indexOp(ctx, id, "unstage", func(ctx context.Context, root, path string) error {
		return r.git.Restore(ctx, root, path, true)
	})
}

// Discard restores the metafile's path from HEAD, dropping working tree
// changes, then reloads its content and reconciles it
func (r *Reconciler) Discard(ctx context.Context, id store.MetafileID) (*store.Metafile, error) {
	mf, err := r.indexOp(ctx, id, "discard", func(ctx context.Context, root, path string) error {
		return r.git.CheckoutPathspec(ctx, root, "HEAD", path)
	})
	if err != nil {
		return nil, err
	}
	if mf.Kind == store.KindFile {
		if _, err := r.metafiles.RevertMetafile(ctx, mf.ID); err != nil {
			return nil, err
		}
		if current, ok := r.store.Metafile(mf.ID); ok {
			mf = &current
		}
	}
	return mf, nil
}

func (r *Reconciler) indexOp(ctx context.Context, id store.MetafileID, name string, op func(ctx context.Context, root, path string) error) (*store.Metafile, error) {
	mf, ok := r.store.Metafile(id)
	if !ok {
		return nil, store.ErrNotFound{Kind: store.EntityMetafile, ID: string(id)}
	}
	if !mf.Filebased() {
		return nil, fmt.Errorf("cannot %s %s: not file based", name, id)
	}

	sc, ok, err := r.resolve(ctx, mf)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("cannot %s %s: not in a repository", name, mf.Path)
	}

	if err := op(ctx, sc.root, mf.Path); err != nil {
		return nil, fmt.Errorf("failed to %s %s: %w", name, mf.Path, err)
	}
	r.log.Info(name, "path", mf.Path)

	updated, _, err := r.UpdateVersionedMetafile(ctx, mf)
	return updated, err
}
