package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/watcher"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

func (e *Engine) ensureBridge() (*watcher.Bridge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.bridge != nil {
		return e.bridge, nil
	}

	b, err := watcher.NewBridge(
		watcher.WithLogger(e.log),
		watcher.WithDebounce(e.debounce()),
		watcher.WithIgnore(e.cfg.Watch.Ignore),
		watcher.WithBuffer(e.cfg.Watch.Buffer))
	if err != nil {
		return nil, err
	}
	e.bridge = b
	return b, nil
}

// Watch starts delivering filesystem triggers for the checkout containing
// path. Watching the same checkout twice returns the existing handle.
func (e *Engine) Watch(path string) (*watcher.Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	root := abs
	if wt := worktree.Resolve(abs); wt.Found() {
		root = wt.Root()
	}

	b, err := e.ensureBridge()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.handles[root]; ok {
		return h, nil
	}
	h, err := b.Watch(root)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	e.handles[root] = h
	return h, nil
}

// Unwatch stops the watcher for the checkout containing path
func (e *Engine) Unwatch(path string) error {
	root := path
	if wt := worktree.Resolve(path); wt.Found() {
		root = wt.Root()
	}

	e.mu.Lock()
	h, ok := e.handles[root]
	delete(e.handles, root)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return h.Close()
}

// Run consumes watcher triggers until ctx is done or the engine is closed.
// Triggers are handled one at a time; a failed trigger is logged and the
// loop continues, leaving the next trigger to converge the store.
func (e *Engine) Run(ctx context.Context) error {
	b, err := e.ensureBridge()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ctx.Done():
			return nil
		case tr, ok := <-b.Triggers():
			if !ok {
				return nil
			}
			if err := e.HandleTrigger(ctx, tr); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				e.log.Warn("failed to handle trigger", "root", tr.Root, "error", err)
			}
		}
	}
}

// HandleTrigger applies one debounced batch of filesystem events. Changed
// and removed paths are re-read and reconciled along with the directories
// whose listing changed. Git directory changes refresh the repository's
// branches, and a branch whose files changed status is rebuilt.
func (e *Engine) HandleTrigger(ctx context.Context, tr watcher.Trigger) error {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	var touched []store.Metafile
	dirs := make(map[string]bool)
	for _, ev := range tr.Events {
		if ev.Git {
			continue
		}
		e.cache.Invalidate(ev.Path)
		if ev.Op.Structural() {
			dirs[filepath.Dir(ev.Path)] = true
			if ev.Op == watcher.OpUnlinkDir {
				touched = append(touched, e.store.Descendants(ev.Path)...)
			}
		}
		for _, mf := range e.store.FindMetafilesByPath(ev.Path) {
			updated, err := e.metafiles.UpdateFilebasedMetafile(ctx, mf)
			if err != nil {
				return err
			}
			touched = append(touched, *updated)
		}
	}

	for dir := range dirs {
		for _, mf := range e.store.FindMetafilesByPath(dir) {
			if !mf.IsDirectory() {
				continue
			}
			updated, err := e.metafiles.UpdateDirectoryMetafile(ctx, mf, false)
			if err != nil {
				return err
			}
			touched = append(touched, *updated)
		}
	}

	if tr.HasGit() {
		if err := e.refreshBranches(ctx, tr.Root); err != nil {
			return err
		}
		// Index and HEAD moves can change the status of anything in the checkout
		touched = append(touched, e.tops(tr.Root)...)
	}

	seen := make(map[store.MetafileID]bool, len(touched))
	changed := make(map[store.BranchID]bool)
	for _, mf := range touched {
		if seen[mf.ID] {
			continue
		}
		seen[mf.ID] = true
		if e.discarded() {
			return ErrClosed
		}
		before := versionStatus(e.store, mf.ID)
		updated, _, err := e.versions.UpdateVersionedMetafile(ctx, mf)
		if err != nil {
			return err
		}
		if updated != nil && updated.Version != nil && updated.Version.Status != before {
			changed[updated.Version.Branch] = true
		}
	}
	return e.refreshChangedBranches(ctx, changed)
}

func versionStatus(s *store.Store, id store.MetafileID) store.VersionStatus {
	if mf, ok := s.Metafile(id); ok && mf.Version != nil {
		return mf.Version.Status
	}
	return ""
}

// refreshChangedBranches rebuilds branches whose files changed status so
// their clean/uncommitted state follows the worktree
func (e *Engine) refreshChangedBranches(ctx context.Context, ids map[store.BranchID]bool) error {
	for id := range ids {
		b, ok := e.store.Branch(id)
		if !ok {
			continue
		}
		if e.discarded() {
			return ErrClosed
		}
		if _, err := e.branches.UpdateBranch(ctx, b); err != nil {
			return fmt.Errorf("failed to update branch %s: %w", b.Ref, err)
		}
	}
	return nil
}

// refreshBranches rebuilds the stored branches of the repository owning
// root, then picks up created and deleted refs
func (e *Engine) refreshBranches(ctx context.Context, root string) error {
	main := worktree.Resolve(root).Dir
	if main == "" {
		return nil
	}
	branches := e.store.FindBranches(func(b store.Branch) bool {
		return worktree.Resolve(b.Root).Dir == main
	})
	if _, err := e.branches.UpdateBranches(ctx, branches); err != nil {
		return err
	}
	if e.discarded() {
		return ErrClosed
	}
	return e.branches.SyncRepository(ctx, main)
}

// tops returns the filebased metafiles under root whose parent directory
// has no metafile, so reconciling them covers every tracked path once
func (e *Engine) tops(root string) []store.Metafile {
	all := e.store.FindMetafiles(func(mf store.Metafile) bool {
		return mf.Filebased() && worktree.Contains(root, mf.Path)
	})
	dirs := make(map[string]bool)
	for _, mf := range all {
		if mf.IsDirectory() {
			dirs[mf.Path] = true
		}
	}

	var out []store.Metafile
	for _, mf := range all {
		parent := filepath.Dir(mf.Path)
		if mf.Path != root && dirs[parent] && worktree.Contains(root, parent) {
			continue
		}
		out = append(out, mf)
	}
	return out
}
