package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/watcher"
	"github.com/EPICLab/synectic/internal/core/worktree"
	"github.com/EPICLab/synectic/internal/tests/helpers"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Watch.Debounce = 20
	e, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Worktrees.Dir = "/abs"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	mf, err := e.Open(ctx, filepath.Join(repo, "README.md"))
	require.NoError(t, err)
	require.NotNil(t, mf.Version)
	assert.Equal(t, store.StatusUnmodified, mf.Version.Status)
	assert.Equal(t, "# Test Repository\n", mf.Content)

	r, ok := e.Store().Repository(mf.Version.Repo)
	require.True(t, ok)
	assert.Equal(t, repo, r.Root)
	b, ok := e.Store().Branch(mf.Version.Branch)
	require.True(t, ok)
	assert.Equal(t, "main", b.Ref)

	entry, ok := e.Cache().Entry(mf.Path)
	require.True(t, ok)
	assert.Equal(t, []string{string(mf.ID)}, entry.Reserved)

	// Opening again reuses everything
	calls := e.Git().Calls()
	again, err := e.Open(ctx, filepath.Join(repo, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, mf.ID, again.ID)
	assert.Less(t, e.Git().Calls()-calls, int64(5), "only status is re-read")

	require.NoError(t, e.Release(mf.ID))
	_, ok = e.Cache().Entry(mf.Path)
	assert.False(t, ok)
}

func TestOpen_OutsideRepository(t *testing.T) {
	e := newEngine(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	mf, err := e.Open(context.Background(), path)
	require.NoError(t, err)
	assert.Nil(t, mf.Version)
	assert.Equal(t, "hi", mf.Content)
}

func TestSwitchBranch(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	helpers.RunGit(t, repo, "checkout", "--quiet", "-b", "feature")
	helpers.CommitFile(t, repo, "README.md", "# Feature\n", "feature change")
	helpers.Checkout(t, repo, "main")

	original, err := e.Open(ctx, filepath.Join(repo, "README.md"))
	require.NoError(t, err)

	switched, err := e.SwitchBranch(ctx, original.ID, "feature")
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, switched.ID)
	assert.Equal(t, filepath.Join(worktree.LinkedPath(".syn", repo, "feature"), "README.md"), switched.Path)
	assert.Equal(t, "# Feature\n", switched.Content)
	require.NotNil(t, switched.Version)
	assert.Equal(t, original.Version.Repo, switched.Version.Repo)
	assert.NotEqual(t, original.Version.Branch, switched.Version.Branch)

	b, ok := e.Store().Branch(switched.Version.Branch)
	require.True(t, ok)
	assert.Equal(t, "feature", b.Ref)
	assert.True(t, b.Linked)

	after, ok := e.Store().Metafile(original.ID)
	require.True(t, ok)
	assert.True(t, original.Equal(after), "the original metafile is untouched")

	// Switching back to the main checkout resolves to the original
	back, err := e.SwitchBranch(ctx, switched.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, original.ID, back.ID)
}

func TestSwitchBranch_Errors(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.SwitchBranch(ctx, "missing", "main")
	var notFound store.ErrNotFound
	assert.ErrorAs(t, err, &notFound)

	path := filepath.Join(t.TempDir(), "loose.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	mf, err := e.Open(ctx, path)
	require.NoError(t, err)
	_, err = e.SwitchBranch(ctx, mf.ID, "main")
	assert.Error(t, err)
}

func TestHandleTrigger(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	dir, err := e.Open(ctx, repo)
	require.NoError(t, err)
	readme := filepath.Join(repo, "README.md")
	mf, err := e.Open(ctx, readme)
	require.NoError(t, err)

	helpers.WriteFile(t, repo, "README.md", "edited\n")
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(readme, later, later))

	require.NoError(t, e.HandleTrigger(ctx, watcher.Trigger{
		Root:   repo,
		Events: []watcher.Event{{Path: readme, Op: watcher.OpChange}},
	}))
	updated, ok := e.Store().Metafile(mf.ID)
	require.True(t, ok)
	assert.Equal(t, "edited\n", updated.Content)
	assert.Equal(t, store.StatusUnstagedModified, updated.Version.Status)

	// A new file shows up under its directory
	added := helpers.WriteFile(t, repo, "new.txt", "new\n")
	rootLater := time.Now().Add(3 * time.Second)
	require.NoError(t, os.Chtimes(repo, rootLater, rootLater))
	require.NoError(t, e.HandleTrigger(ctx, watcher.Trigger{
		Root:   repo,
		Events: []watcher.Event{{Path: added, Op: watcher.OpAdd}},
	}))
	created := e.Store().FindMetafilesByPath(added)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].Version)
	assert.Equal(t, store.StatusUnstagedAdded, created[0].Version.Status)

	current, ok := e.Store().Metafile(dir.ID)
	require.True(t, ok)
	assert.Contains(t, current.Contains, created[0].ID)
}

func TestHandleTrigger_UnlinkedFile(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	readme := filepath.Join(repo, "README.md")
	mf, err := e.Open(ctx, readme)
	require.NoError(t, err)
	require.Equal(t, store.StatusUnmodified, mf.Version.Status)

	require.NoError(t, os.Remove(readme))
	require.NoError(t, e.HandleTrigger(ctx, watcher.Trigger{
		Root:   repo,
		Events: []watcher.Event{{Path: readme, Op: watcher.OpUnlink}},
	}))

	updated, ok := e.Store().Metafile(mf.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusUnstagedDeleted, updated.Version.Status)
}

func TestHandleTrigger_BranchFollowsFileStatus(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	readme := filepath.Join(repo, "README.md")
	mf, err := e.Open(ctx, readme)
	require.NoError(t, err)
	b, ok := e.Store().Branch(mf.Version.Branch)
	require.True(t, ok)
	require.Equal(t, store.BranchClean, b.Status)

	helpers.WriteFile(t, repo, "README.md", "edited\n")
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(readme, later, later))
	require.NoError(t, e.HandleTrigger(ctx, watcher.Trigger{
		Root:   repo,
		Events: []watcher.Event{{Path: readme, Op: watcher.OpChange}},
	}))

	updated, ok := e.Store().Metafile(mf.ID)
	require.True(t, ok)
	assert.Equal(t, store.StatusUnstagedModified, updated.Version.Status)
	b, ok = e.Store().Branch(mf.Version.Branch)
	require.True(t, ok)
	assert.Equal(t, store.BranchUncommitted, b.Status)

	// Restoring the file brings the branch back to clean
	helpers.WriteFile(t, repo, "README.md", "# Test Repository\n")
	latest := time.Now().Add(4 * time.Second)
	require.NoError(t, os.Chtimes(readme, latest, latest))
	require.NoError(t, e.HandleTrigger(ctx, watcher.Trigger{
		Root:   repo,
		Events: []watcher.Event{{Path: readme, Op: watcher.OpChange}},
	}))
	b, ok = e.Store().Branch(mf.Version.Branch)
	require.True(t, ok)
	assert.Equal(t, store.BranchClean, b.Status)
}

func TestHandleTrigger_GitRefresh(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	mf, err := e.Open(ctx, filepath.Join(repo, "README.md"))
	require.NoError(t, err)

	helpers.CreateBranch(t, repo, "feature")
	require.NoError(t, e.HandleTrigger(ctx, watcher.Trigger{
		Root:   repo,
		Events: []watcher.Event{{Path: filepath.Join(repo, ".git", "refs", "heads", "feature"), Op: watcher.OpAdd, Git: true}},
	}))

	r, ok := e.Store().Repository(mf.Version.Repo)
	require.True(t, ok)
	assert.Len(t, r.Local, 2)
	feature := e.Store().FindBranches(func(b store.Branch) bool { return b.Ref == "feature" })
	assert.Len(t, feature, 1)
}

func TestRun_WatchesRepository(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readme := filepath.Join(repo, "README.md")
	mf, err := e.Open(ctx, readme)
	require.NoError(t, err)

	_, err = e.Watch(readme)
	require.NoError(t, err)
	again, err := e.Watch(repo)
	require.NoError(t, err, "the same checkout is watched once")
	assert.Equal(t, repo, again.Root())

	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	helpers.WriteFile(t, repo, "README.md", "from disk\n")
	require.Eventually(t, func() bool {
		current, ok := e.Store().Metafile(mf.ID)
		return ok && current.Content == "from disk\n" &&
			current.Version != nil && current.Version.Status == store.StatusUnstagedModified
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestClose(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	repo := helpers.CreateTestRepo(t)
	_, err = e.Watch(repo)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- e.Run(context.Background()) }()

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.NoError(t, <-errc)

	_, err = e.Open(context.Background(), repo)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Watch(repo)
	assert.ErrorIs(t, err, ErrClosed)
}
