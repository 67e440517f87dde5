package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPICLab/synectic/internal/core/branch"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/tests/helpers"
)

func TestFetchRepo(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	helpers.CreateBranch(t, repo, "feature")

	view, err := e.FetchRepo(context.Background(), filepath.Join(repo, "README.md"))
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, repo, view.Repository.Root)
	assert.Len(t, view.Local, 2)
	assert.Empty(t, view.Remote)
	assert.Len(t, view.Branches(), 2)

	again, err := e.FetchRepo(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, view.Repository.ID, again.Repository.ID)

	none, err := e.FetchRepo(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestFetchBranch(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)

	b, err := e.FetchBranch(context.Background(), repo, "", "")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "main", b.Ref)
	assert.True(t, b.Current)

	missing, err := e.FetchBranch(context.Background(), repo, "nope", store.ScopeLocal)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAddAndRemoveBranch(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	b, err := e.AddBranch(ctx, repo, "feature", "")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.Linked)
	assert.DirExists(t, b.Root)

	removed, err := e.RemoveBranch(ctx, repo, "feature")
	require.NoError(t, err)
	assert.True(t, removed)
	_, err = os.Stat(b.Root)
	assert.True(t, os.IsNotExist(err))

	removed, err = e.RemoveBranch(ctx, repo, "main")
	require.NoError(t, err)
	assert.False(t, removed, "the current branch stays")

	removed, err = e.RemoveBranch(ctx, repo, "missing")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestMergeBranch(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	helpers.RunGit(t, repo, "checkout", "--quiet", "-b", "feature")
	helpers.CommitFile(t, repo, "feature.txt", "feature\n", "add feature")
	helpers.Checkout(t, repo, "main")

	res, err := e.MergeBranch(ctx, repo, "main", "feature", false)
	require.NoError(t, err)
	assert.Equal(t, branch.MergePassing, res.Status)
	assert.FileExists(t, filepath.Join(repo, "feature.txt"))

	failing, err := e.MergeBranch(ctx, t.TempDir(), "main", "feature", false)
	require.NoError(t, err)
	assert.Equal(t, branch.MergeFailing, failing.Status)
}

func TestStageUnstage(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	ctx := context.Background()

	readme := helpers.WriteFile(t, repo, "README.md", "staged\n")

	mf, err := e.Stage(ctx, readme)
	require.NoError(t, err)
	require.NotNil(t, mf.Version)
	assert.Equal(t, store.StatusModified, mf.Version.Status)

	mf, err = e.Unstage(ctx, readme)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnstagedModified, mf.Version.Status)
}

func TestStatus(t *testing.T) {
	e := newEngine(t)
	repo := helpers.CreateTestRepo(t)
	helpers.WriteFile(t, repo, "README.md", "changed\n")
	helpers.WriteFile(t, repo, "new.txt", "new\n")

	all, err := e.Status(context.Background(), repo)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, repo, all[0].Path)

	statuses := make(map[string]store.VersionStatus)
	for _, mf := range all {
		if mf.Version != nil {
			statuses[filepath.Base(mf.Path)] = mf.Version.Status
		}
	}
	assert.Equal(t, store.StatusUnstagedModified, statuses["README.md"])
	assert.Equal(t, store.StatusUnstagedAdded, statuses["new.txt"])
}

func TestOps_AfterClose(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.FetchRepo(context.Background(), ".")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.AddBranch(context.Background(), ".", "x", "")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Stage(context.Background(), ".")
	assert.ErrorIs(t, err, ErrClosed)
}
