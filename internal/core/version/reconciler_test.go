package version

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPICLab/synectic/internal/core/branch"
	"github.com/EPICLab/synectic/internal/core/git"
	"github.com/EPICLab/synectic/internal/core/metafile"
	"github.com/EPICLab/synectic/internal/core/repo"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/filemanager"
	"github.com/EPICLab/synectic/internal/tests/helpers"
)

type fixture struct {
	rec       *Reconciler
	store     *store.Store
	metafiles *metafile.Manager
	repo      string
}

func setup(t *testing.T) fixture {
	t.Helper()
	dir := helpers.CreateTestRepo(t)
	s := store.New()
	ops := git.NewOperations()
	branches := branch.NewManager(s, ops)
	repos := repo.NewResolver(s, ops, branches)
	metafiles := metafile.NewManager(s, filemanager.NewManager())
	return fixture{
		rec:       NewReconciler(s, ops, metafiles, branches, repos),
		store:     s,
		metafiles: metafiles,
		repo:      dir,
	}
}

func (f fixture) fetch(t *testing.T, path string) *store.Metafile {
	t.Helper()
	mf, err := f.metafiles.FetchMetafile(context.Background(), metafile.Query{Path: path})
	require.NoError(t, err)
	return mf
}

func (f fixture) status(t *testing.T, path string) store.VersionStatus {
	t.Helper()
	mfs := f.store.FindMetafilesByPath(path)
	require.Len(t, mfs, 1, "exactly one metafile for %s", path)
	require.NotNil(t, mfs[0].Version, "%s is versioned", path)
	return mfs[0].Version.Status
}

func TestUpdateVersionedMetafile_File(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	readme := filepath.Join(f.repo, "README.md")

	mf, _, err := f.rec.UpdateVersionedMetafile(ctx, *f.fetch(t, readme))
	require.NoError(t, err)
	require.NotNil(t, mf.Version)
	assert.Equal(t, store.StatusUnmodified, mf.Version.Status)
	assert.NotEmpty(t, mf.Version.Repo)
	assert.NotEmpty(t, mf.Version.Branch)

	helpers.WriteFile(t, f.repo, "README.md", "changed\n")
	mf, _, err = f.rec.UpdateVersionedMetafile(ctx, *mf)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnstagedModified, mf.Version.Status)
}

func TestUpdateVersionedMetafile_Unversioned(t *testing.T) {
	f := setup(t)
	path := filepath.Join(t.TempDir(), "loose.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	mf, report, err := f.rec.UpdateVersionedMetafile(context.Background(), *f.fetch(t, path))
	require.NoError(t, err)
	assert.Nil(t, mf.Version)
	assert.Equal(t, Report{}, report)

	virtual, err := f.metafiles.CreateVirtual(context.Background(), "notes", "Editor", "")
	require.NoError(t, err)
	same, _, err := f.rec.UpdateVersionedMetafile(context.Background(), *virtual)
	require.NoError(t, err)
	assert.True(t, virtual.Equal(*same))
}

func TestUpdateVersionedMetafile_Directory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	helpers.CommitFile(t, f.repo, "src/a.go", "package src\n", "add src")

	root := f.fetch(t, f.repo)

	helpers.WriteFile(t, f.repo, "README.md", "changed\n")
	helpers.WriteFile(t, f.repo, "src/new.go", "package src\n")
	helpers.WriteFile(t, f.repo, "build/out.txt", "artifact\n")

	mf, report, err := f.rec.UpdateVersionedMetafile(ctx, *root)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnstagedModified, mf.Version.Status)

	// README.md matched; src has no entry; src/new.go and build are new
	assert.Equal(t, Report{Updated: 1, Created: 2, Inherited: 1}, report)

	assert.Equal(t, store.StatusUnstagedModified, f.status(t, filepath.Join(f.repo, "README.md")))
	assert.Equal(t, store.StatusUnmodified, f.status(t, filepath.Join(f.repo, "src")))
	assert.Equal(t, store.StatusUnstagedAdded, f.status(t, filepath.Join(f.repo, "src", "new.go")))
	assert.Equal(t, store.StatusUnstagedAdded, f.status(t, filepath.Join(f.repo, "build")))

	// A second pass finds nothing new and writes nothing
	rev := f.store.Revision()
	_, report, err = f.rec.UpdateVersionedMetafile(ctx, *mf)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, rev, f.store.Revision())

	// Every descendant is represented exactly once
	for _, p := range []string{"README.md", "src", "src/new.go", "build"} {
		assert.Len(t, f.store.FindMetafilesByPath(filepath.Join(f.repo, filepath.FromSlash(p))), 1, p)
	}
}

func TestUpdateVersionedMetafile_InheritsFromUntrackedDirectory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	out := helpers.WriteFile(t, f.repo, "build/out.txt", "artifact\n")

	// build/out.txt has a metafile but git only reports build/
	f.fetch(t, out)
	root := f.fetch(t, f.repo)

	_, report, err := f.rec.UpdateVersionedMetafile(ctx, *root)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnstagedAdded, f.status(t, out))
	assert.Equal(t, store.StatusUnstagedAdded, f.status(t, filepath.Join(f.repo, "build")))
	assert.Equal(t, 2, report.Inherited, "README.md and build/out.txt")
	assert.Equal(t, 1, report.Updated)
}

func TestUpdateVersionedMetafile_CleanDirectory(t *testing.T) {
	f := setup(t)
	mf, report, err := f.rec.UpdateVersionedMetafile(context.Background(), *f.fetch(t, f.repo))
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnmodified, mf.Version.Status)
	assert.Equal(t, Report{Inherited: 1}, report)
	assert.Equal(t, store.StatusUnmodified, f.status(t, filepath.Join(f.repo, "README.md")))
}

func TestStageUnstageDiscard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	readme := helpers.WriteFile(t, f.repo, "README.md", "changed\n")
	mf := f.fetch(t, readme)

	staged, err := f.rec.Stage(ctx, mf.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusModified, staged.Version.Status)

	unstaged, err := f.rec.Unstage(ctx, mf.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnstagedModified, unstaged.Version.Status)

	discarded, err := f.rec.Discard(ctx, mf.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusUnmodified, discarded.Version.Status)
	assert.Equal(t, "# Test Repository\n", discarded.Content)
	assert.Equal(t, store.StateUnmodified, discarded.State)

	_, err = f.rec.Stage(ctx, "missing")
	var notFound store.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}
