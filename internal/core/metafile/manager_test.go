package metafile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/filemanager"
)

func setup(t *testing.T) (*Manager, *store.Store, string) {
	t.Helper()
	s := store.New()
	return NewManager(s, filemanager.NewManager()), s, t.TempDir()
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// touch moves path's mtime forward so staleness does not depend on clock granularity
func touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	later := info.ModTime().Add(d)
	require.NoError(t, os.Chtimes(path, later, later))
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(config.DefaultFiletypes())

	assert.Equal(t, "Go", r.Lookup("/a/main.go", false).Name)
	assert.Equal(t, "TypeScript", r.Lookup("/a/App.TSX", false).Name)
	assert.Equal(t, "Explorer", r.Lookup("/a/src", true).Handler)

	fallback := r.Lookup("/a/Makefile", false)
	assert.Equal(t, config.FallbackFiletype, fallback.Name)
	assert.Equal(t, "Editor", fallback.Handler)

	// An empty registry still resolves every path
	empty := NewRegistry(nil)
	assert.Equal(t, config.FallbackFiletype, empty.Lookup("/x.bin", false).Name)
	assert.True(t, empty.Lookup("/x", true).Directory)
}

func TestFetchMetafile_CreatesOnce(t *testing.T) {
	m, s, dir := setup(t)
	ctx := context.Background()
	path := filepath.Join(dir, "a.go")
	write(t, path, "package a\n")

	mf, err := m.FetchMetafile(ctx, Query{Path: path})
	require.NoError(t, err)
	assert.Equal(t, store.KindFile, mf.Kind)
	assert.Equal(t, "Editor", mf.Handler)
	assert.Equal(t, "Go", mf.Filetype)
	assert.Equal(t, "a.go", mf.Name)
	assert.Equal(t, "package a\n", mf.Content)
	assert.Equal(t, store.StateUnmodified, mf.State)
	assert.False(t, mf.Mtime.IsZero())

	again, err := m.FetchMetafile(ctx, Query{Path: path})
	require.NoError(t, err)
	assert.Equal(t, mf.ID, again.ID)

	// A different handler gets its own metafile for the same path
	other, err := m.FetchMetafile(ctx, Query{Path: path, Handler: "Browser"})
	require.NoError(t, err)
	assert.NotEqual(t, mf.ID, other.ID)
	assert.Len(t, s.FindMetafilesByPath(path), 2)
}

func TestUpdateFileMetafile_StalenessGate(t *testing.T) {
	m, s, dir := setup(t)
	ctx := context.Background()
	path := filepath.Join(dir, "a.txt")
	write(t, path, "one")

	mf, err := m.FetchMetafile(ctx, Query{Path: path})
	require.NoError(t, err)

	rev := s.Revision()
	same, err := m.UpdateFileMetafile(ctx, *mf)
	require.NoError(t, err)
	assert.True(t, mf.Equal(*same))
	assert.Equal(t, rev, s.Revision(), "a fresh file is not rewritten")

	write(t, path, "two")
	touch(t, path, time.Second)
	updated, err := m.UpdateFileMetafile(ctx, *mf)
	require.NoError(t, err)
	assert.Equal(t, "two", updated.Content)
	assert.True(t, updated.Mtime.After(mf.Mtime))
	assert.Equal(t, rev+1, s.Revision())
}

func TestUpdateFileMetafile_KeepsUnsavedEdits(t *testing.T) {
	m, _, dir := setup(t)
	ctx := context.Background()
	path := filepath.Join(dir, "a.txt")
	write(t, path, "disk")

	mf, err := m.FetchMetafile(ctx, Query{Path: path})
	require.NoError(t, err)
	edited, err := m.SetContent(ctx, mf.ID, "edit")
	require.NoError(t, err)
	assert.Equal(t, store.StateModified, edited.State)

	touch(t, path, time.Second)
	updated, err := m.UpdateFileMetafile(ctx, *edited)
	require.NoError(t, err)
	assert.Equal(t, "edit", updated.Content)
	assert.Equal(t, store.StateModified, updated.State)
}

func TestUpdateDirectoryMetafile(t *testing.T) {
	m, s, dir := setup(t)
	ctx := context.Background()
	root := filepath.Join(dir, "proj")
	write(t, filepath.Join(root, "a.go"), "package a\n")
	write(t, filepath.Join(root, "sub", "b.md"), "# b\n")
	write(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")

	mf, err := m.FetchMetafile(ctx, Query{Path: root})
	require.NoError(t, err)
	assert.Equal(t, store.KindDirectory, mf.Kind)
	assert.Equal(t, "Explorer", mf.Handler)
	require.Len(t, mf.Contains, 2, ".git is skipped")

	// Direct children only
	for _, id := range mf.Contains {
		child, ok := s.Metafile(id)
		require.True(t, ok)
		assert.Equal(t, root, filepath.Dir(child.Path))
	}

	// A child metafile that already exists is reused, not duplicated
	write(t, filepath.Join(root, "c.txt"), "c")
	touch(t, root, time.Second)
	updated, err := m.UpdateDirectoryMetafile(ctx, *mf, false)
	require.NoError(t, err)
	assert.Len(t, updated.Contains, 3)
	assert.Subset(t, updated.Contains, mf.Contains)
	assert.Len(t, s.FindMetafilesByPath(filepath.Join(root, "a.go")), 1)
}

func TestUpdateDirectoryMetafile_StaleNoOp(t *testing.T) {
	m, s, dir := setup(t)
	ctx := context.Background()
	root := filepath.Join(dir, "proj")
	write(t, filepath.Join(root, "a.go"), "package a\n")

	mf, err := m.FetchMetafile(ctx, Query{Path: root})
	require.NoError(t, err)
	require.Len(t, mf.Contains, 1)

	// Add a file but roll the directory mtime back, so nothing looks changed
	info, err := os.Stat(root)
	require.NoError(t, err)
	write(t, filepath.Join(root, "b.go"), "package a\n")
	require.NoError(t, os.Chtimes(root, info.ModTime(), info.ModTime()))

	rev := s.Revision()
	metafiles := len(s.Metafiles())
	same, err := m.UpdateDirectoryMetafile(ctx, *mf, false)
	require.NoError(t, err)
	assert.True(t, mf.Equal(*same))
	assert.Equal(t, rev, s.Revision(), "no store write")
	assert.Len(t, s.Metafiles(), metafiles, "no descendant walk")
}

func TestUpdateDirectoryMetafile_Shallow(t *testing.T) {
	m, s, dir := setup(t)
	ctx := context.Background()
	root := filepath.Join(dir, "proj")
	write(t, filepath.Join(root, "a.go"), "package a\n")

	created, err := m.CreateMetafile(ctx, Descriptor{Path: root})
	require.NoError(t, err)

	shallow, err := m.UpdateDirectoryMetafile(ctx, *created, true)
	require.NoError(t, err)
	assert.Empty(t, shallow.Contains)
	assert.True(t, shallow.Mtime.IsZero(), "shallow updates leave the directory stale")
	assert.Len(t, s.Metafiles(), 1)

	deep, err := m.UpdateDirectoryMetafile(ctx, *shallow, false)
	require.NoError(t, err)
	assert.Len(t, deep.Contains, 1)
}

func TestChildren_InheritVersion(t *testing.T) {
	m, _, dir := setup(t)
	ctx := context.Background()
	write(t, filepath.Join(dir, "a.go"), "package a\n")

	parent := store.Metafile{ID: "p", Kind: store.KindDirectory, Path: dir,
		Version: &store.Version{Repo: "r", Branch: "b", Status: store.StatusModified}}
	children, err := m.Children(ctx, parent)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.NotNil(t, children[0].Version)
	assert.Equal(t, store.BranchID("b"), children[0].Version.Branch)
	assert.Equal(t, store.StatusUnmodified, children[0].Version.Status)
}

func TestSaveAndRevert(t *testing.T) {
	m, _, dir := setup(t)
	ctx := context.Background()
	path := filepath.Join(dir, "a.txt")
	write(t, path, "disk")

	mf, err := m.FetchMetafile(ctx, Query{Path: path})
	require.NoError(t, err)

	_, err = m.SetContent(ctx, mf.ID, "saved")
	require.NoError(t, err)
	saved, err := m.SaveMetafile(ctx, mf.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateUnmodified, saved.State)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "saved", string(data))

	_, err = m.SetContent(ctx, mf.ID, "discard me")
	require.NoError(t, err)
	reverted, err := m.RevertMetafile(ctx, mf.ID)
	require.NoError(t, err)
	assert.Equal(t, "saved", reverted.Content)
	assert.Equal(t, store.StateUnmodified, reverted.State)

	// Setting content equal to disk is not a modification
	same, err := m.SetContent(ctx, mf.ID, "saved")
	require.NoError(t, err)
	assert.Equal(t, store.StateUnmodified, same.State)
}

func TestSaveMetafile_ConcurrentModification(t *testing.T) {
	m, _, dir := setup(t)
	ctx := context.Background()
	path := filepath.Join(dir, "a.txt")
	write(t, path, "disk")

	mf, err := m.FetchMetafile(ctx, Query{Path: path})
	require.NoError(t, err)
	_, err = m.SetContent(ctx, mf.ID, "mine")
	require.NoError(t, err)

	write(t, path, "theirs")
	touch(t, path, time.Second)

	_, err = m.SaveMetafile(ctx, mf.ID)
	assert.True(t, errors.Is(err, filemanager.ErrConcurrentModification))
	data, _ := os.ReadFile(path)
	assert.Equal(t, "theirs", string(data))
}

func TestDeleteMetafile(t *testing.T) {
	m, s, dir := setup(t)
	ctx := context.Background()
	root := filepath.Join(dir, "proj")
	path := filepath.Join(root, "a.txt")
	write(t, path, "a")

	parent, err := m.FetchMetafile(ctx, Query{Path: root})
	require.NoError(t, err)
	require.Len(t, parent.Contains, 1)
	child := parent.Contains[0]

	require.NoError(t, m.DeleteMetafile(ctx, child, true))
	_, ok := s.Metafile(child)
	assert.False(t, ok)
	assert.NoFileExists(t, path)

	p, _ := s.Metafile(parent.ID)
	assert.Empty(t, p.Contains)

	err = m.DeleteMetafile(ctx, child, false)
	assert.IsType(t, store.ErrNotFound{}, err)
}

func TestVirtualAndDiff(t *testing.T) {
	m, _, dir := setup(t)
	ctx := context.Background()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	write(t, a, "one\ntwo\n")
	write(t, b, "one\nthree\n")

	ma, err := m.FetchMetafile(ctx, Query{Path: a})
	require.NoError(t, err)
	mb, err := m.FetchMetafile(ctx, Query{Path: b})
	require.NoError(t, err)

	diff, err := m.CreateDiff(ctx, ma.ID, mb.ID)
	require.NoError(t, err)
	assert.Equal(t, store.KindDiff, diff.Kind)
	assert.Equal(t, []store.MetafileID{ma.ID, mb.ID}, diff.Targets)
	assert.Contains(t, diff.Content, "-two")
	assert.Contains(t, diff.Content, "+three")
	assert.False(t, diff.Filebased())

	v, err := m.CreateVirtual(ctx, "notes", "Editor", "scratch")
	require.NoError(t, err)
	assert.Equal(t, store.KindVirtual, v.Kind)

	// Virtual metafiles pass through filebased updates untouched
	same, err := m.UpdateFilebasedMetafile(ctx, *v)
	require.NoError(t, err)
	assert.True(t, v.Equal(*same))

	_, err = m.SaveMetafile(ctx, v.ID)
	assert.IsType(t, ErrNotFilebased{}, err)
}
