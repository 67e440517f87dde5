package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RepositoryRootIsUnique(t *testing.T) {
	s := New()

	require.NoError(t, s.AddRepository(Repository{ID: "r1", Name: "foo", Root: "/tmp/foo"}))
	err := s.AddRepository(Repository{ID: "r2", Name: "foo", Root: "/tmp/foo/"})
	require.Error(t, err)
	assert.IsType(t, ErrDuplicateRoot{}, err)

	r, ok := s.FindRepositoryByRoot("/tmp/foo")
	require.True(t, ok)
	assert.Equal(t, RepositoryID("r1"), r.ID)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	require.NoError(t, s.AddBranch(Branch{ID: "b1", Ref: "main", Scope: ScopeLocal, Root: "/repo", Commits: []string{"a", "b"}}))

	b, ok := s.Branch("b1")
	require.True(t, ok)
	b.Commits[0] = "mutated"

	again, _ := s.Branch("b1")
	assert.Equal(t, "a", again.Commits[0])
}

func TestStore_FindBranch(t *testing.T) {
	s := New()
	require.NoError(t, s.AddBranch(Branch{ID: "b1", Ref: "main", Scope: ScopeLocal, Root: "/repo", Current: true}))
	require.NoError(t, s.AddBranch(Branch{ID: "b2", Ref: "main", Scope: ScopeRemote, Root: "/repo"}))
	require.NoError(t, s.AddBranch(Branch{ID: "b3", Ref: "dev", Scope: ScopeLocal, Root: "/.syn/repo/dev", Linked: true}))

	b, ok := s.FindBranch("/repo", "main", ScopeRemote)
	require.True(t, ok)
	assert.Equal(t, BranchID("b2"), b.ID)

	cur, ok := s.FindCurrentBranch("/repo/")
	require.True(t, ok)
	assert.Equal(t, BranchID("b1"), cur.ID)

	_, ok = s.FindBranch("/repo", "dev", ScopeLocal)
	assert.False(t, ok)
}

func TestStore_MetafileLookups(t *testing.T) {
	s := New()
	require.NoError(t, s.AddMetafile(Metafile{ID: "d", Kind: KindDirectory, Handler: "Explorer", Path: "/repo/src"}))
	require.NoError(t, s.AddMetafile(Metafile{ID: "f1", Kind: KindFile, Handler: "Editor", Path: "/repo/src/a.go"}))
	require.NoError(t, s.AddMetafile(Metafile{ID: "f2", Kind: KindFile, Handler: "Explorer", Path: "/repo/src/a.go"}))
	require.NoError(t, s.AddMetafile(Metafile{ID: "f3", Kind: KindFile, Handler: "Editor", Path: "/repo/srcx/b.go"}))
	require.NoError(t, s.AddMetafile(Metafile{ID: "v", Kind: KindVirtual, Handler: "Diff", Targets: []MetafileID{"f1"}}))

	m, ok := s.FindMetafile("/repo/src/a.go", "Explorer")
	require.True(t, ok)
	assert.Equal(t, MetafileID("f2"), m.ID)

	assert.Len(t, s.FindMetafilesByPath("/repo/src/a.go"), 2)

	desc := s.Descendants("/repo/src")
	require.Len(t, desc, 2)
	for _, d := range desc {
		assert.NotEqual(t, MetafileID("f3"), d.ID, "sibling prefix must not count as descendant")
	}
}

func TestStore_RevisionAndSubscribe(t *testing.T) {
	s := New()
	changes, cancel := s.Subscribe(8)
	defer cancel()

	require.NoError(t, s.AddMetafile(Metafile{ID: "m", Kind: KindFile, Path: "/a"}))
	require.NoError(t, s.UpdateMetafile(Metafile{ID: "m", Kind: KindFile, Path: "/a", Content: "x"}))
	require.NoError(t, s.RemoveMetafile("m"))
	assert.Equal(t, uint64(3), s.Revision())

	err := s.UpdateMetafile(Metafile{ID: "m"})
	assert.IsType(t, ErrNotFound{}, err)
	assert.Equal(t, uint64(3), s.Revision(), "failed writes do not bump the revision")

	want := []Action{ActionAdded, ActionUpdated, ActionRemoved}
	for _, a := range want {
		select {
		case c := <-changes:
			assert.Equal(t, a, c.Action)
			assert.Equal(t, EntityMetafile, c.Kind)
		case <-time.After(time.Second):
			t.Fatalf("missing %s change", a)
		}
	}
}

func TestStore_CacheEntries(t *testing.T) {
	s := New()
	require.NoError(t, s.PutCacheEntry(CacheEntry{Path: "/a", Reserved: []string{"card-1"}}))
	e, ok := s.CacheEntry("/a")
	require.True(t, ok)
	assert.Equal(t, []string{"card-1"}, e.Reserved)

	require.NoError(t, s.RemoveCacheEntry("/a"))
	_, ok = s.CacheEntry("/a")
	assert.False(t, ok)
}

func TestStore_SnapshotJSON(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRepository(Repository{ID: "r", Name: "foo", Root: "/foo"}))
	require.NoError(t, s.AddMetafile(Metafile{ID: "m", Kind: KindFile, Path: "/foo/a", Version: &Version{Repo: "r", Status: StatusUnstagedModified}}))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "foo", snap.Repositories["r"].Name)
	assert.Equal(t, StatusUnstagedModified, snap.Metafiles["m"].Version.Status)
}

func TestStore_SnapshotOmitsCredentials(t *testing.T) {
	s := New()
	require.NoError(t, s.AddRepository(Repository{
		ID: "r", Name: "foo", Root: "/foo",
		OAuth: "github", Username: "alice", Password: "s3cr3t", Token: "tok3n",
	}))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cr3t")
	assert.NotContains(t, string(data), "tok3n")
	assert.NotContains(t, string(data), "alice")

	r, ok := s.Repository("r")
	require.True(t, ok)
	assert.Equal(t, "s3cr3t", r.Password, "credentials remain available in memory")
}

func TestMatch(t *testing.T) {
	cases := MetafileCases[string]{
		File:      func(Metafile) string { return "file" },
		Directory: func(Metafile) string { return "dir" },
		Virtual:   func(Metafile) string { return "virtual" },
		Diff:      func(Metafile) string { return "diff" },
	}
	assert.Equal(t, "file", Match(Metafile{Kind: KindFile}, cases))
	assert.Equal(t, "dir", Match(Metafile{Kind: KindDirectory}, cases))
	assert.Equal(t, "diff", Match(Metafile{Kind: KindDiff}, cases))
	assert.Panics(t, func() { Match(Metafile{Kind: "bogus"}, cases) })
	assert.Panics(t, func() { Match(Metafile{Kind: KindFile}, MetafileCases[string]{}) })
}

func TestMetafile_EqualAndVersioned(t *testing.T) {
	now := time.Now()
	a := Metafile{ID: "m", Kind: KindFile, Path: "/a", Mtime: now, Version: &Version{Status: StatusModified, Conflicts: []string{"/a"}}}
	b := a.Clone()
	assert.True(t, a.Equal(b))
	assert.True(t, a.Versioned())

	b.Version.Status = StatusUnmodified
	assert.False(t, a.Equal(b))

	v := Metafile{Kind: KindVirtual, Version: &Version{}}
	assert.False(t, v.Versioned(), "virtual metafiles are never versioned")
}
