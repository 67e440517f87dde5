package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPICLab/synectic/internal/tests/helpers"
)

func newBridge(t *testing.T, opts ...Option) *Bridge {
	t.Helper()
	b, err := NewBridge(append([]Option{WithDebounce(20 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// waitFor collects triggers until one carries an event matching want
func waitFor(t *testing.T, b *Bridge, want func(Event) bool) []Trigger {
	t.Helper()
	var seen []Trigger
	deadline := time.After(5 * time.Second)
	for {
		select {
		case tr, ok := <-b.Triggers():
			require.True(t, ok, "trigger stream closed")
			seen = append(seen, tr)
			for _, e := range tr.Events {
				if want(e) {
					return seen
				}
			}
		case <-deadline:
			t.Fatalf("no matching event after %d triggers: %+v", len(seen), seen)
		}
	}
}

func is(path string, op Op) func(Event) bool {
	return func(e Event) bool { return e.Path == path && e.Op == op }
}

func TestBridge_FileEvents(t *testing.T) {
	b := newBridge(t)
	dir := t.TempDir()
	_, err := b.Watch(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	triggers := waitFor(t, b, is(path, OpAdd))
	assert.Equal(t, dir, triggers[len(triggers)-1].Root)

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	waitFor(t, b, is(path, OpChange))

	require.NoError(t, os.Remove(path))
	waitFor(t, b, is(path, OpUnlink))
}

func TestBridge_DirectoryEvents(t *testing.T) {
	b := newBridge(t)
	dir := t.TempDir()
	_, err := b.Watch(dir)
	require.NoError(t, err)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitFor(t, b, is(sub, OpAddDir))

	// New directories are watched as they appear
	nested := filepath.Join(sub, "b.txt")
	require.NoError(t, os.WriteFile(nested, []byte("b"), 0o644))
	waitFor(t, b, is(nested, OpAdd))

	require.NoError(t, os.RemoveAll(sub))
	waitFor(t, b, is(sub, OpUnlinkDir))
}

func TestBridge_Ignore(t *testing.T) {
	b := newBridge(t, WithIgnore([]string{"node_modules", "*.tmp"}))
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "node_modules"), 0o755))
	_, err := b.Watch(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "x.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scratch.tmp"), []byte("x"), 0o644))
	marker := filepath.Join(dir, "keep.txt")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	for _, tr := range waitFor(t, b, is(marker, OpAdd)) {
		for _, e := range tr.Events {
			assert.NotContains(t, e.Path, "node_modules")
			assert.NotEqual(t, ".tmp", filepath.Ext(e.Path))
		}
	}
}

func TestBridge_Debounce(t *testing.T) {
	b := newBridge(t, WithDebounce(300*time.Millisecond))
	dir := t.TempDir()
	_, err := b.Watch(dir)
	require.NoError(t, err)

	var paths []string
	for _, name := range []string{"a", "b", "c"} {
		p := filepath.Join(dir, name)
		paths = append(paths, p)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	}

	select {
	case tr := <-b.Triggers():
		var added []string
		for _, e := range tr.Events {
			if e.Op == OpAdd {
				added = append(added, e.Path)
			}
		}
		assert.ElementsMatch(t, paths, added, "events within the window coalesce into one trigger")
	case <-time.After(5 * time.Second):
		t.Fatal("no trigger")
	}
}

func TestBridge_GitEvents(t *testing.T) {
	b := newBridge(t)
	repo := helpers.CreateTestRepo(t)
	_, err := b.Watch(repo)
	require.NoError(t, err)

	helpers.CreateBranch(t, repo, "feature")
	ref := filepath.Join(repo, ".git", "refs", "heads", "feature")
	triggers := waitFor(t, b, is(ref, OpAdd))
	assert.True(t, triggers[len(triggers)-1].HasGit())
}

func TestBridge_Overlap(t *testing.T) {
	b := newBridge(t)
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	_, err := b.Watch(dir)
	require.NoError(t, err)
	_, err = b.Watch(filepath.Join(dir, "sub"))
	assert.ErrorIs(t, err, ErrAlreadyWatching)

	_, err = b.Watch(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = b.Watch(file)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestHandle_Close(t *testing.T) {
	b := newBridge(t)
	first, second := t.TempDir(), t.TempDir()
	h, err := b.Watch(first)
	require.NoError(t, err)
	_, err = b.Watch(second)
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.NoError(t, os.WriteFile(filepath.Join(first, "ignored"), nil, 0o644))
	marker := filepath.Join(second, "seen")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	for _, tr := range waitFor(t, b, is(marker, OpAdd)) {
		assert.Equal(t, second, tr.Root)
	}

	// The root can be watched again once released
	_, err = b.Watch(first)
	assert.NoError(t, err)
}

func TestBridge_Close(t *testing.T) {
	b, err := NewBridge()
	require.NoError(t, err)
	_, err = b.Watch(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, ok := <-b.Triggers()
	assert.False(t, ok)
	_, err = b.Watch(t.TempDir())
	assert.ErrorIs(t, err, ErrWatcherClosed)
}
