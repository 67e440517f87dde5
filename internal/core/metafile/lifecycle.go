package metafile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/EPICLab/synectic/internal/core/store"
)

// ErrNotFilebased is returned by operations that need a file-backed metafile
type ErrNotFilebased struct {
	ID store.MetafileID
}

func (e ErrNotFilebased) Error() string {
	return fmt.Sprintf("metafile is not file based: %s", e.ID)
}

func (m *Manager) get(id store.MetafileID) (store.Metafile, error) {
	mf, ok := m.store.Metafile(id)
	if !ok {
		return store.Metafile{}, store.ErrNotFound{Kind: store.EntityMetafile, ID: string(id)}
	}
	return mf, nil
}

// SetContent records an in-memory edit. The state becomes modified unless
// the content matches what is on disk.
func (m *Manager) SetContent(ctx context.Context, id store.MetafileID, content string) (*store.Metafile, error) {
	mf, err := m.get(id)
	if err != nil {
		return nil, err
	}
	updated := mf.Clone()
	updated.Content = content

	if mf.Kind == store.KindFile {
		updated.State = store.StateModified
		if disk, err := m.source.Read(ctx, mf.Path); err == nil && string(disk) == content {
			updated.State = store.StateUnmodified
		}
	}
	return m.commit(mf, updated)
}

// SaveMetafile writes the metafile's content to disk. It fails with
// filemanager.ErrConcurrentModification if the file changed since it was read.
func (m *Manager) SaveMetafile(ctx context.Context, id store.MetafileID) (*store.Metafile, error) {
	mf, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if mf.Kind != store.KindFile {
		return nil, ErrNotFilebased{ID: id}
	}

	if err := m.fm.WriteFileIfUnchanged(ctx, mf.Path, []byte(mf.Content), mf.Mtime); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", mf.Path, err)
	}
	m.source.Invalidate(mf.Path)

	stats, err := m.fm.Stat(mf.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", mf.Path, err)
	}
	updated := mf.Clone()
	updated.Mtime = stats.ModTime
	updated.State = store.StateUnmodified
	m.log.Info("saved metafile", "path", mf.Path)
	return m.commit(mf, updated)
}

// RevertMetafile drops unsaved edits and reloads content from disk
func (m *Manager) RevertMetafile(ctx context.Context, id store.MetafileID) (*store.Metafile, error) {
	mf, err := m.get(id)
	if err != nil {
		return nil, err
	}
	if mf.Kind != store.KindFile {
		return nil, ErrNotFilebased{ID: id}
	}

	updated := mf.Clone()
	m.source.Invalidate(mf.Path)
	data, err := m.source.Read(ctx, mf.Path)
	switch {
	case err == nil:
		updated.Content = string(data)
	case errors.Is(err, os.ErrNotExist):
		updated.Content = ""
	default:
		return nil, fmt.Errorf("failed to read %s: %w", mf.Path, err)
	}
	if stats, err := m.fm.Stat(mf.Path); err == nil && stats.Exists {
		updated.Mtime = stats.ModTime
	}
	updated.State = store.StateUnmodified
	return m.commit(mf, updated)
}

// DeleteMetafile removes the metafile from the store and from its parent
// directory's children. With unlink, the backing file is deleted as well.
func (m *Manager) DeleteMetafile(ctx context.Context, id store.MetafileID, unlink bool) error {
	mf, err := m.get(id)
	if err != nil {
		return err
	}

	if unlink && mf.Filebased() {
		if err := m.fm.Remove(ctx, mf.Path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", mf.Path, err)
		}
		m.source.Invalidate(mf.Path)
	}

	if mf.Filebased() {
		for _, parent := range m.store.FindMetafilesByPath(filepath.Dir(mf.Path)) {
			if !parent.IsDirectory() || !slices.Contains(parent.Contains, id) {
				continue
			}
			parent.Contains = slices.DeleteFunc(parent.Contains, func(c store.MetafileID) bool { return c == id })
			if err := m.store.UpdateMetafile(parent); err != nil {
				return fmt.Errorf("failed to update parent: %w", err)
			}
		}
	}

	if err := m.store.RemoveMetafile(id); err != nil {
		return err
	}
	m.log.Debug("deleted metafile", "id", id, "path", mf.Path, "unlink", unlink)
	return nil
}

// CreateVirtual creates a metafile with no filesystem backing
func (m *Manager) CreateVirtual(ctx context.Context, name, handler, content string, targets ...store.MetafileID) (*store.Metafile, error) {
	return m.CreateMetafile(ctx, Descriptor{
		Name:    name,
		Handler: handler,
		Content: content,
		Targets: targets,
		Kind:    store.KindVirtual,
	})
}

// CreateDiff creates a diff metafile holding the unified diff of two
// metafiles' contents
func (m *Manager) CreateDiff(ctx context.Context, a, b store.MetafileID) (*store.Metafile, error) {
	left, err := m.get(a)
	if err != nil {
		return nil, err
	}
	right, err := m.get(b)
	if err != nil {
		return nil, err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(left.Content),
		B:        difflib.SplitLines(right.Content),
		FromFile: label(left),
		ToFile:   label(right),
		Context:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to diff metafiles: %w", err)
	}

	return m.CreateMetafile(ctx, Descriptor{
		Name:    fmt.Sprintf("%s vs %s", left.Name, right.Name),
		Handler: "Diff",
		Content: diff,
		Targets: []store.MetafileID{a, b},
		Kind:    store.KindDiff,
	})
}

func label(mf store.Metafile) string {
	if mf.Path != "" {
		return mf.Path
	}
	return mf.Name
}
