// Package metafile creates, refreshes and deletes Metafile entities.
package metafile

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/filemanager"
)

// ContentSource supplies file content, typically through the content cache
type ContentSource interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Invalidate(path string)
}

type fileSource struct {
	fm *filemanager.Manager
}

func (f fileSource) Read(ctx context.Context, path string) ([]byte, error) {
	return f.fm.ReadFile(ctx, path)
}

func (fileSource) Invalidate(string) {}

// Query selects a metafile by path and handler. An empty handler means the
// handler the registry assigns to the path.
type Query struct {
	Path    string
	Handler string
}

// Descriptor describes a metafile to create
type Descriptor struct {
	Name    string
	Path    string
	Handler string
	Content string
	Targets []store.MetafileID
	Kind    store.Kind
}

// Manager manages the Metafile lifecycle
type Manager struct {
	store    *store.Store
	fm       *filemanager.Manager
	registry *Registry
	source   ContentSource
	ignore   []string
	log      logger.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) { m.log = logger.Component(l, "metafile") }
}

// WithContentSource routes content reads through src
func WithContentSource(src ContentSource) Option {
	return func(m *Manager) { m.source = src }
}

// WithRegistry sets the filetype registry
func WithRegistry(r *Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithIgnore sets base-name glob patterns skipped when listing directories
func WithIgnore(patterns []string) Option {
	return func(m *Manager) { m.ignore = patterns }
}

// NewManager creates a metafile manager
func NewManager(s *store.Store, fm *filemanager.Manager, opts ...Option) *Manager {
	m := &Manager{
		store:    s,
		fm:       fm,
		registry: NewRegistry(config.DefaultFiletypes()),
		ignore:   []string{".git"},
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.source == nil {
		m.source = fileSource{fm: fm}
	}
	return m
}

// Registry returns the filetype registry in use
func (m *Manager) Registry() *Registry {
	return m.registry
}

// FetchMetafile returns the metafile for q.Path and handler, creating and
// loading it on first reference
func (m *Manager) FetchMetafile(ctx context.Context, q Query) (*store.Metafile, error) {
	path := filepath.Clean(q.Path)
	stats, err := m.fm.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	handler := q.Handler
	if handler == "" {
		handler = m.registry.Lookup(path, stats.IsDir).Handler
	}
	if existing, ok := m.store.FindMetafile(path, handler); ok {
		return &existing, nil
	}

	mf, err := m.CreateMetafile(ctx, Descriptor{Path: path, Handler: handler})
	if err != nil {
		return nil, err
	}
	return m.UpdateFilebasedMetafile(ctx, *mf)
}

// CreateMetafile inserts a new metafile without loading content or children.
// Filebased descriptors get their filetype from the registry; the fallback
// entry guarantees every path is representable.
func (m *Manager) CreateMetafile(ctx context.Context, d Descriptor) (*store.Metafile, error) {
	mf := store.Metafile{
		ID:      store.MetafileID(uuid.New().String()),
		Name:    d.Name,
		Handler: d.Handler,
		Kind:    d.Kind,
		Content: d.Content,
		Targets: slices.Clone(d.Targets),
	}

	if d.Path != "" {
		path := filepath.Clean(d.Path)
		stats, err := m.fm.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		ft := m.registry.Lookup(path, stats.IsDir)
		mf.Path = path
		mf.Filetype = ft.Name
		mf.State = store.StateUnmodified
		if mf.Name == "" {
			mf.Name = filepath.Base(path)
		}
		if mf.Handler == "" {
			mf.Handler = ft.Handler
		}
		if mf.Kind == "" {
			mf.Kind = store.KindFile
			if stats.IsDir {
				mf.Kind = store.KindDirectory
			}
		}
	} else if mf.Kind == "" {
		mf.Kind = store.KindVirtual
	}

	if err := m.store.AddMetafile(mf); err != nil {
		return nil, fmt.Errorf("failed to store metafile: %w", err)
	}
	m.log.Debug("created metafile", "id", mf.ID, "kind", mf.Kind, "path", mf.Path, "handler", mf.Handler)
	return &mf, nil
}

// UpdateFilebasedMetafile refreshes a file or directory metafile from disk.
// Directories are refreshed deeply; virtual metafiles are returned unchanged.
func (m *Manager) UpdateFilebasedMetafile(ctx context.Context, mf store.Metafile) (*store.Metafile, error) {
	return store.Match(mf, store.MetafileCases[result]{
		File: func(mf store.Metafile) result {
			return wrap(m.UpdateFileMetafile(ctx, mf))
		},
		Directory: func(mf store.Metafile) result {
			return wrap(m.UpdateDirectoryMetafile(ctx, mf, false))
		},
		Virtual: func(mf store.Metafile) result { return result{mf: &mf} },
		Diff:    func(mf store.Metafile) result { return result{mf: &mf} },
	}).unwrap()
}

type result struct {
	mf  *store.Metafile
	err error
}

func wrap(mf *store.Metafile, err error) result { return result{mf: mf, err: err} }

func (r result) unwrap() (*store.Metafile, error) { return r.mf, r.err }

// stale reports whether the filesystem copy is newer than what mf recorded
func stale(mf store.Metafile, stats filemanager.Stats) bool {
	return mf.Mtime.IsZero() || stats.ModTime.After(mf.Mtime)
}

// UpdateFileMetafile re-reads content when the file changed since it was
// last read. A fresh metafile is returned as is, without a store write.
// Unsaved edits are kept; only the recorded mtime advances.
func (m *Manager) UpdateFileMetafile(ctx context.Context, mf store.Metafile) (*store.Metafile, error) {
	stats, err := m.fm.Stat(mf.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", mf.Path, err)
	}
	if !stats.Exists || !stale(mf, stats) {
		return &mf, nil
	}

	updated := mf.Clone()
	updated.Mtime = stats.ModTime
	if mf.State != store.StateModified {
		m.source.Invalidate(mf.Path)
		data, err := m.source.Read(ctx, mf.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", mf.Path, err)
		}
		updated.Content = string(data)
		updated.State = store.StateUnmodified
	}
	return m.commit(mf, updated)
}

// UpdateDirectoryMetafile refreshes a directory metafile when the directory
// changed since it was last listed. A deep update lists direct children,
// reusing their metafiles or creating new ones, and records the new mtime.
// A shallow update only refreshes the directory's own fields and leaves
// mtime alone, so a later deep update still performs the walk.
func (m *Manager) UpdateDirectoryMetafile(ctx context.Context, mf store.Metafile, shallow bool) (*store.Metafile, error) {
	stats, err := m.fm.Stat(mf.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", mf.Path, err)
	}
	if !stats.Exists || !stale(mf, stats) {
		return &mf, nil
	}

	updated := mf.Clone()
	updated.Name = filepath.Base(mf.Path)
	if shallow {
		return m.commit(mf, updated)
	}

	children, err := m.Children(ctx, mf)
	if err != nil {
		return nil, err
	}
	updated.Contains = make([]store.MetafileID, 0, len(children))
	for _, c := range children {
		updated.Contains = append(updated.Contains, c.ID)
	}
	updated.Mtime = stats.ModTime
	return m.commit(mf, updated)
}

// Children resolves the metafiles of dir's direct children on disk, creating
// missing ones. Children inherit the directory's repository and branch.
func (m *Manager) Children(ctx context.Context, dir store.Metafile) ([]store.Metafile, error) {
	entries, err := m.fm.ReadDir(dir.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir.Path, err)
	}

	out := make([]store.Metafile, 0, len(entries))
	for _, e := range entries {
		if m.ignored(e.Path) {
			continue
		}
		handler := m.registry.Lookup(e.Path, e.IsDir).Handler
		if existing, ok := m.store.FindMetafile(e.Path, handler); ok {
			out = append(out, existing)
			continue
		}

		child, err := m.CreateMetafile(ctx, Descriptor{Path: e.Path, Handler: handler})
		if err != nil {
			return nil, err
		}
		if dir.Version != nil {
			child.Version = &store.Version{Repo: dir.Version.Repo, Branch: dir.Version.Branch, Status: store.StatusUnmodified}
			if err := m.store.UpdateMetafile(*child); err != nil {
				return nil, fmt.Errorf("failed to store metafile: %w", err)
			}
		}
		out = append(out, *child)
	}
	return out, nil
}

func (m *Manager) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range m.ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// commit writes updated unless it equals the original
func (m *Manager) commit(original, updated store.Metafile) (*store.Metafile, error) {
	if original.Equal(updated) {
		return &original, nil
	}
	if err := m.store.UpdateMetafile(updated); err != nil {
		return nil, fmt.Errorf("failed to update metafile: %w", err)
	}
	return &updated, nil
}
