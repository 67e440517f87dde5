// Package filemanager is the filesystem layer of the engine: stat, locked
// reads, atomic locked writes, unlink and directory listing. Writes take an
// exclusive flock so concurrent editors never observe a torn file.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

// ErrConcurrentModification is returned when a file changed on disk since it was read
var ErrConcurrentModification = errors.New("file was modified concurrently")

// ErrLockTimeout is returned when acquiring a file lock times out
var ErrLockTimeout = errors.New("timeout acquiring file lock")

// ErrNotDirectory is returned when listing a path that is not a directory
type ErrNotDirectory struct {
	Path string
}

func (e ErrNotDirectory) Error() string {
	return fmt.Sprintf("not a directory: %s", e.Path)
}

// Stats is the result of extracting filesystem metadata for a path.
// A missing path yields Exists == false and no error.
type Stats struct {
	Path    string
	Exists  bool
	IsDir   bool
	ModTime time.Time
	Size    int64
}

// Manager performs file operations guarded by advisory locks
type Manager struct {
	lockTimeout  time.Duration
	pollInterval time.Duration
}

// Option configures a Manager
type Option func(*Manager)

// WithLockTimeout sets the maximum time to wait for a file lock
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.lockTimeout = d }
}

// NewManager creates a file manager with a 5s lock timeout
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		lockTimeout:  5 * time.Second,
		pollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stat extracts metadata for path
func (m *Manager) Stat(path string) (Stats, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Stats{Path: path}, nil
		}
		return Stats{Path: path}, err
	}
	return Stats{
		Path:    path,
		Exists:  true,
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}, nil
}

func (m *Manager) lock(ctx context.Context, path string, shared bool) (*flock.Flock, error) {
	lock := flock.New(path)
	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()

	var locked bool
	var err error
	if shared {
		locked, err = lock.TryRLockContext(lockCtx, m.pollInterval)
	} else {
		locked, err = lock.TryLockContext(lockCtx, m.pollInterval)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}
	if !locked {
		return nil, ErrLockTimeout
	}
	return lock, nil
}

// ReadFile reads path under a shared lock
func (m *Manager) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	lock, err := m.lock(ctx, path, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	return os.ReadFile(path)
}

// WriteFile replaces path atomically under an exclusive lock
func (m *Manager) WriteFile(ctx context.Context, path string, data []byte) error {
	return m.write(ctx, path, data, nil)
}

// WriteFileIfUnchanged writes only when the file's modification time still
// equals expected. A zero expected time skips the check.
func (m *Manager) WriteFileIfUnchanged(ctx context.Context, path string, data []byte, expected time.Time) error {
	return m.write(ctx, path, data, func() error {
		if expected.IsZero() {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to stat file: %w", err)
		}
		if info.ModTime().After(expected) {
			return ErrConcurrentModification
		}
		return nil
	})
}

func (m *Manager) write(ctx context.Context, path string, data []byte, check func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	lock, err := m.lock(ctx, path, false)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}

	tempFile := fmt.Sprintf("%s.%d.%d.tmp", path, os.Getpid(), time.Now().UnixNano())
	f, err := os.OpenFile(tempFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	_ = f.Sync()
	if err := f.Close(); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := atomicRename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Remove unlinks path. Removing a missing path is not an error.
func (m *Manager) Remove(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove directory: %w", err)
		}
		return nil
	}

	lock, err := m.lock(ctx, path, false)
	if err != nil {
		return err
	}
	// Unlock before removing so Windows releases the handle
	if err := lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock file: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// ReadDir lists the direct children of dir ordered by name
func (m *Manager) ReadDir(dir string) ([]Stats, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrNotDirectory{Path: dir}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	out := make([]Stats, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		fi, err := e.Info()
		if err != nil {
			// Entry vanished between listing and stat
			continue
		}
		out = append(out, Stats{
			Path:    p,
			Exists:  true,
			IsDir:   fi.IsDir(),
			ModTime: fi.ModTime(),
			Size:    fi.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ReadYAML reads and decodes a YAML document
func ReadYAML[T any](ctx context.Context, m *Manager, path string) (*T, error) {
	data, err := m.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}
	return &v, nil
}

// WriteYAML encodes v and writes it atomically
func WriteYAML[T any](ctx context.Context, m *Manager, path string, v *T) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal yaml: %w", err)
	}
	return m.WriteFile(ctx, path, data)
}
