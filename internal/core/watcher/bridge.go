package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/worktree"
)

// Bridge owns one fsnotify watcher shared by every watched root
type Bridge struct {
	mu sync.Mutex

	fsw *fsnotify.Watcher
	cfg Config
	log logger.Logger

	roots map[string]*root
	dirs  map[string]*watchedDir

	triggers chan Trigger
	// sendMu guards triggers against close while a flush is sending
	sendMu sync.RWMutex

	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

type root struct {
	path    string
	pending []Event
	timer   *time.Timer
	// send keeps a root's triggers in order
	send sync.Mutex
}

// watchedDir is one fsnotify registration. Git directories can be shared
// by the roots of several linked worktrees. Flat registrations do not pick
// up new subdirectories.
type watchedDir struct {
	git   bool
	flat  bool
	roots []*root
}

// Handle is one watched root
type Handle struct {
	bridge *Bridge
	root   *root
	once   sync.Once
}

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(b *Bridge) { b.log = logger.Component(l, "watcher") }
}

// WithDebounce sets the per-root quiet period
func WithDebounce(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.cfg.Debounce = d
		}
	}
}

// WithIgnore replaces the ignore patterns
func WithIgnore(patterns []string) Option {
	return func(b *Bridge) { b.cfg.Ignore = slices.Clone(patterns) }
}

// WithBuffer sets the trigger channel capacity
func WithBuffer(n int) Option {
	return func(b *Bridge) {
		if n >= 0 {
			b.cfg.Buffer = n
		}
	}
}

// NewBridge creates a bridge and starts its event loop
func NewBridge(opts ...Option) (*Bridge, error) {
	b := &Bridge{
		cfg:     DefaultConfig(),
		log:     logger.Nop(),
		roots:   make(map[string]*root),
		dirs:    make(map[string]*watchedDir),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	b.fsw = fsw
	b.triggers = make(chan Trigger, b.cfg.Buffer)

	b.wg.Add(1)
	go b.loop()
	return b, nil
}

// Triggers returns the debounced trigger stream. It is closed by Close.
func (b *Bridge) Triggers() <-chan Trigger {
	return b.triggers
}

// Watch starts watching the directory tree at path. When path is inside a
// git repository, the active git directory and the branch refs are watched
// too and their events are marked Git.
func (b *Bridge) Watch(path string) (*Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrWatcherClosed
	}
	for p := range b.roots {
		if worktree.Contains(p, abs) || worktree.Contains(abs, p) {
			b.mu.Unlock()
			return nil, fmt.Errorf("%s overlaps %s: %w", abs, p, ErrAlreadyWatching)
		}
	}
	r := &root{path: abs}
	b.roots[abs] = r
	b.mu.Unlock()

	h := &Handle{bridge: b, root: r}
	if _, err := b.addTree(r, abs, false, false); err != nil {
		b.unwatch(r)
		return nil, err
	}

	if wt := worktree.Resolve(abs); wt.Found() {
		if err := b.addDir(r, wt.ActiveGitDir(), true, true); err != nil {
			b.log.Warn("failed to watch git directory", "path", wt.ActiveGitDir(), "error", err)
		}
		if _, err := b.addTree(r, filepath.Join(wt.GitDir, "refs", "heads"), true, false); err != nil {
			b.log.Warn("failed to watch branch refs", "path", wt.GitDir, "error", err)
		}
	}

	b.log.Info("watching", "root", abs)
	return h, nil
}

// Close stops watching every root and closes the trigger stream
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, r := range b.roots {
		if r.timer != nil {
			r.timer.Stop()
		}
	}
	b.roots = make(map[string]*root)
	b.dirs = make(map[string]*watchedDir)
	b.mu.Unlock()

	close(b.closeCh)
	err := b.fsw.Close()
	b.wg.Wait()

	b.sendMu.Lock()
	close(b.triggers)
	b.sendMu.Unlock()
	return err
}

// Root returns the watched directory
func (h *Handle) Root() string {
	return h.root.path
}

// Close stops watching this root. Pending events are dropped.
func (h *Handle) Close() error {
	h.once.Do(func() { h.bridge.unwatch(h.root) })
	return nil
}

func (b *Bridge) unwatch(r *root) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.roots[r.path] == r {
		delete(b.roots, r.path)
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = nil

	for dir, wd := range b.dirs {
		wd.roots = slices.DeleteFunc(wd.roots, func(o *root) bool { return o == r })
		if len(wd.roots) == 0 {
			_ = b.fsw.Remove(dir)
			delete(b.dirs, dir)
		}
	}
}

// addTree registers dir and its non-ignored subdirectories. With emit, the
// entries found are returned as add events; they were created before their
// directory's watch existed and would otherwise go unseen.
func (b *Bridge) addTree(r *root, dir string, git, emit bool) ([]Event, error) {
	var found []Event
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			return nil
		}
		if !git && p != r.path && b.ignored(r.path, p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if emit && p != dir {
			op := OpAdd
			if d.IsDir() {
				op = OpAddDir
			}
			found = append(found, Event{Path: p, Op: op, Git: git})
		}
		if d.IsDir() {
			if err := b.addDir(r, p, git, false); err != nil {
				if p == dir {
					return err
				}
				b.log.Warn("failed to watch directory", "path", p, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return found, nil
}

func (b *Bridge) addDir(r *root, dir string, git, flat bool) error {
	dir = filepath.Clean(dir)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrWatcherClosed
	}

	wd, ok := b.dirs[dir]
	if !ok {
		if err := b.fsw.Add(dir); err != nil {
			return err
		}
		wd = &watchedDir{git: git, flat: flat}
		b.dirs[dir] = wd
	}
	if !slices.Contains(wd.roots, r) {
		wd.roots = append(wd.roots, r)
	}
	return nil
}

// forget drops dir and everything registered below it
func (b *Bridge) forget(dir string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for p := range b.dirs {
		if worktree.Contains(dir, p) {
			_ = b.fsw.Remove(p)
			delete(b.dirs, p)
		}
	}
}

func (b *Bridge) ignored(rootPath, path string) bool {
	rel, err := filepath.Rel(rootPath, path)
	if err != nil {
		return false
	}
	for _, elem := range strings.Split(rel, string(filepath.Separator)) {
		for _, pattern := range b.cfg.Ignore {
			if ok, _ := filepath.Match(pattern, elem); ok {
				return true
			}
		}
	}
	return false
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.closeCh:
			return
		case ev, ok := <-b.fsw.Events:
			if !ok {
				return
			}
			b.handle(ev)
		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			b.log.Warn("watch error", "error", err)
		}
	}
}

func (b *Bridge) handle(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)

	b.mu.Lock()
	parent := b.dirs[filepath.Dir(name)]
	_, isDir := b.dirs[name]
	var roots []*root
	var git, flat bool
	if parent != nil {
		roots = slices.Clone(parent.roots)
		git = parent.git
		flat = parent.flat
	}
	b.mu.Unlock()

	if len(roots) == 0 {
		return
	}
	if git {
		if strings.HasSuffix(name, ".lock") {
			return
		}
	} else if b.ignored(roots[0].path, name) {
		return
	}

	var op Op
	var nested []Event
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(name)
		if err != nil {
			// Already gone again
			return
		}
		op = OpAdd
		if info.IsDir() {
			op = OpAddDir
			if flat {
				break
			}
			for _, r := range roots {
				found, err := b.addTree(r, name, git, true)
				if err != nil {
					b.log.Warn("failed to watch new directory", "path", name, "error", err)
				}
				nested = found
			}
		}
	case ev.Has(fsnotify.Write):
		op = OpChange
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = OpUnlink
		if isDir {
			op = OpUnlinkDir
			b.forget(name)
		}
	default:
		return
	}

	events := append([]Event{{Path: name, Op: op, Git: git}}, nested...)
	for _, r := range roots {
		b.enqueue(r, events...)
	}
}

func (b *Bridge) enqueue(r *root, events ...Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.roots[r.path] != r {
		return
	}

	for _, e := range events {
		if !slices.Contains(r.pending, e) {
			r.pending = append(r.pending, e)
		}
	}
	if r.timer == nil {
		r.timer = time.AfterFunc(b.cfg.Debounce, func() { b.flush(r) })
	} else {
		r.timer.Reset(b.cfg.Debounce)
	}
}

func (b *Bridge) flush(r *root) {
	b.mu.Lock()
	events := r.pending
	r.pending = nil
	r.timer = nil
	b.mu.Unlock()
	if len(events) == 0 {
		return
	}

	r.send.Lock()
	defer r.send.Unlock()
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()

	select {
	case <-b.closeCh:
		return
	default:
	}
	select {
	case b.triggers <- Trigger{Root: r.path, Events: events}:
		b.log.Debug("trigger", "root", r.path, "events", len(events))
	case <-b.closeCh:
	}
}
