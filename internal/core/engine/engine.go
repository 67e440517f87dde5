// Package engine wires the synchronization components together and drives
// reconciliation from filesystem triggers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/EPICLab/synectic/internal/core/branch"
	"github.com/EPICLab/synectic/internal/core/cache"
	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/git"
	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/metafile"
	"github.com/EPICLab/synectic/internal/core/repo"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/core/version"
	"github.com/EPICLab/synectic/internal/core/watcher"
	"github.com/EPICLab/synectic/internal/core/worktree"
	"github.com/EPICLab/synectic/internal/filemanager"
)

// ErrClosed is returned by operations started after Close
var ErrClosed = errors.New("engine closed")

// Engine owns the entity store and every component that keeps it in sync
type Engine struct {
	cfg *config.Config
	log logger.Logger

	store     *store.Store
	git       *git.Operations
	fm        *filemanager.Manager
	cache     *cache.Cache
	metafiles *metafile.Manager
	branches  *branch.Manager
	repos     *repo.Resolver
	versions  *version.Reconciler

	// ctx is cancelled by Close and bounds every task
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	tasks   sync.WaitGroup
	bridge  *watcher.Bridge
	handles map[string]*watcher.Handle
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger shared by every component
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithGit replaces the git backend
func WithGit(ops *git.Operations) Option {
	return func(e *Engine) { e.git = ops }
}

// New builds an engine from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		log:     logger.Nop(),
		handles: make(map[string]*watcher.Handle),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.store = store.New()
	e.fm = filemanager.NewManager()
	if e.git == nil {
		e.git = git.NewOperations(git.WithLogger(e.log))
	}

	var err error
	e.cache, err = cache.New(e.store, e.fm,
		cache.WithLogger(e.log),
		cache.WithMaxCost(cfg.Cache.MaxCost))
	if err != nil {
		return nil, err
	}

	e.metafiles = metafile.NewManager(e.store, e.fm,
		metafile.WithLogger(e.log),
		metafile.WithContentSource(e.cache),
		metafile.WithRegistry(metafile.NewRegistry(cfg.Filetypes)),
		metafile.WithIgnore(cfg.Watch.Ignore))
	e.branches = branch.NewManager(e.store, e.git,
		branch.WithLogger(e.log),
		branch.WithWorktreeDir(cfg.Worktrees.Dir))
	e.repos = repo.NewResolver(e.store, e.git, e.branches, repo.WithLogger(e.log))
	e.versions = version.NewReconciler(e.store, e.git, e.metafiles, e.branches, e.repos,
		version.WithLogger(e.log))

	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// Store returns the shared entity store
func (e *Engine) Store() *store.Store { return e.store }

// Git returns the git backend
func (e *Engine) Git() *git.Operations { return e.git }

// Cache returns the content cache
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Metafiles returns the metafile manager
func (e *Engine) Metafiles() *metafile.Manager { return e.metafiles }

// Branches returns the branch manager
func (e *Engine) Branches() *branch.Manager { return e.branches }

// Repos returns the repository resolver
func (e *Engine) Repos() *repo.Resolver { return e.repos }

// Versions returns the version status reconciler
func (e *Engine) Versions() *version.Reconciler { return e.versions }

// Config returns the configuration the engine was built with
func (e *Engine) Config() *config.Config { return e.cfg }

// begin registers a task and returns a context cancelled by Close. Callers
// must call the returned done func.
func (e *Engine) begin(ctx context.Context) (context.Context, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, nil, ErrClosed
	}
	e.tasks.Add(1)

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
		e.tasks.Done()
	}, nil
}

// discarded reports whether results of in-flight work should be dropped
func (e *Engine) discarded() bool {
	return e.ctx.Err() != nil
}

// Open loads the metafile for path, reserves its content in the cache and
// reconciles its version status
func (e *Engine) Open(ctx context.Context, path string) (*store.Metafile, error) {
	return e.OpenWith(ctx, metafile.Query{Path: path})
}

// OpenWith is Open with an explicit handler
func (e *Engine) OpenWith(ctx context.Context, q metafile.Query) (*store.Metafile, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return e.open(ctx, q)
}

func (e *Engine) open(ctx context.Context, q metafile.Query) (*store.Metafile, error) {
	abs, err := filepath.Abs(q.Path)
	if err != nil {
		return nil, err
	}
	q.Path = abs

	mf, err := e.metafiles.FetchMetafile(ctx, q)
	if err != nil {
		return nil, err
	}
	if mf.Kind == store.KindFile {
		if err := e.cache.Subscribe(ctx, mf.Path, string(mf.ID)); err != nil {
			return nil, fmt.Errorf("failed to reserve content: %w", err)
		}
	}
	if e.discarded() {
		return nil, ErrClosed
	}

	updated, report, err := e.versions.UpdateVersionedMetafile(ctx, *mf)
	if err != nil {
		return nil, err
	}
	e.log.Debug("opened", "path", abs, "id", updated.ID, "created", report.Created)
	return updated, nil
}

// Release drops the content reservation Open took for id
func (e *Engine) Release(id store.MetafileID) error {
	mf, ok := e.store.Metafile(id)
	if !ok || mf.Kind != store.KindFile {
		return nil
	}
	return e.cache.Unsubscribe(mf.Path, string(id))
}

// SwitchBranch opens the counterpart of metafile id on ref. The ref is made
// available through a linked worktree when it is not checked out; the
// original metafile is left untouched.
func (e *Engine) SwitchBranch(ctx context.Context, id store.MetafileID, ref string) (*store.Metafile, error) {
	ctx, done, err := e.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	mf, ok := e.store.Metafile(id)
	if !ok {
		return nil, store.ErrNotFound{Kind: store.EntityMetafile, ID: string(id)}
	}
	if !mf.Filebased() {
		return nil, metafile.ErrNotFilebased{ID: id}
	}

	wt := worktree.Resolve(mf.Path)
	if !wt.Found() {
		return nil, fmt.Errorf("%s is not inside a repository", mf.Path)
	}
	rel, err := filepath.Rel(wt.Root(), mf.Path)
	if err != nil {
		return nil, err
	}

	b, err := e.branches.AddBranch(ctx, branch.AddOptions{Root: wt.Dir, Ref: ref})
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("failed to check out %s", ref)
	}
	if e.discarded() {
		return nil, ErrClosed
	}

	e.log.Info("switched branch", "path", mf.Path, "ref", ref, "root", b.Root)
	return e.open(ctx, metafile.Query{Path: filepath.Join(b.Root, rel), Handler: mf.Handler})
}

// Close cancels in-flight tasks, stops every watcher and waits for tasks to
// return. Work that completes after Close is discarded.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	bridge := e.bridge
	e.handles = make(map[string]*watcher.Handle)
	e.mu.Unlock()

	e.cancel()
	var err error
	if bridge != nil {
		err = bridge.Close()
	}
	e.tasks.Wait()
	e.cache.Close()
	return err
}

func (e *Engine) debounce() time.Duration {
	return time.Duration(e.cfg.Watch.Debounce) * time.Millisecond
}
