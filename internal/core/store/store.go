// Package store provides the normalized entity store shared by the
// synchronization engine. Entities reference each other by id only.
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrDuplicateRoot is returned when adding a repository whose root is already tracked
type ErrDuplicateRoot struct {
	Root string
}

func (e ErrDuplicateRoot) Error() string {
	return fmt.Sprintf("repository already tracked for root: %s", e.Root)
}

// ErrNotFound is returned when updating an entity that is not in the store
type ErrNotFound struct {
	Kind EntityKind
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// Store holds every Repository, Branch, Metafile and Cache entry by id.
// A Store is safe for concurrent use; readers receive copies.
type Store struct {
	mu           sync.RWMutex
	repositories map[RepositoryID]Repository
	branches     map[BranchID]Branch
	metafiles    map[MetafileID]Metafile
	cache        map[string]CacheEntry
	revision     uint64

	subMu       sync.Mutex
	subscribers map[int]chan Change
	nextSub     int
}

// New creates an empty store
func New() *Store {
	return &Store{
		repositories: make(map[RepositoryID]Repository),
		branches:     make(map[BranchID]Branch),
		metafiles:    make(map[MetafileID]Metafile),
		cache:        make(map[string]CacheEntry),
		subscribers:  make(map[int]chan Change),
	}
}

// Revision returns the number of writes applied so far
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Subscribe returns a channel receiving every change and a function to cancel
// the subscription. Slow subscribers drop changes rather than block writers.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Change, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- c:
		default:
		}
	}
}

// write runs fn under the write lock and publishes the resulting change
func (s *Store) write(fn func() (Change, error)) error {
	s.mu.Lock()
	c, err := fn()
	if err == nil {
		s.revision++
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(c)
	return nil
}

// Repositories

// AddRepository inserts a repository. Roots are unique across repositories.
func (s *Store) AddRepository(r Repository) error {
	return s.write(func() (Change, error) {
		root := filepath.Clean(r.Root)
		for _, existing := range s.repositories {
			if existing.ID != r.ID && filepath.Clean(existing.Root) == root {
				return Change{}, ErrDuplicateRoot{Root: r.Root}
			}
		}
		s.repositories[r.ID] = r.clone()
		return Change{Action: ActionAdded, Kind: EntityRepository, ID: string(r.ID)}, nil
	})
}

// UpdateRepository replaces an existing repository
func (s *Store) UpdateRepository(r Repository) error {
	return s.write(func() (Change, error) {
		if _, ok := s.repositories[r.ID]; !ok {
			return Change{}, ErrNotFound{Kind: EntityRepository, ID: string(r.ID)}
		}
		s.repositories[r.ID] = r.clone()
		return Change{Action: ActionUpdated, Kind: EntityRepository, ID: string(r.ID)}, nil
	})
}

// RemoveRepository deletes a repository; it never cascades to branches
func (s *Store) RemoveRepository(id RepositoryID) error {
	return s.write(func() (Change, error) {
		if _, ok := s.repositories[id]; !ok {
			return Change{}, ErrNotFound{Kind: EntityRepository, ID: string(id)}
		}
		delete(s.repositories, id)
		return Change{Action: ActionRemoved, Kind: EntityRepository, ID: string(id)}, nil
	})
}

// Repository returns the repository with the given id
func (s *Store) Repository(id RepositoryID) (Repository, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.repositories[id]
	return r.clone(), ok
}

// Repositories returns all repositories ordered by root
func (s *Store) Repositories() []Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Repository, 0, len(s.repositories))
	for _, r := range s.repositories {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out
}

// FindRepositoryByRoot returns the repository whose root equals root
func (s *Store) FindRepositoryByRoot(root string) (Repository, bool) {
	root = filepath.Clean(root)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.repositories {
		if filepath.Clean(r.Root) == root {
			return r.clone(), true
		}
	}
	return Repository{}, false
}

// Branches

// AddBranch inserts a branch
func (s *Store) AddBranch(b Branch) error {
	return s.write(func() (Change, error) {
		s.branches[b.ID] = b.clone()
		return Change{Action: ActionAdded, Kind: EntityBranch, ID: string(b.ID)}, nil
	})
}

// UpdateBranch replaces an existing branch
func (s *Store) UpdateBranch(b Branch) error {
	return s.write(func() (Change, error) {
		if _, ok := s.branches[b.ID]; !ok {
			return Change{}, ErrNotFound{Kind: EntityBranch, ID: string(b.ID)}
		}
		s.branches[b.ID] = b.clone()
		return Change{Action: ActionUpdated, Kind: EntityBranch, ID: string(b.ID)}, nil
	})
}

// RemoveBranch deletes a branch
func (s *Store) RemoveBranch(id BranchID) error {
	return s.write(func() (Change, error) {
		if _, ok := s.branches[id]; !ok {
			return Change{}, ErrNotFound{Kind: EntityBranch, ID: string(id)}
		}
		delete(s.branches, id)
		return Change{Action: ActionRemoved, Kind: EntityBranch, ID: string(id)}, nil
	})
}

// Branch returns the branch with the given id
func (s *Store) Branch(id BranchID) (Branch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[id]
	return b.clone(), ok
}

// Branches returns all branches ordered by scope then ref
func (s *Store) Branches() []Branch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, b.clone())
	}
	sortBranches(out)
	return out
}

func sortBranches(bs []Branch) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Scope != bs[j].Scope {
			return bs[i].Scope < bs[j].Scope
		}
		if bs[i].Ref != bs[j].Ref {
			return bs[i].Ref < bs[j].Ref
		}
		return bs[i].Root < bs[j].Root
	})
}

// FindBranch returns the branch matching root, ref and scope exactly
func (s *Store) FindBranch(root, ref string, scope Scope) (Branch, bool) {
	root = filepath.Clean(root)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.branches {
		if b.Ref == ref && b.Scope == scope && filepath.Clean(b.Root) == root {
			return b.clone(), true
		}
	}
	return Branch{}, false
}

// FindCurrentBranch returns the branch marked current whose root is root
func (s *Store) FindCurrentBranch(root string) (Branch, bool) {
	root = filepath.Clean(root)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.branches {
		if b.Current && filepath.Clean(b.Root) == root {
			return b.clone(), true
		}
	}
	return Branch{}, false
}

// FindBranches returns every branch accepted by the filter
func (s *Store) FindBranches(filter func(Branch) bool) []Branch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Branch
	for _, b := range s.branches {
		if filter(b) {
			out = append(out, b.clone())
		}
	}
	sortBranches(out)
	return out
}

// Metafiles

// AddMetafile inserts a metafile
func (s *Store) AddMetafile(m Metafile) error {
	return s.write(func() (Change, error) {
		s.metafiles[m.ID] = m.clone()
		return Change{Action: ActionAdded, Kind: EntityMetafile, ID: string(m.ID)}, nil
	})
}

// UpdateMetafile replaces an existing metafile
func (s *Store) UpdateMetafile(m Metafile) error {
	return s.write(func() (Change, error) {
		if _, ok := s.metafiles[m.ID]; !ok {
			return Change{}, ErrNotFound{Kind: EntityMetafile, ID: string(m.ID)}
		}
		s.metafiles[m.ID] = m.clone()
		return Change{Action: ActionUpdated, Kind: EntityMetafile, ID: string(m.ID)}, nil
	})
}

// RemoveMetafile deletes a metafile
func (s *Store) RemoveMetafile(id MetafileID) error {
	return s.write(func() (Change, error) {
		if _, ok := s.metafiles[id]; !ok {
			return Change{}, ErrNotFound{Kind: EntityMetafile, ID: string(id)}
		}
		delete(s.metafiles, id)
		return Change{Action: ActionRemoved, Kind: EntityMetafile, ID: string(id)}, nil
	})
}

// Metafile returns the metafile with the given id
func (s *Store) Metafile(id MetafileID) (Metafile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metafiles[id]
	return m.clone(), ok
}

// Metafiles returns all metafiles ordered by path then handler
func (s *Store) Metafiles() []Metafile {
	return s.FindMetafiles(func(Metafile) bool { return true })
}

// FindMetafiles returns every metafile accepted by the filter
func (s *Store) FindMetafiles(filter func(Metafile) bool) []Metafile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Metafile
	for _, m := range s.metafiles {
		if filter(m) {
			out = append(out, m.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		if out[i].Handler != out[j].Handler {
			return out[i].Handler < out[j].Handler
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindMetafile returns the filebased metafile for path owned by handler
func (s *Store) FindMetafile(path, handler string) (Metafile, bool) {
	path = filepath.Clean(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.metafiles {
		if m.Filebased() && m.Handler == handler && filepath.Clean(m.Path) == path {
			return m.clone(), true
		}
	}
	return Metafile{}, false
}

// FindMetafilesByPath returns every filebased metafile for path, across handlers
func (s *Store) FindMetafilesByPath(path string) []Metafile {
	path = filepath.Clean(path)
	return s.FindMetafiles(func(m Metafile) bool {
		return m.Filebased() && filepath.Clean(m.Path) == path
	})
}

// Descendants returns every filebased metafile strictly below dir
func (s *Store) Descendants(dir string) []Metafile {
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	return s.FindMetafiles(func(m Metafile) bool {
		return m.Filebased() && strings.HasPrefix(filepath.Clean(m.Path), prefix)
	})
}

// Cache entries

// PutCacheEntry inserts or replaces the entry for its path
func (s *Store) PutCacheEntry(c CacheEntry) error {
	return s.write(func() (Change, error) {
		action := ActionUpdated
		if _, ok := s.cache[c.Path]; !ok {
			action = ActionAdded
		}
		s.cache[c.Path] = c.clone()
		return Change{Action: action, Kind: EntityCache, ID: c.Path}, nil
	})
}

// RemoveCacheEntry deletes the entry for path
func (s *Store) RemoveCacheEntry(path string) error {
	return s.write(func() (Change, error) {
		if _, ok := s.cache[path]; !ok {
			return Change{}, ErrNotFound{Kind: EntityCache, ID: path}
		}
		delete(s.cache, path)
		return Change{Action: ActionRemoved, Kind: EntityCache, ID: path}, nil
	})
}

// CacheEntry returns the entry for path
func (s *Store) CacheEntry(path string) (CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[path]
	return c.clone(), ok
}

// CacheEntries returns all cache entries ordered by path
func (s *Store) CacheEntries() []CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CacheEntry, 0, len(s.cache))
	for _, c := range s.cache {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Snapshot is the plain normalized form of the store
type Snapshot struct {
	Repositories map[RepositoryID]Repository `json:"repos"`
	Branches     map[BranchID]Branch         `json:"branches"`
	Metafiles    map[MetafileID]Metafile     `json:"metafiles"`
	Cache        map[string]CacheEntry       `json:"cache"`
}

// Snapshot copies every table
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Repositories: make(map[RepositoryID]Repository, len(s.repositories)),
		Branches:     make(map[BranchID]Branch, len(s.branches)),
		Metafiles:    make(map[MetafileID]Metafile, len(s.metafiles)),
		Cache:        make(map[string]CacheEntry, len(s.cache)),
	}
	for id, r := range s.repositories {
		snap.Repositories[id] = r.clone()
	}
	for id, b := range s.branches {
		snap.Branches[id] = b.clone()
	}
	for id, m := range s.metafiles {
		snap.Metafiles[id] = m.clone()
	}
	for p, c := range s.cache {
		snap.Cache[p] = c.clone()
	}
	return snap
}

// MarshalJSON serializes the store for debugging
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
