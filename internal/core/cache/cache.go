// Package cache deduplicates file content reads behind reference-counted
// reservations. Reservations live in the entity store; content bytes live in
// an in-process ristretto cache and may be evicted at any time, in which case
// reads fall back to the filesystem.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"lukechampine.com/blake3"

	"github.com/EPICLab/synectic/internal/core/config"
	"github.com/EPICLab/synectic/internal/core/logger"
	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/filemanager"
)

// Cache is the content cache
type Cache struct {
	store   *store.Store
	fm      *filemanager.Manager
	data    *ristretto.Cache[string, []byte]
	maxCost int64
	log     logger.Logger

	// mu serializes reservation changes so read-modify-write of entries is atomic
	mu sync.Mutex
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) { c.log = logger.Component(l, "cache") }
}

// WithMaxCost bounds cached content in bytes
func WithMaxCost(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxCost = n
		}
	}
}

// New creates a content cache
func New(s *store.Store, fm *filemanager.Manager, opts ...Option) (*Cache, error) {
	c := &Cache{
		store:   s,
		fm:      fm,
		maxCost: config.DefaultCacheMaxCost,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	data, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(c.maxCost/100*10, 1000),
		MaxCost:     c.maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create content cache: %w", err)
	}
	c.data = data
	return c, nil
}

// Close releases the cached content
func (c *Cache) Close() {
	c.data.Close()
}

// Subscribe adds owner's reservation on path, creating the entry and loading
// content on the first reservation. Subscribing twice is a no-op.
func (c *Cache) Subscribe(ctx context.Context, path, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store.CacheEntry(path)
	if ok {
		if slices.Contains(entry.Reserved, owner) {
			return nil
		}
		entry.Reserved = append(entry.Reserved, owner)
		return c.store.PutCacheEntry(entry)
	}

	entry = store.CacheEntry{Path: path, Reserved: []string{owner}}
	data, err := c.fm.ReadFile(ctx, path)
	switch {
	case err == nil:
		entry.Hash = hash(data)
		c.put(path, data)
	case errors.Is(err, os.ErrNotExist):
		// Reserving a path before it exists is allowed
	default:
		c.log.Warn("failed to load content", "path", path, "error", err)
	}
	return c.store.PutCacheEntry(entry)
}

// Unsubscribe drops owner's reservation on path and deletes the entry when
// none remain. Unsubscribing an owner without a reservation is a no-op.
func (c *Cache) Unsubscribe(path, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store.CacheEntry(path)
	if !ok || !slices.Contains(entry.Reserved, owner) {
		return nil
	}

	entry.Reserved = slices.DeleteFunc(entry.Reserved, func(r string) bool { return r == owner })
	if len(entry.Reserved) > 0 {
		return c.store.PutCacheEntry(entry)
	}

	c.data.Del(path)
	return c.store.RemoveCacheEntry(path)
}

// Read returns path's content, from memory when possible. A miss is always
// satisfied by reading the file; only reserved paths are kept in memory.
func (c *Cache) Read(ctx context.Context, path string) ([]byte, error) {
	if data, ok := c.data.Get(path); ok {
		return slices.Clone(data), nil
	}

	data, err := c.fm.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.store.CacheEntry(path); ok {
		c.put(path, data)
		if h := hash(data); h != entry.Hash {
			entry.Hash = h
			if err := c.store.PutCacheEntry(entry); err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

// Invalidate drops any in-memory content for path. The reservation survives.
func (c *Cache) Invalidate(path string) {
	c.data.Del(path)
	c.data.Wait()
}

// Entry returns the reservation entry for path
func (c *Cache) Entry(path string) (store.CacheEntry, bool) {
	return c.store.CacheEntry(path)
}

func (c *Cache) put(path string, data []byte) {
	if !c.data.Set(path, slices.Clone(data), int64(len(data))) {
		c.log.Debug("content not admitted", "path", path, "size", len(data))
	}
	c.data.Wait()
}

func hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
