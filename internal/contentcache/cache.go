// Package contentcache provides a read-through cache of file content keyed
// by (project, path).
package contentcache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fruitsalade/kbdocs/internal/logging"
	"github.com/fruitsalade/kbdocs/internal/metrics"
)

// Fetcher loads file content from the backing store.
type Fetcher interface {
	GetFile(ctx context.Context, project, path string) (string, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, project, path string) (string, error)

// GetFile calls f.
func (f FetcherFunc) GetFile(ctx context.Context, project, path string) (string, error) {
	return f(ctx, project, path)
}

// Key identifies a cached file.
type Key struct {
	Project string
	Path    string
}

func (k Key) String() string {
	return k.Project + "\x00" + k.Path
}

type entry struct {
	content string
}

// Cache holds fetched content. Entries are never evicted on their own.
type Cache struct {
	fetcher Fetcher
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[Key]*entry
	hits    int64
	misses  int64
}

// New creates a cache that fills misses from fetcher.
func New(fetcher Fetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		entries: make(map[Key]*entry),
	}
}

// Get returns cached content, fetching and storing it on a miss.
// Concurrent misses for the same key share one fetch.
func (c *Cache) Get(ctx context.Context, project, path string) (string, error) {
	key := Key{Project: project, Path: path}
	if content, ok := c.lookup(key); ok {
		return content, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// A Put may have landed while we waited for the group.
		if content, ok := c.Peek(project, path); ok {
			return content, nil
		}
		content, err := c.fetcher.GetFile(ctx, project, path)
		if err != nil {
			return "", err
		}
		return c.store(key, content, false), nil
	})
	if err != nil {
		logging.WithContext(ctx).Debug("content fetch failed",
			logging.String("path", path), logging.Err(err))
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	return v.(string), nil
}

// Refetch bypasses the cache, fetches fresh content and stores it.
func (c *Cache) Refetch(ctx context.Context, project, path string) (string, error) {
	content, err := c.fetcher.GetFile(ctx, project, path)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", path, err)
	}
	return c.store(Key{Project: project, Path: path}, content, true), nil
}

// Peek returns cached content without fetching or counting a lookup.
func (c *Cache) Peek(project, path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Key{Project: project, Path: path}]
	if !ok {
		return "", false
	}
	return e.content, true
}

// Put replaces the cached content for a file, e.g. after a save.
func (c *Cache) Put(project, path, content string) {
	c.store(Key{Project: project, Path: path}, content, true)
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(project, path string) {
	c.mu.Lock()
	delete(c.entries, Key{Project: project, Path: path})
	n := len(c.entries)
	c.mu.Unlock()
	metrics.SetCacheEntries(n)
}

// IsCached returns true if the file is cached.
func (c *Cache) IsCached(project, path string) bool {
	_, ok := c.Peek(project, path)
	return ok
}

// Stats returns hit and miss counts and the number of entries.
func (c *Cache) Stats() (hits, misses int64, count int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses, len(c.entries)
}

func (c *Cache) lookup(key Key) (string, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()
	metrics.RecordCacheLookup(ok)
	if !ok {
		return "", false
	}
	return e.content, true
}

// store writes an entry and returns the content now cached. A fetch
// result never overwrites content that was put after the fetch started.
func (c *Cache) store(key Key, content string, overwrite bool) string {
	c.mu.Lock()
	e, exists := c.entries[key]
	if overwrite || !exists {
		e = &entry{content: content}
		c.entries[key] = e
	}
	n := len(c.entries)
	c.mu.Unlock()
	metrics.SetCacheEntries(n)
	return e.content
}
