package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"randomwiki/pkg/content"

	"golang.org/x/sync/singleflight"
)

// DefaultContentTTL bounds how long a cached article body stays valid.
const DefaultContentTTL = time.Hour

// CacheObserver receives cache outcome notifications, typically for metrics.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
	CacheFill()
	CacheFetchFailed()
}

// ContentCacheOption mutates content cache configuration.
type ContentCacheOption func(*ContentCache)

// WithContentTTL sets how long an entry can be returned after it was stored.
func WithContentTTL(ttl time.Duration) ContentCacheOption {
	return func(cache *ContentCache) {
		if ttl > 0 {
			cache.ttl = ttl
		}
	}
}

// WithContentObserver reports hits, misses, fills and fetch failures.
func WithContentObserver(observer CacheObserver) ContentCacheOption {
	return func(cache *ContentCache) {
		if observer != nil {
			cache.observer = observer
		}
	}
}

func withContentClock(clock func() time.Time) ContentCacheOption {
	return func(cache *ContentCache) {
		if clock != nil {
			cache.clock = clock
		}
	}
}

// ContentCache maps article keys to bodies with a fixed time-to-live.
//
// Capacity is unbounded; expired entries are purged when they are read.
// Concurrent misses for one key share a single upstream fetch.
type ContentCache struct {
	ttl      time.Duration
	clock    func() time.Time
	observer CacheObserver

	mu      sync.Mutex
	entries map[string]cacheEntry
	flight  singleflight.Group
}

type cacheEntry struct {
	body     string
	storedAt time.Time
}

// NewContentCache creates an empty cache with DefaultContentTTL.
func NewContentCache(options ...ContentCacheOption) *ContentCache {
	cache := &ContentCache{
		ttl:      DefaultContentTTL,
		clock:    time.Now,
		observer: noopObserver{},
		entries:  make(map[string]cacheEntry),
	}
	for _, option := range options {
		option(cache)
	}

	return cache
}

// Get returns the body stored under key when it has not expired.
func (c *ContentCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.getLocked(key, c.now())
}

// Put stores body under key. Empty bodies are rejected and leave prior state untouched.
func (c *ContentCache) Put(key string, body string) error {
	if body == "" {
		return fmt.Errorf("content cache put %q: %w", key, content.ErrEmptyBody)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, storedAt: c.now()}

	return nil
}

// GetOrFetch returns the cached body for key or loads it with fetch.
//
// Concurrent misses share one fetch. The fetch runs detached from the
// cancellation of whichever caller started it and must bound itself; each
// caller stops waiting when its own ctx ends. A failed or empty fetch is not
// stored, so the next call retries upstream.
func (c *ContentCache) GetOrFetch(
	ctx context.Context,
	key string,
	fetch content.FetchFunc,
) (string, bool, error) {
	if fetch == nil {
		return "", false, fmt.Errorf("content cache fetch %q: nil fetch func", key)
	}
	if body, ok := c.Get(key); ok {
		c.observer.CacheHit()
		return body, true, nil
	}
	c.observer.CacheMiss()

	fetchCtx := context.WithoutCancel(ctx)
	results := c.flight.DoChan(key, func() (any, error) {
		if body, ok := c.Get(key); ok {
			return body, nil
		}

		body, err := fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		if err := c.Put(key, body); err != nil {
			return "", err
		}

		return body, nil
	})

	select {
	case <-ctx.Done():
		c.observer.CacheFetchFailed()
		return "", false, fmt.Errorf("content cache fetch %q: %w", key, context.Cause(ctx))
	case result := <-results:
		if result.Err != nil {
			c.observer.CacheFetchFailed()
			return "", false, fmt.Errorf("content cache fetch %q: %w", key, result.Err)
		}
		c.observer.CacheFill()

		body, _ := result.Val.(string)

		return body, true, nil
	}
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *ContentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *ContentCache) getLocked(key string, now time.Time) (string, bool) {
	entry, exists := c.entries[key]
	if !exists {
		return "", false
	}
	if c.isExpired(entry, now) {
		delete(c.entries, key)
		return "", false
	}

	return entry.body, true
}

func (c *ContentCache) isExpired(entry cacheEntry, now time.Time) bool {
	return now.Sub(entry.storedAt) >= c.ttl
}

func (c *ContentCache) now() time.Time {
	return c.clock().UTC()
}

type noopObserver struct{}

func (noopObserver) CacheHit()         {}
func (noopObserver) CacheMiss()        {}
func (noopObserver) CacheFill()        {}
func (noopObserver) CacheFetchFailed() {}

var _ content.Cache = (*ContentCache)(nil)
