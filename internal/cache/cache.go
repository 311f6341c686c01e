// Package cache provides the TTL cache for upstream HTTP response bodies.
// All providers fetch through it, so repeated scrapes within a provider's
// refresh interval hit upstream APIs at most once per request URL, and
// concurrent scrapes for the same URL are collapsed into a single upstream
// call.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Store is the backing byte store. Implementations are safe for concurrent
// use. A Get miss and a backend error look the same to callers: the body is
// refetched.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, body []byte, ttl time.Duration)
}

// MemoryStore implements Store on an in-process TTL map. Expired entries are
// evicted lazily on access and by a background sweep.
type MemoryStore struct {
	inner *gocache.Cache
}

// NewMemoryStore creates a MemoryStore. Per-entry TTLs are passed on Set;
// the sweep interval is fixed at one minute.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		inner: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (s *MemoryStore) Get(key string) ([]byte, bool) {
	v, ok := s.inner.Get(key)
	if !ok {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}

func (s *MemoryStore) Set(key string, body []byte, ttl time.Duration) {
	s.inner.Set(key, body, ttl)
}

// HTTPCache is the per-provider view of a Store: it pins the provider's
// refresh interval as the entry TTL and collapses concurrent loads of the
// same key into one upstream call. Failed loads are never stored.
type HTTPCache struct {
	store Store
	ttl   time.Duration
	group *singleflight.Group
}

// NewHTTPCache creates an HTTPCache over store with the given TTL.
func NewHTTPCache(store Store, ttl time.Duration) *HTTPCache {
	return &HTTPCache{
		store: store,
		ttl:   ttl,
		group: &singleflight.Group{},
	}
}

// TTL returns the entry lifetime.
func (c *HTTPCache) TTL() time.Duration {
	return c.ttl
}

// GetOrFetch returns the cached body for key, or runs fetch, stores the
// result and returns it. Concurrent callers with the same key share a single
// fetch and all receive its outcome, including its error.
func (c *HTTPCache) GetOrFetch(key string, fetch func() ([]byte, error)) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if body, ok := c.store.Get(key); ok {
			return body, nil
		}
		body, err := fetch()
		if err != nil {
			return nil, err
		}
		c.store.Set(key, body, c.ttl)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
