package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"
)

const keyPrefix = "weathermen:"

// MemcachedStore implements Store on memcached, letting several exporter
// instances share one upstream-body cache. Backend errors degrade to cache
// misses so a memcached outage never fails a scrape.
type MemcachedStore struct {
	client *memcache.Client
	logger *zap.Logger
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int, logger *zap.Logger) *MemcachedStore {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client, logger: logger}
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key hashes the cache key; raw keys are request URLs, which can exceed the
// 250-byte memcached key limit.
func (s *MemcachedStore) key(k string) string {
	sum := sha256.Sum256([]byte(k))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (s *MemcachedStore) Get(key string) ([]byte, bool) {
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if err != memcache.ErrCacheMiss {
			s.logger.Warn("memcached get failed", zap.Error(err))
		}
		return nil, false
	}
	return item.Value, true
}

func (s *MemcachedStore) Set(key string, body []byte, ttl time.Duration) {
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	err := s.client.Set(&memcache.Item{
		Key:        s.key(key),
		Value:      body,
		Expiration: expSec,
	})
	if err != nil {
		s.logger.Warn("memcached set failed", zap.Error(err))
	}
}

// Ping checks if memcached is reachable. Called once at startup.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
