package qsapi

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// CacheEntry is a stored response ready to be replayed as an envelope.
type CacheEntry struct {
	Data      any
	RawBody   []byte
	Status    int
	Header    http.Header
	ExpiresAt time.Time
}

// Cache stores responses for replay. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry, ttl time.Duration)
	Delete(key string)
	Clear()
	Len() int
}

// CacheCondition decides whether a request participates in caching.
type CacheCondition func(req *Request) bool

// DefaultCacheCondition caches GET requests only.
func DefaultCacheCondition(req *Request) bool {
	return req.Method == http.MethodGet
}

// DefaultCacheKey builds the cache key from method and absolute URL.
func DefaultCacheKey(method, url string) string {
	return fmt.Sprintf("%s:%s", method, url)
}

const cacheShardCount = 16

// InMemoryCache is a sharded TTL cache. When maxSize is positive the total
// entry count is bounded; inserting into a full shard evicts expired entries
// first and then the entry closest to expiry.
type InMemoryCache struct {
	shards  []*cacheShard
	maxSize int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an unbounded sharded cache.
func NewInMemoryCache() *InMemoryCache {
	return NewBoundedCache(0)
}

// NewBoundedCache creates a sharded cache holding at most maxSize entries.
// maxSize <= 0 means unbounded.
func NewBoundedCache(maxSize int) *InMemoryCache {
	shards := make([]*cacheShard, cacheShardCount)
	for i := range shards {
		shards[i] = &cacheShard{store: make(map[string]*CacheEntry)}
	}
	return &InMemoryCache{shards: shards, maxSize: maxSize}
}

func (c *InMemoryCache) shard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(len(c.shards))]
}

// Get returns a live entry, expiring it lazily.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}
	return entry, true
}

// Set stores an entry under the given TTL.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if c.maxSize > 0 {
		perShard := c.maxSize / len(c.shards)
		if perShard < 1 {
			perShard = 1
		}
		if _, exists := shard.store[key]; !exists && len(shard.store) >= perShard {
			shard.evictOne()
		}
	}

	entry.ExpiresAt = time.Now().Add(ttl)
	shard.store[key] = entry
}

// evictOne drops expired entries, falling back to the entry closest to expiry.
// Caller holds the shard lock.
func (s *cacheShard) evictOne() {
	now := time.Now()
	var victim string
	var victimExpiry time.Time

	for key, entry := range s.store {
		if now.After(entry.ExpiresAt) {
			delete(s.store, key)
			return
		}
		if victim == "" || entry.ExpiresAt.Before(victimExpiry) {
			victim = key
			victimExpiry = entry.ExpiresAt
		}
	}
	if victim != "" {
		delete(s.store, victim)
	}
}

// Delete removes an entry.
func (c *InMemoryCache) Delete(key string) {
	shard := c.shard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.store, key)
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len returns the total number of stored entries, counting expired ones that
// have not been touched yet.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}
