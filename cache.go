package apiclient

import (
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/facebookgo/clock"
)

// DefaultCacheTTL is used when neither the request nor the client sets a TTL.
const DefaultCacheTTL = 60 * time.Second

// CacheEntry is a stored response with its freshness metadata.
type CacheEntry struct {
	Envelope     *Envelope
	CreatedAt    time.Time
	TTL          time.Duration
	ETag         string
	LastModified *time.Time
}

// ValidAt reports whether the entry is still fresh at now.
func (e *CacheEntry) ValidAt(now time.Time) bool {
	return now.Sub(e.CreatedAt) < e.TTL
}

// CacheStore is an in-memory response cache. Expired entries are removed
// lazily by the lookup that finds them; nothing sweeps in the background.
type CacheStore struct {
	shards    []*cacheShard
	numShards int
	clock     clock.Clock
}

type cacheShard struct {
	mu    sync.Mutex
	store map[string]*CacheEntry
}

// NewCacheStore returns an empty store reading time from clk (real time if nil).
func NewCacheStore(clk clock.Clock) *CacheStore {
	if clk == nil {
		clk = clock.New()
	}
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &CacheStore{
		shards:    shards,
		numShards: numShards,
		clock:     clk,
	}
}

func (c *CacheStore) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Lookup returns a copy of the stored envelope while it is fresh. A stale
// entry is deleted and reported as a miss.
func (c *CacheStore) Lookup(key string) (*Envelope, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if !entry.ValidAt(c.clock.Now()) {
		delete(shard.store, key)
		return nil, false
	}

	env := entry.Envelope.Clone()
	env.Cached = true
	return env, true
}

// Store records a copy of env under key.
func (c *CacheStore) Store(key string, env *Envelope, ttl time.Duration) *CacheEntry {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	stored := env.Clone()
	stored.Cached = false

	entry := &CacheEntry{
		Envelope:  stored,
		CreatedAt: c.clock.Now(),
		TTL:       ttl,
	}
	entry.ETag, entry.LastModified = validatorsFrom(stored.Headers)

	shard := c.getShard(key)
	shard.mu.Lock()
	shard.store[key] = entry
	shard.mu.Unlock()
	return entry
}

// Delete removes a single key.
func (c *CacheStore) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	delete(shard.store, key)
	shard.mu.Unlock()
}

// Clear empties the store.
func (c *CacheStore) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len counts stored entries, fresh or not.
func (c *CacheStore) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		total += len(shard.store)
		shard.mu.Unlock()
	}
	return total
}

// CacheKey derives the store key for a descriptor: the explicit policy key,
// or "{METHOD}:{resolved URL}".
func CacheKey(d Descriptor, resolvedURL string) string {
	if d.Cache.Key != "" {
		return d.Cache.Key
	}

	var buf []byte
	buf = append(buf, d.Method...)
	buf = append(buf, ':')
	buf = append(buf, resolvedURL...)

	return string(buf)
}

func isReadOnlyMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// cacheReadable reports whether a lookup may answer the request.
func cacheReadable(d Descriptor) bool {
	if !d.Cache.Enabled || !isReadOnlyMethod(d.Method) {
		return false
	}
	return d.CacheMode == "" || d.CacheMode == CacheModeDefault
}

// cacheWritable reports whether a fresh response may be stored.
func cacheWritable(d Descriptor) bool {
	if !d.Cache.Enabled || !isReadOnlyMethod(d.Method) {
		return false
	}
	return d.CacheMode != CacheModeNoStore
}
