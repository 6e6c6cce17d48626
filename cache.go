package darkrecon

import (
	"crypto/sha256"
	"encoding/hex"
	"expvar"
	"path"
	"time"
)

// Entry is the unit stored by cache backends: the normalized record for
// one (target, provider) pair plus the bookkeeping needed to expire it.
// Entries are immutable once written, a refresh replaces them whole.
type Entry struct {
	Target    string    `json:"target"`
	Provider  string    `json:"provider"`
	Record    *Record   `json:"record"`
	Timestamp time.Time `json:"timestamp"`
	TTL       int64     `json:"ttl_seconds"`
}

// Expiry returns the time at which the entry stops being served.
func (e *Entry) Expiry() time.Time {
	return e.Timestamp.Add(time.Duration(e.TTL) * time.Second)
}

// matches reports whether the entry matches a glob pattern against either
// its target or its provider name.
func (e *Entry) matches(pattern string) bool {
	if pattern == "" {
		return true
	}
	if ok, _ := path.Match(pattern, e.Target); ok {
		return true
	}
	ok, _ := path.Match(pattern, e.Provider)
	return ok
}

// CacheBackend stores cache entries under their fingerprint key.
// Implementations must be safe for concurrent use and must treat a
// missing or corrupt entry as a lookup miss, never an error.
type CacheBackend interface {
	Store(key string, e *Entry) error

	// Lookup a cached entry. ok is false on miss.
	Lookup(key string) (e *Entry, ok bool)

	Evict(key string)

	// DeleteFunc removes all entries for which fn returns true and
	// reports how many were removed.
	DeleteFunc(fn func(e *Entry) bool) int

	// Number of entries and their approximate encoded size.
	Size() int
	Bytes() int64

	Close() error
}

// Fingerprint derives the stable cache key for a (target, provider) pair.
func Fingerprint(target, provider string) string {
	h := sha256.Sum256([]byte(provider + "\x00" + target))
	return hex.EncodeToString(h[:])
}

// CacheOptions configure a Cache.
type CacheOptions struct {
	// Default TTL for entries, 24h if zero.
	TTL time.Duration

	// Per-provider TTL overrides.
	ProviderTTL map[string]time.Duration

	// Backend used to store entries. Defaults to an in-memory store.
	Backend CacheBackend
}

// Cache is a TTL store of normalized records keyed by (target, provider).
type Cache struct {
	CacheOptions
	backend CacheBackend
	metrics *cacheMetrics
}

type cacheMetrics struct {
	hit     *expvar.Int
	miss    *expvar.Int
	entries *expvar.Int
}

// DefaultCacheTTL is used when no TTL is configured.
const DefaultCacheTTL = 24 * time.Hour

// NewCache returns a cache with the given options.
func NewCache(opt CacheOptions) *Cache {
	if opt.TTL == 0 {
		opt.TTL = DefaultCacheTTL
	}
	if opt.Backend == nil {
		opt.Backend = NewMemoryBackend(MemoryBackendOptions{})
	}
	return &Cache{
		CacheOptions: opt,
		backend:      opt.Backend,
		metrics: &cacheMetrics{
			hit:     getVarInt("cache", "results", "hit"),
			miss:    getVarInt("cache", "results", "miss"),
			entries: getVarInt("cache", "results", "entries"),
		},
	}
}

func (c *Cache) ttlFor(provider string) time.Duration {
	if ttl, ok := c.ProviderTTL[provider]; ok {
		return ttl
	}
	return c.TTL
}

// Get returns the cached record for (target, provider) if one exists that
// is no older than maxAge. A zero maxAge means the entry's own TTL is the
// only limit. A miss is never an error.
func (c *Cache) Get(target, provider string, maxAge time.Duration) (*Record, bool) {
	key := Fingerprint(target, provider)
	e, ok := c.backend.Lookup(key)
	if !ok || e == nil || e.Record == nil {
		c.metrics.miss.Add(1)
		return nil, false
	}
	age := time.Since(e.Timestamp)
	if age > time.Duration(e.TTL)*time.Second {
		c.backend.Evict(key)
		c.metrics.miss.Add(1)
		return nil, false
	}
	if maxAge > 0 && age > maxAge {
		c.metrics.miss.Add(1)
		return nil, false
	}
	c.metrics.hit.Add(1)
	return e.Record, true
}

// Put writes the record, overwriting any existing entry for the key.
func (c *Cache) Put(target, provider string, rec *Record) {
	c.PutTTL(target, provider, rec, c.ttlFor(provider))
}

// PutTTL writes the record with an explicit TTL.
func (c *Cache) PutTTL(target, provider string, rec *Record, ttl time.Duration) {
	key := Fingerprint(target, provider)
	e := &Entry{
		Target:    target,
		Provider:  provider,
		Record:    rec,
		Timestamp: time.Now().UTC(),
		TTL:       int64(ttl / time.Second),
	}
	if err := c.backend.Store(key, e); err != nil {
		logger(provider, target).WithError(err).Warn("failed to write cache entry")
		return
	}
	c.metrics.entries.Set(int64(c.backend.Size()))
}

// Invalidate removes the entry for (target, provider) if present.
func (c *Cache) Invalidate(target, provider string) {
	c.backend.Evict(Fingerprint(target, provider))
}

// Clear removes all entries whose target or provider matches the glob
// pattern. An empty pattern clears everything. Returns the number of
// entries removed.
func (c *Cache) Clear(pattern string) int {
	n := c.backend.DeleteFunc(func(e *Entry) bool {
		return e.matches(pattern)
	})
	c.metrics.entries.Set(int64(c.backend.Size()))
	return n
}

// CacheStats describe the current cache content.
type CacheStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Stats returns entry count and approximate size of the cache.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries: c.backend.Size(),
		Bytes:   c.backend.Bytes(),
	}
}

// Close releases backend resources.
func (c *Cache) Close() error {
	return c.backend.Close()
}
