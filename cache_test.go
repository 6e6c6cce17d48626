package darkrecon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testRecord(target string, source string) *Record {
	rec := NewRecord(target, TypeDomain)
	rec.Source = source
	rec.Resolved.IP.Add("1.1.1.1")
	rec.Raw[source] = map[string]interface{}{"a": []interface{}{"1.1.1.1"}}
	return rec
}

func TestCacheMemory(t *testing.T) {
	c := NewCache(CacheOptions{})
	defer c.Close()

	// Miss on an empty cache is not an error
	_, ok := c.Get("example.com", "dns", 0)
	require.False(t, ok)

	rec := testRecord("example.com", "dns")
	c.Put("example.com", "dns", rec)

	got, ok := c.Get("example.com", "dns", 0)
	require.True(t, ok)
	require.True(t, rec.Equal(got))

	// Different provider for the same target is a separate entry
	_, ok = c.Get("example.com", "whois", 0)
	require.False(t, ok)

	// A tighter max age turns a valid entry into a miss
	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("example.com", "dns", time.Millisecond)
	require.False(t, ok)
	_, ok = c.Get("example.com", "dns", time.Minute)
	require.True(t, ok)

	stats := c.Stats()
	require.Equal(t, 1, stats.Entries)
	require.Greater(t, stats.Bytes, int64(0))

	c.Invalidate("example.com", "dns")
	_, ok = c.Get("example.com", "dns", 0)
	require.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(CacheOptions{})
	defer c.Close()

	c.PutTTL("example.com", "dns", testRecord("example.com", "dns"), time.Second)
	_, ok := c.Get("example.com", "dns", 0)
	require.True(t, ok)

	time.Sleep(1100 * time.Millisecond)
	_, ok = c.Get("example.com", "dns", 0)
	require.False(t, ok)
}

func TestCacheOverwrite(t *testing.T) {
	c := NewCache(CacheOptions{})
	defer c.Close()

	c.Put("example.com", "dns", testRecord("example.com", "dns"))
	updated := testRecord("example.com", "dns")
	updated.Resolved.IP.Add("2.2.2.2")
	c.Put("example.com", "dns", updated)

	got, ok := c.Get("example.com", "dns", 0)
	require.True(t, ok)
	require.True(t, updated.Equal(got))
	require.Equal(t, 1, c.Stats().Entries)
}

func TestCacheClear(t *testing.T) {
	c := NewCache(CacheOptions{})
	defer c.Close()

	c.Put("example.com", "dns", testRecord("example.com", "dns"))
	c.Put("example.com", "whois", testRecord("example.com", "whois"))
	c.Put("other.org", "dns", testRecord("other.org", "dns"))

	// Clear by provider name
	require.Equal(t, 2, c.Clear("dns"))
	require.Equal(t, 1, c.Stats().Entries)

	// Empty pattern clears everything
	require.Equal(t, 1, c.Clear(""))
	require.Equal(t, 0, c.Stats().Entries)
}

func TestCacheLRUCapacity(t *testing.T) {
	backend := NewMemoryBackend(MemoryBackendOptions{Capacity: 2})
	c := NewCache(CacheOptions{Backend: backend})
	defer c.Close()

	c.Put("a.com", "dns", testRecord("a.com", "dns"))
	c.Put("b.com", "dns", testRecord("b.com", "dns"))
	c.Put("c.com", "dns", testRecord("c.com", "dns"))

	require.Equal(t, 2, c.Stats().Entries)
	// The least-recently used entry was dropped
	_, ok := c.Get("a.com", "dns", 0)
	require.False(t, ok)
	_, ok = c.Get("c.com", "dns", 0)
	require.True(t, ok)
}

func TestCacheDisk(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewDiskBackend(dir)
	require.NoError(t, err)
	c := NewCache(CacheOptions{Backend: backend})
	defer c.Close()

	rec := testRecord("example.com", "dns")
	c.Put("example.com", "dns", rec)

	got, ok := c.Get("example.com", "dns", 0)
	require.True(t, ok)
	require.True(t, rec.Equal(got))

	// The entry survives in a fresh backend over the same directory
	backend2, err := NewDiskBackend(dir)
	require.NoError(t, err)
	c2 := NewCache(CacheOptions{Backend: backend2})
	defer c2.Close()
	got, ok = c2.Get("example.com", "dns", 0)
	require.True(t, ok)
	require.True(t, rec.Equal(got))
}

func TestCacheDiskCorruptFile(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewDiskBackend(dir)
	require.NoError(t, err)
	c := NewCache(CacheOptions{Backend: backend})
	defer c.Close()

	c.Put("example.com", "dns", testRecord("example.com", "dns"))

	// Corrupt the file on disk, the entry must become a miss, not an error
	path := filepath.Join(dir, Fingerprint("example.com", "dns")+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, ok := c.Get("example.com", "dns", 0)
	require.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	k1 := Fingerprint("example.com", "dns")
	k2 := Fingerprint("example.com", "whois")
	k3 := Fingerprint("other.org", "dns")
	require.NotEqual(t, k1, k2)
	require.NotEqual(t, k1, k3)
	require.Equal(t, k1, Fingerprint("example.com", "dns"))
	require.Len(t, k1, 64)
}
