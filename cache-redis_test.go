package darkrecon

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestCacheRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewCache(CacheOptions{Backend: newRedisTestBackend(mr.Addr())})
	defer c.Close()

	rec := testRecord("example.com", "dns")
	c.Put("example.com", "dns", rec)

	got, ok := c.Get("example.com", "dns", 0)
	require.True(t, ok)
	require.True(t, rec.Equal(got))

	require.Equal(t, 1, c.Stats().Entries)
	require.Greater(t, c.Stats().Bytes, int64(0))

	c.Invalidate("example.com", "dns")
	_, ok = c.Get("example.com", "dns", 0)
	require.False(t, ok)
}

func TestCacheRedisClear(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewCache(CacheOptions{Backend: newRedisTestBackend(mr.Addr())})
	defer c.Close()

	c.Put("example.com", "dns", testRecord("example.com", "dns"))
	c.Put("example.com", "whois", testRecord("example.com", "whois"))

	require.Equal(t, 1, c.Clear("whois"))
	require.Equal(t, 1, c.Stats().Entries)
}

func TestCacheRedisCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewCache(CacheOptions{Backend: newRedisTestBackend(mr.Addr())})
	defer c.Close()

	c.Put("example.com", "dns", testRecord("example.com", "dns"))
	mr.Set("recon:"+Fingerprint("example.com", "dns"), "{not json")

	_, ok := c.Get("example.com", "dns", 0)
	require.False(t, ok)
}

func newRedisTestBackend(addr string) *redisBackend {
	opt := RedisBackendOptions{KeyPrefix: "recon:"}
	opt.RedisOptions.Addr = addr
	return NewRedisBackend(opt)
}
