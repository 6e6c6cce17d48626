package darkrecon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBackend stores JSON-encoded cache entries in Redis. Entry expiry is
// delegated to Redis through the key TTL, so no garbage collection is
// needed on this end.
type redisBackend struct {
	client *redis.Client
	opt    RedisBackendOptions
}

type RedisBackendOptions struct {
	RedisOptions redis.Options
	KeyPrefix    string
}

var _ CacheBackend = (*redisBackend)(nil)

func NewRedisBackend(opt RedisBackendOptions) *redisBackend {
	return &redisBackend{
		client: redis.NewClient(&opt.RedisOptions),
		opt:    opt,
	}
}

func (b *redisBackend) Store(key string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	var expiry time.Duration
	if e.TTL > 0 {
		expiry = time.Duration(e.TTL) * time.Second
	}
	return b.client.Set(context.Background(), b.opt.KeyPrefix+key, data, expiry).Err()
}

func (b *redisBackend) Lookup(key string) (*Entry, bool) {
	data, err := b.client.Get(context.Background(), b.opt.KeyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	e := new(Entry)
	if err := json.Unmarshal(data, e); err != nil {
		Log.WithField("key", key).WithError(err).Debug("corrupt redis cache entry treated as miss")
		return nil, false
	}
	return e, true
}

func (b *redisBackend) Evict(key string) {
	b.client.Del(context.Background(), b.opt.KeyPrefix+key)
}

func (b *redisBackend) DeleteFunc(fn func(e *Entry) bool) int {
	ctx := context.Background()
	var removed int
	iter := b.client.Scan(ctx, 0, b.opt.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := b.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		e := new(Entry)
		if err := json.Unmarshal(data, e); err != nil || fn(e) {
			if b.client.Del(ctx, key).Val() > 0 {
				removed++
			}
		}
	}
	return removed
}

func (b *redisBackend) Size() int {
	ctx := context.Background()
	var count int
	iter := b.client.Scan(ctx, 0, b.opt.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	return count
}

func (b *redisBackend) Bytes() int64 {
	ctx := context.Background()
	var total int64
	iter := b.client.Scan(ctx, 0, b.opt.KeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if n, err := b.client.StrLen(ctx, iter.Val()).Result(); err == nil {
			total += n
		}
	}
	return total
}

func (b *redisBackend) Close() error {
	return b.client.Close()
}
