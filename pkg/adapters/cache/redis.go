package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

const (
	lruTrackerKey = "url_cache:lru_tracker"
	lruSeqKey     = "url_cache:lru_seq"
	lruAccessKey  = "url_cache:lru_access"
	hotURLsKey    = "url_cache:hot_urls"
)

// putScript stores a value, stamps it in the recency zset with the next
// sequence number and trims the lowest ranked members once the zset grows
// past the limit. Returns the number evicted.
//
// KEYS[1] value key, KEYS[2] tracker zset, KEYS[3] sequence, KEYS[4] access hash
// ARGV[1] value, ARGV[2] ttl ms, ARGV[3] now ms, ARGV[4] max size
var putScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
local seq = redis.call('INCR', KEYS[3])
redis.call('ZADD', KEYS[2], seq, KEYS[1])
redis.call('HSET', KEYS[4], KEYS[1], ARGV[3])
local excess = redis.call('ZCARD', KEYS[2]) - tonumber(ARGV[4])
if excess <= 0 then
	return 0
end
local victims = redis.call('ZRANGE', KEYS[2], 0, excess - 1)
for _, key in ipairs(victims) do
	redis.call('DEL', key)
	redis.call('ZREM', KEYS[2], key)
	redis.call('HDEL', KEYS[4], key)
end
return #victims
`)

// getScript reads a value and refreshes its recency. An expired value is
// dropped from the tracker.
//
// KEYS[1] value key, KEYS[2] tracker zset, KEYS[3] sequence, KEYS[4] access hash
// ARGV[1] now ms
var getScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	redis.call('ZREM', KEYS[2], KEYS[1])
	redis.call('HDEL', KEYS[4], KEYS[1])
	return false
end
local seq = redis.call('INCR', KEYS[3])
redis.call('ZADD', KEYS[2], seq, KEYS[1])
redis.call('HSET', KEYS[4], KEYS[1], ARGV[1])
return v
`)

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logging.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis connected")
	return client, nil
}

// RedisLRU keeps values as plain keys and their recency in a sorted set
// scored by a monotonic access sequence, so the size bound holds across
// instances and accesses within one millisecond keep their order. Access
// times live in a hash for Stats.
//
// Eviction deletes value keys chosen inside the script, which Redis Cluster
// rejects, so the backend takes a single-node client.
type RedisLRU struct {
	client  *redis.Client
	maxSize int
	clock   domain.Clock
}

func NewRedisLRU(client *redis.Client, maxSize int, clock domain.Clock) *RedisLRU {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &RedisLRU{client: client, maxSize: maxSize, clock: clock}
}

func (c *RedisLRU) keys(key string) []string {
	return []string{key, lruTrackerKey, lruSeqKey, lruAccessKey}
}

func (c *RedisLRU) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	evicted, err := putScript.Run(ctx, c.client, c.keys(key),
		value, ttl.Milliseconds(), c.clock.Now().UnixMilli(), c.maxSize,
	).Int()
	if err != nil {
		return fmt.Errorf("lru put %s: %w", key, err)
	}
	if evicted > 0 {
		metrics.CacheEvictions.Add(float64(evicted))
	}
	return nil
}

func (c *RedisLRU) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := getScript.Run(ctx, c.client, c.keys(key), c.clock.Now().UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lru get %s: %w", key, err)
	}
	return []byte(v), true, nil
}

func (c *RedisLRU) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, keys...)
		p.ZRem(ctx, lruTrackerKey, members...)
		p.HDel(ctx, lruAccessKey, keys...)
		return nil
	})
	return err
}

func (c *RedisLRU) Stats(ctx context.Context) (domain.LRUStats, error) {
	var stats domain.LRUStats

	count, err := c.client.ZCard(ctx, lruTrackerKey).Result()
	if err != nil {
		return stats, err
	}
	stats.Count = count
	if count == 0 {
		return stats, nil
	}

	oldest, err := c.client.ZRange(ctx, lruTrackerKey, 0, 0).Result()
	if err != nil {
		return stats, err
	}
	newest, err := c.client.ZRevRange(ctx, lruTrackerKey, 0, 0).Result()
	if err != nil {
		return stats, err
	}
	if len(oldest) == 1 {
		stats.Oldest, err = c.accessTime(ctx, oldest[0])
		if err != nil {
			return stats, err
		}
	}
	if len(newest) == 1 {
		stats.Newest, err = c.accessTime(ctx, newest[0])
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (c *RedisLRU) accessTime(ctx context.Context, key string) (*time.Time, error) {
	ms, err := c.client.HGet(ctx, lruAccessKey, key).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

// Clear removes every tracked value and the bookkeeping keys.
func (c *RedisLRU) Clear(ctx context.Context) error {
	keys, err := c.client.ZRange(ctx, lruTrackerKey, 0, -1).Result()
	if err != nil {
		return err
	}
	keys = append(keys, lruTrackerKey, lruSeqKey, lruAccessKey)
	return c.client.Del(ctx, keys...).Err()
}

// RedisHotTracker ranks members in a sorted set whose TTL is refreshed on
// every increment.
type RedisHotTracker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisHotTracker(client redis.UniversalClient, ttl time.Duration) *RedisHotTracker {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisHotTracker{client: client, ttl: ttl}
}

func (h *RedisHotTracker) Increment(ctx context.Context, member string) error {
	_, err := h.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZIncrBy(ctx, hotURLsKey, 1, member)
		p.Expire(ctx, hotURLsKey, h.ttl)
		return nil
	})
	return err
}

func (h *RedisHotTracker) Top(ctx context.Context, n int) ([]ports.ScoredMember, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	zs, err := h.client.ZRevRangeWithScores(ctx, hotURLsKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ports.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, ports.ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (h *RedisHotTracker) Count(ctx context.Context) (int64, error) {
	return h.client.ZCard(ctx, hotURLsKey).Result()
}

func (h *RedisHotTracker) Clear(ctx context.Context) error {
	return h.client.Del(ctx, hotURLsKey).Err()
}

var (
	_ ports.LRUCache   = (*RedisLRU)(nil)
	_ ports.HotTracker = (*RedisHotTracker)(nil)
)
