package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/wadjakorntonsri/ns-shortener/pkg/breaker"
	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

const (
	objectPrefix  = "url_cache:"
	resolvePrefix = "url_cache:resolve:"
)

// Options configures a URLCache.
type Options struct {
	Backend    string
	MaxSize    int
	ObjectTTL  time.Duration
	ResolveTTL time.Duration
	OpTimeout  time.Duration
}

func (o *Options) withDefaults() {
	if o.MaxSize <= 0 {
		o.MaxSize = 10000
	}
	if o.ObjectTTL <= 0 {
		o.ObjectTTL = time.Hour
	}
	if o.ResolveTTL <= 0 {
		o.ResolveTTL = 2 * time.Hour
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 200 * time.Millisecond
	}
}

// URLCache is the shortener's hot cache. Backend failures are logged and
// reported as misses; callers always fall through to the store.
type URLCache struct {
	lru  ports.LRUCache
	hot  ports.HotTracker
	opts Options
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewURLCache(lru ports.LRUCache, hot ports.HotTracker, opts Options) *URLCache {
	opts.withDefaults()
	return &URLCache{
		lru:  lru,
		hot:  hot,
		opts: opts,
		cb:   breaker.New[[]byte]("cache", breaker.DefaultSettings()),
	}
}

func objectKey(namespaceID, shortcode string) string {
	return objectPrefix + namespaceID + ":" + shortcode
}

func resolveKey(namespaceID, shortcode string) string {
	return resolvePrefix + namespaceID + ":" + shortcode
}

func hotMember(namespaceID, shortcode string) string {
	return namespaceID + ":" + shortcode
}

func (c *URLCache) GetURL(ctx context.Context, namespaceID, shortcode string) (*domain.ShortURL, bool) {
	var u domain.ShortURL
	if !c.getJSON(ctx, "object", objectKey(namespaceID, shortcode), &u) {
		return nil, false
	}
	return &u, true
}

func (c *URLCache) SetURL(ctx context.Context, u *domain.ShortURL) {
	c.putJSON(ctx, objectKey(u.NamespaceID, u.Shortcode), u, c.opts.ObjectTTL)
}

func (c *URLCache) GetResolution(ctx context.Context, namespaceID, shortcode string) (*domain.CachedResolution, bool) {
	var r domain.CachedResolution
	if !c.getJSON(ctx, "resolve", resolveKey(namespaceID, shortcode), &r) {
		return nil, false
	}
	return &r, true
}

func (c *URLCache) SetResolution(ctx context.Context, namespaceID, shortcode string, r *domain.CachedResolution) {
	c.putJSON(ctx, resolveKey(namespaceID, shortcode), r, c.opts.ResolveTTL)
}

// Invalidate drops both cached forms of a URL.
func (c *URLCache) Invalidate(ctx context.Context, namespaceID, shortcode string) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	_, err := c.cb.Execute(func() ([]byte, error) {
		return nil, c.lru.Delete(ctx, objectKey(namespaceID, shortcode), resolveKey(namespaceID, shortcode))
	})
	if err != nil {
		c.fail("invalidate", err)
	}
}

func (c *URLCache) TrackHot(ctx context.Context, namespaceID, shortcode string) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	_, err := c.cb.Execute(func() ([]byte, error) {
		return nil, c.hot.Increment(ctx, hotMember(namespaceID, shortcode))
	})
	if err != nil {
		c.fail("track_hot", err)
	}
}

// HotURLs returns the top n members of the ranking, highest score first.
func (c *URLCache) HotURLs(ctx context.Context, n int) ([]domain.HotURL, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	members, err := c.hot.Top(ctx, n)
	if err != nil {
		c.fail("hot_urls", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	out := make([]domain.HotURL, 0, len(members))
	for _, m := range members {
		ns, code, ok := strings.Cut(m.Member, ":")
		if !ok {
			continue
		}
		out = append(out, domain.HotURL{NamespaceID: ns, Shortcode: code, Score: m.Score})
	}
	return out, nil
}

func (c *URLCache) Stats(ctx context.Context) (domain.CacheStats, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	stats := domain.CacheStats{
		Backend:    c.opts.Backend,
		MaxSize:    c.opts.MaxSize,
		ObjectTTL:  c.opts.ObjectTTL.String(),
		ResolveTTL: c.opts.ResolveTTL.String(),
	}
	lru, err := c.lru.Stats(ctx)
	if err != nil {
		c.fail("stats", err)
		return stats, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	stats.ObjectLRU = lru
	if stats.HotURLs, err = c.hot.Count(ctx); err != nil {
		c.fail("stats", err)
		return stats, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	return stats, nil
}

// Clear empties the object cache, the resolution cache and the ranking.
func (c *URLCache) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	if err := c.lru.Clear(ctx); err != nil {
		c.fail("clear", err)
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	if err := c.hot.Clear(ctx); err != nil {
		c.fail("clear", err)
		return fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
	}
	logging.Info().Str("backend", c.opts.Backend).Msg("cache cleared")
	return nil
}

func (c *URLCache) getJSON(ctx context.Context, cache, key string, dst any) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	var found bool
	raw, err := c.cb.Execute(func() ([]byte, error) {
		v, ok, err := c.lru.Get(ctx, key)
		found = ok
		return v, err
	})
	if err != nil {
		c.fail("get", err)
		metrics.CacheMisses.WithLabelValues(cache).Inc()
		return false
	}
	if !found {
		metrics.CacheMisses.WithLabelValues(cache).Inc()
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		_ = c.lru.Delete(ctx, key)
		metrics.CacheMisses.WithLabelValues(cache).Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues(cache).Inc()
	return true
}

func (c *URLCache) putJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.fail("encode", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()

	_, err = c.cb.Execute(func() ([]byte, error) {
		return nil, c.lru.Put(ctx, key, raw, ttl)
	})
	if err != nil {
		c.fail("set", err)
	}
}

func (c *URLCache) fail(op string, err error) {
	metrics.CacheErrors.WithLabelValues(op).Inc()
	if breaker.IsOpen(err) {
		logging.Debug().Str("operation", op).Msg("cache breaker open, skipping")
		return
	}
	logging.Warn().Err(err).Str("operation", op).Msg("cache operation failed")
}

var _ ports.URLCache = (*URLCache)(nil)
