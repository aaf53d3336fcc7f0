package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// Resolver is the redirect hot path: resolution cache, then the store.
type Resolver struct {
	namespaces ports.NamespaceLookup
	repo       ports.URLRepository
	cache      ports.URLCache
	clicks     ports.ClickDispatcher
	clock      domain.Clock
	storeTO    time.Duration
}

func NewResolver(namespaces ports.NamespaceLookup, repo ports.URLRepository, cache ports.URLCache, clicks ports.ClickDispatcher, clock domain.Clock) *Resolver {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &Resolver{
		namespaces: namespaces,
		repo:       repo,
		cache:      cache,
		clicks:     clicks,
		clock:      clock,
		storeTO:    3 * time.Second,
	}
}

// WithStoreTimeout bounds the increment issued on every successful resolution.
func (r *Resolver) WithStoreTimeout(d time.Duration) *Resolver {
	if d > 0 {
		r.storeTO = d
	}
	return r
}

// Resolve returns the redirect target for namespace/shortcode.
//
// Not found yields domain.ErrNotFound and a nil info. Inactive and expired
// URLs yield a populated info together with domain.ErrInactive or
// domain.ErrExpired. Store failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, namespace, shortcode string, meta domain.ClientMeta) (*domain.RedirectInfo, error) {
	started := time.Now()
	cacheLabel := "miss"
	defer func() {
		metrics.ResolveDuration.WithLabelValues(cacheLabel).Observe(time.Since(started).Seconds())
	}()

	ns, err := r.namespaces.ByName(ctx, strings.ToLower(namespace))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.Resolutions.WithLabelValues(string(domain.ResolveNotFound)).Inc()
			return nil, fmt.Errorf("namespace %q: %w", namespace, domain.ErrNotFound)
		}
		metrics.Resolutions.WithLabelValues("error").Inc()
		return nil, err
	}

	res, hit := r.cache.GetResolution(ctx, ns.ID, shortcode)
	if hit {
		cacheLabel = "hit"
	} else {
		u, err := r.repo.Get(ctx, ns.ID, shortcode)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				metrics.Resolutions.WithLabelValues(string(domain.ResolveNotFound)).Inc()
				return nil, fmt.Errorf("%s/%s: %w", ns.Name, shortcode, domain.ErrNotFound)
			}
			metrics.Resolutions.WithLabelValues("error").Inc()
			return nil, err
		}
		res = resolutionOf(u)
		r.cache.SetResolution(ctx, ns.ID, shortcode, res)
	}

	now := r.clock.Now()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = now
	}

	info := &domain.RedirectInfo{
		NamespaceID:  ns.ID,
		Namespace:    ns.Name,
		Shortcode:    shortcode,
		URL:          res.OriginalURL,
		RedirectType: res.RedirectType,
		IsActive:     res.IsActive,
		ExpiresAt:    res.Expiry,
		CacheHit:     hit,
		ClickedAt:    meta.Timestamp,
	}

	// Expiry is checked first so an expired URL reports expired even when disabled.
	if res.Expiry != nil && !res.Expiry.After(now) {
		info.Status = domain.ResolveExpired
		metrics.Resolutions.WithLabelValues(string(info.Status)).Inc()
		return info, domain.ErrExpired
	}
	if !res.IsActive {
		info.Status = domain.ResolveInactive
		metrics.Resolutions.WithLabelValues(string(info.Status)).Inc()
		return info, domain.ErrInactive
	}
	info.Status = domain.ResolveOK
	metrics.Resolutions.WithLabelValues(string(info.Status)).Inc()

	r.recordClick(ctx, ns.ID, shortcode, meta)
	return info, nil
}

func (r *Resolver) recordClick(ctx context.Context, namespaceID, shortcode string, meta domain.ClientMeta) {
	ictx, cancel := context.WithTimeout(ctx, r.storeTO)
	err := r.repo.IncrementClicks(ictx, namespaceID, shortcode)
	cancel()
	if err != nil {
		logging.Warn().Err(err).Str("namespace_id", namespaceID).Str("shortcode", shortcode).Msg("failed to increment click count")
	}

	if r.clicks == nil {
		return
	}
	if !r.clicks.Dispatch(ports.ClickJob{NamespaceID: namespaceID, Shortcode: shortcode, Meta: meta}) {
		logging.Debug().Str("namespace_id", namespaceID).Str("shortcode", shortcode).Msg("click job dropped")
	}
}
