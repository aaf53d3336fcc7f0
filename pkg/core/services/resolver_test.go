package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
)

type resolverFixture struct {
	repo     *memURLRepo
	cache    *memURLCache
	clicks   *recordingDispatcher
	clock    *domain.MockClock
	urls     *URLService
	resolver *Resolver
}

func newResolverFixture() *resolverFixture {
	f := &resolverFixture{
		repo:   newMemURLRepo(),
		cache:  newMemURLCache(),
		clicks: &recordingDispatcher{},
		clock:  domain.NewMockClock(testNow),
	}
	nss := newMemNamespaces(domain.Namespace{ID: "ns1", OrganizationID: "org1", Name: "acme"})
	f.urls = NewURLService(f.repo, NewShortcodeAllocator(f.repo), f.cache, f.clock)
	f.resolver = NewResolver(nss, f.repo, f.cache, f.clicks, f.clock)
	return f
}

func (f *resolverFixture) create(t *testing.T, p domain.CreateURLParams) *domain.ShortURL {
	t.Helper()
	p.NamespaceID = "ns1"
	p.NamespaceName = "acme"
	u, err := f.urls.Create(context.Background(), p)
	require.NoError(t, err)
	return u
}

func TestResolve_RoundTrip(t *testing.T) {
	f := newResolverFixture()
	u := f.create(t, domain.CreateURLParams{OriginalURL: "https://example.com/page", RedirectType: domain.RedirectPermanent})

	info, err := f.resolver.Resolve(context.Background(), "ACME", u.Shortcode, domain.ClientMeta{IP: "8.8.8.8"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/page", info.URL)
	assert.Equal(t, domain.RedirectPermanent, info.RedirectType)
	assert.Equal(t, domain.ResolveOK, info.Status)
	assert.Equal(t, "acme", info.Namespace)
	assert.Equal(t, testNow, info.ClickedAt)
	assert.GreaterOrEqual(t, f.repo.clicks("ns1", u.Shortcode), int64(1))
	require.Equal(t, 1, f.clicks.count())
	assert.Equal(t, "8.8.8.8", f.clicks.jobs[0].Meta.IP)
}

func TestResolve_CacheMissPopulatesResolutionCache(t *testing.T) {
	f := newResolverFixture()
	require.NoError(t, f.repo.Create(context.Background(), &domain.ShortURL{
		NamespaceID: "ns1", Shortcode: "cold", OriginalURL: "https://cold.io", IsActive: true, RedirectType: domain.RedirectTemporary,
	}))

	info, err := f.resolver.Resolve(context.Background(), "acme", "cold", domain.ClientMeta{})
	require.NoError(t, err)
	assert.False(t, info.CacheHit)
	assert.Equal(t, 1, f.repo.getCalls)

	info, err = f.resolver.Resolve(context.Background(), "acme", "cold", domain.ClientMeta{})
	require.NoError(t, err)
	assert.True(t, info.CacheHit)
	assert.Equal(t, 1, f.repo.getCalls, "second resolve served from cache")

	assert.Equal(t, int64(2), f.repo.clicks("ns1", "cold"), "cache hits still count")
	assert.Equal(t, 2, f.clicks.count())
}

func TestResolve_NotFound(t *testing.T) {
	f := newResolverFixture()

	_, err := f.resolver.Resolve(context.Background(), "acme", "nope", domain.ClientMeta{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.resolver.Resolve(context.Background(), "ghost", "nope", domain.ClientMeta{})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Zero(t, f.clicks.count())
}

func TestResolve_Gates(t *testing.T) {
	f := newResolverFixture()
	exp := testNow.Add(time.Hour)
	inactive := false

	expiredAndInactive := f.create(t, domain.CreateURLParams{OriginalURL: "https://x.io/1", Expiry: &exp})
	_, err := f.urls.Update(context.Background(), "ns1", expiredAndInactive.Shortcode, domain.UpdateURLParams{IsActive: &inactive})
	require.NoError(t, err)

	onlyInactive := f.create(t, domain.CreateURLParams{OriginalURL: "https://x.io/2"})
	_, err = f.urls.Update(context.Background(), "ns1", onlyInactive.Shortcode, domain.UpdateURLParams{IsActive: &inactive})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)

	info, err := f.resolver.Resolve(context.Background(), "acme", expiredAndInactive.Shortcode, domain.ClientMeta{})
	assert.ErrorIs(t, err, domain.ErrExpired, "expired beats inactive")
	require.NotNil(t, info)
	assert.Equal(t, domain.ResolveExpired, info.Status)

	info, err = f.resolver.Resolve(context.Background(), "acme", onlyInactive.Shortcode, domain.ClientMeta{})
	assert.ErrorIs(t, err, domain.ErrInactive)
	assert.Equal(t, domain.ResolveInactive, info.Status)

	assert.Zero(t, f.clicks.count(), "gated resolutions are not recorded")
	assert.Zero(t, f.repo.clicks("ns1", onlyInactive.Shortcode))
}

func TestResolve_ExpiryAtExactInstant(t *testing.T) {
	f := newResolverFixture()
	exp := testNow.Add(time.Minute)
	u := f.create(t, domain.CreateURLParams{OriginalURL: "https://x.io", Expiry: &exp})

	f.clock.Set(exp)
	_, err := f.resolver.Resolve(context.Background(), "acme", u.Shortcode, domain.ClientMeta{})
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestResolve_IncrementFailureIsTolerated(t *testing.T) {
	f := newResolverFixture()
	u := f.create(t, domain.CreateURLParams{OriginalURL: "https://x.io"})
	f.repo.failIncr = errors.New("database is locked")

	info, err := f.resolver.Resolve(context.Background(), "acme", u.Shortcode, domain.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, "https://x.io", info.URL)
	assert.Equal(t, 1, f.clicks.count())
}

func TestResolve_StoreErrorPropagates(t *testing.T) {
	f := newResolverFixture()
	f.repo.failGet = domain.ErrStoreUnavailable

	_, err := f.resolver.Resolve(context.Background(), "acme", "anything", domain.ClientMeta{})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
