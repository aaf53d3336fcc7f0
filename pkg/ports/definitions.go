package ports

import (
	"context"
	"net/netip"
	"time"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
)

// URLRepository is the durable URL store keyed by (namespace_id, shortcode).
type URLRepository interface {
	// Create must fail with domain.ErrConflict when the key is taken.
	Create(ctx context.Context, u *domain.ShortURL) error
	Get(ctx context.Context, namespaceID, shortcode string) (*domain.ShortURL, error)
	Exists(ctx context.Context, namespaceID, shortcode string) (bool, error)
	// Update writes metadata only; click_count is never overwritten.
	Update(ctx context.Context, u *domain.ShortURL) error
	Delete(ctx context.Context, namespaceID, shortcode string) error
	IncrementClicks(ctx context.Context, namespaceID, shortcode string) error
	ListByNamespace(ctx context.Context, namespaceID string, limit, offset int) ([]domain.ShortURL, error)
	CountByNamespace(ctx context.Context, namespaceID string) (int64, error)
	Shortcodes(ctx context.Context, namespaceID string) ([]string, error)
	SetNamespaceName(ctx context.Context, namespaceID, newName string) (int64, error)
}

// ClickLedger is the append-only click log. Dates are inclusive YYYY-MM-DD bounds.
type ClickLedger interface {
	Append(ctx context.Context, e *domain.ClickEvent) error
	ForURL(ctx context.Context, namespaceID, shortcode, start, end string) ([]domain.ClickEvent, error)
	ForNamespace(ctx context.Context, namespaceID, start, end string) ([]domain.ClickEvent, error)
	CountryCounts(ctx context.Context, namespaceIDs []string, start, end string) (map[string]int64, error)
	// ForDay returns the day's events, most recent first.
	ForDay(ctx context.Context, namespaceID, day string) ([]domain.ClickEvent, error)
}

// NamespaceRepository persists namespaces.
type NamespaceRepository interface {
	CreateNamespace(ctx context.Context, ns *domain.Namespace) error
	GetNamespace(ctx context.Context, id string) (*domain.Namespace, error)
	GetNamespaceByName(ctx context.Context, name string) (*domain.Namespace, error)
	ListNamespaces(ctx context.Context, organizationID string) ([]domain.Namespace, error)
	RenameNamespace(ctx context.Context, id, newName string, updatedAt time.Time) error
}

// NamespaceLookup is the narrow view of namespaces the pipeline consumes.
type NamespaceLookup interface {
	ByName(ctx context.Context, name string) (*domain.Namespace, error)
	ByOrganization(ctx context.Context, organizationID string) ([]domain.Namespace, error)
}

// PermissionCheck answers whether a user may perform an action inside an organization.
type PermissionCheck interface {
	Allows(ctx context.Context, organizationID, userID, permission string) (bool, error)
}

// GeoDatabase is an optional offline city-level database.
type GeoDatabase interface {
	Lookup(ctx context.Context, ip netip.Addr) (domain.Location, error)
}

// CountrySource is an optional secondary IP to country-name source.
type CountrySource interface {
	Country(ctx context.Context, ip netip.Addr) (string, error)
}

// GeoResolver never fails; it returns domain.UnknownLocation when nothing matches.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) domain.Location
}

// LRUCache is a TTL value store with a size-bounded recency index.
type LRUCache interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Stats(ctx context.Context) (domain.LRUStats, error)
	Clear(ctx context.Context) error
}

// ScoredMember is one entry of a popularity ranking.
type ScoredMember struct {
	Member string
	Score  float64
}

// HotTracker is a popularity ranking that expires as a whole.
type HotTracker interface {
	Increment(ctx context.Context, member string) error
	Top(ctx context.Context, n int) ([]ScoredMember, error)
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// URLCache is the shortener's view of the hot cache: the full-object cache,
// the resolution cache and the hot-URL ranking.
type URLCache interface {
	GetURL(ctx context.Context, namespaceID, shortcode string) (*domain.ShortURL, bool)
	SetURL(ctx context.Context, u *domain.ShortURL)
	GetResolution(ctx context.Context, namespaceID, shortcode string) (*domain.CachedResolution, bool)
	SetResolution(ctx context.Context, namespaceID, shortcode string, r *domain.CachedResolution)
	Invalidate(ctx context.Context, namespaceID, shortcode string)
	TrackHot(ctx context.Context, namespaceID, shortcode string)
	HotURLs(ctx context.Context, n int) ([]domain.HotURL, error)
	Stats(ctx context.Context) (domain.CacheStats, error)
	Clear(ctx context.Context) error
}

// ClickJob is the unit of work handed to the asynchronous click dispatcher.
type ClickJob struct {
	NamespaceID string
	Shortcode   string
	Meta        domain.ClientMeta
}

// ClickDispatcher accepts click jobs without blocking. It reports false when the job was dropped.
type ClickDispatcher interface {
	Dispatch(job ClickJob) bool
}

// Allocator hands out shortcodes unique within a namespace.
type Allocator interface {
	ValidateCustom(code string) error
	Allocate(ctx context.Context, namespaceID string, length int, method domain.GenerationMethod, customCode string) (string, error)
	Candidate(method domain.GenerationMethod, length, attempt int) (string, error)
}

// URLService is the management surface for short URLs.
type URLService interface {
	Create(ctx context.Context, p domain.CreateURLParams) (*domain.ShortURL, error)
	BatchCreate(ctx context.Context, items []domain.CreateURLParams) ([]domain.BatchResult, error)
	Get(ctx context.Context, namespaceID, shortcode string) (*domain.ShortURL, error)
	Update(ctx context.Context, namespaceID, shortcode string, p domain.UpdateURLParams) (*domain.ShortURL, error)
	Delete(ctx context.Context, namespaceID, shortcode string) error
	List(ctx context.Context, namespaceID string, page, limit int) ([]domain.ShortURL, int64, error)
	HotURLs(ctx context.Context, n int) ([]domain.HotURL, error)
	CacheStats(ctx context.Context) (domain.CacheStats, error)
	ClearCache(ctx context.Context) error
	InvalidateNamespace(ctx context.Context, namespaceID string) error
}

// Resolver turns (namespace, shortcode) into redirect information.
type Resolver interface {
	Resolve(ctx context.Context, namespace, shortcode string, meta domain.ClientMeta) (*domain.RedirectInfo, error)
}

// NamespaceService manages namespaces.
type NamespaceService interface {
	Create(ctx context.Context, organizationID, name string) (*domain.Namespace, error)
	ByName(ctx context.Context, name string) (*domain.Namespace, error)
	ByOrganization(ctx context.Context, organizationID string) ([]domain.Namespace, error)
	InOrganization(ctx context.Context, organizationID, name string) (*domain.Namespace, error)
	Rename(ctx context.Context, organizationID, oldName, newName string) (*domain.Namespace, error)
}

// AnalyticsService builds click reports from the ledger.
type AnalyticsService interface {
	URLReport(ctx context.Context, namespaceID, shortcode string, days int, filter string) (*domain.URLReport, error)
	NamespaceReport(ctx context.Context, namespaceID string, days int, filter string) (*domain.NamespaceReport, error)
	TierReport(ctx context.Context, namespaceIDs []string, days int, filter string) (*domain.TierReport, error)
	TierBreakdown(ctx context.Context, namespaceIDs []string, days int, filter string) (*domain.TierBreakdown, error)
	RealtimeReport(ctx context.Context, namespaceID string) (*domain.RealtimeReport, error)
}
