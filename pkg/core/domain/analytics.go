package domain

import "time"

// Named time filters accepted by the analytics reports.
const (
	Filter1Day   = "1day"
	Filter3Days  = "3days"
	Filter7Days  = "7days"
	Filter30Days = "30days"

	DefaultReportDays = 30
)

// TimeWindow is an inclusive range of click dates.
type TimeWindow struct {
	Start      string `json:"start_date"`
	End        string `json:"end_date"`
	PeriodDays int    `json:"period_days"`
	Filter     string `json:"time_filter,omitempty"`
}

// DailyClick is one bucket of the daily histogram.
type DailyClick struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Clicks int64  `json:"clicks"`
}

type CountryClicks struct {
	Country string `json:"country"`
	Clicks  int64  `json:"clicks"`
}

// ClickSummary is the aggregate computed over a set of ledger rows.
type ClickSummary struct {
	DailyClicks         []DailyClick     `json:"daily_clicks"`
	CountryDistribution map[string]int64 `json:"country_distribution"`
	RefererDistribution map[string]int64 `json:"referer_distribution"`
	TopCountries        []CountryClicks  `json:"top_countries"`
	UniqueIPs           int64            `json:"unique_ips"`
	TotalClicks         int64            `json:"total_clicks"`
}

type URLReport struct {
	URL         string       `json:"url"`
	PeriodDays  int          `json:"period_days"`
	TimeFilter  string       `json:"time_filter,omitempty"`
	TotalClicks int64        `json:"total_clicks"`
	Analytics   ClickSummary `json:"analytics"`
}

// URLStats is the per-shortcode breakdown inside a namespace report.
type URLStats struct {
	TotalClicks  int64           `json:"total_clicks"`
	UniqueIPs    int64           `json:"unique_ips"`
	Countries    []string        `json:"countries"`
	TopCountries []CountryClicks `json:"top_countries"`
}

type NamespaceReport struct {
	NamespaceID string              `json:"namespace_id"`
	PeriodDays  int                 `json:"period_days"`
	TimeFilter  string              `json:"time_filter,omitempty"`
	TotalClicks int64               `json:"total_clicks"`
	UniqueURLs  int                 `json:"unique_urls"`
	Analytics   ClickSummary        `json:"analytics"`
	URLStats    map[string]URLStats `json:"url_stats"`
}

// Country tiers, most popular first.
const (
	Tier1 = "tier_1"
	Tier2 = "tier_2"
	Tier3 = "tier_3"
	Tier4 = "tier_4"
)

type CountryTier struct {
	Country    string  `json:"country"`
	Clicks     int64   `json:"clicks"`
	Tier       string  `json:"tier"`
	Percentage float64 `json:"percentage"`
}

// TierReport is recomputed on every query and never cached.
type TierReport struct {
	TotalClicks         int64            `json:"total_clicks"`
	Countries           []string         `json:"countries"`
	CountryDistribution map[string]int64 `json:"country_distribution"`
	TopCountries        []CountryTier    `json:"top_countries"`
	TierCounts          map[string]int   `json:"tier_counts"`
	PeriodDays          int              `json:"period_days"`
	TimeFilter          string           `json:"time_filter,omitempty"`
	NamespacesAnalyzed  int              `json:"namespaces_analyzed"`
}

type RecentClick struct {
	Shortcode string    `json:"shortcode"`
	Timestamp time.Time `json:"timestamp"`
	Country   string    `json:"country"`
}

type RealtimeReport struct {
	NamespaceID          string        `json:"namespace_id"`
	Date                 string        `json:"date"`
	TotalClicksToday     int64         `json:"total_clicks_today"`
	RecentClicks         []RecentClick `json:"recent_clicks"`
	UniqueCountriesToday int           `json:"unique_countries_today"`
}

// HotURL is one entry of the popularity ranking.
type HotURL struct {
	NamespaceID string  `json:"namespace_id"`
	Shortcode   string  `json:"shortcode"`
	Score       float64 `json:"score"`
}

// LRUStats describes the recency index of the object cache.
type LRUStats struct {
	Count  int64      `json:"count"`
	Oldest *time.Time `json:"oldest,omitempty"`
	Newest *time.Time `json:"newest,omitempty"`
}

type CacheStats struct {
	Backend    string   `json:"backend"`
	MaxSize    int      `json:"max_size"`
	ObjectLRU  LRUStats `json:"object_lru"`
	HotURLs    int64    `json:"hot_urls"`
	ObjectTTL  string   `json:"object_ttl"`
	ResolveTTL string   `json:"resolve_ttl"`
}

// TierBucket groups the countries that landed in one tier.
type TierBucket struct {
	Count       int            `json:"count"`
	Countries   []CountryShare `json:"countries"`
	TotalClicks int64          `json:"total_clicks"`
}

type CountryShare struct {
	Country    string  `json:"country"`
	Clicks     int64   `json:"clicks"`
	Percentage float64 `json:"percentage"`
}

// TierBreakdown regroups a TierReport by tier.
type TierBreakdown struct {
	Tiers              map[string]TierBucket `json:"tier_breakdown"`
	TierCounts         map[string]int        `json:"tier_counts"`
	TotalClicks        int64                 `json:"total_clicks"`
	PeriodDays         int                   `json:"period_days"`
	TimeFilter         string                `json:"time_filter,omitempty"`
	NamespacesAnalyzed int                   `json:"namespaces_analyzed"`
}
