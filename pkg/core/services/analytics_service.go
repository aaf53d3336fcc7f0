package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

const (
	topCountriesLimit    = 10
	urlTopCountriesLimit = 5
	recentClicksLimit    = 20
)

// filterDays maps the named time filters to their lookback in days.
var filterDays = map[string]int{
	domain.Filter1Day:   1,
	domain.Filter3Days:  3,
	domain.Filter7Days:  7,
	domain.Filter30Days: 30,
}

type AnalyticsService struct {
	ledger ports.ClickLedger
	clock  domain.Clock
}

func NewAnalyticsService(ledger ports.ClickLedger, clock domain.Clock) *AnalyticsService {
	if clock == nil {
		clock = domain.RealClock{}
	}
	return &AnalyticsService{ledger: ledger, clock: clock}
}

// Window turns days or a named filter into an inclusive date range ending today.
// A named filter overrides days; 1day covers today only.
func (s *AnalyticsService) Window(days int, filter string) (domain.TimeWindow, error) {
	today := s.clock.Now().UTC()
	w := domain.TimeWindow{End: today.Format(domain.DateLayout), Filter: filter}

	if filter != "" {
		n, ok := filterDays[filter]
		if !ok {
			return w, domain.NewValidationError("time_filter", fmt.Sprintf("unknown filter %q", filter))
		}
		w.PeriodDays = n
		if n == 1 {
			w.Start = w.End
		} else {
			w.Start = today.AddDate(0, 0, -n).Format(domain.DateLayout)
		}
		return w, nil
	}

	if days <= 0 {
		days = domain.DefaultReportDays
	}
	w.PeriodDays = days
	w.Start = today.AddDate(0, 0, -days).Format(domain.DateLayout)
	return w, nil
}

func (s *AnalyticsService) URLReport(ctx context.Context, namespaceID, shortcode string, days int, filter string) (*domain.URLReport, error) {
	w, err := s.Window(days, filter)
	if err != nil {
		return nil, err
	}
	events, err := s.ledger.ForURL(ctx, namespaceID, shortcode, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("url report: %w", err)
	}

	return &domain.URLReport{
		URL:         namespaceID + ":" + shortcode,
		PeriodDays:  w.PeriodDays,
		TimeFilter:  w.Filter,
		TotalClicks: int64(len(events)),
		Analytics:   Summarize(events),
	}, nil
}

func (s *AnalyticsService) NamespaceReport(ctx context.Context, namespaceID string, days int, filter string) (*domain.NamespaceReport, error) {
	w, err := s.Window(days, filter)
	if err != nil {
		return nil, err
	}
	events, err := s.ledger.ForNamespace(ctx, namespaceID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("namespace report: %w", err)
	}

	byCode := make(map[string][]domain.ClickEvent)
	for _, e := range events {
		byCode[e.Shortcode] = append(byCode[e.Shortcode], e)
	}
	stats := make(map[string]domain.URLStats, len(byCode))
	for code, clicks := range byCode {
		counts := countCountries(clicks)
		countries := []string{}
		for c := range counts {
			if c != domain.LocationUnknown {
				countries = append(countries, c)
			}
		}
		sort.Strings(countries)
		stats[code] = domain.URLStats{
			TotalClicks:  int64(len(clicks)),
			UniqueIPs:    uniqueIPs(clicks),
			Countries:    countries,
			TopCountries: topCountries(counts, urlTopCountriesLimit),
		}
	}

	return &domain.NamespaceReport{
		NamespaceID: namespaceID,
		PeriodDays:  w.PeriodDays,
		TimeFilter:  w.Filter,
		TotalClicks: int64(len(events)),
		UniqueURLs:  len(stats),
		Analytics:   Summarize(events),
		URLStats:    stats,
	}, nil
}

// TierReport ranks countries across a set of namespaces. Tiers are relative
// to the busiest country M: tier_1 >= 0.5M, tier_2 >= 0.25M, tier_3 >= 0.1M.
func (s *AnalyticsService) TierReport(ctx context.Context, namespaceIDs []string, days int, filter string) (*domain.TierReport, error) {
	w, err := s.Window(days, filter)
	if err != nil {
		return nil, err
	}

	report := &domain.TierReport{
		Countries:           []string{},
		CountryDistribution: map[string]int64{},
		TopCountries:        []domain.CountryTier{},
		TierCounts:          map[string]int{domain.Tier1: 0, domain.Tier2: 0, domain.Tier3: 0, domain.Tier4: 0},
		PeriodDays:          w.PeriodDays,
		TimeFilter:          w.Filter,
		NamespacesAnalyzed:  len(namespaceIDs),
	}
	if len(namespaceIDs) == 0 {
		return report, nil
	}

	counts, err := s.ledger.CountryCounts(ctx, namespaceIDs, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("tier report: %w", err)
	}
	for country, n := range counts {
		if country == "" {
			country = domain.LocationUnknown
		}
		report.CountryDistribution[country] += n
		report.TotalClicks += n
	}

	ranked := rankCountries(report.CountryDistribution)
	var busiest int64
	if len(ranked) > 0 {
		busiest = ranked[0].Clicks
	}
	for _, c := range ranked {
		tier := TierFor(c.Clicks, busiest)
		report.TierCounts[tier]++
		report.Countries = append(report.Countries, c.Country)
		report.TopCountries = append(report.TopCountries, domain.CountryTier{
			Country:    c.Country,
			Clicks:     c.Clicks,
			Tier:       tier,
			Percentage: percentage(c.Clicks, report.TotalClicks),
		})
	}
	return report, nil
}

func (s *AnalyticsService) TierBreakdown(ctx context.Context, namespaceIDs []string, days int, filter string) (*domain.TierBreakdown, error) {
	r, err := s.TierReport(ctx, namespaceIDs, days, filter)
	if err != nil {
		return nil, err
	}
	return BreakdownByTier(r), nil
}

// BreakdownByTier regroups a tier report by tier, keeping the ranking order
// inside each bucket.
func BreakdownByTier(r *domain.TierReport) *domain.TierBreakdown {
	out := &domain.TierBreakdown{
		Tiers:              make(map[string]domain.TierBucket, 4),
		TierCounts:         r.TierCounts,
		TotalClicks:        r.TotalClicks,
		PeriodDays:         r.PeriodDays,
		TimeFilter:         r.TimeFilter,
		NamespacesAnalyzed: r.NamespacesAnalyzed,
	}
	for _, tier := range []string{domain.Tier1, domain.Tier2, domain.Tier3, domain.Tier4} {
		out.Tiers[tier] = domain.TierBucket{Countries: []domain.CountryShare{}}
	}
	for _, c := range r.TopCountries {
		b := out.Tiers[c.Tier]
		b.Count++
		b.TotalClicks += c.Clicks
		b.Countries = append(b.Countries, domain.CountryShare{Country: c.Country, Clicks: c.Clicks, Percentage: c.Percentage})
		out.Tiers[c.Tier] = b
	}
	return out
}

// TierFor labels a country count relative to the maximum count M:
// tier_1 above M/2, tier_2 from M/4, tier_3 from M/10, tier_4 below.
// Exactly M/2 is tier_2.
func TierFor(clicks, busiest int64) string {
	if busiest <= 0 {
		return domain.Tier4
	}
	// Compare in integer space so 0.1M boundaries are exact.
	switch {
	case clicks*2 > busiest:
		return domain.Tier1
	case clicks*4 >= busiest:
		return domain.Tier2
	case clicks*10 >= busiest:
		return domain.Tier3
	default:
		return domain.Tier4
	}
}

func (s *AnalyticsService) RealtimeReport(ctx context.Context, namespaceID string) (*domain.RealtimeReport, error) {
	today := s.clock.Now().UTC().Format(domain.DateLayout)
	events, err := s.ledger.ForDay(ctx, namespaceID, today)
	if err != nil {
		return nil, fmt.Errorf("realtime report: %w", err)
	}

	report := &domain.RealtimeReport{
		NamespaceID:      namespaceID,
		Date:             today,
		TotalClicksToday: int64(len(events)),
		RecentClicks:     make([]domain.RecentClick, 0, recentClicksLimit),
	}
	countries := make(map[string]struct{})
	for i, e := range events {
		if i < recentClicksLimit {
			report.RecentClicks = append(report.RecentClicks, domain.RecentClick{
				Shortcode: e.Shortcode,
				Timestamp: e.Timestamp,
				Country:   e.Country,
			})
		}
		if e.Country != "" && e.Country != domain.LocationUnknown {
			countries[e.Country] = struct{}{}
		}
	}
	report.UniqueCountriesToday = len(countries)
	return report, nil
}

// Summarize aggregates ledger rows into the shared report block.
func Summarize(events []domain.ClickEvent) domain.ClickSummary {
	sum := domain.ClickSummary{
		DailyClicks:         []domain.DailyClick{},
		CountryDistribution: map[string]int64{},
		RefererDistribution: map[string]int64{},
		TopCountries:        []domain.CountryClicks{},
	}
	if len(events) == 0 {
		return sum
	}

	daily := make(map[string]int64)
	for _, e := range events {
		daily[e.ClickDate]++
		referer := e.Referer
		if referer == "" {
			referer = domain.RefererDirect
		}
		sum.RefererDistribution[referer]++
	}
	sum.CountryDistribution = countCountries(events)

	dates := make([]string, 0, len(daily))
	for d := range daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates {
		sum.DailyClicks = append(sum.DailyClicks, domain.DailyClick{Date: d, Clicks: daily[d]})
	}

	sum.TopCountries = topCountries(sum.CountryDistribution, topCountriesLimit)
	sum.UniqueIPs = uniqueIPs(events)
	sum.TotalClicks = int64(len(events))
	return sum
}

func countCountries(events []domain.ClickEvent) map[string]int64 {
	out := make(map[string]int64)
	for _, e := range events {
		c := e.Country
		if c == "" {
			c = domain.LocationUnknown
		}
		out[c]++
	}
	return out
}

func uniqueIPs(events []domain.ClickEvent) int64 {
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		seen[e.IPAddress] = struct{}{}
	}
	return int64(len(seen))
}

// rankCountries sorts by clicks descending, then name.
func rankCountries(counts map[string]int64) []domain.CountryClicks {
	out := make([]domain.CountryClicks, 0, len(counts))
	for c, n := range counts {
		out = append(out, domain.CountryClicks{Country: c, Clicks: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].Country < out[j].Country
	})
	return out
}

func topCountries(counts map[string]int64, n int) []domain.CountryClicks {
	ranked := rankCountries(counts)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
