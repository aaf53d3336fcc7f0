package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
)

func click(ns, code string, ts time.Time, ip, country, referer string) domain.ClickEvent {
	return domain.ClickEvent{
		EventID:     fmt.Sprintf("%s-%s-%d", ns, code, ts.UnixNano()),
		NamespaceID: ns,
		Shortcode:   code,
		ClickDate:   ts.UTC().Format(domain.DateLayout),
		Timestamp:   ts,
		IPAddress:   ip,
		Country:     country,
		Referer:     referer,
	}
}

func TestWindow(t *testing.T) {
	svc := NewAnalyticsService(&memLedger{}, domain.NewMockClock(testNow))

	tests := []struct {
		name       string
		days       int
		filter     string
		wantStart  string
		wantPeriod int
	}{
		{"default", 0, "", "2025-02-12", 30},
		{"explicit days", 14, "", "2025-02-28", 14},
		{"1day is today only", 90, domain.Filter1Day, "2025-03-14", 1},
		{"3days", 0, domain.Filter3Days, "2025-03-11", 3},
		{"7days overrides days", 60, domain.Filter7Days, "2025-03-07", 7},
		{"30days", 0, domain.Filter30Days, "2025-02-12", 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := svc.Window(tt.days, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, w.Start)
			assert.Equal(t, "2025-03-14", w.End)
			assert.Equal(t, tt.wantPeriod, w.PeriodDays)
		})
	}

	_, err := svc.Window(0, "2weeks")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		clicks, busiest int64
		want            string
	}{
		{1000, 1000, domain.Tier1},
		{501, 1000, domain.Tier1},
		{500, 1000, domain.Tier2},
		{499, 1000, domain.Tier2},
		{250, 1000, domain.Tier2},
		{100, 1000, domain.Tier3},
		{99, 1000, domain.Tier4},
		{10, 1000, domain.Tier4},
		{1, 1, domain.Tier1},
		{0, 0, domain.Tier4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.clicks, tt.busiest), "%d of %d", tt.clicks, tt.busiest)
	}
}

func TestTierReport(t *testing.T) {
	ledger := &memLedger{}
	day := testNow.Add(-time.Hour)
	add := func(ns, country string, n int) {
		for i := 0; i < n; i++ {
			ledger.events = append(ledger.events, click(ns, "x", day.Add(time.Duration(i)*time.Millisecond), "1.2.3.4", country, ""))
		}
	}
	add("ns1", "A", 600)
	add("ns2", "A", 400)
	add("ns1", "B", 500)
	add("ns2", "C", 100)
	add("ns1", "D", 10)
	add("ns3", "E", 999)

	svc := NewAnalyticsService(ledger, domain.NewMockClock(testNow))
	r, err := svc.TierReport(context.Background(), []string{"ns1", "ns2"}, 0, domain.Filter7Days)
	require.NoError(t, err)

	assert.Equal(t, int64(1610), r.TotalClicks)
	assert.Equal(t, []string{"A", "B", "C", "D"}, r.Countries)
	assert.Equal(t, map[string]int{domain.Tier1: 1, domain.Tier2: 1, domain.Tier3: 1, domain.Tier4: 1}, r.TierCounts)
	assert.Equal(t, 2, r.NamespacesAnalyzed)
	assert.Equal(t, 7, r.PeriodDays)
	assert.Equal(t, domain.Filter7Days, r.TimeFilter)

	require.Len(t, r.TopCountries, 4)
	assert.Equal(t, domain.CountryTier{Country: "A", Clicks: 1000, Tier: domain.Tier1, Percentage: 62.11}, r.TopCountries[0])
	assert.Equal(t, domain.Tier2, r.TopCountries[1].Tier)
	assert.Equal(t, domain.Tier3, r.TopCountries[2].Tier)
	assert.Equal(t, domain.Tier4, r.TopCountries[3].Tier)
	assert.Equal(t, 0.62, r.TopCountries[3].Percentage)
}

func TestTierReport_RelativeBands(t *testing.T) {
	ledger := &memLedger{}
	day := testNow.Add(-time.Hour)
	for country, n := range map[string]int{"A": 1000, "B": 500, "C": 100, "D": 10} {
		for i := 0; i < n; i++ {
			ledger.events = append(ledger.events, click("ns1", "x", day, "1.2.3.4", country, ""))
		}
	}

	svc := NewAnalyticsService(ledger, domain.NewMockClock(testNow))
	r, err := svc.TierReport(context.Background(), []string{"ns1"}, 30, "")
	require.NoError(t, err)

	got := make(map[string]string, len(r.TopCountries))
	for _, c := range r.TopCountries {
		got[c.Country] = c.Tier
	}
	assert.Equal(t, map[string]string{"A": domain.Tier1, "B": domain.Tier2, "C": domain.Tier3, "D": domain.Tier4}, got)
	assert.Equal(t, map[string]int{domain.Tier1: 1, domain.Tier2: 1, domain.Tier3: 1, domain.Tier4: 1}, r.TierCounts)
}

func TestBreakdownByTier(t *testing.T) {
	r := &domain.TierReport{
		TotalClicks: 1610,
		TopCountries: []domain.CountryTier{
			{Country: "A", Clicks: 1000, Tier: domain.Tier1, Percentage: 62.11},
			{Country: "B", Clicks: 500, Tier: domain.Tier1, Percentage: 31.06},
			{Country: "D", Clicks: 10, Tier: domain.Tier4, Percentage: 0.62},
		},
		TierCounts:         map[string]int{domain.Tier1: 2, domain.Tier2: 0, domain.Tier3: 0, domain.Tier4: 1},
		PeriodDays:         30,
		NamespacesAnalyzed: 2,
	}

	b := BreakdownByTier(r)
	require.Len(t, b.Tiers, 4)
	assert.Equal(t, 2, b.Tiers[domain.Tier1].Count)
	assert.Equal(t, int64(1500), b.Tiers[domain.Tier1].TotalClicks)
	assert.Equal(t, "A", b.Tiers[domain.Tier1].Countries[0].Country)
	assert.Equal(t, 0, b.Tiers[domain.Tier2].Count)
	assert.NotNil(t, b.Tiers[domain.Tier2].Countries)
	assert.Equal(t, []domain.CountryShare{{Country: "D", Clicks: 10, Percentage: 0.62}}, b.Tiers[domain.Tier4].Countries)
	assert.Equal(t, int64(1610), b.TotalClicks)
	assert.Equal(t, 2, b.NamespacesAnalyzed)
}

func TestTierReport_EmptyNamespaceSet(t *testing.T) {
	svc := NewAnalyticsService(&memLedger{}, domain.NewMockClock(testNow))

	r, err := svc.TierReport(context.Background(), nil, 30, "")
	require.NoError(t, err)
	assert.Zero(t, r.TotalClicks)
	assert.Empty(t, r.TopCountries)
	assert.Equal(t, 0, r.TierCounts[domain.Tier1])
	assert.Zero(t, r.NamespacesAnalyzed)
}

func TestURLReport(t *testing.T) {
	ledger := &memLedger{}
	ledger.events = []domain.ClickEvent{
		click("ns1", "abc", testNow.Add(-49*time.Hour), "1.1.1.1", "Thailand", "https://t.co"),
		click("ns1", "abc", testNow.Add(-2*time.Hour), "1.1.1.1", "Thailand", ""),
		click("ns1", "abc", testNow.Add(-time.Hour), "2.2.2.2", "", ""),
		click("ns1", "abc", testNow.Add(-40*24*time.Hour), "3.3.3.3", "Japan", ""),
		click("ns1", "other", testNow.Add(-time.Hour), "4.4.4.4", "Japan", ""),
	}
	svc := NewAnalyticsService(ledger, domain.NewMockClock(testNow))

	r, err := svc.URLReport(context.Background(), "ns1", "abc", 0, "")
	require.NoError(t, err)

	assert.Equal(t, "ns1:abc", r.URL)
	assert.Equal(t, 30, r.PeriodDays)
	assert.Equal(t, int64(3), r.TotalClicks)

	a := r.Analytics
	assert.Equal(t, []domain.DailyClick{{Date: "2025-03-12", Clicks: 1}, {Date: "2025-03-14", Clicks: 2}}, a.DailyClicks)
	assert.Equal(t, map[string]int64{"Thailand": 2, domain.LocationUnknown: 1}, a.CountryDistribution)
	assert.Equal(t, map[string]int64{"https://t.co": 1, domain.RefererDirect: 2}, a.RefererDistribution)
	assert.Equal(t, []domain.CountryClicks{{Country: "Thailand", Clicks: 2}, {Country: domain.LocationUnknown, Clicks: 1}}, a.TopCountries)
	assert.Equal(t, int64(2), a.UniqueIPs)
	assert.Equal(t, int64(3), a.TotalClicks)

	r, err = svc.URLReport(context.Background(), "ns1", "abc", 0, domain.Filter1Day)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.TotalClicks)
}

func TestNamespaceReport(t *testing.T) {
	ledger := &memLedger{}
	ledger.events = []domain.ClickEvent{
		click("ns1", "a", testNow.Add(-time.Hour), "1.1.1.1", "Thailand", ""),
		click("ns1", "a", testNow.Add(-2*time.Hour), "1.1.1.2", domain.LocationUnknown, ""),
		click("ns1", "b", testNow.Add(-3*time.Hour), "1.1.1.1", "Japan", ""),
		click("ns2", "a", testNow.Add(-time.Hour), "9.9.9.9", "France", ""),
	}
	svc := NewAnalyticsService(ledger, domain.NewMockClock(testNow))

	r, err := svc.NamespaceReport(context.Background(), "ns1", 7, "")
	require.NoError(t, err)

	assert.Equal(t, int64(3), r.TotalClicks)
	assert.Equal(t, 2, r.UniqueURLs)
	assert.Equal(t, int64(2), r.Analytics.UniqueIPs)
	require.Contains(t, r.URLStats, "a")
	assert.Equal(t, int64(2), r.URLStats["a"].TotalClicks)
	assert.Equal(t, []string{"Thailand"}, r.URLStats["a"].Countries)
	assert.Len(t, r.URLStats["a"].TopCountries, 2)

	_, err = svc.NamespaceReport(context.Background(), "ns1", 7, "forever")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRealtimeReport(t *testing.T) {
	ledger := &memLedger{}
	start := time.Date(2025, 3, 14, 0, 0, 1, 0, time.UTC)
	for i := 0; i < 25; i++ {
		country := "Thailand"
		if i%2 == 0 {
			country = domain.LocationUnknown
		}
		if i == 24 {
			country = "Japan"
		}
		ledger.events = append(ledger.events, click("ns1", fmt.Sprintf("c%d", i), start.Add(time.Duration(i)*time.Minute), "1.1.1.1", country, ""))
	}
	ledger.events = append(ledger.events, click("ns1", "old", start.Add(-time.Hour), "1.1.1.1", "France", ""))

	svc := NewAnalyticsService(ledger, domain.NewMockClock(testNow))
	r, err := svc.RealtimeReport(context.Background(), "ns1")
	require.NoError(t, err)

	assert.Equal(t, "2025-03-14", r.Date)
	assert.Equal(t, int64(25), r.TotalClicksToday)
	require.Len(t, r.RecentClicks, 20)
	assert.Equal(t, "c24", r.RecentClicks[0].Shortcode, "most recent first")
	assert.Equal(t, 2, r.UniqueCountriesToday)
}
