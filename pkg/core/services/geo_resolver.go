package services

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/metrics"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// wellKnownHosts are public resolver addresses common enough in traffic to pin.
var wellKnownHosts = map[netip.Addr]domain.Location{
	netip.MustParseAddr("8.8.8.8"): {Country: "United States", City: domain.LocationUnknown}, // Google Public DNS
	netip.MustParseAddr("8.8.4.4"): {Country: "United States", City: domain.LocationUnknown},
	netip.MustParseAddr("1.1.1.1"): {Country: "United States", City: domain.LocationUnknown}, // Cloudflare
	netip.MustParseAddr("1.0.0.1"): {Country: "United States", City: domain.LocationUnknown},
}

type octetRange struct {
	lo, hi uint8
	region string
}

// regionBuckets is a coarse first-octet map following the IANA /8 registry allocations.
var regionBuckets = []octetRange{
	{3, 4, "North America"},
	{6, 9, "North America"},
	{12, 13, "North America"},
	{15, 24, "North America"},
	{50, 50, "North America"},
	{63, 76, "North America"},
	{96, 100, "North America"},
	{104, 104, "North America"},
	{107, 108, "North America"},
	{173, 174, "North America"},
	{184, 184, "North America"},
	{198, 199, "North America"},
	{204, 209, "North America"},
	{216, 216, "North America"},

	{2, 2, "Europe"},
	{5, 5, "Europe"},
	{31, 31, "Europe"},
	{37, 37, "Europe"},
	{46, 46, "Europe"},
	{62, 62, "Europe"},
	{77, 95, "Europe"},
	{109, 109, "Europe"},
	{176, 176, "Europe"},
	{178, 178, "Europe"},
	{185, 185, "Europe"},
	{188, 188, "Europe"},
	{193, 195, "Europe"},
	{212, 213, "Europe"},
	{217, 217, "Europe"},

	{1, 1, "Asia"},
	{14, 14, "Asia"},
	{27, 27, "Asia"},
	{36, 36, "Asia"},
	{39, 39, "Asia"},
	{42, 43, "Asia"},
	{49, 49, "Asia"},
	{58, 61, "Asia"},
	{101, 101, "Asia"},
	{103, 103, "Asia"},
	{106, 106, "Asia"},
	{110, 126, "Asia"},
	{175, 175, "Asia"},
	{180, 180, "Asia"},
	{182, 183, "Asia"},
	{202, 203, "Asia"},
	{210, 211, "Asia"},
	{218, 223, "Asia"},

	{177, 177, "Latin America"},
	{179, 179, "Latin America"},
	{181, 181, "Latin America"},
	{186, 187, "Latin America"},
	{189, 191, "Latin America"},
	{200, 201, "Latin America"},

	{41, 41, "Africa"},
	{102, 102, "Africa"},
	{105, 105, "Africa"},
	{154, 154, "Africa"},
	{196, 197, "Africa"},
}

// GeoResolver maps an IP to a best-effort location through layered sources.
// Both databases are optional.
type GeoResolver struct {
	cityDB    ports.GeoDatabase
	countries ports.CountrySource
	timeout   time.Duration
}

func NewGeoResolver(cityDB ports.GeoDatabase, countries ports.CountrySource, timeout time.Duration) *GeoResolver {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &GeoResolver{cityDB: cityDB, countries: countries, timeout: timeout}
}

// Resolve never fails. Unparseable and non-public addresses resolve to Local.
func (g *GeoResolver) Resolve(ctx context.Context, ip string) domain.Location {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil || isLocal(addr.Unmap()) {
		metrics.GeoLookups.WithLabelValues("local").Inc()
		return domain.Location{Country: domain.LocationLocal, City: domain.LocationLocal}
	}
	addr = addr.Unmap()

	if g.cityDB != nil {
		lctx, cancel := context.WithTimeout(ctx, g.timeout)
		loc, err := g.cityDB.Lookup(lctx, addr)
		cancel()
		if err == nil {
			metrics.GeoLookups.WithLabelValues("city_db").Inc()
			return normalizeLocation(loc)
		}
		logging.Debug().Err(err).Str("ip", addr.String()).Msg("city database lookup failed")
	}

	if g.countries != nil {
		lctx, cancel := context.WithTimeout(ctx, g.timeout)
		country, err := g.countries.Country(lctx, addr)
		cancel()
		if err == nil && country != "" {
			metrics.GeoLookups.WithLabelValues("country_db").Inc()
			return domain.Location{Country: country, City: domain.LocationUnknown}
		}
		if err != nil {
			logging.Debug().Err(err).Str("ip", addr.String()).Msg("country source lookup failed")
		}
	}

	loc := heuristicLocation(addr)
	if loc.Country == domain.LocationUnknown {
		metrics.GeoLookups.WithLabelValues("unknown").Inc()
	} else {
		metrics.GeoLookups.WithLabelValues("heuristic").Inc()
	}
	return loc
}

func isLocal(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}

func normalizeLocation(loc domain.Location) domain.Location {
	if loc.Country == "" {
		loc.Country = domain.LocationUnknown
	}
	if loc.City == "" {
		loc.City = domain.LocationUnknown
	}
	return loc
}

func heuristicLocation(addr netip.Addr) domain.Location {
	if loc, ok := wellKnownHosts[addr]; ok {
		return loc
	}
	if !addr.Is4() {
		return domain.UnknownLocation
	}
	first := addr.As4()[0]
	for _, b := range regionBuckets {
		if first >= b.lo && first <= b.hi {
			return domain.Location{Country: b.region, City: domain.LocationUnknown}
		}
	}
	return domain.UnknownLocation
}
