// Package geo adapts MaxMind GeoIP2/GeoLite2 databases to the geo ports.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/wadjakorntonsri/ns-shortener/pkg/breaker"
	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
)

// ErrNoRecord is returned when the database has nothing for an address.
var ErrNoRecord = errors.New("geo: no record")

// CityDB is a GeoIP2 City database.
type CityDB struct {
	reader *geoip2.Reader
	cb     *gobreaker.CircuitBreaker[domain.Location]
}

// OpenCity opens a City database. An empty path returns (nil, nil) so the
// resolver falls through to the next source.
func OpenCity(path string) (*CityDB, error) {
	if path == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open city database: %w", err)
	}
	logging.Info().Str("path", path).Str("type", reader.Metadata().DatabaseType).Msg("geo city database loaded")
	return &CityDB{reader: reader, cb: breaker.New[domain.Location]("geo_city", breaker.DefaultSettings())}, nil
}

func (d *CityDB) Lookup(ctx context.Context, ip netip.Addr) (domain.Location, error) {
	if err := ctx.Err(); err != nil {
		return domain.Location{}, err
	}
	loc, err := d.cb.Execute(func() (domain.Location, error) {
		rec, err := d.reader.City(net.IP(ip.AsSlice()))
		if err != nil {
			return domain.Location{}, err
		}
		return domain.Location{Country: rec.Country.Names["en"], City: rec.City.Names["en"]}, nil
	})
	if err != nil {
		return domain.Location{}, err
	}
	if loc.Country == "" {
		return domain.Location{}, ErrNoRecord
	}
	return loc, nil
}

func (d *CityDB) Close() error {
	if d == nil {
		return nil
	}
	return d.reader.Close()
}

// CountryDB is a GeoIP2 Country database used as the secondary source.
type CountryDB struct {
	reader *geoip2.Reader
	cb     *gobreaker.CircuitBreaker[string]
}

// OpenCountry opens a Country database. An empty path returns (nil, nil).
func OpenCountry(path string) (*CountryDB, error) {
	if path == "" {
		return nil, nil
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open country database: %w", err)
	}
	logging.Info().Str("path", path).Str("type", reader.Metadata().DatabaseType).Msg("geo country database loaded")
	return &CountryDB{reader: reader, cb: breaker.New[string]("geo_country", breaker.DefaultSettings())}, nil
}

func (d *CountryDB) Country(ctx context.Context, ip netip.Addr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := d.cb.Execute(func() (string, error) {
		rec, err := d.reader.Country(net.IP(ip.AsSlice()))
		if err != nil {
			return "", err
		}
		return rec.Country.Names["en"], nil
	})
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", ErrNoRecord
	}
	return name, nil
}

func (d *CountryDB) Close() error {
	if d == nil {
		return nil
	}
	return d.reader.Close()
}

// Sources returns the configured databases as ports, leaving unset ones nil
// interfaces rather than typed nil pointers.
func Sources(city *CityDB, country *CountryDB) (ports.GeoDatabase, ports.CountrySource) {
	var (
		g ports.GeoDatabase
		c ports.CountrySource
	)
	if city != nil {
		g = city
	}
	if country != nil {
		c = country
	}
	return g, c
}

var (
	_ ports.GeoDatabase   = (*CityDB)(nil)
	_ ports.CountrySource = (*CountryDB)(nil)
)
