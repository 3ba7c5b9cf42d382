package geo

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/oschwald/geoip2-golang"
)

// MaxMindReader looks up addresses in a local GeoIP2/GeoLite2 database
type MaxMindReader struct {
	db       *geoip2.Reader
	withCity bool
}

// OpenMaxMind opens a City or Country .mmdb database
func OpenMaxMind(path string) (*MaxMindReader, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand database path %q: %w", path, err)
	}

	db, err := geoip2.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open geolocation database: %w", err)
	}

	dbType := db.Metadata().DatabaseType
	if !strings.Contains(dbType, "City") && !strings.Contains(dbType, "Country") {
		_ = db.Close()
		return nil, fmt.Errorf("unsupported geolocation database type: %s", dbType)
	}

	return &MaxMindReader{
		db:       db,
		withCity: strings.Contains(dbType, "City"),
	}, nil
}

// Lookup resolves addr from the database. The context is unused: lookups
// are local and do not block.
func (r *MaxMindReader) Lookup(_ context.Context, addr string) (Record, error) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return Record{}, &Error{Err: fmt.Errorf("invalid IP address: %s", addr)}
	}

	var rec Record
	if r.withCity {
		city, err := r.db.City(ip)
		if err != nil {
			return Record{}, &Error{Err: fmt.Errorf("failed to look up %s: %w", addr, err)}
		}
		rec = Record{Country: city.Country.IsoCode, City: city.City.Names["en"]}
	} else {
		country, err := r.db.Country(ip)
		if err != nil {
			return Record{}, &Error{Err: fmt.Errorf("failed to look up %s: %w", addr, err)}
		}
		rec = Record{Country: country.Country.IsoCode}
	}

	if rec.Country == "" {
		return Record{}, &Error{Err: fmt.Errorf("%s not found in geolocation database", addr)}
	}
	rec.Country = strings.ToUpper(rec.Country)
	return rec, nil
}

// Close releases the database
func (r *MaxMindReader) Close() error {
	return r.db.Close()
}
