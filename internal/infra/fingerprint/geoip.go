package fingerprint

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/Alfahan/sso-sub000/internal/core/port"
)

// GeoIPResolver resolves country codes from a local MaxMind database.
type GeoIPResolver struct {
	reader *geoip2.Reader
}

// NewGeoIPResolver opens the MaxMind database at the given path.
func NewGeoIPResolver(databasePath string) (*GeoIPResolver, error) {
	reader, err := geoip2.Open(databasePath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &GeoIPResolver{reader: reader}, nil
}

// Country returns the ISO country code for an IP, or empty when unknown.
// Private and unparseable addresses resolve to empty rather than erroring so
// local traffic never breaks fingerprinting.
func (r *GeoIPResolver) Country(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", nil
	}
	if parsed.IsLoopback() || parsed.IsPrivate() {
		return "", nil
	}

	record, err := r.reader.Country(parsed)
	if err != nil {
		return "", fmt.Errorf("lookup country for ip: %w", err)
	}

	return record.Country.IsoCode, nil
}

// Close releases the underlying database handle.
func (r *GeoIPResolver) Close() error {
	return r.reader.Close()
}

// NoopGeoResolver is used when no MaxMind database is configured. Every lookup
// resolves to an empty country, which anomaly comparison treats as unknown.
type NoopGeoResolver struct{}

func (NoopGeoResolver) Country(string) (string, error) { return "", nil }

var (
	_ port.GeoResolver = (*GeoIPResolver)(nil)
	_ port.GeoResolver = NoopGeoResolver{}
)
