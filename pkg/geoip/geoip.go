// Package geoip resolves validator gossip addresses to country, city, and
// autonomous-system data from local MaxMind databases. It backfills
// geography for validators the directory has no record of.
package geoip

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Record is the resolved location and network data for one IP.
type Record struct {
	IP      net.IP
	Country string
	City    string
	ASN     int64
	ASNOrg  string
}

// Resolver resolves an IP to a Record, or nil when unknown.
type Resolver interface {
	Resolve(ip net.IP) *Record
}

type Config struct {
	// CityDBPath is the path to a GeoIP2/GeoLite2 City database.
	CityDBPath string
	// ASNDBPath is the path to a GeoLite2 ASN database. Optional.
	ASNDBPath string
}

func (cfg *Config) Validate() error {
	if cfg.CityDBPath == "" {
		return errors.New("city database path is required")
	}
	return nil
}

// MaxMindResolver resolves IPs against local MaxMind database files. Safe
// for concurrent use.
type MaxMindResolver struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

var _ Resolver = (*MaxMindResolver)(nil)

func NewMaxMindResolver(cfg Config) (*MaxMindResolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	city, err := geoip2.Open(cfg.CityDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open city database: %w", err)
	}

	r := &MaxMindResolver{city: city}
	if cfg.ASNDBPath != "" {
		asn, err := geoip2.Open(cfg.ASNDBPath)
		if err != nil {
			city.Close()
			return nil, fmt.Errorf("failed to open ASN database: %w", err)
		}
		r.asn = asn
	}
	return r, nil
}

func (r *MaxMindResolver) Resolve(ip net.IP) *Record {
	if ip == nil {
		return nil
	}

	city, err := r.city.City(ip)
	if err != nil {
		return nil
	}

	record := &Record{
		IP:      ip,
		Country: city.Country.Names["en"],
		City:    city.City.Names["en"],
	}

	if r.asn != nil {
		if asn, err := r.asn.ASN(ip); err == nil {
			record.ASN = int64(asn.AutonomousSystemNumber)
			record.ASNOrg = asn.AutonomousSystemOrganization
		}
	}
	return record
}

func (r *MaxMindResolver) Close() error {
	var errs []error
	if err := r.city.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.asn != nil {
		if err := r.asn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MaybeResolveAddr resolves a host:port gossip address, returning nil for
// anything unparsable.
func MaybeResolveAddr(resolver Resolver, addr string) *Record {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	return resolver.Resolve(ip)
}
