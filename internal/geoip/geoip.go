package geoip

import (
	"errors"
	"fmt"
	"net"

	"tunnelcore/internal/logger"

	"github.com/oschwald/geoip2-golang"
)

var ErrNotInitialized = errors.New("geoip database not initialized")

// Reader annotates addresses with the operator and country from MaxMind
// databases. A nil *Reader is valid and answers every lookup with
// ErrNotInitialized.
type Reader struct {
	asn     *geoip2.Reader
	country *geoip2.Reader
}

// Open loads the MMDB files. The ASN database is required when asnPath is
// set; a broken country database only loses country data.
func Open(asnPath, countryPath string) (*Reader, error) {
	r := &Reader{}

	if asnPath != "" {
		var err error
		r.asn, err = geoip2.Open(asnPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ASN DB at %s: %w", asnPath, err)
		}
	}

	if countryPath != "" {
		var err error
		r.country, err = geoip2.Open(countryPath)
		if err != nil {
			logger.Log.Warnf("Failed to open Country DB at %s: %v. Country data will be missing.", countryPath, err)
		}
	}

	if r.asn == nil && r.country == nil {
		return nil, nil
	}
	return r, nil
}

type GeoResult struct {
	ISP     string
	Country string
}

func (r *Reader) Lookup(ipStr string) (*GeoResult, error) {
	if r == nil {
		return nil, ErrNotInitialized
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip: %s", ipStr)
	}

	res := &GeoResult{ISP: "Unknown", Country: "XX"}

	if r.asn != nil {
		if asn, err := r.asn.ASN(ip); err == nil {
			res.ISP = asn.AutonomousSystemOrganization
		}
	}

	if r.country != nil {
		if c, err := r.country.Country(ip); err == nil && c.Country.IsoCode != "" {
			res.Country = c.Country.IsoCode
		}
	}

	return res, nil
}

func (r *Reader) Close() {
	if r == nil {
		return
	}
	if r.asn != nil {
		r.asn.Close()
	}
	if r.country != nil {
		r.country.Close()
	}
}
