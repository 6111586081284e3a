package geolite

import (
	"net"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
)

// Reader answers country lookups from a GeoLite2-Country database on disk.
// A missing or unreadable database disables enrichment instead of failing
// the run; every lookup then answers "N/A".
type Reader struct {
	db *geoip2.Reader
}

func Open(path string) *Reader {
	if path == "" {
		return &Reader{}
	}

	db, err := geoip2.Open(path)
	if err != nil {
		log.Warn("GeoLite database unavailable, country enrichment disabled", "path", path, "error", err)
		return &Reader{}
	}
	return &Reader{db: db}
}

func (r *Reader) Enabled() bool {
	return r != nil && r.db != nil
}

func (r *Reader) CountryCode(ipAddress string) string {
	if !r.Enabled() {
		return "N/A"
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return "N/A"
	}

	record, err := r.db.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return "N/A"
	}
	return record.Country.IsoCode
}

func (r *Reader) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.db.Close()
}
