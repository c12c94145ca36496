package logentry

import (
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// GeoReader enriches a LogEntry's metadata with a country code looked up
// from a "remote_ip" (or caller-chosen key) metadata value, using a
// MaxMind GeoLite2-Country-style database. It is an optional, explicitly
// wired Field Registry extractor — nothing in the index engine requires it.
type GeoReader struct {
	db      *maxminddb.Reader
	ipKey   string
	outKey  string
}

// geoCountryRecord matches the subset of GeoLite2-Country fields we read.
type geoCountryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// OpenGeoReader opens a MaxMind DB file. ipKey is the metadata key holding
// the client IP (e.g. "remote_ip"); outKey is the metadata key written with
// the resolved ISO country code (e.g. "geo_country").
func OpenGeoReader(path, ipKey, outKey string) (*GeoReader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	if ipKey == "" {
		ipKey = "remote_ip"
	}
	if outKey == "" {
		outKey = "geo_country"
	}
	return &GeoReader{db: db, ipKey: ipKey, outKey: outKey}, nil
}

// Close releases the underlying mmap'd database.
func (g *GeoReader) Close() error {
	return g.db.Close()
}

// Enrich returns the country code for the entry's configured IP metadata
// key, or "" if the key is missing, unparseable, or unresolvable.
func (g *GeoReader) Enrich(entry LogEntry) string {
	raw, ok := entry.Metadata[g.ipKey]
	if !ok || raw == "" {
		return ""
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return ""
	}
	var rec geoCountryRecord
	if err := g.db.Lookup(ip, &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

// OutKey returns the metadata key this reader writes to, so a field
// registry can register it as a derived field name.
func (g *GeoReader) OutKey() string { return g.outKey }
