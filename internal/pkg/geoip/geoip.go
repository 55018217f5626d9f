// Package geoip resolves visitor IP addresses to ISO country codes using an
// optional GeoLite2 database. When no database is configured every lookup
// returns Unknown and the rest of the pipeline carries on.
package geoip

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"sitepulse/internal/config"
)

const (
	// CountryUnknown is reported when no database is available or the
	// address cannot be resolved.
	CountryUnknown = "Unknown"
	// CountryLocal is reported for loopback and private-range addresses.
	CountryLocal = "Local"
)

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// initGeoDB opens the GeoLite2 database. Returns nil if the database is not
// configured or not found (geo lookups are optional).
func initGeoDB() *geoip2.Reader {
	cfg := config.GetConfig()
	if cfg.GeoDBPath == "" {
		if logger != nil {
			logger.Debug("GeoIP database path not configured - geo lookups disabled")
		}
		return nil
	}

	if _, err := os.Stat(cfg.GeoDBPath); os.IsNotExist(err) {
		if logger != nil {
			logger.Info("GeoLite2 database not found - geo lookups disabled",
				slog.String("path", cfg.GeoDBPath),
				slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		}
		return nil
	} else if err != nil {
		if logger != nil {
			logger.Warn("Error checking GeoLite2 database file",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(cfg.GeoDBPath)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	if logger != nil {
		logger.Info("GeoLite2 database initialized",
			slog.String("path", cfg.GeoDBPath))
	}
	return db
}

// GetGeoDB returns the GeoLite2 reader, initializing it on first use.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = initGeoDB()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB reopens the database from disk. Call after downloading a new
// database file.
func ReloadGeoDB() {
	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}
	geoDB = initGeoDB()
}

// Location is the resolved geography for an IP address.
type Location struct {
	Country string
	City    string
}

// Lookup resolves an IP address to a country code and city. Private and
// loopback addresses resolve to Local without touching the database. A slow
// lookup is abandoned when the context deadline passes.
func Lookup(ctx context.Context, ipStr string) Location {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return Location{Country: CountryUnknown}
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
		return Location{Country: CountryLocal, City: CountryLocal}
	}

	db := GetGeoDB()
	if db == nil {
		return Location{Country: CountryUnknown}
	}

	resultCh := make(chan Location, 1)

	go func() {
		record, err := db.City(ip)
		if err != nil || record.Country.IsoCode == "" {
			resultCh <- Location{Country: CountryUnknown}
			return
		}
		resultCh <- Location{
			Country: record.Country.IsoCode,
			City:    record.City.Names["en"],
		}
	}()

	select {
	case res := <-resultCh:
		return res
	case <-ctx.Done():
		if logger != nil {
			logger.Warn("GeoIP lookup timed out", slog.String("ip", ipStr))
		}
		return Location{Country: CountryUnknown}
	}
}

// CountryCode resolves an IP address to an ISO country code.
func CountryCode(ctx context.Context, ipStr string) string {
	return Lookup(ctx, ipStr).Country
}
