package geoip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountryCodeWithoutDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tests := []struct {
		name     string
		ip       string
		expected string
	}{
		{"loopback", "127.0.0.1", CountryLocal},
		{"private 10.x", "10.0.0.5", CountryLocal},
		{"private 192.168.x", "192.168.1.10", CountryLocal},
		{"link local", "169.254.0.1", CountryLocal},
		{"ipv6 loopback", "::1", CountryLocal},
		{"public without db", "8.8.8.8", CountryUnknown},
		{"garbage", "not-an-ip", CountryUnknown},
		{"empty", "", CountryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CountryCode(ctx, tt.ip))
		})
	}
}
