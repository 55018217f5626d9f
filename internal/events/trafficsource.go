package events

import (
	"net/url"
	"strings"

	"sitepulse/internal/pkg/referrers"
)

// Traffic source buckets assigned to every page view.
const (
	TrafficSourcePaid     = "paid"
	TrafficSourceEmail    = "email"
	TrafficSourceSocial   = "social"
	TrafficSourceDirect   = "direct"
	TrafficSourceSearch   = "search"
	TrafficSourceReferral = "referral"
	TrafficSourceOther    = "other"
)

// ClassifyTrafficSource buckets a page view by acquisition channel. An
// explicit UTM medium wins over the referrer; no referrer at all means the
// visitor typed the address or followed an untagged link.
func ClassifyTrafficSource(referrer, utmMedium string) string {
	switch strings.ToLower(strings.TrimSpace(utmMedium)) {
	case "cpc", "ppc", "paid":
		return TrafficSourcePaid
	case "email":
		return TrafficSourceEmail
	case "social":
		return TrafficSourceSocial
	}

	if strings.TrimSpace(referrer) == "" {
		return TrafficSourceDirect
	}

	parsed, err := url.Parse(referrer)
	if err != nil || parsed.Hostname() == "" {
		return TrafficSourceOther
	}

	switch referrers.Classify(parsed.Hostname()) {
	case referrers.CategorySearch:
		return TrafficSourceSearch
	case referrers.CategorySocial:
		return TrafficSourceSocial
	default:
		return TrafficSourceReferral
	}
}
