// Package referrers classifies referrer hostnames against curated domain lists.
package referrers

import "strings"

// Category is a coarse classification of a referring site.
type Category string

const (
	CategorySearch   Category = "search"
	CategorySocial   Category = "social"
	CategoryReferral Category = "referral"
)

// Known search engine domains. Matching is by substring so that country
// TLD variants (google.co.uk, google.com.br, ...) classify without an
// exhaustive list.
var searchDomains = []string{
	"google.",
	"bing.com",
	"duckduckgo.com",
	"yahoo.",
	"baidu.com",
	"yandex.",
	"ecosia.org",
	"kagi.com",
	"startpage.com",
	"brave.com",
	"qwant.com",
	"naver.com",
}

// Known social network domains.
var socialDomains = []string{
	"facebook.com",
	"fb.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"t.co",
	"linkedin.com",
	"lnkd.in",
	"tiktok.com",
	"pinterest.",
	"reddit.com",
	"threads.net",
	"bsky.app",
	"mastodon.",
	"youtube.com",
	"youtu.be",
	"snapchat.com",
	"whatsapp.com",
	"telegram.org",
	"t.me",
}

// Classify buckets a referrer hostname into search, social, or referral.
// The hostname must already be parsed out of the referrer URL; an empty
// hostname is the caller's problem (direct traffic is decided upstream).
func Classify(hostname string) Category {
	host := strings.ToLower(strings.TrimPrefix(hostname, "www."))

	for _, domain := range searchDomains {
		if strings.Contains(host, domain) {
			return CategorySearch
		}
	}
	for _, domain := range socialDomains {
		if strings.Contains(host, domain) {
			return CategorySocial
		}
	}
	return CategoryReferral
}
