package events

import "time"

// PageView is an immutable fact recorded for every tracked page load.
// Duration starts at zero and is patched later by a duration call from the
// client once the visitor leaves the page.
type PageView struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	SessionID      string    `gorm:"index;size:64;not null" json:"sessionId"`
	VisitorID      string    `gorm:"index;size:64;not null" json:"visitorId"`
	Path           string    `gorm:"index;not null" json:"path"`
	Title          string    `json:"title"`
	Referrer       string    `json:"referrer"`
	UTMSource      string    `json:"utmSource"`
	UTMMedium      string    `json:"utmMedium"`
	UTMCampaign    string    `json:"utmCampaign"`
	UTMTerm        string    `json:"utmTerm"`
	UTMContent     string    `json:"utmContent"`
	TrafficSource  string    `gorm:"index" json:"trafficSource"`
	Device         string    `json:"device"`
	Browser        string    `json:"browser"`
	BrowserVersion string    `json:"browserVersion"`
	OS             string    `json:"os"`
	OSVersion      string    `json:"osVersion"`
	ScreenWidth    int       `json:"screenWidth"`
	ScreenHeight   int       `json:"screenHeight"`
	Language       string    `json:"language"`
	Country        string    `json:"country"`
	City           string    `json:"city"`
	IP             string    `json:"-"`
	Duration       int       `json:"duration"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CustomEvent is an immutable fact recorded for a named client-side action.
// Properties holds the caller's arbitrary key-value payload as JSON text.
type CustomEvent struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	SessionID     string    `gorm:"index;size:64;not null" json:"sessionId"`
	VisitorID     string    `gorm:"index;size:64;not null" json:"visitorId"`
	EventName     string    `gorm:"index;not null" json:"eventName"`
	EventCategory string    `gorm:"index" json:"eventCategory"`
	Path          string    `json:"path"`
	ElementID     string    `json:"elementId"`
	ElementClass  string    `json:"elementClass"`
	ElementText   string    `json:"elementText"`
	Properties    string    `json:"properties"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
	CreatedAt     time.Time `json:"createdAt"`
}
