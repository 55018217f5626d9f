// Package sessions maintains one aggregate record per browser session.
// Records are created on the first page view and mutated in place by later
// page views and custom events.
package sessions

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Session is the aggregate record for a single browser session.
type Session struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	SessionID     string    `gorm:"uniqueIndex;size:64;not null" json:"sessionId"`
	VisitorID     string    `gorm:"index;size:64;not null" json:"visitorId"`
	StartTime     time.Time `gorm:"index" json:"startTime"`
	LastActiveAt  time.Time `gorm:"index" json:"lastActiveAt"`
	EntryPage     string    `json:"entryPage"`
	ExitPage      string    `json:"exitPage"`
	PageViews     int       `json:"pageViews"`
	Events        int       `json:"events"`
	IsBounce      bool      `json:"isBounce"`
	Device        string    `json:"device"`
	Browser       string    `json:"browser"`
	OS            string    `json:"os"`
	Country       string    `json:"country"`
	City          string    `json:"city"`
	TrafficSource string    `json:"trafficSource"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PageViewInput carries the session-relevant slice of an ingested page view.
type PageViewInput struct {
	SessionID     string
	VisitorID     string
	Path          string
	Device        string
	Browser       string
	OS            string
	Country       string
	City          string
	TrafficSource string
	Timestamp     time.Time
}

// RecordPageView creates the session on its first page view and increments it
// on every subsequent one. The whole transition runs as a single upsert keyed
// by session id so concurrent page views from the same session cannot lose
// updates. A session with more than one page view is never a bounce again.
func RecordPageView(dbManager cartridge.DBManager, logger *slog.Logger, input PageViewInput) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO sessions (
			session_id, visitor_id, start_time, last_active_at,
			entry_page, exit_page, page_views, events, is_bounce,
			device, browser, os, country, city, traffic_source,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, 1, 0, 1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			page_views = sessions.page_views + 1,
			exit_page = excluded.exit_page,
			is_bounce = 0,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at
	`
	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Exec(query,
			input.SessionID, input.VisitorID, input.Timestamp, input.Timestamp,
			input.Path, input.Path,
			input.Device, input.Browser, input.OS, input.Country, input.City, input.TrafficSource,
			now, now,
		).Error
	})
}

// RecordEvent bumps the event counter and activity timestamp of an existing
// session. Events never create sessions; if the session row is missing the
// update silently touches zero rows and the next page view repairs the state.
func RecordEvent(dbManager cartridge.DBManager, logger *slog.Logger, sessionID string, timestamp time.Time) error {
	now := time.Now().UTC()
	query := `
		UPDATE sessions
		SET events = events + 1,
			last_active_at = ?,
			updated_at = ?
		WHERE session_id = ?
	`
	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Exec(query, timestamp, now, sessionID).Error
	})
}

// Touch refreshes the activity timestamp without changing any counters. Used
// by heartbeats.
func Touch(dbManager cartridge.DBManager, logger *slog.Logger, sessionID string, timestamp time.Time) error {
	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Exec(`UPDATE sessions SET last_active_at = ?, updated_at = ? WHERE session_id = ?`,
			timestamp, time.Now().UTC(), sessionID).Error
	})
}

// FindBySessionID loads a single session aggregate.
func FindBySessionID(dbManager cartridge.DBManager, sessionID string) (*Session, error) {
	var session Session
	err := dbManager.GetConnection().Where("session_id = ?", sessionID).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}
