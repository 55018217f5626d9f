// Package presence tracks which visitors are currently on the site. One row
// per visitor, refreshed by page views and heartbeats; a visitor counts as
// online while their last activity falls inside the liveness window.
package presence

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/config"
)

// Presence is the latest-known activity record for a visitor.
type Presence struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	VisitorID    string    `gorm:"uniqueIndex;size:64;not null" json:"visitorId"`
	SessionID    string    `gorm:"size:64" json:"sessionId"`
	Path         string    `json:"path"`
	Device       string    `json:"device"`
	Country      string    `json:"country"`
	LastActiveAt time.Time `gorm:"index" json:"lastActiveAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TouchInput identifies the visitor and what they are looking at right now.
// Device and Country are optional; heartbeats don't carry them and must not
// wipe the values captured on the page view.
type TouchInput struct {
	VisitorID string
	SessionID string
	Path      string
	Device    string
	Country   string
	Timestamp time.Time
}

// OnlineVisitor is the read-side projection used by the realtime report.
type OnlineVisitor struct {
	Path    string `json:"path"`
	Device  string `json:"device"`
	Country string `json:"country"`
}

// Touch upserts the presence row for a visitor. Empty device or country in
// the input leaves the stored values untouched.
func Touch(dbManager cartridge.DBManager, logger *slog.Logger, input TouchInput) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO presences (visitor_id, session_id, path, device, country, last_active_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (visitor_id) DO UPDATE SET
			session_id = excluded.session_id,
			path = excluded.path,
			device = CASE WHEN excluded.device != '' THEN excluded.device ELSE presences.device END,
			country = CASE WHEN excluded.country != '' THEN excluded.country ELSE presences.country END,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at
	`
	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Exec(query,
			input.VisitorID, input.SessionID, input.Path, input.Device, input.Country,
			input.Timestamp, now, now,
		).Error
	})
}

// windowStart returns the oldest activity timestamp that still counts as
// online.
func windowStart() time.Time {
	window := time.Duration(config.GetConfig().RealtimeWindowSeconds) * time.Second
	return time.Now().UTC().Add(-window)
}

// OnlineCount returns the number of visitors active inside the liveness
// window.
func OnlineCount(dbManager cartridge.DBManager) (int, error) {
	var count int64
	err := dbManager.GetConnection().
		Model(&Presence{}).
		Where("last_active_at >= ?", windowStart()).
		Count(&count).Error
	return int(count), err
}

// OnlineVisitors lists the path, device, and country of every online visitor.
func OnlineVisitors(dbManager cartridge.DBManager) ([]OnlineVisitor, error) {
	visitors := []OnlineVisitor{}
	err := dbManager.GetConnection().
		Model(&Presence{}).
		Select("path, device, country").
		Where("last_active_at >= ?", windowStart()).
		Order("last_active_at DESC").
		Find(&visitors).Error
	return visitors, err
}

// Prune deletes presence rows idle for longer than maxAge. Called by the
// background cleanup job; the read queries never depend on it.
func Prune(dbManager cartridge.DBManager, logger *slog.Logger, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	var deleted int64
	err := sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		result := tx.Where("last_active_at < ?", cutoff).Delete(&Presence{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}
