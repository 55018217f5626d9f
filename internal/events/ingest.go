package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/config"
	"sitepulse/internal/pkg/geoip"
	"sitepulse/internal/pkg/useragent"
	"sitepulse/internal/presence"
	"sitepulse/internal/sessions"
)

// EventType is the discriminator carried in the ingestion envelope.
type EventType string

const (
	EventTypePageView  EventType = "pageview"
	EventTypeEvent     EventType = "event"
	EventTypeDuration  EventType = "duration"
	EventTypeHeartbeat EventType = "heartbeat"
)

// DefaultEventCategory is assigned to custom events sent without a category.
const DefaultEventCategory = "custom"

var (
	// ErrInvalidEventType is returned when the envelope type is not one of
	// the four known ingestion types.
	ErrInvalidEventType = errors.New("invalid event type")
	// ErrValidation wraps missing or malformed ingestion payload fields.
	ErrValidation = errors.New("validation failed")
)

// Envelope is the wire format of every ingestion call.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PageViewData is the client payload for a pageview call.
type PageViewData struct {
	SessionID    string `json:"sessionId"`
	VisitorID    string `json:"visitorId"`
	Path         string `json:"path"`
	Title        string `json:"title"`
	Referrer     string `json:"referrer"`
	UTMSource    string `json:"utmSource"`
	UTMMedium    string `json:"utmMedium"`
	UTMCampaign  string `json:"utmCampaign"`
	UTMTerm      string `json:"utmTerm"`
	UTMContent   string `json:"utmContent"`
	ScreenWidth  int    `json:"screenWidth"`
	ScreenHeight int    `json:"screenHeight"`
	Language     string `json:"language"`
}

// EventData is the client payload for a custom event call.
type EventData struct {
	SessionID     string         `json:"sessionId"`
	VisitorID     string         `json:"visitorId"`
	EventName     string         `json:"eventName"`
	EventCategory string         `json:"eventCategory"`
	Path          string         `json:"path"`
	ElementID     string         `json:"elementId"`
	ElementClass  string         `json:"elementClass"`
	ElementText   string         `json:"elementText"`
	Properties    map[string]any `json:"properties"`
}

// DurationData patches the time spent on a previously recorded page view.
type DurationData struct {
	SessionID string `json:"sessionId"`
	Path      string `json:"path"`
	Duration  int    `json:"duration"`
}

// HeartbeatData keeps a visitor's presence row fresh while a tab stays open.
type HeartbeatData struct {
	SessionID string `json:"sessionId"`
	VisitorID string `json:"visitorId"`
	Path      string `json:"path"`
}

// Ingest dispatches one envelope to its handler. IP and user agent come from
// transport headers, never from the payload.
func Ingest(dbManager cartridge.DBManager, logger *slog.Logger, envelope Envelope, ip, userAgent string) error {
	switch EventType(envelope.Type) {
	case EventTypePageView:
		var data PageViewData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return fmt.Errorf("%w: malformed pageview data: %v", ErrValidation, err)
		}
		return IngestPageView(dbManager, logger, data, ip, userAgent)
	case EventTypeEvent:
		var data EventData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return fmt.Errorf("%w: malformed event data: %v", ErrValidation, err)
		}
		return IngestEvent(dbManager, logger, data)
	case EventTypeDuration:
		var data DurationData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return fmt.Errorf("%w: malformed duration data: %v", ErrValidation, err)
		}
		return IngestDuration(dbManager, logger, data)
	case EventTypeHeartbeat:
		var data HeartbeatData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return fmt.Errorf("%w: malformed heartbeat data: %v", ErrValidation, err)
		}
		return IngestHeartbeat(dbManager, logger, data)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEventType, envelope.Type)
	}
}

// IngestPageView enriches a pageview with user agent, geo, and traffic source
// data, persists the fact, and fans the update out to the session aggregate
// and the presence tracker. Bot traffic is dropped without error.
func IngestPageView(dbManager cartridge.DBManager, logger *slog.Logger, data PageViewData, ip, userAgent string) error {
	if data.SessionID == "" || data.VisitorID == "" || data.Path == "" {
		return fmt.Errorf("%w: pageview requires sessionId, visitorId, and path", ErrValidation)
	}

	ua := useragent.Parse(userAgent)
	if ua.Bot {
		logger.Debug("Dropping bot page view",
			slog.String("bot", ua.Browser),
			slog.String("path", data.Path))
		return nil
	}

	cfg := config.GetConfig()
	geoCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.GeoLookupTimeoutMillis)*time.Millisecond)
	defer cancel()
	location := geoip.Lookup(geoCtx, ip)

	trafficSource := ClassifyTrafficSource(data.Referrer, data.UTMMedium)
	now := time.Now().UTC()

	pageView := PageView{
		SessionID:      data.SessionID,
		VisitorID:      data.VisitorID,
		Path:           data.Path,
		Title:          data.Title,
		Referrer:       data.Referrer,
		UTMSource:      data.UTMSource,
		UTMMedium:      data.UTMMedium,
		UTMCampaign:    data.UTMCampaign,
		UTMTerm:        data.UTMTerm,
		UTMContent:     data.UTMContent,
		TrafficSource:  trafficSource,
		Device:         ua.Device,
		Browser:        ua.Browser,
		BrowserVersion: ua.BrowserVersion,
		OS:             ua.OS,
		OSVersion:      ua.OSVersion,
		ScreenWidth:    data.ScreenWidth,
		ScreenHeight:   data.ScreenHeight,
		Language:       data.Language,
		Country:        location.Country,
		City:           location.City,
		IP:             ip,
		Timestamp:      now,
	}

	err := sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Create(&pageView).Error
	})
	if err != nil {
		return fmt.Errorf("failed to persist page view: %w", err)
	}

	// Session and presence updates are each atomic upserts. A failure here
	// leaves the fact in place and self-heals on the session's next event.
	if err := sessions.RecordPageView(dbManager, logger, sessions.PageViewInput{
		SessionID:     data.SessionID,
		VisitorID:     data.VisitorID,
		Path:          data.Path,
		Device:        ua.Device,
		Browser:       ua.Browser,
		OS:            ua.OS,
		Country:       location.Country,
		City:          location.City,
		TrafficSource: trafficSource,
		Timestamp:     now,
	}); err != nil {
		logger.Error("Failed to update session for page view",
			slog.String("session_id", data.SessionID),
			slog.Any("error", err))
	}

	if err := presence.Touch(dbManager, logger, presence.TouchInput{
		VisitorID: data.VisitorID,
		SessionID: data.SessionID,
		Path:      data.Path,
		Device:    ua.Device,
		Country:   location.Country,
		Timestamp: now,
	}); err != nil {
		logger.Error("Failed to update presence for page view",
			slog.String("visitor_id", data.VisitorID),
			slog.Any("error", err))
	}

	return nil
}

// IngestEvent persists a custom event fact and bumps the owning session's
// event counter.
func IngestEvent(dbManager cartridge.DBManager, logger *slog.Logger, data EventData) error {
	if data.SessionID == "" || data.VisitorID == "" || data.EventName == "" {
		return fmt.Errorf("%w: event requires sessionId, visitorId, and eventName", ErrValidation)
	}

	category := data.EventCategory
	if category == "" {
		category = DefaultEventCategory
	}

	properties := ""
	if len(data.Properties) > 0 {
		encoded, err := json.Marshal(data.Properties)
		if err != nil {
			return fmt.Errorf("%w: unencodable event properties: %v", ErrValidation, err)
		}
		properties = string(encoded)
	}

	now := time.Now().UTC()
	event := CustomEvent{
		SessionID:     data.SessionID,
		VisitorID:     data.VisitorID,
		EventName:     data.EventName,
		EventCategory: category,
		Path:          data.Path,
		ElementID:     data.ElementID,
		ElementClass:  data.ElementClass,
		ElementText:   data.ElementText,
		Properties:    properties,
		Timestamp:     now,
	}

	err := sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Create(&event).Error
	})
	if err != nil {
		return fmt.Errorf("failed to persist custom event: %w", err)
	}

	if err := sessions.RecordEvent(dbManager, logger, data.SessionID, now); err != nil {
		logger.Error("Failed to update session for custom event",
			slog.String("session_id", data.SessionID),
			slog.Any("error", err))
	}

	return nil
}

// IngestDuration sets the duration on the most recent page view for the given
// session and path. A patch with no matching fact is a silent no-op so that
// late unload beacons never error.
func IngestDuration(dbManager cartridge.DBManager, logger *slog.Logger, data DurationData) error {
	if data.SessionID == "" || data.Path == "" {
		return fmt.Errorf("%w: duration requires sessionId and path", ErrValidation)
	}

	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		var pageView PageView
		err := tx.Where("session_id = ? AND path = ?", data.SessionID, data.Path).
			Order("timestamp DESC").
			First(&pageView).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&pageView).Update("duration", data.Duration).Error
	})
}

// IngestHeartbeat refreshes the visitor's presence row and the session's
// activity timestamp.
func IngestHeartbeat(dbManager cartridge.DBManager, logger *slog.Logger, data HeartbeatData) error {
	if data.SessionID == "" || data.VisitorID == "" {
		return fmt.Errorf("%w: heartbeat requires sessionId and visitorId", ErrValidation)
	}

	now := time.Now().UTC()
	if err := presence.Touch(dbManager, logger, presence.TouchInput{
		VisitorID: data.VisitorID,
		SessionID: data.SessionID,
		Path:      data.Path,
		Timestamp: now,
	}); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}

	if err := sessions.Touch(dbManager, logger, data.SessionID, now); err != nil {
		logger.Error("Failed to touch session for heartbeat",
			slog.String("session_id", data.SessionID),
			slog.Any("error", err))
	}

	return nil
}
