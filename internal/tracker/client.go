package tracker

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"sitepulse/internal/events"
)

// DefaultHeartbeatInterval is how often a visible client reports presence.
const DefaultHeartbeatInterval = 30 * time.Second

// debounceWindow suppresses duplicate page views fired for the same path in
// quick succession, typically a double-invoked mount hook.
const debounceWindow = time.Second

// Config wires a Client together. Endpoint is the ingestion URL; Durable and
// TabScoped back the identity state.
type Config struct {
	Endpoint          string
	Fingerprint       Fingerprint
	Durable           Storage
	TabScoped         Storage
	Logger            *slog.Logger
	HTTPClient        *http.Client
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// EventOptions carries the optional attributes of a custom event.
type EventOptions struct {
	Category     string
	Path         string
	ElementID    string
	ElementClass string
	ElementText  string
	Properties   map[string]any
}

// PageViewOptions carries the optional attributes of a page view.
type PageViewOptions struct {
	Title    string
	Referrer string
}

// Client emits analytics facts to the ingestion endpoint. All sends are
// asynchronous and best-effort: failures are logged and never surfaced, so
// tracking can never break the host page.
type Client struct {
	endpoint   string
	httpClient *http.Client
	identity   *Identity
	limiter    *RateLimiter
	logger     *slog.Logger
	heartbeat  time.Duration
	now        func() time.Time

	mu            sync.Mutex
	currentPath   string
	pathEnteredAt time.Time
	lastViewAt    time.Time
	visible       bool

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewClient(cfg Config) *Client {
	if cfg.Durable == nil {
		cfg.Durable = NewMemoryStorage()
	}
	if cfg.TabScoped == nil {
		cfg.TabScoped = NewMemoryStorage()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: cfg.HTTPClient,
		identity:   NewIdentity(cfg.Durable, cfg.TabScoped, cfg.Fingerprint, cfg.SessionTimeout),
		limiter:    NewRateLimiter(),
		logger:     cfg.Logger,
		heartbeat:  cfg.HeartbeatInterval,
		now:        func() time.Time { return time.Now().UTC() },
		visible:    true,
		stop:       make(chan struct{}),
	}
}

// Start launches the heartbeat loop. Heartbeats fire only while the client is
// visible.
func (c *Client) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.sendHeartbeat()
			case <-c.stop:
				return
			}
		}
	}()
}

// Close emits a final duration for the open page and stops the heartbeat
// loop. Safe to call more than once.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		c.flushDuration()
		close(c.stop)
	})
	c.wg.Wait()
}

// SetVisible pauses or resumes heartbeats as the tab is hidden or shown.
func (c *Client) SetVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	c.mu.Unlock()
}

// TrackPageView records a navigation to pageURL. The same path seen again
// inside the debounce window is ignored. Moving to a different path first
// closes out the previous one with a duration fact. UTM parameters are parsed
// from the URL's query string.
func (c *Client) TrackPageView(pageURL string, opts ...PageViewOptions) {
	var opt PageViewOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		c.logger.Debug("Ignoring unparseable page URL", slog.String("url", pageURL))
		return
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}

	now := c.now()

	c.mu.Lock()
	if path == c.currentPath && now.Sub(c.lastViewAt) < debounceWindow {
		c.mu.Unlock()
		return
	}

	previousPath := c.currentPath
	previousEnteredAt := c.pathEnteredAt
	c.currentPath = path
	c.pathEnteredAt = now
	c.lastViewAt = now
	c.mu.Unlock()

	if previousPath != "" {
		c.emitDuration(previousPath, previousEnteredAt, now)
	}

	if c.limiter.ShouldThrottle(events.EventTypePageView) {
		return
	}

	query := parsed.Query()
	c.send(events.EventTypePageView, events.PageViewData{
		SessionID:    c.identity.GetOrCreateSessionID(),
		VisitorID:    c.identity.GetOrCreateVisitorID(),
		Path:         path,
		Title:        opt.Title,
		Referrer:     opt.Referrer,
		UTMSource:    query.Get("utm_source"),
		UTMMedium:    query.Get("utm_medium"),
		UTMCampaign:  query.Get("utm_campaign"),
		UTMTerm:      query.Get("utm_term"),
		UTMContent:   query.Get("utm_content"),
		ScreenWidth:  c.identity.fingerprint.ScreenWidth,
		ScreenHeight: c.identity.fingerprint.ScreenHeight,
		Language:     c.identity.fingerprint.Language,
	})
}

// TrackEvent records a named custom event.
func (c *Client) TrackEvent(name string, opts ...EventOptions) {
	if name == "" {
		return
	}
	var opt EventOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	if c.limiter.ShouldThrottle(events.EventTypeEvent) {
		return
	}

	path := opt.Path
	if path == "" {
		c.mu.Lock()
		path = c.currentPath
		c.mu.Unlock()
	}

	c.send(events.EventTypeEvent, events.EventData{
		SessionID:     c.identity.GetOrCreateSessionID(),
		VisitorID:     c.identity.GetOrCreateVisitorID(),
		EventName:     name,
		EventCategory: opt.Category,
		Path:          path,
		ElementID:     opt.ElementID,
		ElementClass:  opt.ElementClass,
		ElementText:   opt.ElementText,
		Properties:    opt.Properties,
	})
}

// TrackClick records an interaction with a page element. name defaults to
// "click".
func (c *Client) TrackClick(elementID, elementClass, elementText, name string) {
	if name == "" {
		name = "click"
	}
	c.TrackEvent(name, EventOptions{
		Category:     "interaction",
		ElementID:    elementID,
		ElementClass: elementClass,
		ElementText:  elementText,
	})
}

// TrackFormSubmit records a form submission with its field summary.
func (c *Client) TrackFormSubmit(name string, props map[string]any) {
	if name == "" {
		name = "form_submit"
	}
	c.TrackEvent(name, EventOptions{
		Category:   "form",
		Properties: props,
	})
}

// flushDuration closes out the currently open path, if any.
func (c *Client) flushDuration() {
	c.mu.Lock()
	path := c.currentPath
	enteredAt := c.pathEnteredAt
	c.currentPath = ""
	c.mu.Unlock()

	if path != "" {
		c.emitDuration(path, enteredAt, c.now())
	}
}

func (c *Client) emitDuration(path string, enteredAt, leftAt time.Time) {
	seconds := int(math.Round(leftAt.Sub(enteredAt).Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	c.send(events.EventTypeDuration, events.DurationData{
		SessionID: c.identity.GetOrCreateSessionID(),
		Path:      path,
		Duration:  seconds,
	})
}

func (c *Client) sendHeartbeat() {
	c.mu.Lock()
	visible := c.visible
	path := c.currentPath
	c.mu.Unlock()

	if !visible || path == "" {
		return
	}

	c.send(events.EventTypeHeartbeat, events.HeartbeatData{
		SessionID: c.identity.GetOrCreateSessionID(),
		VisitorID: c.identity.GetOrCreateVisitorID(),
		Path:      path,
	})
}

// send posts one envelope without blocking the caller. Errors are logged at
// debug and dropped; telemetry is never retried.
func (c *Client) send(eventType events.EventType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Debug("Failed to encode tracking payload", slog.Any("error", err))
		return
	}
	body, err := json.Marshal(events.Envelope{Type: string(eventType), Data: payload})
	if err != nil {
		c.logger.Debug("Failed to encode tracking envelope", slog.Any("error", err))
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		resp, err := c.httpClient.Post(c.endpoint, "application/json", bytes.NewReader(body))
		if err != nil {
			c.logger.Debug("Tracking send failed",
				slog.String("type", string(eventType)),
				slog.Any("error", err))
			return
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
	}()
}
