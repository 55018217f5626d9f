package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Storage keys for identity state.
const (
	visitorIDKey         = "sp_visitor_id"
	sessionIDKey         = "sp_session_id"
	sessionLastActiveKey = "sp_session_last_active"
)

// DefaultSessionTimeout is the idle gap after which a session expires.
const DefaultSessionTimeout = 30 * time.Minute

// Fingerprint carries the low-entropy browser traits a visitor id is derived
// from. It is best-effort identity, not cryptographic identity; collisions
// between similar browser profiles are tolerated.
type Fingerprint struct {
	UserAgent      string
	Language       string
	ScreenWidth    int
	ScreenHeight   int
	TimezoneOffset int
}

// Identity manages the visitor and session identifiers.
type Identity struct {
	durable     Storage
	tabScoped   Storage
	fingerprint Fingerprint
	timeout     time.Duration
	now         func() time.Time
}

// NewIdentity builds an identity manager. durable survives browser restarts,
// tabScoped does not outlive the tab.
func NewIdentity(durable, tabScoped Storage, fingerprint Fingerprint, timeout time.Duration) *Identity {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Identity{
		durable:     durable,
		tabScoped:   tabScoped,
		fingerprint: fingerprint,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreateVisitorID returns the stored visitor id, minting one from the
// fingerprint on first use. The id is a fingerprint hash suffixed with a
// base-36 creation timestamp so two profiles with identical traits still
// diverge.
func (i *Identity) GetOrCreateVisitorID() string {
	if id, ok := i.durable.Get(visitorIDKey); ok && id != "" {
		return id
	}

	data := fmt.Sprintf("%s.%s.%dx%d.%d",
		i.fingerprint.UserAgent,
		i.fingerprint.Language,
		i.fingerprint.ScreenWidth,
		i.fingerprint.ScreenHeight,
		i.fingerprint.TimezoneOffset,
	)
	hash := sha256.Sum256([]byte(data))
	id := hex.EncodeToString(hash[:])[:16] + "-" + strconv.FormatInt(i.now().UnixMilli(), 36)

	i.durable.Set(visitorIDKey, id)
	return id
}

// GetOrCreateSessionID returns the current session id, refreshing its
// last-active timestamp. A session idle for the timeout or longer is expired
// and a new id is minted; sessions never span an expiry gap.
func (i *Identity) GetOrCreateSessionID() string {
	now := i.now()

	id, hasID := i.tabScoped.Get(sessionIDKey)
	lastActiveRaw, hasLastActive := i.tabScoped.Get(sessionLastActiveKey)

	if hasID && id != "" && hasLastActive {
		if lastActive, err := strconv.ParseInt(lastActiveRaw, 10, 64); err == nil {
			if now.Sub(time.UnixMilli(lastActive)) < i.timeout {
				i.tabScoped.Set(sessionLastActiveKey, strconv.FormatInt(now.UnixMilli(), 10))
				return id
			}
		}
	}

	seed := fmt.Sprintf("%s.%d", i.GetOrCreateVisitorID(), now.UnixNano())
	hash := sha256.Sum256([]byte(seed))
	id = hex.EncodeToString(hash[:])[:16] + "-" + strconv.FormatInt(now.UnixMilli(), 36)

	i.tabScoped.Set(sessionIDKey, id)
	i.tabScoped.Set(sessionLastActiveKey, strconv.FormatInt(now.UnixMilli(), 10))
	return id
}
