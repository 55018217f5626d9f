package tracker

import (
	"sync"
	"time"

	"sitepulse/internal/events"
)

// Rate limiter bounds.
const (
	minSendGap    = 500 * time.Millisecond
	slidingWindow = 60 * time.Second
	maxPerWindow  = 20
)

// RateLimiter is an in-memory sliding-window guard against runaway emission
// loops in the host page. It is process-local and resets on restart; it is a
// best-effort guard, not a distributed limiter.
type RateLimiter struct {
	mu       sync.Mutex
	accepted []time.Time
	last     time.Time
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// ShouldThrottle reports whether a request of the given type must be dropped.
// Heartbeats and duration patches bypass the limiter entirely since dropping
// them would leave session facts open. Accepted requests are recorded in the
// window.
func (r *RateLimiter) ShouldThrottle(eventType events.EventType) bool {
	if eventType == events.EventTypeHeartbeat || eventType == events.EventTypeDuration {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// Prune entries that slid out of the window.
	cutoff := now.Add(-slidingWindow)
	kept := r.accepted[:0]
	for _, t := range r.accepted {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.accepted = kept

	if !r.last.IsZero() && now.Sub(r.last) < minSendGap {
		return true
	}
	if len(r.accepted) >= maxPerWindow {
		return true
	}

	r.accepted = append(r.accepted, now)
	r.last = now
	return false
}
