package sessions_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sitepulse/internal/sessions"
	"sitepulse/internal/testsupport"
)

func pageView(sessionID, path string, ts time.Time) sessions.PageViewInput {
	return sessions.PageViewInput{
		SessionID:     sessionID,
		VisitorID:     "visitor-1",
		Path:          path,
		Device:        "desktop",
		Browser:       "Chrome",
		OS:            "macOS",
		Country:       "DE",
		City:          "Berlin",
		TrafficSource: "direct",
		Timestamp:     ts,
	}
}

func TestRecordPageViewCreatesSession(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sessions.RecordPageView(dbManager, logger, pageView("sess-1", "/home", start)))

	session, err := sessions.FindBySessionID(dbManager, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, "visitor-1", session.VisitorID)
	assert.Equal(t, "/home", session.EntryPage)
	assert.Equal(t, "/home", session.ExitPage)
	assert.Equal(t, 1, session.PageViews)
	assert.Equal(t, 0, session.Events)
	assert.True(t, session.IsBounce)
	assert.Equal(t, "desktop", session.Device)
	assert.Equal(t, "Berlin", session.City)
	assert.Equal(t, start.Unix(), session.StartTime.Unix())
	assert.Equal(t, start.Unix(), session.LastActiveAt.Unix())
}

func TestRecordPageViewIncrementsExistingSession(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	later := start.Add(2 * time.Minute)

	require.NoError(t, sessions.RecordPageView(dbManager, logger, pageView("sess-2", "/home", start)))
	require.NoError(t, sessions.RecordPageView(dbManager, logger, pageView("sess-2", "/pricing", later)))

	session, err := sessions.FindBySessionID(dbManager, "sess-2")
	require.NoError(t, err)

	assert.Equal(t, 2, session.PageViews)
	assert.Equal(t, "/home", session.EntryPage, "entry page keeps the first path")
	assert.Equal(t, "/pricing", session.ExitPage, "exit page follows the latest path")
	assert.False(t, session.IsBounce, "a second page view clears the bounce flag")
	assert.Equal(t, start.Unix(), session.StartTime.Unix(), "start time is immutable")
	assert.Equal(t, later.Unix(), session.LastActiveAt.Unix())
}

func TestBounceMatchesPageViewCount(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, sessions.RecordPageView(dbManager, logger, pageView("sess-3", "/home", ts)))

		session, err := sessions.FindBySessionID(dbManager, "sess-3")
		require.NoError(t, err)
		assert.Equal(t, session.PageViews == 1, session.IsBounce)
		ts = ts.Add(time.Minute)
	}
}

func TestRecordEventIncrementsCounterOnly(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	eventAt := start.Add(30 * time.Second)

	require.NoError(t, sessions.RecordPageView(dbManager, logger, pageView("sess-4", "/home", start)))
	require.NoError(t, sessions.RecordEvent(dbManager, logger, "sess-4", eventAt))

	session, err := sessions.FindBySessionID(dbManager, "sess-4")
	require.NoError(t, err)

	assert.Equal(t, 1, session.PageViews)
	assert.Equal(t, 1, session.Events)
	assert.True(t, session.IsBounce, "custom events do not affect bounce status")
	assert.Equal(t, eventAt.Unix(), session.LastActiveAt.Unix())
}

func TestRecordEventWithoutSessionIsNoop(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	require.NoError(t, sessions.RecordEvent(dbManager, logger, "missing-session", time.Now().UTC()))

	_, err := sessions.FindBySessionID(dbManager, "missing-session")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTouchRefreshesActivity(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	beat := start.Add(45 * time.Second)

	require.NoError(t, sessions.RecordPageView(dbManager, logger, pageView("sess-5", "/home", start)))
	require.NoError(t, sessions.Touch(dbManager, logger, "sess-5", beat))

	session, err := sessions.FindBySessionID(dbManager, "sess-5")
	require.NoError(t, err)

	assert.Equal(t, beat.Unix(), session.LastActiveAt.Unix())
	assert.Equal(t, 1, session.PageViews)
	assert.Equal(t, 0, session.Events)
}
