package jobs_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/config"
	"sitepulse/internal/events"
	"sitepulse/internal/jobs"
	"sitepulse/internal/presence"
	"sitepulse/internal/sessions"
	"sitepulse/internal/testsupport"
)

func TestCleanupJobPrunesStalePresence(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	now := time.Now().UTC()
	require.NoError(t, presence.Touch(dbManager, logger, presence.TouchInput{
		VisitorID: "fresh", SessionID: "s1", Path: "/", Timestamp: now,
	}))
	require.NoError(t, presence.Touch(dbManager, logger, presence.TouchInput{
		VisitorID: "stale", SessionID: "s2", Path: "/", Timestamp: now.Add(-48 * time.Hour),
	}))

	cfg := *config.GetConfig()
	cfg.RetentionDays = 0
	job := jobs.NewCleanupJob(dbManager, logger, &cfg)
	require.NoError(t, job.Run())

	var remaining int64
	require.NoError(t, dbManager.GetConnection().Model(&presence.Presence{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestCleanupJobHonorsRetention(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -120)

	testsupport.CreatePageView(t, db, events.PageView{
		SessionID: "old", VisitorID: "v1", Path: "/a", Timestamp: old,
	})
	testsupport.CreatePageView(t, db, events.PageView{
		SessionID: "new", VisitorID: "v2", Path: "/a", Timestamp: now,
	})
	testsupport.CreateCustomEvent(t, db, events.CustomEvent{
		SessionID: "old", VisitorID: "v1", EventName: "x", Timestamp: old,
	})
	testsupport.CreateSession(t, db, sessions.Session{
		SessionID: "old", VisitorID: "v1", StartTime: old, LastActiveAt: old,
	})
	testsupport.CreateSession(t, db, sessions.Session{
		SessionID: "new", VisitorID: "v2", StartTime: now, LastActiveAt: now,
	})

	cfg := *config.GetConfig()
	cfg.RetentionDays = 90
	job := jobs.NewCleanupJob(dbManager, logger, &cfg)
	require.NoError(t, job.Run())

	var pageViews, customEvents, sessionRows int64
	require.NoError(t, db.Model(&events.PageView{}).Count(&pageViews).Error)
	require.NoError(t, db.Model(&events.CustomEvent{}).Count(&customEvents).Error)
	require.NoError(t, db.Model(&sessions.Session{}).Count(&sessionRows).Error)

	assert.Equal(t, int64(1), pageViews)
	assert.Zero(t, customEvents)
	assert.Equal(t, int64(1), sessionRows)

	var kept events.PageView
	require.NoError(t, db.First(&kept).Error)
	assert.Equal(t, "new", kept.SessionID)
}

func TestCleanupJobKeepsEverythingWithoutRetention(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	testsupport.CreatePageView(t, db, events.PageView{
		SessionID: "ancient", VisitorID: "v1", Path: "/a",
		Timestamp: time.Now().UTC().AddDate(-3, 0, 0),
	})

	cfg := *config.GetConfig()
	cfg.RetentionDays = 0
	job := jobs.NewCleanupJob(dbManager, logger, &cfg)
	require.NoError(t, job.Run())

	var count int64
	require.NoError(t, db.Model(&events.PageView{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGeoLiteJobSkipsWithoutLicenseKey(t *testing.T) {
	cfg := *config.GetConfig()
	cfg.MaxMindLicenseKey = ""
	job := jobs.NewGeoLiteUpdaterJob(testsupport.GetLogger(), &cfg)
	assert.NoError(t, job.Run())
}
