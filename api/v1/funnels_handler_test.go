package v1_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/events"
	"sitepulse/internal/funnels"
	"sitepulse/internal/testsupport"
)

func createFunnelRequest(t *testing.T, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/funnels", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	return req
}

func TestFunnelHandlers(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	app := testsupport.CreateMinimalTestApp(t, db)

	t.Run("creates a funnel", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := createFunnelRequest(t, map[string]any{
			"name": "Signup",
			"steps": []map[string]any{
				{"name": "Viewed pricing", "eventName": "pricing_view"},
				{"name": "Signed up", "eventName": "signup_complete"},
			},
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var created map[string]any
		require.NoError(t, json.Unmarshal(body, &created))
		assert.Equal(t, "Signup", created["name"])
		assert.NotZero(t, created["id"])
	})

	t.Run("rejects a funnel without a name", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := createFunnelRequest(t, map[string]any{
			"steps": []map[string]any{
				{"name": "A", "eventName": "a"},
				{"name": "B", "eventName": "b"},
			},
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects a funnel with one step", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		req := createFunnelRequest(t, map[string]any{
			"name":  "Too short",
			"steps": []map[string]any{{"name": "A", "eventName": "a"}},
		})
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("lists funnels with parsed steps", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		_, err := funnels.Create(dbManager, logger, "Signup", []funnels.Step{
			{Name: "Viewed pricing", EventName: "pricing_view"},
			{Name: "Signed up", EventName: "signup_complete"},
		})
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/api/v1/funnels", nil)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var payload struct {
			Funnels []struct {
				ID    uint           `json:"id"`
				Name  string         `json:"name"`
				Steps []funnels.Step `json:"steps"`
			} `json:"funnels"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Len(t, payload.Funnels, 1)
		assert.Len(t, payload.Funnels[0].Steps, 2)
	})

	t.Run("analyzes a funnel", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		created, err := funnels.Create(dbManager, logger, "Signup", []funnels.Step{
			{Name: "Viewed pricing", EventName: "pricing_view"},
			{Name: "Signed up", EventName: "signup_complete"},
		})
		require.NoError(t, err)

		now := time.Now().UTC().Add(-time.Hour)
		for _, v := range []string{"v1", "v2"} {
			testsupport.CreateCustomEvent(t, db, events.CustomEvent{
				SessionID: "sess-" + v, VisitorID: v, EventName: "pricing_view", Timestamp: now,
			})
		}
		testsupport.CreateCustomEvent(t, db, events.CustomEvent{
			SessionID: "sess-v1", VisitorID: "v1", EventName: "signup_complete", Timestamp: now.Add(time.Minute),
		})

		req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/funnels/%d?range=7d", created.ID), nil)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var analysis struct {
			Steps []struct {
				Count          int `json:"count"`
				ConversionRate int `json:"conversionRate"`
				OverallRate    int `json:"overallRate"`
			} `json:"steps"`
			TotalConversionRate int `json:"totalConversionRate"`
		}
		require.NoError(t, json.Unmarshal(body, &analysis))
		require.Len(t, analysis.Steps, 2)
		assert.Equal(t, 2, analysis.Steps[0].Count)
		assert.Equal(t, 1, analysis.Steps[1].Count)
		assert.Equal(t, 50, analysis.TotalConversionRate)
	})

	t.Run("returns 404 for a missing funnel", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/funnels/99999", nil)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("returns 400 for a non numeric id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/funnels/abc", nil)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("deletes a funnel", func(t *testing.T) {
		testsupport.CleanAllTables(db)

		created, err := funnels.Create(dbManager, logger, "Doomed", []funnels.Step{
			{Name: "A", EventName: "a"},
			{Name: "B", EventName: "b"},
		})
		require.NoError(t, err)

		req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/v1/funnels/%d", created.ID), nil)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		list, err := funnels.List(dbManager)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
