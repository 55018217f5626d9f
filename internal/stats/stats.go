// Package stats computes the dashboard report over page view facts and
// session aggregates. Sub-reports run concurrently; a failing sub-report is
// logged and reported empty instead of failing the whole response.
package stats

import (
	"context"
	"log/slog"
	"math"

	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"sitepulse/internal/config"
	"sitepulse/internal/events"
	"sitepulse/internal/pkg/async"
	"sitepulse/internal/pkg/geoip"
	"sitepulse/internal/presence"
	"sitepulse/internal/sessions"
	"sitepulse/internal/timeframe"
)

const topLimit = 10

// Overview holds the headline numbers for the selected range.
type Overview struct {
	PageViews       int `json:"pageViews"`
	Visitors        int `json:"visitors"`
	Sessions        int `json:"sessions"`
	BounceRate      int `json:"bounceRate"`
	AverageDuration int `json:"averageDuration"`
}

// DailyStat is one point of the daily time series.
type DailyStat struct {
	Date      string `json:"date"`
	PageViews int    `json:"pageViews"`
	Visitors  int    `json:"visitors"`
	Sessions  int    `json:"sessions"`
}

// PageStat is one row of the top pages table.
type PageStat struct {
	Path            string `json:"path"`
	Views           int    `json:"views"`
	Visitors        int    `json:"visitors"`
	AverageDuration int    `json:"averageDuration"`
}

// ReferrerStat is one row of the top referrers table.
type ReferrerStat struct {
	Referrer string `json:"referrer"`
	Count    int    `json:"count"`
	Visitors int    `json:"visitors"`
}

// BreakdownStat is one slice of a categorical breakdown.
type BreakdownStat struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
}

// Realtime reports who is on the site right now.
type Realtime struct {
	Online   int                      `json:"online"`
	Visitors []presence.OnlineVisitor `json:"visitors"`
}

// Report is the full dashboard payload.
type Report struct {
	Overview       Overview        `json:"overview"`
	Daily          []DailyStat     `json:"daily"`
	TopPages       []PageStat      `json:"topPages"`
	TopReferrers   []ReferrerStat  `json:"topReferrers"`
	Devices        []BreakdownStat `json:"devices"`
	Browsers       []BreakdownStat `json:"browsers"`
	Countries      []BreakdownStat `json:"countries"`
	TrafficSources []BreakdownStat `json:"trafficSources"`
	Realtime       Realtime        `json:"realtime"`
}

// BuildReport computes every sub-report for the timeframe concurrently.
func BuildReport(dbManager cartridge.DBManager, logger *slog.Logger, tf *timeframe.Timeframe) *Report {
	db := dbManager.GetConnection()

	tasks := []async.Task{
		{Name: "overview", Execute: func() (interface{}, error) {
			return queryOverview(db, tf)
		}},
		{Name: "daily", Execute: func() (interface{}, error) {
			return queryDaily(db, tf)
		}},
		{Name: "top_pages", Execute: func() (interface{}, error) {
			return queryTopPages(db, tf)
		}},
		{Name: "top_referrers", Execute: func() (interface{}, error) {
			return queryTopReferrers(db, tf)
		}},
		{Name: "devices", Execute: func() (interface{}, error) {
			return queryBreakdown(db, tf, "device", 0, titleLabel)
		}},
		{Name: "browsers", Execute: func() (interface{}, error) {
			return queryBreakdown(db, tf, "browser", topLimit, titleLabel)
		}},
		{Name: "countries", Execute: func() (interface{}, error) {
			return queryBreakdown(db, tf, "country", topLimit, countryLabel())
		}},
		{Name: "traffic_sources", Execute: func() (interface{}, error) {
			return queryBreakdown(db, tf, "traffic_source", 0, func(s string) string { return s })
		}},
		{Name: "realtime", Execute: func() (interface{}, error) {
			return queryRealtime(dbManager)
		}},
	}

	pool := async.NewPool(config.GetConfig().StatsWorkerCount)
	results := pool.Execute(context.Background(), tasks)

	report := &Report{
		Daily:          []DailyStat{},
		TopPages:       []PageStat{},
		TopReferrers:   []ReferrerStat{},
		Devices:        []BreakdownStat{},
		Browsers:       []BreakdownStat{},
		Countries:      []BreakdownStat{},
		TrafficSources: []BreakdownStat{},
		Realtime:       Realtime{Visitors: []presence.OnlineVisitor{}},
	}

	for name, result := range results {
		if result.Err != nil {
			logger.Error("Stats sub-report failed",
				slog.String("report", name),
				slog.Any("error", result.Err))
			continue
		}
		switch name {
		case "overview":
			report.Overview = *result.Data.(*Overview)
		case "daily":
			report.Daily = result.Data.([]DailyStat)
		case "top_pages":
			report.TopPages = result.Data.([]PageStat)
		case "top_referrers":
			report.TopReferrers = result.Data.([]ReferrerStat)
		case "devices":
			report.Devices = result.Data.([]BreakdownStat)
		case "browsers":
			report.Browsers = result.Data.([]BreakdownStat)
		case "countries":
			report.Countries = result.Data.([]BreakdownStat)
		case "traffic_sources":
			report.TrafficSources = result.Data.([]BreakdownStat)
		case "realtime":
			report.Realtime = *result.Data.(*Realtime)
		}
	}
	return report
}

func pageViewsInRange(db *gorm.DB, tf *timeframe.Timeframe) *gorm.DB {
	return db.Model(&events.PageView{}).
		Where("timestamp >= ? AND timestamp < ?", tf.From, tf.To)
}

func queryOverview(db *gorm.DB, tf *timeframe.Timeframe) (*Overview, error) {
	overview := &Overview{}

	var pageViews int64
	if err := pageViewsInRange(db, tf).Count(&pageViews).Error; err != nil {
		return nil, err
	}
	overview.PageViews = int(pageViews)

	var visitors int64
	err := pageViewsInRange(db, tf).
		Distinct("visitor_id").
		Count(&visitors).Error
	if err != nil {
		return nil, err
	}
	overview.Visitors = int(visitors)

	var totalSessions, bouncedSessions int64
	sessionsInRange := db.Model(&sessions.Session{}).
		Where("start_time >= ? AND start_time < ?", tf.From, tf.To)
	if err := sessionsInRange.Count(&totalSessions).Error; err != nil {
		return nil, err
	}
	err = db.Model(&sessions.Session{}).
		Where("start_time >= ? AND start_time < ? AND is_bounce = ?", tf.From, tf.To, true).
		Count(&bouncedSessions).Error
	if err != nil {
		return nil, err
	}
	overview.Sessions = int(totalSessions)
	overview.BounceRate = roundedPercent(int(bouncedSessions), int(totalSessions))

	var avgDuration *float64
	err = pageViewsInRange(db, tf).
		Where("duration > 0").
		Select("AVG(duration)").
		Scan(&avgDuration).Error
	if err != nil {
		return nil, err
	}
	if avgDuration != nil {
		overview.AverageDuration = int(math.Round(*avgDuration))
	}
	return overview, nil
}

func queryDaily(db *gorm.DB, tf *timeframe.Timeframe) ([]DailyStat, error) {
	var rows []DailyStat
	err := pageViewsInRange(db, tf).
		Select(`strftime('%Y-%m-%d', timestamp) AS date,
			COUNT(*) AS page_views,
			COUNT(DISTINCT visitor_id) AS visitors,
			COUNT(DISTINCT session_id) AS sessions`).
		Group("date").
		Order("date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	// All-time ranges keep only the days that actually have data; bounded
	// ranges are zero-filled so charts have a continuous axis.
	if tf.Label == timeframe.RangeAllTime {
		return rows, nil
	}

	byDate := make(map[string]DailyStat, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row
	}
	series := make([]DailyStat, 0, len(tf.Days()))
	for _, day := range tf.Days() {
		if row, ok := byDate[day]; ok {
			series = append(series, row)
		} else {
			series = append(series, DailyStat{Date: day})
		}
	}
	return series, nil
}

func queryTopPages(db *gorm.DB, tf *timeframe.Timeframe) ([]PageStat, error) {
	var rows []struct {
		Path            string
		Views           int
		Visitors        int
		AverageDuration *float64
	}
	err := pageViewsInRange(db, tf).
		Select(`path,
			COUNT(*) AS views,
			COUNT(DISTINCT visitor_id) AS visitors,
			AVG(CASE WHEN duration > 0 THEN duration END) AS average_duration`).
		Group("path").
		Order("views DESC").
		Limit(topLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	pages := make([]PageStat, len(rows))
	for i, row := range rows {
		pages[i] = PageStat{Path: row.Path, Views: row.Views, Visitors: row.Visitors}
		if row.AverageDuration != nil {
			pages[i].AverageDuration = int(math.Round(*row.AverageDuration))
		}
	}
	return pages, nil
}

func queryTopReferrers(db *gorm.DB, tf *timeframe.Timeframe) ([]ReferrerStat, error) {
	referrers := []ReferrerStat{}
	err := pageViewsInRange(db, tf).
		Where("referrer != ''").
		Select(`referrer,
			COUNT(*) AS count,
			COUNT(DISTINCT visitor_id) AS visitors`).
		Group("referrer").
		Order("count DESC").
		Limit(topLimit).
		Scan(&referrers).Error
	return referrers, err
}

// queryBreakdown groups page views by one categorical column and reports each
// value's share of the total. limit of 0 means unlimited. Percentages are
// shares of all page views in range, so a truncated top list never sums to
// 100 on its own.
func queryBreakdown(db *gorm.DB, tf *timeframe.Timeframe, column string, limit int, label func(string) string) ([]BreakdownStat, error) {
	var totalViews int64
	if err := pageViewsInRange(db, tf).Count(&totalViews).Error; err != nil {
		return nil, err
	}
	total := int(totalViews)

	var rows []struct {
		Label string
		Count int
	}
	query := pageViewsInRange(db, tf).
		Select(column + " AS label, COUNT(*) AS count").
		Group(column).
		Order("count DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	breakdown := make([]BreakdownStat, len(rows))
	for i, row := range rows {
		breakdown[i] = BreakdownStat{
			Label:   label(row.Label),
			Count:   row.Count,
			Percent: roundedPercent(row.Count, total),
		}
	}
	return breakdown, nil
}

func queryRealtime(dbManager cartridge.DBManager) (*Realtime, error) {
	count, err := presence.OnlineCount(dbManager)
	if err != nil {
		return nil, err
	}
	visitors, err := presence.OnlineVisitors(dbManager)
	if err != nil {
		return nil, err
	}
	return &Realtime{Online: count, Visitors: visitors}, nil
}

func titleLabel(label string) string {
	if label == "" {
		return "Unknown"
	}
	return cases.Title(language.AmericanEnglish).String(label)
}

// countryLabel maps ISO alpha-2 codes to display names, leaving the Local and
// Unknown sentinels alone.
func countryLabel() func(string) string {
	countries := gountries.New()
	caser := cases.Upper(language.AmericanEnglish)
	return func(code string) string {
		if code == "" {
			return geoip.CountryUnknown
		}
		if code == geoip.CountryUnknown || code == geoip.CountryLocal {
			return code
		}
		country, err := countries.FindCountryByAlpha(code)
		if err != nil {
			return caser.String(code)
		}
		return country.Name.Common
	}
}

func roundedPercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}
