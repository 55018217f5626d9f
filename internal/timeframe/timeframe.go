// Package timeframe resolves dashboard range labels into concrete UTC
// intervals for stats queries.
package timeframe

import (
	"fmt"
	"time"
)

// RangeLabel represents the available time range options.
type RangeLabel string

const (
	RangeLast7Days  RangeLabel = "7d"
	RangeLast30Days RangeLabel = "30d"
	RangeLast90Days RangeLabel = "90d"
	RangeAllTime    RangeLabel = "all"
	RangeCustom     RangeLabel = "custom"
)

// TimeProvider supplies the current time. Tests inject a fixed clock.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now() time.Time {
	return time.Now().UTC()
}

// Timeframe is a half-open interval [From, To) in UTC.
type Timeframe struct {
	From  time.Time
	To    time.Time
	Label RangeLabel
}

// Duration returns the length of the interval.
func (tf *Timeframe) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

// Contains reports whether t falls inside the interval.
func (tf *Timeframe) Contains(t time.Time) bool {
	return !t.Before(tf.From) && t.Before(tf.To)
}

// Days returns the list of calendar dates covered by the interval, formatted
// as YYYY-MM-DD. Used to zero-fill daily time series.
func (tf *Timeframe) Days() []string {
	var days []string
	cur := time.Date(tf.From.Year(), tf.From.Month(), tf.From.Day(), 0, 0, 0, 0, time.UTC)
	end := tf.To
	// cap at ten years of daily points
	for i := 0; cur.Before(end) && i < 3660; i++ {
		days = append(days, cur.Format("2006-01-02"))
		cur = cur.AddDate(0, 0, 1)
	}
	return days
}

// Parser resolves range labels and custom date strings into Timeframes.
type Parser struct {
	timeProvider TimeProvider
}

func NewParser(timeProvider ...TimeProvider) *Parser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &Parser{timeProvider: provider}
}

// Parse resolves a range label into a concrete interval. The custom label
// requires both startDate and endDate in YYYY-MM-DD form; other labels ignore
// them. An empty label defaults to the last 30 days.
func (p *Parser) Parse(label RangeLabel, startDate, endDate string) (*Timeframe, error) {
	now := p.timeProvider.Now()

	switch label {
	case RangeLast7Days:
		return &Timeframe{From: startOfDay(now).AddDate(0, 0, -6), To: now, Label: label}, nil
	case "", RangeLast30Days:
		return &Timeframe{From: startOfDay(now).AddDate(0, 0, -29), To: now, Label: RangeLast30Days}, nil
	case RangeLast90Days:
		return &Timeframe{From: startOfDay(now).AddDate(0, 0, -89), To: now, Label: label}, nil
	case RangeAllTime:
		return &Timeframe{From: time.Unix(0, 0).UTC(), To: now, Label: label}, nil
	case RangeCustom:
		return p.parseCustom(startDate, endDate, now)
	default:
		return nil, fmt.Errorf("unknown range %q", label)
	}
}

func (p *Parser) parseCustom(startDate, endDate string, now time.Time) (*Timeframe, error) {
	if startDate == "" || endDate == "" {
		return nil, fmt.Errorf("custom range requires both start and end dates")
	}

	from, err := time.ParseInLocation("2006-01-02", startDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", endDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}
	if from.After(end) {
		return nil, fmt.Errorf("start date must not be after end date")
	}

	// The end date is inclusive, so the interval runs to the following
	// midnight, clamped to now.
	to := end.AddDate(0, 0, 1)
	if to.After(now) {
		to = now
	}
	return &Timeframe{From: from, To: to, Label: RangeCustom}, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
