package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedTimeProvider struct {
	now time.Time
}

func (p *fixedTimeProvider) Now() time.Time {
	return p.now
}

func newFixedParser(now time.Time) *Parser {
	return NewParser(&fixedTimeProvider{now: now})
}

func TestParseRelativeRanges(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	parser := newFixedParser(now)

	tests := []struct {
		label        RangeLabel
		expectedFrom time.Time
	}{
		{RangeLast7Days, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{RangeLast30Days, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)},
		{RangeLast90Days, time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.label), func(t *testing.T) {
			tf, err := parser.Parse(tt.label, "", "")
			require.NoError(t, err)
			assert.Equal(t, tt.expectedFrom, tf.From)
			assert.Equal(t, now, tf.To)
		})
	}
}

func TestParseDefaultsToLast30Days(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	tf, err := newFixedParser(now).Parse("", "", "")
	require.NoError(t, err)
	assert.Equal(t, RangeLast30Days, tf.Label)
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), tf.From)
}

func TestParseAllTime(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	tf, err := newFixedParser(now).Parse(RangeAllTime, "", "")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), tf.From)
	assert.Equal(t, now, tf.To)
}

func TestParseCustomRange(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	parser := newFixedParser(now)

	tf, err := parser.Parse(RangeCustom, "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), tf.From)
	// end date is inclusive
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), tf.To)
}

func TestParseCustomRangeClampsToNow(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	tf, err := newFixedParser(now).Parse(RangeCustom, "2026-03-01", "2026-03-15")
	require.NoError(t, err)
	assert.Equal(t, now, tf.To)
}

func TestParseCustomRangeErrors(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	parser := newFixedParser(now)

	_, err := parser.Parse(RangeCustom, "", "2026-01-31")
	assert.Error(t, err)

	_, err = parser.Parse(RangeCustom, "2026-01-31", "2026-01-01")
	assert.Error(t, err)

	_, err = parser.Parse(RangeCustom, "not-a-date", "2026-01-31")
	assert.Error(t, err)
}

func TestParseUnknownRange(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	_, err := newFixedParser(now).Parse("fortnight", "", "")
	assert.Error(t, err)
}

func TestDays(t *testing.T) {
	tf := &Timeframe{
		From: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, []string{"2026-01-30", "2026-01-31", "2026-02-01", "2026-02-02"}, tf.Days())
}

func TestContains(t *testing.T) {
	tf := &Timeframe{
		From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.True(t, tf.Contains(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)))
	assert.True(t, tf.Contains(tf.From))
	assert.False(t, tf.Contains(tf.To))
	assert.False(t, tf.Contains(time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)))
}
