package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		freq    string
		nilSked bool
		wantErr bool
	}{
		{freq: "", nilSked: true},
		{freq: "none", nilSked: true},
		{freq: "Monthly"},
		{freq: "weekly"},
		{freq: "quarterly"},
		{freq: "annual"},
		{freq: "0 0 15 * *"},
		{freq: "@monthly"},
		{freq: "fortnightly", wantErr: true},
		{freq: "0 0 32 * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.freq, func(t *testing.T) {
			t.Parallel()
			s, err := ParseSchedule(tt.freq)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.nilSked, s == nil)
		})
	}
}

func dueDates(t *testing.T, freq string, n int) []time.Time {
	t.Helper()
	s, err := ParseSchedule(freq)
	require.NoError(t, err)
	d := dates(n)
	cal := newCalendar(s, d[0])
	var out []time.Time
	for _, x := range d[1:] {
		if cal.due(x) {
			out = append(out, x)
		}
	}
	return out
}

func TestCalendar(t *testing.T) {
	t.Parallel()

	ymd := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	assert.Equal(t,
		[]time.Time{ymd(2024, 2, 1), ymd(2024, 3, 1), ymd(2024, 4, 1)},
		dueDates(t, RebalanceMonthly, 100))
	assert.Equal(t, []time.Time{ymd(2024, 4, 1)}, dueDates(t, RebalanceQuarterly, 100))
	assert.Empty(t, dueDates(t, RebalanceAnnual, 100))
	assert.Empty(t, dueDates(t, RebalanceNone, 100))

	weekly := dueDates(t, RebalanceWeekly, 29)
	require.Len(t, weekly, 4)
	for _, d := range weekly {
		assert.Equal(t, time.Monday, d.Weekday())
	}
}

func TestCalendarRollsOverMissingDays(t *testing.T) {
	t.Parallel()

	s, err := ParseSchedule(RebalanceMonthly)
	require.NoError(t, err)
	cal := newCalendar(s, time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC))

	// Feb 1 and 2 are missing from the trading calendar.
	assert.False(t, cal.due(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)))
	assert.True(t, cal.due(time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)))
	assert.False(t, cal.due(time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC)))
	assert.True(t, cal.due(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSizeShares(t *testing.T) {
	t.Parallel()

	shares, w := sizeShares(10_000, []float64{0.6, 0.4, 0}, []float64{123.45, 37.1, 10})
	assert.Equal(t, []int64{48, 107, 0}, shares)
	assert.InDelta(t, 48*123.45/10_000, w[0], 1e-12)
	assert.InDelta(t, 107*37.1/10_000, w[1], 1e-12)
	assert.Zero(t, w[2])

	shares, _ = sizeShares(0, []float64{1}, []float64{10})
	assert.Equal(t, []int64{0}, shares)
}

func TestStatsHelpers(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Sharpe([]float64{0.01, 0.01, 0.01}, 252, 0))
	assert.Zero(t, Sharpe([]float64{0.01}, 252, 0))
	assert.Zero(t, Sortino([]float64{0.01, 0.02}, 252, 0))

	r := []float64{0.01, -0.01, 0.02, -0.005}
	assert.Greater(t, Sharpe(r, 252, 0), 0.0)
	assert.Less(t, Sharpe(r, 252, 10), 0.0)
	assert.Greater(t, Sortino(r, 252, 0), Sharpe(r, 252, 0))

	d := []time.Time{day0, day0.Add(time.Duration(365.25 * 24 * float64(time.Hour)))}
	assert.InDelta(t, 1.0, CAGR(d, []float64{1, 2}), 1e-9)
	assert.Zero(t, CAGR(d[:1], []float64{1}))

	v := Volatility([]float64{0.01, -0.01}, 4)
	assert.InDelta(t, math.Sqrt(0.0002)*2, v, 1e-12)
}
