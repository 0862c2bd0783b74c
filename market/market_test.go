package market

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/allocator/portfolio"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testHistory(t *testing.T) *PriceHistory {
	t.Helper()
	h, err := NewPriceHistory(
		[]string{"SPY", "AGG"},
		[]time.Time{day("2024-01-02"), day("2024-01-03"), day("2024-01-04"), day("2024-01-05")},
		[][]float64{
			{100, 110, 99, 99},
			{50, 50, 51, 51},
		},
	)
	require.NoError(t, err)
	return h
}

func TestNewPriceHistoryValidation(t *testing.T) {
	t.Parallel()

	dates := []time.Time{day("2024-01-02"), day("2024-01-03")}
	tests := []struct {
		name   string
		assets []string
		dates  []time.Time
		cols   [][]float64
		errMsg string
	}{
		{"no assets", nil, dates, nil, "no assets"},
		{"column count", []string{"A", "B"}, dates, [][]float64{{1, 2}}, "2 assets but 1 columns"},
		{"unsorted", []string{"A"}, []time.Time{dates[1], dates[0]}, [][]float64{{1, 2}}, "strictly increasing"},
		{"duplicate date", []string{"A"}, []time.Time{dates[0], dates[0]}, [][]float64{{1, 2}}, "strictly increasing"},
		{"short column", []string{"A"}, dates, [][]float64{{1}}, "1 prices for 2 dates"},
		{"non-positive", []string{"A"}, dates, [][]float64{{1, 0}}, "positive finite"},
		{"duplicate asset", []string{"A", "A"}, dates, [][]float64{{1, 2}, {1, 2}}, "duplicate asset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPriceHistory(tt.assets, tt.dates, tt.cols)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestPriceHistoryIsCopied(t *testing.T) {
	t.Parallel()

	col := []float64{1, 2, 3}
	h, err := NewPriceHistory([]string{"A"}, []time.Time{day("2024-01-01"), day("2024-01-02"), day("2024-01-03")}, [][]float64{col})
	require.NoError(t, err)
	col[0] = 99

	p, err := h.Prices("A")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, p)

	p[1] = 42
	again, _ := h.Prices("A")
	assert.Equal(t, 2.0, again[1])
}

func TestReturns(t *testing.T) {
	t.Parallel()

	h := testHistory(t)
	rs, err := h.Returns()
	require.NoError(t, err)

	assert.Equal(t, 3, rs.Len())
	assert.Equal(t, 2, rs.Width())
	assert.Equal(t, day("2024-01-02"), rs.Origin())
	assert.Equal(t, day("2024-01-03"), rs.Dates()[0])
	assert.InDeltaSlice(t, []float64{0.1, -0.1, 0}, rs.Column(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.02, 0}, rs.Column(1), 1e-12)

	m := rs.Matrix()
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.InDelta(t, 0.02, m.At(1, 1), 1e-12)

	ann := rs.AnnualizedMean(252)
	assert.InDelta(t, 0, ann[0], 1e-12)
	assert.InDelta(t, 0.02/3*252, ann[1], 1e-12)
}

func TestViewStopsBeforeDecision(t *testing.T) {
	t.Parallel()

	h := testHistory(t)
	v := h.ViewAt(day("2024-01-04"))

	assert.Equal(t, 2, v.Len())
	assert.Equal(t, day("2024-01-03"), v.AsOf())
	for _, d := range v.Dates() {
		assert.True(t, d.Before(day("2024-01-04")))
	}

	p, err := v.Prices("SPY")
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 110}, p)

	last, err := v.Last("SPY")
	require.NoError(t, err)
	assert.Equal(t, 110.0, last)

	rs, err := v.Returns(0)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	_, err = h.View(1).Returns(0)
	assert.ErrorIs(t, err, portfolio.ErrDataInsufficient)

	empty := h.View(0)
	assert.True(t, empty.AsOf().IsZero())
	assert.Nil(t, empty.Dates())
}

func TestViewReturnsLookback(t *testing.T) {
	t.Parallel()

	h := testHistory(t)
	rs, err := h.View(4).Returns(2)
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, day("2024-01-03"), rs.Origin())
	assert.InDeltaSlice(t, []float64{-0.1, 0}, rs.Column(0), 1e-12)
}

func TestSelectAndBetween(t *testing.T) {
	t.Parallel()

	h := testHistory(t)
	s, err := h.Select("AGG")
	require.NoError(t, err)
	assert.Equal(t, []string{"AGG"}, s.Assets())

	_, err = h.Select("QQQ")
	assert.Error(t, err)

	b, err := h.Between(day("2024-01-03"), day("2024-01-04"))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, day("2024-01-03"), b.Date(0))

	_, err = h.Between(day("2025-01-01"), time.Time{})
	assert.ErrorIs(t, err, portfolio.ErrDataInsufficient)
}

func TestReturnSeriesPricesRoundTrip(t *testing.T) {
	t.Parallel()

	h := testHistory(t)
	rs, err := h.Returns()
	require.NoError(t, err)

	back, err := rs.Prices(1)
	require.NoError(t, err)
	assert.Equal(t, h.Dates(), back.Dates())
	p, _ := back.Prices("SPY")
	assert.InDeltaSlice(t, []float64{1, 1.1, 0.99, 0.99}, p, 1e-12)

	tail := rs.Tail(2)
	assert.Equal(t, 2, tail.Len())
	assert.Equal(t, day("2024-01-03"), tail.Origin())
}

func TestReadCSVWide(t *testing.T) {
	t.Parallel()

	in := "date,SPY,AGG\n2024-01-02,100,50\n\n2024-01-03, 101.5 ,50.25\n"
	h, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "AGG"}, h.Assets())
	assert.Equal(t, 2, h.Len())
	p, _ := h.Close("AGG", 1)
	assert.Equal(t, 50.25, p)
}

func TestReadCSVLong(t *testing.T) {
	t.Parallel()

	in := strings.Join([]string{
		"date,ticker,close",
		"2024-01-03,SPY,101",
		"2024-01-02,SPY,100",
		"2024-01-02,AGG,50",
		"2024-01-03,AGG,51",
	}, "\n")
	h, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"SPY", "AGG"}, h.Assets())
	assert.Equal(t, day("2024-01-02"), h.Date(0))
	p, _ := h.Close("SPY", 0)
	assert.Equal(t, 100.0, p)
}

func TestReadCSVErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		errMsg string
	}{
		{"empty", "", "empty price file"},
		{"no date header", "SPY,AGG\n1,2\n", "date column"},
		{"missing cell", "date,SPY,AGG\n2024-01-02,100,\n", "missing price"},
		{"bad date", "date,SPY\n01/02/2024,100\n", "bad date"},
		{"field count", "date,SPY,AGG\n2024-01-02,100\n", "2 fields, want 3"},
		{"long gap", "date,ticker,close\n2024-01-02,SPY,1\n2024-01-02,AGG,1\n2024-01-03,SPY,1\n", "missing AGG price on 2024-01-03"},
		{"long duplicate", "date,ticker,close\n2024-01-02,SPY,1\n2024-01-02,SPY,2\n", "duplicate SPY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ReadCSV(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadCSVAndWrite(t *testing.T) {
	t.Parallel()

	h := testHistory(t)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, h))

	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	back, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, h.Assets(), back.Assets())
	assert.Equal(t, h.Dates(), back.Dates())

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
