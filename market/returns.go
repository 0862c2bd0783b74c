package market

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/allocator/portfolio"
)

// ReturnSeries is a T×N table of simple period returns aligned by date.
type ReturnSeries struct {
	assets []string
	dates  []time.Time
	cols   [][]float64
	origin time.Time
}

// NewReturnSeries copies and validates the inputs. cols[j] holds the returns
// of assets[j].
func NewReturnSeries(assets []string, dates []time.Time, cols [][]float64) (*ReturnSeries, error) {
	if len(assets) == 0 {
		return nil, portfolio.DataInsufficient("return series has no assets")
	}
	if len(dates) == 0 {
		return nil, portfolio.DataInsufficient("return series has no observations")
	}
	if len(cols) != len(assets) {
		return nil, fmt.Errorf("return series: %d assets but %d columns", len(assets), len(cols))
	}
	if err := checkDates(dates); err != nil {
		return nil, fmt.Errorf("return series: %w", err)
	}
	seen := make(map[string]bool, len(assets))
	rs := &ReturnSeries{
		assets: append([]string(nil), assets...),
		dates:  make([]time.Time, len(dates)),
		cols:   make([][]float64, len(assets)),
	}
	for i, d := range dates {
		rs.dates[i] = d.UTC()
	}
	for j, a := range assets {
		if seen[a] {
			return nil, fmt.Errorf("return series: duplicate asset %q", a)
		}
		seen[a] = true
		if len(cols[j]) != len(dates) {
			return nil, fmt.Errorf("return series: %s has %d returns for %d dates", a, len(cols[j]), len(dates))
		}
		for t, r := range cols[j] {
			if math.IsNaN(r) || math.IsInf(r, 0) || r <= -1 {
				return nil, portfolio.DataInsufficient("%s return %v at row %d is not usable", a, r, t)
			}
		}
		rs.cols[j] = append([]float64(nil), cols[j]...)
	}
	return rs, nil
}

func (rs *ReturnSeries) Assets() []string { return append([]string(nil), rs.assets...) }

// Len is the number of observations T.
func (rs *ReturnSeries) Len() int { return len(rs.dates) }

// Width is the number of assets N.
func (rs *ReturnSeries) Width() int { return len(rs.assets) }

func (rs *ReturnSeries) Dates() []time.Time { return append([]time.Time(nil), rs.dates...) }

// Origin is the price date preceding the first return, zero when unknown.
func (rs *ReturnSeries) Origin() time.Time { return rs.origin }

// WithOrigin returns a copy of rs with the origin date set.
func (rs *ReturnSeries) WithOrigin(d time.Time) *ReturnSeries {
	out := *rs
	out.origin = d.UTC()
	return &out
}

func (rs *ReturnSeries) Column(j int) []float64 { return append([]float64(nil), rs.cols[j]...) }

// Row returns the returns of every asset at observation t.
func (rs *ReturnSeries) Row(t int) []float64 {
	row := make([]float64, len(rs.cols))
	for j := range rs.cols {
		row[j] = rs.cols[j][t]
	}
	return row
}

// Matrix returns the observations as a T×N matrix.
func (rs *ReturnSeries) Matrix() *mat.Dense {
	m := mat.NewDense(len(rs.dates), len(rs.assets), nil)
	for j, col := range rs.cols {
		m.SetCol(j, col)
	}
	return m
}

// Mean returns the per-period arithmetic mean of each asset.
func (rs *ReturnSeries) Mean() []float64 {
	out := make([]float64, len(rs.cols))
	for j, col := range rs.cols {
		out[j] = stat.Mean(col, nil)
	}
	return out
}

// AnnualizedMean scales Mean by periodsPerYear.
func (rs *ReturnSeries) AnnualizedMean(periodsPerYear float64) []float64 {
	out := rs.Mean()
	for j := range out {
		out[j] *= periodsPerYear
	}
	return out
}

// Tail returns the last n observations. n larger than Len returns rs.
func (rs *ReturnSeries) Tail(n int) *ReturnSeries {
	if n <= 0 || n >= len(rs.dates) {
		return rs
	}
	lo := len(rs.dates) - n
	out := &ReturnSeries{
		assets: rs.assets,
		dates:  rs.dates[lo:len(rs.dates):len(rs.dates)],
		cols:   make([][]float64, len(rs.cols)),
		origin: rs.dates[lo-1],
	}
	for j, col := range rs.cols {
		out.cols[j] = col[lo:len(col):len(col)]
	}
	return out
}

// Prices compounds the returns from start into a PriceHistory whose first row
// is the origin. A zero origin is placed one period before the first return.
func (rs *ReturnSeries) Prices(start float64) (*PriceHistory, error) {
	origin := rs.origin
	if origin.IsZero() {
		step := 24 * time.Hour
		if len(rs.dates) > 1 {
			step = rs.dates[1].Sub(rs.dates[0])
		}
		origin = rs.dates[0].Add(-step)
	}
	dates := make([]time.Time, 0, len(rs.dates)+1)
	dates = append(dates, origin)
	dates = append(dates, rs.dates...)

	cols := make([][]float64, len(rs.cols))
	for j, col := range rs.cols {
		p := make([]float64, len(col)+1)
		p[0] = start
		for t, r := range col {
			p[t+1] = p[t] * (1 + r)
		}
		cols[j] = p
	}
	return NewPriceHistory(rs.assets, dates, cols)
}
