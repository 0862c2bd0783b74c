// Package market holds date-indexed price and return data and the as-of
// views that decision code reads through.
package market

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/allocator/portfolio"
)

// PriceHistory is a table of close prices: one column per asset, one row per
// date. Dates are strictly increasing and every price is positive and finite.
// A PriceHistory is never mutated after construction.
type PriceHistory struct {
	assets []string
	index  map[string]int
	dates  []time.Time
	cols   [][]float64
}

// NewPriceHistory copies and validates the inputs. cols[j] holds the prices
// of assets[j] and must have len(dates) entries.
func NewPriceHistory(assets []string, dates []time.Time, cols [][]float64) (*PriceHistory, error) {
	if len(assets) == 0 {
		return nil, portfolio.DataInsufficient("price history has no assets")
	}
	if len(cols) != len(assets) {
		return nil, fmt.Errorf("price history: %d assets but %d columns", len(assets), len(cols))
	}
	if err := checkDates(dates); err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}

	h := &PriceHistory{
		assets: append([]string(nil), assets...),
		index:  make(map[string]int, len(assets)),
		dates:  make([]time.Time, len(dates)),
		cols:   make([][]float64, len(assets)),
	}
	for i, d := range dates {
		h.dates[i] = d.UTC()
	}
	for j, a := range assets {
		if a == "" {
			return nil, fmt.Errorf("price history: empty asset name at column %d", j)
		}
		if _, dup := h.index[a]; dup {
			return nil, fmt.Errorf("price history: duplicate asset %q", a)
		}
		h.index[a] = j
		if len(cols[j]) != len(dates) {
			return nil, fmt.Errorf("price history: %s has %d prices for %d dates", a, len(cols[j]), len(dates))
		}
		for t, p := range cols[j] {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return nil, portfolio.DataInsufficient("%s price %v on %s is not a positive finite number",
					a, p, dates[t].Format(DateLayout))
			}
		}
		h.cols[j] = append([]float64(nil), cols[j]...)
	}
	return h, nil
}

func checkDates(dates []time.Time) error {
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return fmt.Errorf("dates not strictly increasing at %s", dates[i].Format(DateLayout))
		}
	}
	return nil
}

func (h *PriceHistory) Assets() []string { return append([]string(nil), h.assets...) }

func (h *PriceHistory) Len() int { return len(h.dates) }

func (h *PriceHistory) Dates() []time.Time { return append([]time.Time(nil), h.dates...) }

func (h *PriceHistory) Date(t int) time.Time { return h.dates[t] }

// Has reports whether asset is a column of h.
func (h *PriceHistory) Has(asset string) bool {
	_, ok := h.index[asset]
	return ok
}

// Close returns the close of asset at row t.
func (h *PriceHistory) Close(asset string, t int) (float64, error) {
	j, ok := h.index[asset]
	if !ok {
		return 0, fmt.Errorf("unknown asset %q", asset)
	}
	if t < 0 || t >= len(h.dates) {
		return 0, fmt.Errorf("row %d out of range [0,%d)", t, len(h.dates))
	}
	return h.cols[j][t], nil
}

// Prices returns a copy of the price column of asset.
func (h *PriceHistory) Prices(asset string) ([]float64, error) {
	j, ok := h.index[asset]
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}
	return append([]float64(nil), h.cols[j]...), nil
}

// IndexOf returns the first row dated on or after d, or Len() if none.
func (h *PriceHistory) IndexOf(d time.Time) int {
	return sort.Search(len(h.dates), func(i int) bool { return !h.dates[i].Before(d) })
}

// Select returns a history restricted to assets, in the given order.
func (h *PriceHistory) Select(assets ...string) (*PriceHistory, error) {
	cols := make([][]float64, len(assets))
	for i, a := range assets {
		j, ok := h.index[a]
		if !ok {
			return nil, fmt.Errorf("unknown asset %q", a)
		}
		cols[i] = h.cols[j]
	}
	return NewPriceHistory(assets, h.dates, cols)
}

// Between returns the rows dated in [start, end]. A zero bound is open.
func (h *PriceHistory) Between(start, end time.Time) (*PriceHistory, error) {
	lo := 0
	if !start.IsZero() {
		lo = h.IndexOf(start)
	}
	hi := len(h.dates)
	if !end.IsZero() {
		hi = sort.Search(len(h.dates), func(i int) bool { return h.dates[i].After(end) })
	}
	if hi <= lo {
		return nil, portfolio.DataInsufficient("no prices between %s and %s",
			start.Format(DateLayout), end.Format(DateLayout))
	}
	return h.rows(lo, hi)
}

func (h *PriceHistory) rows(lo, hi int) (*PriceHistory, error) {
	cols := make([][]float64, len(h.assets))
	for j := range h.cols {
		cols[j] = h.cols[j][lo:hi]
	}
	return NewPriceHistory(h.assets, h.dates[lo:hi], cols)
}

// Returns computes simple period returns r_t = p_t/p_{t-1} - 1 for every
// asset. The first price date becomes the series origin.
func (h *PriceHistory) Returns() (*ReturnSeries, error) {
	return h.View(len(h.dates)).Returns(0)
}

// View returns the as-of window ending strictly before row decision.
func (h *PriceHistory) View(decision int) View {
	if decision < 0 {
		decision = 0
	}
	if decision > len(h.dates) {
		decision = len(h.dates)
	}
	return View{h: h, end: decision}
}

// ViewAt returns the window of every row dated strictly before d.
func (h *PriceHistory) ViewAt(d time.Time) View {
	return h.View(h.IndexOf(d))
}
