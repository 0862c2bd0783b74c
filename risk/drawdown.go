// Package risk analyzes simulated equity curves: drawdown events and the
// run-level limits a candidate allocation has to respect.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/allocator/portfolio"
)

// Event is one excursion of the equity curve below its running peak.
type Event struct {
	Peak        time.Time  `json:"peak"`
	Trough      time.Time  `json:"trough"`
	Recovery    *time.Time `json:"recovery,omitempty"` // nil while still under water
	PeakIndex   int        `json:"peak_index"`
	TroughIndex int        `json:"trough_index"`
	Depth       float64    `json:"depth"`    // trough/peak − 1, never positive
	Duration    int        `json:"duration"` // periods from peak to recovery, or to the last date
}

func (e Event) Recovered() bool { return e.Recovery != nil }

func (e Event) String() string {
	rec := "open"
	if e.Recovery != nil {
		rec = e.Recovery.Format("2006-01-02")
	}
	return fmt.Sprintf("%s → %s → %s  %.2f%%  %d periods",
		e.Peak.Format("2006-01-02"), e.Trough.Format("2006-01-02"), rec, 100*e.Depth, e.Duration)
}

type Report struct {
	Events          []Event   `json:"events"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	AverageDrawdown float64   `json:"average_drawdown"`
	LongestDuration int       `json:"longest_duration"`
	Current         float64   `json:"current"`
	Underwater      []float64 `json:"underwater"`
}

// Analyze walks the curve once with a running peak. An event starts on the
// first close below the peak and recovers on the first close at or above it.
func Analyze(dates []time.Time, equity []float64) (*Report, error) {
	if len(dates) != len(equity) {
		return nil, fmt.Errorf("drawdown: %d dates for %d equity points", len(dates), len(equity))
	}
	if len(equity) == 0 {
		return nil, portfolio.DataInsufficient("empty equity curve")
	}
	for i, v := range equity {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return nil, fmt.Errorf("drawdown: equity %v at %d is not positive", v, i)
		}
	}

	r := &Report{Underwater: make([]float64, len(equity))}
	peak, peakIdx := equity[0], 0
	var cur *Event
	for i := 1; i < len(equity); i++ {
		v := equity[i]
		if v >= peak {
			if cur != nil {
				rec := dates[i]
				cur.Recovery = &rec
				cur.Duration = i - cur.PeakIndex
				r.Events = append(r.Events, *cur)
				cur = nil
			}
			peak, peakIdx = v, i
			continue
		}
		dd := v/peak - 1
		r.Underwater[i] = dd
		switch {
		case cur == nil:
			cur = &Event{
				Peak:        dates[peakIdx],
				PeakIndex:   peakIdx,
				Trough:      dates[i],
				TroughIndex: i,
				Depth:       dd,
			}
		case dd < cur.Depth:
			cur.Trough = dates[i]
			cur.TroughIndex = i
			cur.Depth = dd
		}
	}
	if cur != nil {
		cur.Duration = len(equity) - 1 - cur.PeakIndex
		r.Events = append(r.Events, *cur)
	}

	sum := 0.0
	for _, e := range r.Events {
		sum += e.Depth
		r.MaxDrawdown = math.Min(r.MaxDrawdown, e.Depth)
		if e.Duration > r.LongestDuration {
			r.LongestDuration = e.Duration
		}
	}
	if len(r.Events) > 0 {
		r.AverageDrawdown = sum / float64(len(r.Events))
	}
	r.Current = r.Underwater[len(r.Underwater)-1]
	return r, nil
}

// MaxDrawdown returns the deepest peak-to-trough decline of equity, ≤ 0.
func MaxDrawdown(equity []float64) float64 {
	worst := 0.0
	peak := math.Inf(-1)
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Min(worst, v/peak-1)
		}
	}
	return worst
}
