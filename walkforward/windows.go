// Package walkforward fits an allocation on a trailing train range, holds
// it over the following test range, and rolls forward until the requested
// period is covered. The stitched test segments give an out-of-sample record
// that can be compared with the in-sample fit.
package walkforward

import (
	"time"

	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/portfolio"
)

type Mode string

const (
	// Rolling trains on the last TrainPeriods prices before each test range.
	Rolling Mode = "rolling"
	// Anchored trains on everything before each test range.
	Anchored Mode = "anchored"
)

// Window is one train/test split. Indices are inclusive rows of the price
// history the windows were built from.
type Window struct {
	Index      int       `json:"index"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`

	TrainLo int `json:"train_lo"`
	TrainHi int `json:"train_hi"`
	TestLo  int `json:"test_lo"`
	TestHi  int `json:"test_hi"`
}

// TestLen is the number of price rows in the test range.
func (w Window) TestLen() int { return w.TestHi - w.TestLo + 1 }

func (w Window) String() string {
	return w.TrainStart.Format(market.DateLayout) + ".." + w.TrainEnd.Format(market.DateLayout) +
		" | " + w.TestStart.Format(market.DateLayout) + ".." + w.TestEnd.Format(market.DateLayout)
}

// Windows splits dates into consecutive test ranges of TestPeriods rows,
// each preceded by its train range. The first test range starts at
// cfg.Start (default: as soon as TrainPeriods rows are available) and the
// last one ends at cfg.End (default: the last date), so it may be shorter.
func Windows(dates []time.Time, cfg Config) ([]Window, error) {
	if err := cfg.validatePeriods(); err != nil {
		return nil, err
	}
	mode := cfg.mode()
	step := cfg.TestPeriods

	first := cfg.TrainPeriods
	if !cfg.Start.IsZero() {
		first = onOrAfter(dates, cfg.Start)
	}
	if first < cfg.TrainPeriods {
		return nil, portfolio.DataInsufficient("walkforward needs %d periods before the first test date, have %d",
			cfg.TrainPeriods, first)
	}
	last := len(dates) - 1
	if !cfg.End.IsZero() {
		last = onOrAfter(dates, cfg.End.Add(time.Nanosecond)) - 1
	}
	if first > last {
		return nil, portfolio.DataInsufficient("no test dates between %s and %s",
			cfg.Start.Format(market.DateLayout), cfg.End.Format(market.DateLayout))
	}

	var out []Window
	for lo := first; lo <= last; lo += step {
		hi := min(lo+cfg.TestPeriods-1, last)
		trainLo := lo - cfg.TrainPeriods
		if mode == Anchored {
			trainLo = 0
		}
		out = append(out, Window{
			Index:      len(out),
			TrainStart: dates[trainLo],
			TrainEnd:   dates[lo-1],
			TestStart:  dates[lo],
			TestEnd:    dates[hi],
			TrainLo:    trainLo,
			TrainHi:    lo - 1,
			TestLo:     lo,
			TestHi:     hi,
		})
	}
	if err := ValidateWindows(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateWindows checks that test ranges follow each other with no gap or
// overlap and that no train range reaches its own test range.
func ValidateWindows(ws []Window) error {
	if len(ws) == 0 {
		return portfolio.Configuration("walkforward: no windows")
	}
	for i, w := range ws {
		if w.TrainLo < 0 || w.TrainLo > w.TrainHi {
			return portfolio.Configuration("window %d: empty train range", i)
		}
		if w.TestLo > w.TestHi {
			return portfolio.Configuration("window %d: empty test range", i)
		}
		if w.TrainHi >= w.TestLo || !w.TrainEnd.Before(w.TestStart) {
			return portfolio.Configuration("window %d: train range reaches the test start %s",
				i, w.TestStart.Format(market.DateLayout))
		}
		if i == 0 {
			continue
		}
		prev := ws[i-1]
		switch {
		case w.TestLo > prev.TestHi+1:
			return portfolio.Configuration("window %d: gap after %s", i, prev.TestEnd.Format(market.DateLayout))
		case w.TestLo <= prev.TestHi:
			return portfolio.Configuration("window %d: test range overlaps window %d", i, i-1)
		case !w.TestStart.After(prev.TestEnd):
			return portfolio.Configuration("window %d: test dates out of order", i)
		}
	}
	return nil
}

func onOrAfter(dates []time.Time, d time.Time) int {
	for i, x := range dates {
		if !x.Before(d) {
			return i
		}
	}
	return len(dates)
}
