// Package backtest replays a weight policy over a price history one period
// at a time, producing an equity curve, a rebalance log and summary
// statistics.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/portfolio"
)

const DefaultPeriodsPerYear = 252

type Config struct {
	Tickers   []string  `json:"tickers" yaml:"tickers"`
	Benchmark string    `json:"benchmark,omitempty" yaml:"benchmark,omitempty"`
	Start     time.Time `json:"start" yaml:"start"` // zero: first date
	End       time.Time `json:"end" yaml:"end"`     // zero: last date

	Rebalance string  `json:"rebalance" yaml:"rebalance"`
	CostBps   float64 `json:"cost_bps" yaml:"cost_bps"`

	IntegerShares  bool    `json:"integer_shares" yaml:"integer_shares"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`

	// InitialWeights is the book held before the first date. Nil Values
	// start the run in cash.
	InitialWeights portfolio.Weights `json:"initial_weights,omitempty" yaml:"initial_weights,omitempty"`

	Bounds         portfolio.Bounds `json:"bounds" yaml:"bounds"`
	PeriodsPerYear float64          `json:"periods_per_year" yaml:"periods_per_year"`
	RiskFree       float64          `json:"risk_free" yaml:"risk_free"` // annual

	Log logrus.FieldLogger `json:"-" yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.Bounds == (portfolio.Bounds{}) {
		c.Bounds = portfolio.LongOnly()
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c
}

// Trade is one asset's leg of a rebalance.
type Trade struct {
	Asset  string  `json:"asset"`
	From   float64 `json:"from"`
	To     float64 `json:"to"`
	Price  float64 `json:"price"`
	Shares int64   `json:"shares,omitempty"` // set with integer shares
}

// Rebalance is one trade event. The decision saw prices up to DecidedAsOf
// and executed at the close of Date.
type Rebalance struct {
	Date        time.Time `json:"date"`
	DecidedAsOf time.Time `json:"decided_as_of"`
	Turnover    float64   `json:"turnover"`
	Cost        float64   `json:"cost"` // fraction of equity
	Equity      float64   `json:"equity"`
	Trades      []Trade   `json:"trades"`
}

// Run is the read-only record of one simulation. Returns[i] is the
// portfolio return of the period ending at Dates[i+1].
type Run struct {
	Policy  string      `json:"policy"`
	Config  Config      `json:"config"`
	Assets  []string    `json:"assets"`
	Dates   []time.Time `json:"dates"`
	Equity  []float64   `json:"equity"`
	Returns []float64   `json:"returns"`

	// Nil without a benchmark.
	BenchmarkEquity  []float64 `json:"benchmark_equity,omitempty"`
	BenchmarkReturns []float64 `json:"benchmark_returns,omitempty"`

	Rebalances []Rebalance `json:"rebalances"`
	Weights    []float64   `json:"final_weights"`
	Stats      Stats       `json:"stats"`
}

type Engine struct {
	prices *market.PriceHistory // tickers only, full history
	bench  []float64
	lo, hi int
	sched  cron.Schedule
	cfg    Config
}

// NewEngine checks cfg against prices. History before cfg.Start stays
// visible to policies as lookback.
func NewEngine(prices *market.PriceHistory, cfg Config) (*Engine, error) {
	if prices == nil {
		return nil, portfolio.DataInsufficient("nil price history")
	}
	cfg = cfg.withDefaults()
	if len(cfg.Tickers) == 0 {
		return nil, portfolio.Configuration("backtest: at least one ticker is required")
	}
	if cfg.CostBps < 0 {
		return nil, portfolio.Configuration("backtest: cost_bps must be non-negative, got %v", cfg.CostBps)
	}
	if cfg.IntegerShares && cfg.InitialCapital <= 0 {
		return nil, portfolio.Configuration("backtest: integer shares need a positive initial_capital")
	}
	sched, err := ParseSchedule(cfg.Rebalance)
	if err != nil {
		return nil, portfolio.Configuration("backtest: %v", err)
	}
	if err := cfg.Bounds.Feasible(len(cfg.Tickers)); err != nil {
		return nil, err
	}
	for _, t := range cfg.Tickers {
		if !prices.Has(t) {
			return nil, portfolio.DataInsufficient("no prices for %s", t)
		}
	}
	sel, err := prices.Select(cfg.Tickers...)
	if err != nil {
		return nil, err
	}

	e := &Engine{prices: sel, sched: sched, cfg: cfg}
	e.lo, e.hi = 0, sel.Len()-1
	if !cfg.Start.IsZero() {
		e.lo = firstOnOrAfter(sel, cfg.Start)
	}
	if !cfg.End.IsZero() {
		e.hi = firstOnOrAfter(sel, cfg.End.Add(time.Nanosecond)) - 1
	}
	if e.hi-e.lo < 1 {
		return nil, portfolio.DataInsufficient("backtest needs at least 2 dates between %s and %s",
			cfg.Start.Format(market.DateLayout), cfg.End.Format(market.DateLayout))
	}

	if cfg.Benchmark != "" {
		e.bench, err = prices.Prices(cfg.Benchmark)
		if err != nil {
			return nil, portfolio.DataInsufficient("no prices for benchmark %s", cfg.Benchmark)
		}
	}

	if cfg.InitialWeights.Values != nil {
		if err := checkInitial(cfg.InitialWeights, cfg.Tickers); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Dates returns the simulated dates.
func (e *Engine) Dates() []time.Time {
	all := e.prices.Dates()
	return all[e.lo : e.hi+1]
}

// Run simulates policy over the configured range.
//
// At each decision date t the policy sees prices through t−1 only. The
// trade fills at the close of t, the new weights earn the return of t+1,
// and the cost is taken out of that same return. Between trades weights
// drift with prices and any remainder is cash earning nothing.
func (e *Engine) Run(policy Policy) (*Run, error) {
	if policy == nil {
		return nil, fmt.Errorf("backtest: Policy is required")
	}
	cfg := e.cfg
	assets := e.prices.Assets()
	n := len(assets)
	dates := e.Dates()
	steps := len(dates) - 1

	run := &Run{
		Policy:     policy.Name(),
		Config:     cfg,
		Assets:     assets,
		Dates:      dates,
		Equity:     make([]float64, len(dates)),
		Returns:    make([]float64, steps),
		Rebalances: []Rebalance{},
	}

	w := make([]float64, n)
	if cfg.InitialWeights.Values != nil {
		w = cfg.InitialWeights.Align(assets)
		if len(cfg.InitialWeights.Assets) == 0 {
			copy(w, cfg.InitialWeights.Values)
		}
	}

	px := make([]float64, n)
	closes := func(t int) []float64 {
		for j, a := range assets {
			px[j], _ = e.prices.Close(a, t)
		}
		return px
	}

	cal := newCalendar(e.sched, dates[0])
	run.Equity[0] = 1
	pending, err := e.rebalance(run, policy, e.lo, w, closes(e.lo), 1)
	if err != nil {
		return nil, err
	}

	prev := append([]float64(nil), closes(e.lo)...)
	for s := 1; s <= steps; s++ {
		t := e.lo + s
		cur := closes(t)

		gross := 0.0
		for j := range w {
			r := cur[j]/prev[j] - 1
			gross += w[j] * r
			w[j] *= 1 + r
		}
		for j := range w {
			w[j] /= 1 + gross
		}
		net := gross - pending
		pending = 0

		run.Returns[s-1] = net
		run.Equity[s] = run.Equity[s-1] * (1 + net)
		copy(prev, cur)

		if s < steps && cal.due(dates[s]) {
			pending, err = e.rebalance(run, policy, t, w, cur, run.Equity[s])
			if err != nil {
				return nil, err
			}
		}
	}
	run.Weights = w

	if e.bench != nil {
		run.BenchmarkEquity = make([]float64, len(dates))
		run.BenchmarkReturns = make([]float64, steps)
		base := e.bench[e.lo]
		for s := range dates {
			run.BenchmarkEquity[s] = e.bench[e.lo+s] / base
			if s > 0 {
				run.BenchmarkReturns[s-1] = e.bench[e.lo+s]/e.bench[e.lo+s-1] - 1
			}
		}
	}

	run.Stats = Summarize(run, cfg.PeriodsPerYear, cfg.RiskFree)
	cfg.Log.WithFields(logrus.Fields{
		"policy":     run.Policy,
		"periods":    steps,
		"rebalances": len(run.Rebalances),
		"total":      run.Stats.TotalReturn,
		"sharpe":     run.Stats.Sharpe,
	}).Debug("backtest complete")
	return run, nil
}

// rebalance asks the policy for targets at row t, moves w onto them in
// place and returns the cost to charge against the next period.
func (e *Engine) rebalance(run *Run, policy Policy, t int, w, closes []float64, equity float64) (float64, error) {
	cfg := e.cfg
	assets := run.Assets
	view := e.prices.View(t)
	date := e.prices.Date(t)

	target, err := policy.Target(&Context{
		View:    view,
		Date:    date,
		Current: portfolio.NewWeights(assets, w),
		Count:   len(run.Rebalances),
	})
	if err != nil {
		return 0, fmt.Errorf("%s on %s: %w", policy.Name(), date.Format(market.DateLayout), err)
	}
	if len(target.Assets) > 0 {
		target = portfolio.NewWeights(assets, target.Align(assets))
	}
	if target.Len() != len(assets) {
		err = portfolio.InvalidWeights("%d weights for %d assets", target.Len(), len(assets))
	} else {
		err = target.Validate(cfg.Bounds)
	}
	if err != nil {
		return 0, fmt.Errorf("%s on %s: %w", policy.Name(), date.Format(market.DateLayout), err)
	}
	next := target.Values

	var shares []int64
	if cfg.IntegerShares {
		shares, next = sizeShares(cfg.InitialCapital*equity, next, closes)
	}

	turnover := portfolio.Turnover(w, next)
	cost := turnover * cfg.CostBps / 10_000
	ev := Rebalance{
		Date:        date,
		DecidedAsOf: view.AsOf(),
		Turnover:    turnover,
		Cost:        cost,
		Equity:      equity,
		Trades:      make([]Trade, 0, len(assets)),
	}
	for j, a := range assets {
		tr := Trade{Asset: a, From: w[j], To: next[j], Price: closes[j]}
		if shares != nil {
			tr.Shares = shares[j]
		}
		ev.Trades = append(ev.Trades, tr)
	}
	run.Rebalances = append(run.Rebalances, ev)
	copy(w, next)

	cfg.Log.WithFields(logrus.Fields{
		"date":     date.Format(market.DateLayout),
		"turnover": turnover,
		"cost":     cost,
	}).Debug("rebalanced")
	return cost, nil
}

func firstOnOrAfter(h *market.PriceHistory, d time.Time) int {
	dates := h.Dates()
	for i, x := range dates {
		if !x.Before(d) {
			return i
		}
	}
	return len(dates)
}

// checkInitial accepts any finite long-or-short book that is not levered
// past 1; drift can legitimately push a held book outside the target bounds.
func checkInitial(w portfolio.Weights, tickers []string) error {
	if len(w.Assets) == 0 && len(w.Values) != len(tickers) {
		return portfolio.InvalidWeights("initial weights: %d values for %d tickers", len(w.Values), len(tickers))
	}
	if len(w.Assets) != 0 && len(w.Assets) != len(w.Values) {
		return portfolio.InvalidWeights("initial weights: %d assets but %d values", len(w.Assets), len(w.Values))
	}
	for i, v := range w.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return portfolio.InvalidWeights("initial weight %d is not finite", i)
		}
	}
	if s := w.Sum(); s > 1+portfolio.SumTolerance {
		return portfolio.InvalidWeights("initial weights sum to %.6f, more than 1", s)
	}
	return nil
}
