// Package montecarlo stress-tests a fixed allocation by replaying it over
// bootstrap resamples of its own return history.
package montecarlo

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/portfolio"
)

const (
	DefaultPaths     = 1000
	DefaultBlockSize = 1
)

type Config struct {
	Paths     int    `json:"paths" yaml:"paths"`
	Horizon   int    `json:"horizon" yaml:"horizon"`       // periods per path; 0 = len(rs)
	BlockSize int    `json:"block_size" yaml:"block_size"` // 1 = i.i.d. rows
	Seed      uint64 `json:"seed" yaml:"seed"`

	Rebalance      string           `json:"rebalance" yaml:"rebalance"`
	CostBps        float64          `json:"cost_bps" yaml:"cost_bps"`
	Bounds         portfolio.Bounds `json:"bounds" yaml:"bounds"`
	PeriodsPerYear float64          `json:"periods_per_year" yaml:"periods_per_year"`
	RiskFree       float64          `json:"risk_free" yaml:"risk_free"`

	Log logrus.FieldLogger `json:"-" yaml:"-"`
}

func (c Config) withDefaults(rows int) Config {
	if c.Paths == 0 {
		c.Paths = DefaultPaths
	}
	if c.Horizon == 0 {
		c.Horizon = rows
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.PeriodsPerYear <= 0 {
		c.PeriodsPerYear = backtest.DefaultPeriodsPerYear
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return c
}

func (c Config) Validate() error {
	if c.Paths < 0 {
		return portfolio.Configuration("montecarlo: paths must be positive, got %d", c.Paths)
	}
	if c.Horizon < 0 {
		return portfolio.Configuration("montecarlo: horizon must be positive, got %d", c.Horizon)
	}
	if c.BlockSize < 0 {
		return portfolio.Configuration("montecarlo: block_size must be positive, got %d", c.BlockSize)
	}
	if c.CostBps < 0 {
		return portfolio.Configuration("montecarlo: cost_bps must be non-negative")
	}
	return nil
}

// Distribution summarizes one statistic across paths.
type Distribution struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P5   float64 `json:"p5"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P95  float64 `json:"p95"`
}

// Describe builds a Distribution from xs. xs is not modified.
func Describe(xs []float64) Distribution {
	if len(xs) == 0 {
		return Distribution{}
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	d := Distribution{
		Mean: stat.Mean(s, nil),
		Min:  s[0],
		Max:  s[len(s)-1],
		P5:   stat.Quantile(0.05, stat.Empirical, s, nil),
		P25:  stat.Quantile(0.25, stat.Empirical, s, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, s, nil),
		P75:  stat.Quantile(0.75, stat.Empirical, s, nil),
		P95:  stat.Quantile(0.95, stat.Empirical, s, nil),
	}
	if len(s) > 1 {
		d.Std = stat.StdDev(s, nil)
	}
	return d
}

// PathResult is the outcome of one resampled path.
type PathResult struct {
	Index          int     `json:"index"`
	TerminalReturn float64 `json:"terminal_return"`
	Sharpe         float64 `json:"sharpe"`
	MaxDrawdown    float64 `json:"max_drawdown"`
}

type Summary struct {
	Paths     int    `json:"paths"`
	Horizon   int    `json:"horizon"`
	BlockSize int    `json:"block_size"`
	Seed      uint64 `json:"seed"`

	TerminalReturn Distribution `json:"terminal_return"`
	Sharpe         Distribution `json:"sharpe"`
	MaxDrawdown    Distribution `json:"max_drawdown"`
	ProbPositive   float64      `json:"prob_positive"`

	Results []PathResult `json:"-"`
}

// Tester holds the inputs shared by every path. Each path only reads them,
// so paths may run on separate goroutines.
type Tester struct {
	rs      *market.ReturnSeries
	rows    [][]float64
	weights portfolio.Weights
	cfg     Config
	origin  time.Time
}

func New(rs *market.ReturnSeries, w portfolio.Weights, cfg Config) (*Tester, error) {
	if rs == nil || rs.Len() < 2 {
		return nil, portfolio.DataInsufficient("montecarlo needs at least 2 return rows")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults(rs.Len())

	assets := rs.Assets()
	if len(w.Assets) > 0 {
		w = portfolio.NewWeights(assets, w.Align(assets))
	} else {
		w = portfolio.NewWeights(assets, w.Values)
	}
	bounds := cfg.Bounds
	if bounds == (portfolio.Bounds{}) {
		bounds = portfolio.LongOnly()
	}
	if w.Len() != len(assets) {
		return nil, portfolio.InvalidWeights("%d weights for %d assets", w.Len(), len(assets))
	}
	if err := w.Validate(bounds); err != nil {
		return nil, err
	}

	rows := make([][]float64, rs.Len())
	for t := range rows {
		rows[t] = rs.Row(t)
	}
	origin := rs.Origin()
	if origin.IsZero() {
		origin = rs.Dates()[0].AddDate(0, 0, -1)
	}
	return &Tester{rs: rs, rows: rows, weights: w, cfg: cfg, origin: origin}, nil
}

// Sample draws the row indices of path p: blocks of BlockSize consecutive
// rows starting at uniform offsets, wrapping at the end of the history.
// Path p always draws from the PCG stream (Seed, p).
func (t *Tester) Sample(p int) []int {
	rng := rand.New(rand.NewPCG(t.cfg.Seed, uint64(p)))
	n := len(t.rows)
	idx := make([]int, 0, t.cfg.Horizon)
	for len(idx) < t.cfg.Horizon {
		start := rng.IntN(n)
		for k := 0; k < t.cfg.BlockSize && len(idx) < t.cfg.Horizon; k++ {
			idx = append(idx, (start+k)%n)
		}
	}
	return idx
}

// Path replays the allocation over resampled path p.
func (t *Tester) Path(p int) (PathResult, error) {
	idx := t.Sample(p)
	assets := t.rs.Assets()
	dates := make([]time.Time, len(idx))
	cols := make([][]float64, len(assets))
	for j := range cols {
		cols[j] = make([]float64, len(idx))
	}
	for i, r := range idx {
		dates[i] = t.origin.AddDate(0, 0, i+1)
		for j := range cols {
			cols[j][i] = t.rows[r][j]
		}
	}
	rs, err := market.NewReturnSeries(assets, dates, cols)
	if err != nil {
		return PathResult{}, err
	}
	prices, err := rs.WithOrigin(t.origin).Prices(1)
	if err != nil {
		return PathResult{}, err
	}

	e, err := backtest.NewEngine(prices, backtest.Config{
		Tickers:        assets,
		Rebalance:      t.cfg.Rebalance,
		CostBps:        t.cfg.CostBps,
		Bounds:         t.cfg.Bounds,
		PeriodsPerYear: t.cfg.PeriodsPerYear,
		RiskFree:       t.cfg.RiskFree,
		Log:            t.cfg.Log,
	})
	if err != nil {
		return PathResult{}, err
	}
	run, err := e.Run(backtest.FixedWeights{Weights: t.weights})
	if err != nil {
		return PathResult{}, err
	}
	return PathResult{
		Index:          p,
		TerminalReturn: run.Stats.TotalReturn,
		Sharpe:         run.Stats.Sharpe,
		MaxDrawdown:    run.Stats.MaxDrawdown,
	}, nil
}

// Run replays every path in order and summarizes them.
func (t *Tester) Run() (*Summary, error) {
	results := make([]PathResult, t.cfg.Paths)
	for p := range results {
		r, err := t.Path(p)
		if err != nil {
			return nil, err
		}
		results[p] = r
	}
	s := Summarize(results)
	s.Horizon = t.cfg.Horizon
	s.BlockSize = t.cfg.BlockSize
	s.Seed = t.cfg.Seed

	t.cfg.Log.WithFields(logrus.Fields{
		"paths":   s.Paths,
		"horizon": s.Horizon,
		"p50":     s.TerminalReturn.P50,
		"p_pos":   s.ProbPositive,
	}).Debug("montecarlo complete")
	return s, nil
}

// Summarize aggregates path results, for callers that ran paths
// themselves.
func Summarize(results []PathResult) *Summary {
	term := make([]float64, len(results))
	sharpe := make([]float64, len(results))
	dd := make([]float64, len(results))
	pos := 0
	for i, r := range results {
		term[i], sharpe[i], dd[i] = r.TerminalReturn, r.Sharpe, r.MaxDrawdown
		if r.TerminalReturn > 0 {
			pos++
		}
	}
	s := &Summary{
		Paths:          len(results),
		TerminalReturn: Describe(term),
		Sharpe:         Describe(sharpe),
		MaxDrawdown:    Describe(dd),
		Results:        results,
	}
	if len(results) > 0 {
		s.ProbPositive = float64(pos) / float64(len(results))
	}
	return s
}

// Run is New followed by Tester.Run.
func Run(rs *market.ReturnSeries, w portfolio.Weights, cfg Config) (*Summary, error) {
	t, err := New(rs, w, cfg)
	if err != nil {
		return nil, err
	}
	return t.Run()
}
