package backtest

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/allocator/risk"
)

type Stats struct {
	Periods     int     `json:"periods"`
	TotalReturn float64 `json:"total_return"`
	CAGR        float64 `json:"cagr"`
	Volatility  float64 `json:"volatility"` // annualized
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"` // ≤ 0

	Rebalances     int     `json:"rebalances"`
	TotalTurnover  float64 `json:"total_turnover"`
	AnnualTurnover float64 `json:"annual_turnover"` // excludes the initial allocation
	TotalCost      float64 `json:"total_cost"`

	LongestDrawdown int `json:"longest_drawdown"` // periods

	// Nil without a benchmark.
	Benchmark *BenchmarkStats `json:"benchmark,omitempty"`
}

type BenchmarkStats struct {
	TotalReturn      float64 `json:"total_return"`
	CAGR             float64 `json:"cagr"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Beta             float64 `json:"beta"`
	Alpha            float64 `json:"alpha"` // annualized
	Correlation      float64 `json:"correlation"`
	TrackingError    float64 `json:"tracking_error"`
	InformationRatio float64 `json:"information_ratio"`
}

// Metrics picks out what risk limits are checked against.
func (s Stats) Metrics() risk.Metrics {
	return risk.Metrics{
		MaxDrawdown:     s.MaxDrawdown,
		Volatility:      s.Volatility,
		Sharpe:          s.Sharpe,
		AnnualTurnover:  s.AnnualTurnover,
		LongestDuration: s.LongestDrawdown,
	}
}

// Summarize computes run statistics. riskFree is an annual rate.
func Summarize(run *Run, periodsPerYear, riskFree float64) Stats {
	s := Stats{
		Periods:     len(run.Returns),
		TotalReturn: totalReturn(run.Equity),
		CAGR:        CAGR(run.Dates, run.Equity),
		Volatility:  Volatility(run.Returns, periodsPerYear),
		Sharpe:      Sharpe(run.Returns, periodsPerYear, riskFree),
		Sortino:     Sortino(run.Returns, periodsPerYear, riskFree),
		MaxDrawdown: risk.MaxDrawdown(run.Equity),
		Rebalances:  len(run.Rebalances),
	}
	if rep, err := risk.Analyze(run.Dates, run.Equity); err == nil {
		s.LongestDrawdown = rep.LongestDuration
	}

	ongoing := 0.0
	for i, r := range run.Rebalances {
		s.TotalTurnover += r.Turnover
		s.TotalCost += r.Cost
		if i > 0 {
			ongoing += r.Turnover
		}
	}
	if y := years(run.Dates); y > 0 {
		s.AnnualTurnover = ongoing / y
	}

	if run.BenchmarkEquity != nil {
		s.Benchmark = benchmarkStats(run, periodsPerYear, riskFree)
	}
	return s
}

func benchmarkStats(run *Run, ppy, rf float64) *BenchmarkStats {
	r, b := run.Returns, run.BenchmarkReturns
	bs := &BenchmarkStats{
		TotalReturn: totalReturn(run.BenchmarkEquity),
		CAGR:        CAGR(run.Dates, run.BenchmarkEquity),
		Volatility:  Volatility(b, ppy),
		Sharpe:      Sharpe(b, ppy, rf),
		MaxDrawdown: risk.MaxDrawdown(run.BenchmarkEquity),
	}
	if len(r) < 2 || len(r) != len(b) {
		return bs
	}
	if vb := stat.Variance(b, nil); vb > 0 {
		bs.Beta = stat.Covariance(r, b, nil) / vb
	}
	bs.Alpha = (stat.Mean(r, nil) - bs.Beta*stat.Mean(b, nil)) * ppy
	if sr, sb := stat.StdDev(r, nil), stat.StdDev(b, nil); sr > 0 && sb > 0 {
		bs.Correlation = stat.Correlation(r, b, nil)
	}

	active := make([]float64, len(r))
	floats.SubTo(active, r, b)
	if te := stat.StdDev(active, nil); te > 0 {
		bs.TrackingError = te * math.Sqrt(ppy)
		bs.InformationRatio = stat.Mean(active, nil) * ppy / bs.TrackingError
	}
	return bs
}

func totalReturn(equity []float64) float64 {
	if len(equity) == 0 || equity[0] == 0 {
		return 0
	}
	return equity[len(equity)-1]/equity[0] - 1
}

func years(dates []time.Time) float64 {
	if len(dates) < 2 {
		return 0
	}
	return dates[len(dates)-1].Sub(dates[0]).Hours() / 24 / 365.25
}

// CAGR annualizes the growth of equity over calendar time.
func CAGR(dates []time.Time, equity []float64) float64 {
	y := years(dates)
	if y <= 0 || len(equity) < 2 || equity[0] <= 0 {
		return 0
	}
	g := equity[len(equity)-1] / equity[0]
	if g <= 0 {
		return -1
	}
	return math.Pow(g, 1/y) - 1
}

// Volatility is the annualized sample standard deviation of returns.
func Volatility(returns []float64, ppy float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(ppy)
}

// Sharpe is the annualized mean excess return over its standard deviation.
// It is 0 when returns do not vary.
func Sharpe(returns []float64, ppy, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stat.StdDev(returns, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return (stat.Mean(returns, nil) - riskFree/ppy) / sd * math.Sqrt(ppy)
}

// Sortino divides by downside deviation below the per-period risk-free rate.
func Sortino(returns []float64, ppy, riskFree float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	rf := riskFree / ppy
	dd := 0.0
	for _, r := range returns {
		if x := r - rf; x < 0 {
			dd += x * x
		}
	}
	dd = math.Sqrt(dd / float64(len(returns)))
	if dd == 0 {
		return 0
	}
	return (stat.Mean(returns, nil) - rf) / dd * math.Sqrt(ppy)
}
