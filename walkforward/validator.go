package walkforward

import (
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/optimizer"
	"github.com/rustyeddy/allocator/portfolio"
	"github.com/rustyeddy/allocator/risk"
)

// Default overfitting thresholds on degradation.
const (
	DefaultLowThreshold  = 0.15
	DefaultHighThreshold = 0.30
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Thresholds split degradation into levels: below Low is low, above High
// is high, anything between is medium.
type Thresholds struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Low: DefaultLowThreshold, High: DefaultHighThreshold}
}

func (t Thresholds) Classify(degradation float64) Level {
	switch {
	case degradation < t.Low:
		return LevelLow
	case degradation > t.High:
		return LevelHigh
	default:
		return LevelMedium
	}
}

type Config struct {
	TrainPeriods int       `json:"train_periods" yaml:"train_periods"`
	TestPeriods  int       `json:"test_periods" yaml:"test_periods"`
	Step         int       `json:"step,omitempty" yaml:"step,omitempty"` // must equal TestPeriods when set
	Mode         Mode      `json:"mode" yaml:"mode"`
	Start        time.Time `json:"start" yaml:"start"` // first test date
	End          time.Time `json:"end" yaml:"end"`

	Spec       optimizer.Spec  `json:"spec" yaml:"spec"`
	Backtest   backtest.Config `json:"backtest" yaml:"backtest"`
	Thresholds Thresholds      `json:"thresholds" yaml:"thresholds"`

	Log logrus.FieldLogger `json:"-" yaml:"-"`
}

func (c Config) mode() Mode {
	if c.Mode == "" {
		return Rolling
	}
	return c.Mode
}

func (c Config) validatePeriods() error {
	if c.TrainPeriods < 4 {
		return portfolio.Configuration("walkforward: train_periods must be at least 4, got %d", c.TrainPeriods)
	}
	if c.TestPeriods < 1 {
		return portfolio.Configuration("walkforward: test_periods must be positive, got %d", c.TestPeriods)
	}
	if c.Step != 0 && c.Step != c.TestPeriods {
		return portfolio.Configuration("walkforward: step %d must equal test_periods %d", c.Step, c.TestPeriods)
	}
	if m := c.mode(); m != Rolling && m != Anchored {
		return portfolio.Configuration("walkforward: unknown mode %q", c.Mode)
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.validatePeriods(); err != nil {
		return err
	}
	t := c.thresholds()
	if t.Low < 0 || t.High < t.Low {
		return portfolio.Configuration("walkforward: thresholds must satisfy 0 <= low <= high, got %v/%v", t.Low, t.High)
	}
	if len(c.Backtest.Tickers) == 0 {
		return portfolio.Configuration("walkforward: at least one ticker is required")
	}
	return c.Spec.Validate()
}

func (c Config) thresholds() Thresholds {
	if c.Thresholds == (Thresholds{}) {
		return DefaultThresholds()
	}
	return c.Thresholds
}

// WindowResult is the record of one window.
type WindowResult struct {
	Window      Window                `json:"window"`
	Weights     portfolio.Weights     `json:"weights"`
	Fit         optimizer.Diagnostics `json:"fit"`
	FitAsOf     time.Time             `json:"fit_as_of"` // last close the fit read
	InSample    backtest.Stats        `json:"in_sample"`
	OutOfSample backtest.Stats        `json:"out_of_sample"`
	Turnover    float64               `json:"turnover"` // at the window's rebalance
}

type Result struct {
	Windows []WindowResult `json:"windows"`

	// OutOfSample is the chain of test segments as one run.
	OutOfSample *backtest.Run `json:"out_of_sample"`
	Drawdown    *risk.Report  `json:"drawdown"`

	InSampleSharpe    float64 `json:"in_sample_sharpe"` // mean over windows
	OutOfSampleSharpe float64 `json:"out_of_sample_sharpe"`
	Degradation       float64 `json:"degradation"`
	Overfitting       Level   `json:"overfitting"`
	Consistency       float64 `json:"consistency"` // share of windows with positive test Sharpe

	Thresholds Thresholds `json:"thresholds"`
}

// Degradation is (in − out)/|in|. With a zero in-sample Sharpe it is 0 when
// out ≥ 0 and 1 otherwise.
func Degradation(in, out float64) float64 {
	if in == 0 {
		if out >= 0 {
			return 0
		}
		return 1
	}
	return (in - out) / math.Abs(in)
}

// Validator runs walk-forward validation with one optimizer.
type Validator struct {
	opt *optimizer.Optimizer
	log logrus.FieldLogger
}

func New(opt *optimizer.Optimizer, log logrus.FieldLogger) *Validator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opt == nil {
		opt = optimizer.New(optimizer.Options{Log: log})
	}
	return &Validator{opt: opt, log: log}
}

// Run walks the windows in order. Each test segment starts from the drifted
// book the previous one ended with and trades at the close of the last train
// date. The fit happens inside the engine at that trade, so it reads closes
// up to the day before.
func (v *Validator) Run(prices *market.PriceHistory, cfg Config) (*Result, error) {
	if prices == nil {
		return nil, portfolio.DataInsufficient("nil price history")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = v.log
	}
	bt := cfg.Backtest
	bt.Log = log
	bt.Start, bt.End = time.Time{}, time.Time{}

	sel, err := prices.Select(bt.Tickers...)
	if err != nil {
		return nil, portfolio.DataInsufficient("%v", err)
	}
	windows, err := Windows(sel.Dates(), cfg)
	if err != nil {
		return nil, err
	}

	lookback := cfg.TrainPeriods - 1
	if cfg.mode() == Anchored {
		lookback = 0
	}

	res := &Result{Thresholds: cfg.thresholds()}
	oos := &backtest.Run{
		Policy:     "walkforward/" + v.policyName(cfg.Spec),
		Config:     bt,
		Assets:     sel.Assets(),
		Dates:      []time.Time{sel.Date(windows[0].TestLo - 1)},
		Equity:     []float64{1},
		Returns:    []float64{},
		Rebalances: []backtest.Rebalance{},
	}
	if bt.Benchmark != "" {
		oos.BenchmarkEquity = []float64{1}
		oos.BenchmarkReturns = []float64{}
	}

	var held portfolio.Weights
	var inSharpes []float64
	positive := 0
	for _, w := range windows {
		fit := &fitOnce{opt: v.opt, spec: cfg.Spec, lookback: lookback, window: w.Index, log: log}

		testCfg := bt
		testCfg.Start, testCfg.End = sel.Date(w.TestLo-1), sel.Date(w.TestHi)
		testCfg.InitialWeights = held
		test, err := simulate(prices, testCfg, fit)
		if err != nil {
			return nil, err
		}
		pf := fit.pf
		policy := backtest.FixedWeights{Weights: pf.Weights}

		trainCfg := bt
		trainCfg.Start, trainCfg.End = sel.Date(w.TrainLo), sel.Date(w.TrainHi)
		trainCfg.InitialWeights = portfolio.Weights{}
		train, err := simulate(prices, trainCfg, policy)
		if err != nil {
			return nil, err
		}

		held = portfolio.NewWeights(test.Assets, test.Weights)
		inSharpes = append(inSharpes, train.Stats.Sharpe)
		if test.Stats.Sharpe > 0 {
			positive++
		}
		appendSegment(oos, test)

		res.Windows = append(res.Windows, WindowResult{
			Window:      w,
			Weights:     pf.Weights,
			Fit:         pf.Diagnostics,
			FitAsOf:     fit.asOf,
			InSample:    train.Stats,
			OutOfSample: test.Stats,
			Turnover:    test.Rebalances[0].Turnover,
		})
		log.WithFields(logrus.Fields{
			"window":     w.Index,
			"test_start": w.TestStart.Format(market.DateLayout),
			"is_sharpe":  train.Stats.Sharpe,
			"oos_sharpe": test.Stats.Sharpe,
		}).Debug("window done")
	}

	oos.Weights = held.Values
	oos.Stats = backtest.Summarize(oos, ppy(bt), bt.RiskFree)
	res.OutOfSample = oos
	res.Drawdown, err = risk.Analyze(oos.Dates, oos.Equity)
	if err != nil {
		return nil, err
	}

	res.OutOfSampleSharpe = oos.Stats.Sharpe
	res.InSampleSharpe = stat.Mean(inSharpes, nil)
	res.Degradation = Degradation(res.InSampleSharpe, res.OutOfSampleSharpe)
	res.Overfitting = res.Thresholds.Classify(res.Degradation)
	res.Consistency = float64(positive) / float64(len(windows))

	log.WithFields(logrus.Fields{
		"windows":     len(windows),
		"is_sharpe":   res.InSampleSharpe,
		"oos_sharpe":  res.OutOfSampleSharpe,
		"degradation": res.Degradation,
		"overfitting": res.Overfitting,
	}).Info("walkforward complete")
	return res, nil
}

func (v *Validator) policyName(s optimizer.Spec) string {
	if s.Method == "" {
		return string(optimizer.MethodMinVariance)
	}
	return string(s.Method)
}

// fitOnce fits at the first rebalance of a test segment from the engine's
// view and holds those targets for the rest of the segment.
type fitOnce struct {
	opt      *optimizer.Optimizer
	spec     optimizer.Spec
	lookback int
	window   int
	log      logrus.FieldLogger

	pf   *optimizer.Portfolio
	asOf time.Time
}

func (f *fitOnce) Name() string { return "walkforward" }

func (f *fitOnce) Target(ctx *backtest.Context) (portfolio.Weights, error) {
	if f.pf != nil {
		return f.pf.Weights, nil
	}
	rs, err := ctx.View.Returns(f.lookback)
	if err != nil {
		return portfolio.Weights{}, err
	}
	var prior []float64
	if ctx.Current.Sum() > 0 {
		prior = ctx.Current.Align(rs.Assets())
	}
	pf, err := f.opt.Allocate(rs, f.spec, prior)
	var ce *portfolio.ConvergenceError
	if errors.As(err, &ce) && pf != nil {
		f.log.WithFields(logrus.Fields{"window": f.window, "iterations": ce.Iterations}).Warn("fit did not converge, using best iterate")
		err = nil
	}
	if err != nil {
		return portfolio.Weights{}, err
	}
	f.pf = pf
	f.asOf = ctx.View.AsOf()
	return pf.Weights, nil
}

func simulate(prices *market.PriceHistory, cfg backtest.Config, p backtest.Policy) (*backtest.Run, error) {
	e, err := backtest.NewEngine(prices, cfg)
	if err != nil {
		return nil, err
	}
	return e.Run(p)
}

// appendSegment chains seg onto run. seg starts on run's last date.
func appendSegment(run, seg *backtest.Run) {
	base := run.Equity[len(run.Equity)-1]
	for i := 1; i < len(seg.Dates); i++ {
		run.Dates = append(run.Dates, seg.Dates[i])
		run.Equity = append(run.Equity, base*seg.Equity[i])
	}
	run.Returns = append(run.Returns, seg.Returns...)
	run.Rebalances = append(run.Rebalances, seg.Rebalances...)

	if run.BenchmarkEquity != nil && seg.BenchmarkEquity != nil {
		b := run.BenchmarkEquity[len(run.BenchmarkEquity)-1]
		for i := 1; i < len(seg.BenchmarkEquity); i++ {
			run.BenchmarkEquity = append(run.BenchmarkEquity, b*seg.BenchmarkEquity[i])
		}
		run.BenchmarkReturns = append(run.BenchmarkReturns, seg.BenchmarkReturns...)
	}
}

func ppy(c backtest.Config) float64 {
	if c.PeriodsPerYear > 0 {
		return c.PeriodsPerYear
	}
	return backtest.DefaultPeriodsPerYear
}
