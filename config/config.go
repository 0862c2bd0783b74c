package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/covariance"
	"github.com/rustyeddy/allocator/internal/logging"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/montecarlo"
	"github.com/rustyeddy/allocator/optimizer"
	"github.com/rustyeddy/allocator/portfolio"
	"github.com/rustyeddy/allocator/risk"
	"github.com/rustyeddy/allocator/walkforward"
)

// Config represents a complete allocator run configuration
type Config struct {
	Data        DataConfig        `json:"data" yaml:"data"`
	Universe    UniverseConfig    `json:"universe" yaml:"universe"`
	Covariance  CovarianceConfig  `json:"covariance" yaml:"covariance"`
	Optimizer   OptimizerConfig   `json:"optimizer" yaml:"optimizer"`
	Backtest    BacktestConfig    `json:"backtest" yaml:"backtest"`
	WalkForward WalkForwardConfig `json:"walkforward" yaml:"walkforward"`
	MonteCarlo  MonteCarloConfig  `json:"montecarlo" yaml:"montecarlo"`
	Limits      risk.Limits       `json:"limits" yaml:"limits"`
	Journal     JournalConfig     `json:"journal" yaml:"journal"`
	Log         logging.Config    `json:"log" yaml:"log"`
}

// DataConfig points at the price file and the period to simulate
type DataConfig struct {
	Prices string `json:"prices" yaml:"prices"`
	Start  string `json:"start,omitempty" yaml:"start,omitempty"` // YYYY-MM-DD
	End    string `json:"end,omitempty" yaml:"end,omitempty"`
}

type UniverseConfig struct {
	Tickers   []string `json:"tickers" yaml:"tickers"`
	Benchmark string   `json:"benchmark,omitempty" yaml:"benchmark,omitempty"`
}

type CovarianceConfig struct {
	Shrinkage      string  `json:"shrinkage" yaml:"shrinkage"` // auto, always, never
	Target         string  `json:"target" yaml:"target"`       // identity, constant_correlation
	PeriodsPerYear float64 `json:"periods_per_year" yaml:"periods_per_year"`
	MinObsRatio    float64 `json:"min_obs_ratio" yaml:"min_obs_ratio"`
}

type OptimizerConfig struct {
	Method       string  `json:"method" yaml:"method"`
	MinWeight    float64 `json:"min_weight" yaml:"min_weight"`
	MaxWeight    float64 `json:"max_weight" yaml:"max_weight"`
	TargetReturn float64 `json:"target_return,omitempty" yaml:"target_return,omitempty"`
	RiskAversion float64 `json:"risk_aversion,omitempty" yaml:"risk_aversion,omitempty"`

	// Lookback is the number of return periods each fit uses; 0 is all.
	Lookback       int `json:"lookback" yaml:"lookback"`
	FrontierPoints int `json:"frontier_points" yaml:"frontier_points"`

	MaxIter   int     `json:"max_iter,omitempty" yaml:"max_iter,omitempty"`
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`

	Turnover       TurnoverConfig       `json:"turnover" yaml:"turnover"`
	RiskParity     RiskParityConfig     `json:"risk_parity" yaml:"risk_parity"`
	BlackLitterman BlackLittermanConfig `json:"black_litterman" yaml:"black_litterman"`
}

// TurnoverConfig enables the cost-aware variant when either field is set.
// The cost rate is backtest.cost_bps.
type TurnoverConfig struct {
	Penalty float64 `json:"penalty" yaml:"penalty"`
	Cap     float64 `json:"cap" yaml:"cap"`
}

type RiskParityConfig struct {
	Budgets   map[string]float64 `json:"budgets,omitempty" yaml:"budgets,omitempty"`
	Tolerance float64            `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	MaxIter   int                `json:"max_iter,omitempty" yaml:"max_iter,omitempty"`
}

type BlackLittermanConfig struct {
	Tau   float64          `json:"tau,omitempty" yaml:"tau,omitempty"`
	Views []optimizer.View `json:"views,omitempty" yaml:"views,omitempty"`
}

type BacktestConfig struct {
	Rebalance      string  `json:"rebalance" yaml:"rebalance"`
	CostBps        float64 `json:"cost_bps" yaml:"cost_bps"`
	IntegerShares  bool    `json:"integer_shares" yaml:"integer_shares"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	RiskFree       float64 `json:"risk_free" yaml:"risk_free"`
}

type WalkForwardConfig struct {
	TrainPeriods  int     `json:"train_periods" yaml:"train_periods"`
	TestPeriods   int     `json:"test_periods" yaml:"test_periods"`
	Mode          string  `json:"mode" yaml:"mode"`
	LowThreshold  float64 `json:"low_threshold" yaml:"low_threshold"`
	HighThreshold float64 `json:"high_threshold" yaml:"high_threshold"`
}

type MonteCarloConfig struct {
	Paths     int    `json:"paths" yaml:"paths"`
	Horizon   int    `json:"horizon" yaml:"horizon"`
	BlockSize int    `json:"block_size" yaml:"block_size"`
	Seed      uint64 `json:"seed" yaml:"seed"`
}

// JournalConfig contains run-history parameters
type JournalConfig struct {
	DBPath    string `json:"db_path" yaml:"db_path"`
	ReportDir string `json:"report_dir" yaml:"report_dir"`
}

// LoadFromFile loads configuration from a file (YAML first, then JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = &Config{}
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", jerr)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML for .yaml/.yml paths and JSON
// otherwise
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration. Errors name the offending field.
func (c *Config) Validate() error {
	if c.Data.Prices == "" {
		return fmt.Errorf("data.prices is required")
	}
	start, end, err := c.Period()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return fmt.Errorf("data.start must be before data.end")
	}

	if len(c.Universe.Tickers) == 0 {
		return fmt.Errorf("universe.tickers is required")
	}
	seen := map[string]bool{}
	for _, t := range c.Universe.Tickers {
		if t == "" {
			return fmt.Errorf("universe.tickers contains an empty ticker")
		}
		if seen[t] {
			return fmt.Errorf("universe.tickers contains %s twice", t)
		}
		seen[t] = true
	}

	if err := c.CovarianceOptions().Validate(); err != nil {
		return fmt.Errorf("covariance: %w", err)
	}

	if c.Optimizer.MinWeight > c.Optimizer.MaxWeight {
		return fmt.Errorf("optimizer.min_weight must not exceed optimizer.max_weight")
	}
	if err := c.Bounds().Feasible(len(c.Universe.Tickers)); err != nil {
		return fmt.Errorf("optimizer bounds: %w", err)
	}
	if err := c.Spec().Validate(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if c.Optimizer.Lookback < 0 {
		return fmt.Errorf("optimizer.lookback must not be negative")
	}
	if c.Optimizer.FrontierPoints < 0 {
		return fmt.Errorf("optimizer.frontier_points must not be negative")
	}

	if c.Backtest.CostBps < 0 {
		return fmt.Errorf("backtest.cost_bps must not be negative")
	}
	if _, err := backtest.ParseSchedule(c.Backtest.Rebalance); err != nil {
		return fmt.Errorf("backtest.rebalance: %w", err)
	}
	if c.Backtest.IntegerShares && c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be positive with integer_shares")
	}

	wf := c.WalkForward
	if wf.TrainPeriods < 4 {
		return fmt.Errorf("walkforward.train_periods must be at least 4")
	}
	if wf.TestPeriods < 1 {
		return fmt.Errorf("walkforward.test_periods must be positive")
	}
	if wf.Mode != "" && wf.Mode != string(walkforward.Rolling) && wf.Mode != string(walkforward.Anchored) {
		return fmt.Errorf("walkforward.mode must be 'rolling' or 'anchored'")
	}
	if wf.LowThreshold < 0 || wf.HighThreshold < wf.LowThreshold {
		return fmt.Errorf("walkforward thresholds must satisfy 0 <= low_threshold <= high_threshold")
	}

	if err := c.MonteCarloConfig().Validate(); err != nil {
		return err
	}
	if c.MonteCarlo.Paths <= 0 {
		return fmt.Errorf("montecarlo.paths must be positive")
	}

	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required")
	}
	return c.Log.Validate()
}

// Period parses data.start and data.end. Empty values are zero times.
func (c *Config) Period() (start, end time.Time, err error) {
	if c.Data.Start != "" {
		if start, err = time.Parse(market.DateLayout, c.Data.Start); err != nil {
			return start, end, fmt.Errorf("data.start: %w", err)
		}
	}
	if c.Data.End != "" {
		if end, err = time.Parse(market.DateLayout, c.Data.End); err != nil {
			return start, end, fmt.Errorf("data.end: %w", err)
		}
	}
	return start, end, nil
}

func (c *Config) Bounds() portfolio.Bounds {
	return portfolio.Bounds{Min: c.Optimizer.MinWeight, Max: c.Optimizer.MaxWeight}
}

func (c *Config) CovarianceOptions() covariance.Options {
	return covariance.Options{
		PeriodsPerYear: c.Covariance.PeriodsPerYear,
		Shrinkage:      covariance.Mode(c.Covariance.Shrinkage),
		Target:         covariance.Target(c.Covariance.Target),
		MinObsRatio:    c.Covariance.MinObsRatio,
	}
}

func (c *Config) OptimizerOptions() optimizer.Options {
	return optimizer.Options{
		MaxIter:             c.Optimizer.MaxIter,
		Tolerance:           c.Optimizer.Tolerance,
		RiskParityTolerance: c.Optimizer.RiskParity.Tolerance,
		RiskParityMaxIter:   c.Optimizer.RiskParity.MaxIter,
	}
}

// Spec is the allocation request every command fits with.
func (c *Config) Spec() optimizer.Spec {
	s := optimizer.Spec{
		Method:       optimizer.Method(c.Optimizer.Method),
		Covariance:   c.CovarianceOptions(),
		Bounds:       c.Bounds(),
		TargetReturn: c.Optimizer.TargetReturn,
		RiskAversion: c.Optimizer.RiskAversion,
		Budgets:      c.Optimizer.RiskParity.Budgets,
		Views:        c.Optimizer.BlackLitterman.Views,
		Tau:          c.Optimizer.BlackLitterman.Tau,
	}
	if t := c.Optimizer.Turnover; t.Penalty > 0 || t.Cap > 0 {
		s.Turnover = &optimizer.TurnoverSpec{
			Penalty: t.Penalty,
			Cap:     t.Cap,
			CostBps: c.Backtest.CostBps,
		}
	}
	return s
}

func (c *Config) BacktestConfig() (backtest.Config, error) {
	start, end, err := c.Period()
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		Tickers:        append([]string(nil), c.Universe.Tickers...),
		Benchmark:      c.Universe.Benchmark,
		Start:          start,
		End:            end,
		Rebalance:      c.Backtest.Rebalance,
		CostBps:        c.Backtest.CostBps,
		IntegerShares:  c.Backtest.IntegerShares,
		InitialCapital: c.Backtest.InitialCapital,
		Bounds:         c.Bounds(),
		PeriodsPerYear: c.Covariance.PeriodsPerYear,
		RiskFree:       c.Backtest.RiskFree,
	}, nil
}

func (c *Config) WalkForwardConfig() (walkforward.Config, error) {
	bt, err := c.BacktestConfig()
	if err != nil {
		return walkforward.Config{}, err
	}
	return walkforward.Config{
		TrainPeriods: c.WalkForward.TrainPeriods,
		TestPeriods:  c.WalkForward.TestPeriods,
		Mode:         walkforward.Mode(c.WalkForward.Mode),
		Start:        bt.Start,
		End:          bt.End,
		Spec:         c.Spec(),
		Backtest:     bt,
		Thresholds: walkforward.Thresholds{
			Low:  c.WalkForward.LowThreshold,
			High: c.WalkForward.HighThreshold,
		},
	}, nil
}

func (c *Config) MonteCarloConfig() montecarlo.Config {
	return montecarlo.Config{
		Paths:          c.MonteCarlo.Paths,
		Horizon:        c.MonteCarlo.Horizon,
		BlockSize:      c.MonteCarlo.BlockSize,
		Seed:           c.MonteCarlo.Seed,
		Rebalance:      c.Backtest.Rebalance,
		CostBps:        c.Backtest.CostBps,
		Bounds:         c.Bounds(),
		PeriodsPerYear: c.Covariance.PeriodsPerYear,
		RiskFree:       c.Backtest.RiskFree,
	}
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Prices: "./data/prices.csv",
		},
		Universe: UniverseConfig{
			Tickers:   []string{"SPY", "EFA", "AGG", "GLD"},
			Benchmark: "SPY",
		},
		Covariance: CovarianceConfig{
			Shrinkage:      string(covariance.ShrinkAuto),
			Target:         string(covariance.TargetIdentity),
			PeriodsPerYear: covariance.DefaultPeriodsPerYear,
			MinObsRatio:    covariance.DefaultMinObsRatio,
		},
		Optimizer: OptimizerConfig{
			Method:         string(optimizer.MethodMinVariance),
			MinWeight:      0,
			MaxWeight:      1,
			RiskAversion:   1,
			Lookback:       252,
			FrontierPoints: 20,
			BlackLitterman: BlackLittermanConfig{Tau: optimizer.DefaultTau},
		},
		Backtest: BacktestConfig{
			Rebalance:      backtest.RebalanceMonthly,
			CostBps:        5,
			InitialCapital: 100000,
		},
		WalkForward: WalkForwardConfig{
			TrainPeriods:  504,
			TestPeriods:   63,
			Mode:          string(walkforward.Rolling),
			LowThreshold:  walkforward.DefaultLowThreshold,
			HighThreshold: walkforward.DefaultHighThreshold,
		},
		MonteCarlo: MonteCarloConfig{
			Paths:     1000,
			BlockSize: 20,
			Seed:      42,
		},
		Journal: JournalConfig{
			DBPath:    "./allocator.db",
			ReportDir: "./reports",
		},
		Log: logging.Default(),
	}
}
