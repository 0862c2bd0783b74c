package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/optimizer"
	"github.com/rustyeddy/allocator/walkforward"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "min_variance", cfg.Optimizer.Method)
	assert.Equal(t, backtest.RebalanceMonthly, cfg.Backtest.Rebalance)
	assert.Equal(t, 0.15, cfg.WalkForward.LowThreshold)
	assert.Equal(t, 0.30, cfg.WalkForward.HighThreshold)
	assert.Nil(t, cfg.Spec().Turnover)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"missing prices", func(c *Config) { c.Data.Prices = "" }, "data.prices is required"},
		{"bad start", func(c *Config) { c.Data.Start = "01/02/2020" }, "data.start"},
		{"start after end", func(c *Config) { c.Data.Start, c.Data.End = "2021-01-01", "2020-01-01" }, "data.start must be before data.end"},
		{"no tickers", func(c *Config) { c.Universe.Tickers = nil }, "universe.tickers is required"},
		{"duplicate ticker", func(c *Config) { c.Universe.Tickers = []string{"SPY", "SPY"} }, "SPY twice"},
		{"bad shrinkage", func(c *Config) { c.Covariance.Shrinkage = "sometimes" }, "unknown shrinkage mode"},
		{"inverted bounds", func(c *Config) { c.Optimizer.MinWeight, c.Optimizer.MaxWeight = 0.5, 0.2 }, "optimizer.min_weight"},
		{"infeasible bounds", func(c *Config) { c.Optimizer.MaxWeight = 0.1 }, "optimizer bounds"},
		{"unknown method", func(c *Config) { c.Optimizer.Method = "kelly" }, "unknown allocation method"},
		{"negative lookback", func(c *Config) { c.Optimizer.Lookback = -1 }, "optimizer.lookback"},
		{"negative cost", func(c *Config) { c.Backtest.CostBps = -1 }, "backtest.cost_bps"},
		{"bad rebalance", func(c *Config) { c.Backtest.Rebalance = "fortnightly" }, "backtest.rebalance"},
		{"integer shares without capital", func(c *Config) {
			c.Backtest.IntegerShares = true
			c.Backtest.InitialCapital = 0
		}, "backtest.initial_capital"},
		{"short train", func(c *Config) { c.WalkForward.TrainPeriods = 2 }, "walkforward.train_periods"},
		{"no test", func(c *Config) { c.WalkForward.TestPeriods = 0 }, "walkforward.test_periods"},
		{"bad mode", func(c *Config) { c.WalkForward.Mode = "expanding" }, "walkforward.mode"},
		{"thresholds inverted", func(c *Config) { c.WalkForward.LowThreshold = 0.5 }, "walkforward thresholds"},
		{"no paths", func(c *Config) { c.MonteCarlo.Paths = 0 }, "montecarlo.paths"},
		{"negative limit", func(c *Config) { c.Limits.MaxVolatility = -0.1 }, "limits"},
		{"no journal", func(c *Config) { c.Journal.DBPath = "" }, "journal.db_path is required"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"allocator.yaml", "allocator.json"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), name)

			cfg := Default()
			cfg.Universe.Tickers = []string{"SPY", "AGG"}
			cfg.Optimizer.Method = string(optimizer.MethodRiskParity)
			cfg.Optimizer.RiskParity.Budgets = map[string]float64{"SPY": 2, "AGG": 1}
			cfg.Optimizer.BlackLitterman.Views = []optimizer.View{
				{Weights: map[string]float64{"SPY": 1, "AGG": -1}, Return: 0.02},
			}
			require.NoError(t, cfg.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg.Universe, got.Universe)
			assert.Equal(t, cfg.Optimizer.RiskParity.Budgets, got.Optimizer.RiskParity.Budgets)
			assert.Equal(t, cfg.Optimizer.BlackLitterman.Views, got.Optimizer.BlackLitterman.Views)
			assert.Equal(t, cfg.WalkForward, got.WalkForward)
		})
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	garbage := filepath.Join(dir, "garbage.yaml")
	require.NoError(t, os.WriteFile(garbage, []byte("data: [unclosed"), 0o644))
	_, err = LoadFromFile(garbage)
	assert.ErrorContains(t, err, "parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("data:\n  prices: p.csv\n"), 0o644))
	_, err = LoadFromFile(invalid)
	assert.ErrorContains(t, err, "invalid config")
}

func TestConverters(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Data.Start = "2020-01-02"
	cfg.Data.End = "2023-12-29"
	cfg.Optimizer.MaxWeight = 0.4
	cfg.Optimizer.Turnover.Cap = 0.5
	cfg.Backtest.CostBps = 10
	cfg.WalkForward.Mode = string(walkforward.Anchored)
	require.NoError(t, cfg.Validate())

	spec := cfg.Spec()
	require.NotNil(t, spec.Turnover)
	assert.Equal(t, 0.5, spec.Turnover.Cap)
	assert.Equal(t, 10.0, spec.Turnover.CostBps)
	assert.Equal(t, 0.4, spec.Bounds.Max)

	bt, err := cfg.BacktestConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), bt.Start)
	assert.Equal(t, time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), bt.End)
	assert.Equal(t, cfg.Universe.Tickers, bt.Tickers)
	assert.Equal(t, "SPY", bt.Benchmark)

	wf, err := cfg.WalkForwardConfig()
	require.NoError(t, err)
	assert.Equal(t, walkforward.Anchored, wf.Mode)
	assert.Equal(t, bt.Start, wf.Start)
	assert.NoError(t, wf.Validate())

	mc := cfg.MonteCarloConfig()
	assert.Equal(t, uint64(42), mc.Seed)
	assert.Equal(t, 10.0, mc.CostBps)
	assert.NoError(t, mc.Validate())
}
