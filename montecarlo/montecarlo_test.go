package montecarlo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/portfolio"
)

func series(t *testing.T, cols ...[]float64) *market.ReturnSeries {
	t.Helper()
	assets := []string{"A", "B", "C"}[:len(cols)]
	d := make([]time.Time, len(cols[0]))
	for i := range d {
		d[i] = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	rs, err := market.NewReturnSeries(assets, d, cols)
	require.NoError(t, err)
	return rs
}

func noisy(n int, scale, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = scale*math.Sin(1.7*float64(i)+phase) + 0.0005
	}
	return out
}

func TestSameSeedIsReproducible(t *testing.T) {
	t.Parallel()

	rs := series(t, noisy(120, 0.02, 0), noisy(120, 0.01, 1))
	w := portfolio.NewWeights([]string{"A", "B"}, []float64{0.6, 0.4})
	cfg := Config{Paths: 50, BlockSize: 5, Seed: 42, Rebalance: "monthly", CostBps: 2}

	a, err := Run(rs, w, cfg)
	require.NoError(t, err)
	b, err := Run(rs, w, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 50, a.Paths)
	assert.Equal(t, 120, a.Horizon)

	cfg.Seed = 43
	c, err := Run(rs, w, cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a.TerminalReturn, c.TerminalReturn)
}

func TestPathIsIndependentOfOrder(t *testing.T) {
	t.Parallel()

	rs := series(t, noisy(60, 0.02, 0), noisy(60, 0.01, 1))
	tester, err := New(rs, portfolio.Equal([]string{"A", "B"}), Config{Paths: 10, Seed: 7})
	require.NoError(t, err)

	late, err := tester.Path(9)
	require.NoError(t, err)
	sum, err := tester.Run()
	require.NoError(t, err)
	assert.Equal(t, late, sum.Results[9])
}

func TestSampleBlocks(t *testing.T) {
	t.Parallel()

	rs := series(t, noisy(20, 0.01, 0))
	tester, err := New(rs, portfolio.Equal([]string{"A"}), Config{Horizon: 33, BlockSize: 4, Seed: 1})
	require.NoError(t, err)

	idx := tester.Sample(3)
	require.Len(t, idx, 33)
	for b := 0; b+4 <= len(idx); b += 4 {
		for k := 1; k < 4; k++ {
			assert.Equal(t, (idx[b]+k)%20, idx[b+k])
		}
	}
	for _, i := range idx {
		assert.True(t, i >= 0 && i < 20)
	}
	assert.Equal(t, idx, tester.Sample(3))
}

func TestConstantReturnsHaveNoSpread(t *testing.T) {
	t.Parallel()

	r := make([]float64, 30)
	for i := range r {
		r[i] = 0.001
	}
	rs := series(t, r, append([]float64(nil), r...))
	s, err := Run(rs, portfolio.Equal([]string{"A", "B"}), Config{Paths: 20, Seed: 3})
	require.NoError(t, err)

	want := math.Pow(1.001, 30) - 1
	assert.InDelta(t, want, s.TerminalReturn.Mean, 1e-12)
	assert.InDelta(t, want, s.TerminalReturn.Min, 1e-12)
	assert.InDelta(t, want, s.TerminalReturn.Max, 1e-12)
	assert.InDelta(t, 0, s.TerminalReturn.Std, 1e-12)
	assert.Equal(t, 1.0, s.ProbPositive)
	assert.Zero(t, s.MaxDrawdown.Min)
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	rs := series(t, noisy(30, 0.01, 0), noisy(30, 0.01, 1))

	_, err := New(rs, portfolio.NewWeights(nil, []float64{0.9, 0.9}), Config{})
	assert.ErrorIs(t, err, portfolio.ErrInvalidWeights)

	_, err = New(rs, portfolio.NewWeights(nil, []float64{1}), Config{})
	assert.ErrorIs(t, err, portfolio.ErrInvalidWeights)

	_, err = New(series(t, []float64{0.01}), portfolio.Equal([]string{"A"}), Config{})
	assert.ErrorIs(t, err, portfolio.ErrDataInsufficient)

	_, err = New(rs, portfolio.Equal([]string{"A", "B"}), Config{BlockSize: -1})
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)

	_, err = New(rs, portfolio.Equal([]string{"A", "B"}), Config{Paths: -3})
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	xs := make([]float64, 20)
	for i := range xs {
		xs[19-i] = float64(i + 1)
	}
	d := Describe(xs)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 20.0, d.Max)
	assert.InDelta(t, 10.5, d.Mean, 1e-12)
	assert.Equal(t, 10.0, d.P50)
	assert.True(t, d.P5 <= d.P25 && d.P25 <= d.P50 && d.P50 <= d.P75 && d.P75 <= d.P95)
	assert.Equal(t, 20.0, xs[0], "input left unsorted")

	assert.Equal(t, Distribution{}, Describe(nil))
}
