package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/allocator/portfolio"
)

func days(n int) []time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	equity := []float64{1.0, 1.1, 0.99, 0.88, 1.0, 1.1, 1.2, 1.08, 1.14}
	d := days(len(equity))
	r, err := Analyze(d, equity)
	require.NoError(t, err)

	require.Len(t, r.Events, 2)

	first := r.Events[0]
	assert.Equal(t, d[1], first.Peak)
	assert.Equal(t, d[3], first.Trough)
	require.NotNil(t, first.Recovery)
	assert.Equal(t, d[5], *first.Recovery)
	assert.InDelta(t, 0.88/1.1-1, first.Depth, 1e-12)
	assert.Equal(t, 4, first.Duration)
	assert.True(t, first.Recovered())

	second := r.Events[1]
	assert.Equal(t, d[6], second.Peak)
	assert.Equal(t, d[7], second.Trough)
	assert.Nil(t, second.Recovery)
	assert.InDelta(t, 1.08/1.2-1, second.Depth, 1e-12)
	assert.Equal(t, 2, second.Duration)

	assert.InDelta(t, first.Depth, r.MaxDrawdown, 1e-12)
	assert.InDelta(t, (first.Depth+second.Depth)/2, r.AverageDrawdown, 1e-12)
	assert.Equal(t, 4, r.LongestDuration)
	assert.InDelta(t, 1.14/1.2-1, r.Current, 1e-12)

	for i, u := range r.Underwater {
		assert.LessOrEqual(t, u, 0.0, "underwater %d", i)
	}
	for _, e := range r.Events {
		assert.LessOrEqual(t, e.Depth, 0.0)
		assert.GreaterOrEqual(t, e.Depth, r.MaxDrawdown)
	}
	assert.InDelta(t, r.MaxDrawdown, MaxDrawdown(equity), 1e-12)
}

func TestAnalyzeMonotoneCurve(t *testing.T) {
	t.Parallel()

	equity := []float64{1, 1, 1.01, 1.02}
	r, err := Analyze(days(4), equity)
	require.NoError(t, err)
	assert.Empty(t, r.Events)
	assert.Zero(t, r.MaxDrawdown)
	assert.Zero(t, r.AverageDrawdown)
	assert.Zero(t, MaxDrawdown(equity))
}

func TestAnalyzeRecoveryAtEqualPeak(t *testing.T) {
	t.Parallel()

	r, err := Analyze(days(3), []float64{1, 0.9, 1})
	require.NoError(t, err)
	require.Len(t, r.Events, 1)
	assert.NotNil(t, r.Events[0].Recovery)
	assert.Equal(t, 2, r.Events[0].Duration)
}

func TestAnalyzeErrors(t *testing.T) {
	t.Parallel()

	_, err := Analyze(nil, nil)
	assert.ErrorIs(t, err, portfolio.ErrDataInsufficient)

	_, err = Analyze(days(2), []float64{1})
	assert.Error(t, err)

	_, err = Analyze(days(2), []float64{1, 0})
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		l     Limits
		m     Metrics
		codes []string
	}{
		{
			name: "no limits",
			m:    Metrics{MaxDrawdown: -0.5, Volatility: 0.4},
		},
		{
			name:  "drawdown",
			l:     Limits{MaxDrawdown: 0.2},
			m:     Metrics{MaxDrawdown: -0.25},
			codes: []string{"DRAWDOWN_TOO_DEEP"},
		},
		{
			name: "within limits",
			l:    Limits{MaxDrawdown: 0.2, MaxVolatility: 0.15, MinSharpe: 0.5},
			m:    Metrics{MaxDrawdown: -0.1, Volatility: 0.1, Sharpe: 0.8},
		},
		{
			name:  "several",
			l:     Limits{MaxVolatility: 0.1, MinSharpe: 1, MaxTurnover: 2, MaxUnderwater: 100},
			m:     Metrics{Volatility: 0.2, Sharpe: 0.3, AnnualTurnover: 3, LongestDuration: 150},
			codes: []string{"VOLATILITY_TOO_HIGH", "SHARPE_TOO_LOW", "TURNOVER_TOO_HIGH", "UNDERWATER_TOO_LONG"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(tt.l, tt.m)
			assert.Equal(t, len(tt.codes) == 0, d.Allowed)
			var got []string
			for _, v := range d.Violations {
				got = append(got, v.Code)
				assert.NotEmpty(t, v.Msg)
			}
			assert.Equal(t, tt.codes, got)
		})
	}
}

func TestLimitsValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Limits{}.Validate())
	assert.NoError(t, Limits{MaxDrawdown: 0.3}.Validate())
	assert.Error(t, Limits{MaxDrawdown: 1.5}.Validate())
	assert.Error(t, Limits{MaxVolatility: -1}.Validate())
}
