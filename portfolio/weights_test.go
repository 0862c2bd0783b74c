package portfolio

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		w       Weights
		bounds  Bounds
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid long only",
			w:      NewWeights([]string{"SPY", "AGG"}, []float64{0.6, 0.4}),
			bounds: LongOnly(),
		},
		{
			name:   "sum within tolerance",
			w:      NewWeights([]string{"SPY", "AGG"}, []float64{0.6, 0.4 + 5e-7}),
			bounds: LongOnly(),
		},
		{
			name:    "sum off",
			w:       NewWeights([]string{"SPY", "AGG"}, []float64{0.6, 0.5}),
			bounds:  LongOnly(),
			wantErr: true,
			errMsg:  "sum to",
		},
		{
			name:    "below min",
			w:       NewWeights([]string{"SPY", "AGG"}, []float64{1.2, -0.2}),
			bounds:  LongOnly(),
			wantErr: true,
			errMsg:  "AGG",
		},
		{
			name:   "short allowed by bounds",
			w:      NewWeights([]string{"SPY", "AGG"}, []float64{1.2, -0.2}),
			bounds: Bounds{Min: -0.5, Max: 1.5},
		},
		{
			name:    "empty",
			w:       Weights{},
			bounds:  LongOnly(),
			wantErr: true,
			errMsg:  "empty",
		},
		{
			name:    "length mismatch",
			w:       Weights{Assets: []string{"SPY"}, Values: []float64{0.5, 0.5}},
			bounds:  LongOnly(),
			wantErr: true,
			errMsg:  "1 assets but 2 weights",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.w.Validate(tt.bounds)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidWeights)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBoundsFeasible(t *testing.T) {
	t.Parallel()

	assert.NoError(t, LongOnly().Feasible(3))
	assert.NoError(t, Bounds{Min: 0.2, Max: 0.4}.Feasible(3))
	assert.ErrorIs(t, Bounds{Min: 0.4, Max: 0.5}.Feasible(3), ErrInfeasible)
	assert.ErrorIs(t, Bounds{Min: 0, Max: 0.3}.Feasible(3), ErrInfeasible)
	assert.ErrorIs(t, Bounds{Min: 0.5, Max: 0.1}.Feasible(2), ErrInfeasible)
	assert.ErrorIs(t, LongOnly().Feasible(0), ErrDataInsufficient)
}

func TestWeightsAlignAndTurnover(t *testing.T) {
	t.Parallel()

	w := NewWeights([]string{"SPY", "AGG"}, []float64{0.7, 0.3})
	assert.Equal(t, []float64{0.3, 0, 0.7}, w.Align([]string{"AGG", "GLD", "SPY"}))
	assert.Equal(t, 0.7, w.Get("SPY"))
	assert.Equal(t, 0.0, w.Get("QQQ"))

	assert.InDelta(t, 0.4, Turnover([]float64{0.5, 0.5}, []float64{0.7, 0.3}), 1e-12)
	assert.InDelta(t, 1.0, Turnover(nil, []float64{0.7, 0.3}), 1e-12)

	eq := Equal([]string{"A", "B", "C", "D"})
	assert.NoError(t, eq.Validate(LongOnly()))
	assert.Equal(t, "A=0.2500 B=0.2500 C=0.2500 D=0.2500", eq.String())
}

func TestKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "", Kind(errors.New("other")))
	assert.Contains(t, Kind(DataInsufficient("need %d", 2)), "insufficient data")
	assert.Contains(t, Kind(Infeasible("target")), "infeasible")
	assert.Contains(t, Kind(fmt.Errorf("fit: %w", &ConvergenceError{Method: "risk parity"})), "did not converge")

	var ce *ConvergenceError
	err := fmt.Errorf("window 3: %w", &ConvergenceError{Method: "risk parity", Iterations: 50, Residual: 1e-3, Tolerance: 1e-6})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 50, ce.Iterations)
	assert.ErrorIs(t, err, ErrConvergence)
}
