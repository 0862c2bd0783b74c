package optimizer

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/allocator/covariance"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/portfolio"
)

var (
	fourAssets = []string{"SPY", "EFA", "AGG", "GLD"}
	fourVols   = []float64{0.16, 0.20, 0.06, 0.15}
	fourMu     = []float64{0.09, 0.08, 0.035, 0.05}
)

// correlatedCov builds Σ_ij = ρ_ij σ_i σ_j with a single off-diagonal ρ.
func correlatedCov(t *testing.T, assets []string, vols []float64, rho float64) *covariance.Matrix {
	t.Helper()
	n := len(vols)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := rho
			if i == j {
				c = 1
			}
			s.SetSym(i, j, c*vols[i]*vols[j])
		}
	}
	m, err := covariance.New(assets, s, covariance.Options{})
	require.NoError(t, err)
	return m
}

func fourProblem(t *testing.T) Problem {
	return Problem{
		Assets:   fourAssets,
		Expected: fourMu,
		Cov:      correlatedCov(t, fourAssets, fourVols, 0.3),
		Bounds:   portfolio.LongOnly(),
	}
}

func requireValid(t *testing.T, pf *Portfolio, b portfolio.Bounds) {
	t.Helper()
	require.NotNil(t, pf)
	require.NoError(t, pf.Weights.Validate(b), pf.Weights.String())
}

func TestMinVarianceUncorrelatedPair(t *testing.T) {
	t.Parallel()

	p := Problem{
		Assets: []string{"A", "B"},
		Cov:    correlatedCov(t, []string{"A", "B"}, []float64{0.2, 0.3}, 0),
		Bounds: portfolio.LongOnly(),
	}
	pf, err := New(Options{}).MinVariance(p)
	require.NoError(t, err)
	requireValid(t, pf, p.Bounds)

	// w_i ∝ 1/σ_i²
	want := (1 / 0.04) / (1/0.04 + 1/0.09)
	assert.InDelta(t, want, pf.Weights.Values[0], 1e-6)
	assert.InDelta(t, 1-want, pf.Weights.Values[1], 1e-6)
	assert.InDelta(t, pf.Weights.Values[0]/pf.Weights.Values[1], 0.09/0.04, 1e-4)
	assert.True(t, pf.Diagnostics.Converged)
	assert.Nil(t, pf.Costs)
}

func TestSolverOutputsSatisfyConstraints(t *testing.T) {
	t.Parallel()

	opt := New(Options{})
	for _, b := range []portfolio.Bounds{portfolio.LongOnly(), {Min: 0, Max: 0.4}, {Min: 0.1, Max: 0.5}, {Min: -0.2, Max: 0.8}} {
		p := fourProblem(t)
		p.Bounds = b

		mv, err := opt.MinVariance(p)
		require.NoError(t, err)
		requireValid(t, mv, b)

		lo, hi := minReturn(p.Expected, b), maxReturn(p.Expected, b)
		target := lo + 0.6*(hi-lo)
		er, err := opt.EfficientReturn(p, target)
		require.NoError(t, err)
		requireValid(t, er, b)
		assert.GreaterOrEqual(t, er.ExpectedReturn, target-1e-5)
		assert.GreaterOrEqual(t, er.Volatility, mv.Volatility-1e-7)

		mvu, err := opt.MeanVariance(p, 3)
		require.NoError(t, err)
		requireValid(t, mvu, b)

		eq, err := opt.EqualWeight(p)
		require.NoError(t, err)
		requireValid(t, eq, b)
	}
}

func TestMeanVarianceRiskAversion(t *testing.T) {
	t.Parallel()

	opt := New(Options{})
	p := fourProblem(t)

	bold, err := opt.MeanVariance(p, 0.5)
	require.NoError(t, err)
	timid, err := opt.MeanVariance(p, 50)
	require.NoError(t, err)
	assert.Greater(t, bold.ExpectedReturn, timid.ExpectedReturn)
	assert.Greater(t, bold.Volatility, timid.Volatility)

	_, err = opt.MeanVariance(p, 0)
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)
}

func TestFrontierMonotone(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	f, err := New(Options{}).Frontier(p, 12)
	require.NoError(t, err)
	require.Len(t, f, 12)

	assert.InDelta(t, minReturn(p.Expected, p.Bounds), f[0].TargetReturn, 1e-12)
	assert.InDelta(t, maxReturn(p.Expected, p.Bounds), f[len(f)-1].TargetReturn, 1e-12)
	vols := f.Volatilities()
	require.Len(t, vols, len(f))
	for i := 1; i < len(f); i++ {
		assert.Greater(t, f[i].TargetReturn, f[i-1].TargetReturn)
		assert.GreaterOrEqual(t, vols[i], vols[i-1]-1e-6, "point %d", i)
		requireValidWeights(t, f[i].Weights, p.Bounds)
	}
	// The last point holds the highest-return asset.
	assert.InDelta(t, 1.0, f[len(f)-1].Weights.Get("SPY"), 1e-4)
}

func requireValidWeights(t *testing.T, w portfolio.Weights, b portfolio.Bounds) {
	t.Helper()
	require.NoError(t, w.Validate(b))
}

func TestFrontierSingleAsset(t *testing.T) {
	t.Parallel()

	p := Problem{
		Assets:   []string{"SPY"},
		Expected: []float64{0.08},
		Cov:      correlatedCov(t, []string{"SPY"}, []float64{0.18}, 0),
		Bounds:   portfolio.LongOnly(),
	}
	f, err := New(Options{}).Frontier(p, 20)
	require.NoError(t, err)
	require.Len(t, f, 1)
	assert.InDelta(t, 0.08, f[0].ExpectedReturn, 1e-12)
	assert.InDelta(t, 0.18, f[0].Volatility, 1e-12)
	assert.Equal(t, []float64{1}, f[0].Weights.Values)
}

func TestInfeasibleProblems(t *testing.T) {
	t.Parallel()

	opt := New(Options{})
	p := fourProblem(t)

	_, err := opt.EfficientReturn(p, 0.2)
	assert.ErrorIs(t, err, portfolio.ErrInfeasible)

	p.Bounds = portfolio.Bounds{Min: 0, Max: 0.2}
	_, err = opt.MinVariance(p)
	assert.ErrorIs(t, err, portfolio.ErrInfeasible)

	p = fourProblem(t)
	p.Turnover = &Turnover{Prior: []float64{0.7, 0.5, 0, 0}, Cap: 0.1}
	_, err = opt.MinVariance(p)
	assert.ErrorIs(t, err, portfolio.ErrInfeasible)

	_, err = opt.Frontier(p, 0)
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)

	_, err = opt.MinVariance(Problem{Assets: []string{"A"}})
	assert.ErrorIs(t, err, portfolio.ErrDataInsufficient)
}

func TestTurnoverCap(t *testing.T) {
	t.Parallel()

	opt := New(Options{})
	free, err := opt.MinVariance(fourProblem(t))
	require.NoError(t, err)

	prior := []float64{0.4, 0.4, 0.1, 0.1}
	require.Greater(t, portfolio.Turnover(prior, free.Weights.Values), 0.3)

	p := fourProblem(t)
	p.Turnover = &Turnover{Prior: prior, Cap: 0.2, CostBps: 10}
	capped, err := opt.MinVariance(p)
	require.NoError(t, err)
	requireValid(t, capped, p.Bounds)
	require.NotNil(t, capped.Costs)
	assert.LessOrEqual(t, capped.Costs.Turnover, 0.2+1e-4)
	assert.Greater(t, capped.Volatility, free.Volatility-1e-9)
	assert.InDelta(t, capped.Costs.Turnover*10, capped.Costs.CostImpactBps, 1e-12)
	assert.InDelta(t, capped.Costs.GrossReturn-capped.Costs.CostImpactBps/1e4, capped.Costs.NetReturn, 1e-12)
}

func TestTurnoverPenaltyHoldsPrior(t *testing.T) {
	t.Parallel()

	prior := []float64{0.4, 0.3, 0.2, 0.1}
	p := fourProblem(t)
	p.Turnover = &Turnover{Prior: prior, Penalty: 1}
	pf, err := New(Options{}).MinVariance(p)
	require.NoError(t, err)
	requireValid(t, pf, p.Bounds)
	assert.Less(t, pf.Costs.Turnover, 1e-4)

	// A small penalty moves part of the way.
	p.Turnover = &Turnover{Prior: prior, Penalty: 0.005}
	some, err := New(Options{}).MinVariance(p)
	require.NoError(t, err)
	requireValid(t, some, p.Bounds)
	assert.Greater(t, some.Costs.Turnover, 1e-3)
}

func TestTurnoverCapWithoutSolver(t *testing.T) {
	t.Parallel()

	opt := New(Options{})
	methods := map[string]func(Problem) (*Portfolio, error){
		"risk_parity":  func(p Problem) (*Portfolio, error) { return opt.RiskParity(p, nil) },
		"equal_weight": opt.EqualWeight,
	}
	tests := []struct {
		name     string
		prior    []float64
		cap      float64
		degraded bool
	}{
		{"binding cap", []float64{0.7, 0.1, 0.1, 0.1}, 0.05, true},
		{"slack cap", []float64{0.7, 0.1, 0.1, 0.1}, 2, false},
		{"prior partly in cash", []float64{0.5, 0.2, 0, 0}, 0.5, true},
	}
	for name, run := range methods {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				t.Parallel()
				p := fourProblem(t)
				p.Turnover = &Turnover{Prior: tt.prior, Cap: tt.cap}
				pf, err := run(p)
				require.NoError(t, err)
				requireValid(t, pf, p.Bounds)
				require.NotNil(t, pf.Costs)
				assert.LessOrEqual(t, pf.Costs.Turnover, tt.cap+1e-9)
				assert.Equal(t, tt.degraded, pf.Diagnostics.Degraded)
				if tt.degraded {
					assert.InDelta(t, tt.cap, pf.Costs.Turnover, 1e-9)
					assert.Contains(t, pf.Diagnostics.Reason, "cap")
				}
			})
		}
	}
}

func TestTurnoverPenaltyRejectedWithoutSolver(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	p.Turnover = &Turnover{Prior: []float64{0.25, 0.25, 0.25, 0.25}, Penalty: 0.01}
	_, err := New(Options{}).RiskParity(p, nil)
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)
	_, err = New(Options{}).EqualWeight(p)
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)

	for _, m := range []Method{MethodRiskParity, MethodEqualWeight} {
		spec := Spec{Method: m, Turnover: &TurnoverSpec{Penalty: 0.01}}
		assert.ErrorIs(t, spec.Validate(), portfolio.ErrConfiguration, m)
		spec.Turnover = &TurnoverSpec{Cap: 0.1}
		assert.NoError(t, spec.Validate(), m)
	}
}

func TestRiskParityEqualContributions(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	pf, err := New(Options{}).RiskParity(p, nil)
	require.NoError(t, err)
	requireValid(t, pf, p.Bounds)
	assert.True(t, pf.Diagnostics.Converged)
	assert.LessOrEqual(t, pf.Diagnostics.Iterations, DefaultRiskParityMaxIter)
	for i, rc := range pf.RiskContributions {
		assert.InDelta(t, 0.25, rc, 1e-4, "asset %d", i)
	}
}

func TestRiskParityDiagonalIsInverseVol(t *testing.T) {
	t.Parallel()

	vols := []float64{0.1, 0.2, 0.4}
	p := Problem{
		Assets: []string{"A", "B", "C"},
		Cov:    correlatedCov(t, []string{"A", "B", "C"}, vols, 0),
		Bounds: portfolio.LongOnly(),
	}
	pf, err := New(Options{}).RiskParity(p, nil)
	require.NoError(t, err)

	norm := 1/0.1 + 1/0.2 + 1/0.4
	for i, v := range vols {
		assert.InDelta(t, (1/v)/norm, pf.Weights.Values[i], 1e-8)
	}
}

func TestRiskParityBudgets(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	pf, err := New(Options{}).RiskParity(p, []float64{4, 2, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, pf.RiskContributions[0], 1e-4)
	assert.InDelta(t, 0.25, pf.RiskContributions[1], 1e-4)

	_, err = New(Options{}).RiskParity(p, []float64{1, 0, 1, 1})
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)
}

func TestRiskParitySingleAsset(t *testing.T) {
	t.Parallel()

	p := Problem{
		Assets: []string{"SPY"},
		Cov:    correlatedCov(t, []string{"SPY"}, []float64{0.2}, 0),
		Bounds: portfolio.LongOnly(),
	}
	pf, err := New(Options{}).RiskParity(p, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, pf.Weights.Values)
	assert.Zero(t, pf.Diagnostics.Iterations)
	assert.True(t, pf.Diagnostics.Converged)
}

func TestRiskParityNonConvergence(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	pf, err := New(Options{RiskParityMaxIter: 1}).RiskParity(p, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, portfolio.ErrConvergence)

	var ce *portfolio.ConvergenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Iterations)

	require.NotNil(t, pf)
	assert.False(t, pf.Diagnostics.Converged)
	requireValid(t, pf, p.Bounds)
}

func TestRiskParityRespectsBounds(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	p.Bounds = portfolio.Bounds{Min: 0.1, Max: 0.35}
	pf, err := New(Options{}).RiskParity(p, nil)
	require.NoError(t, err)
	requireValid(t, pf, p.Bounds)
}

func TestProject(t *testing.T) {
	t.Parallel()

	w := project([]float64{0.5, 0.5, 0.5}, portfolio.Bounds{Min: 0, Max: 0.4})
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, w, 1e-12)

	w = project([]float64{1, 0, 0}, portfolio.Bounds{Min: 0, Max: 0.5})
	assert.InDeltaSlice(t, []float64{0.5, 0.25, 0.25}, w, 1e-12)
}

func TestFeasibleRanges(t *testing.T) {
	t.Parallel()

	mu := []float64{0.1, 0.05, 0.02}
	b := portfolio.Bounds{Min: 0, Max: 0.5}
	assert.InDelta(t, 0.075, maxReturn(mu, b), 1e-12)
	assert.InDelta(t, 0.035, minReturn(mu, b), 1e-12)
	assert.InDelta(t, 0.1, maxReturn(mu, portfolio.LongOnly()), 1e-12)

	assert.InDelta(t, 0.2, minTurnover([]float64{0.7, 0.5, 0}, portfolio.LongOnly()), 1e-12)
	assert.InDelta(t, 0.4, minTurnover([]float64{1.2, -0.2}, portfolio.LongOnly()), 1e-12)
	assert.InDelta(t, 0.0, minTurnover([]float64{0.5, 0.5}, portfolio.LongOnly()), 1e-12)
}

func TestSolveQPBoxProjection(t *testing.T) {
	t.Parallel()

	// min ½‖x − c‖² over the box [0, 1]² is clip(c).
	P := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	prob := &qpProblem{
		P: P,
		q: []float64{-1.5, 0.3},
		A: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
		l: []float64{0, 0},
		u: []float64{1, 1},
	}
	res, err := solveQP(prob, defaultQPSettings())
	require.NoError(t, err)
	assert.NotEqual(t, qpPrimalInfeasible, res.Status)
	assert.InDeltaSlice(t, []float64{1, 0}, res.X, 1e-6)
}

func TestSolveQPInfeasible(t *testing.T) {
	t.Parallel()

	// x1 + x2 = 1 with both capped at 0.2.
	prob := &qpProblem{
		P: mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		q: []float64{0, 0},
		A: mat.NewDense(3, 2, []float64{1, 1, 1, 0, 0, 1}),
		l: []float64{1, math.Inf(-1), math.Inf(-1)},
		u: []float64{1, 0.2, 0.2},
	}
	res, err := solveQP(prob, defaultQPSettings())
	require.NoError(t, err)
	if res.Status != qpPrimalInfeasible {
		assert.Greater(t, violation(prob, res.X), 1e-3)
	}
}

func TestBlackLittermanNoViews(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	post, err := New(Options{}).BlackLitterman(p.Assets, p.Expected, p.Cov, nil, 0)
	require.NoError(t, err)
	assert.False(t, post.Degraded)
	assert.Equal(t, p.Expected, post.Mean)
}

func TestBlackLittermanConfidentView(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	views := []View{{Weights: map[string]float64{"AGG": 1}, Return: 0.07, Variance: 1e-10}}
	post, err := New(Options{}).BlackLitterman(p.Assets, p.Expected, p.Cov, views, 0.05)
	require.NoError(t, err)
	require.False(t, post.Degraded, post.Reason)
	assert.InDelta(t, 0.07, post.Mean[2], 1e-4)
	// Positively correlated assets move up with the view.
	assert.Greater(t, post.Mean[0], p.Expected[0])

	// Posterior covariance adds estimation uncertainty.
	for i := 0; i < 4; i++ {
		assert.GreaterOrEqual(t, post.Cov.At(i, i), p.Cov.At(i, i))
	}
}

func TestBlackLittermanRelativeViewDefaultOmega(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	views := []View{{Weights: map[string]float64{"SPY": 1, "EFA": -1}, Return: 0.05}}
	post, err := New(Options{}).BlackLitterman(p.Assets, p.Expected, p.Cov, views, 0.05)
	require.NoError(t, err)
	require.False(t, post.Degraded)

	priorSpread := p.Expected[0] - p.Expected[1]
	postSpread := post.Mean[0] - post.Mean[1]
	assert.Greater(t, postSpread, priorSpread)
	assert.Less(t, postSpread, 0.05)
}

func TestBlackLittermanDegradesOnSingularCovariance(t *testing.T) {
	t.Parallel()

	s := mat.NewSymDense(2, []float64{0.25, 0.5, 0.5, 1})
	cov, err := covariance.New([]string{"A", "B"}, s, covariance.Options{})
	require.NoError(t, err)

	prior := []float64{0.05, 0.08}
	views := []View{{Weights: map[string]float64{"A": 1}, Return: 0.1}}
	post, err := New(Options{}).BlackLitterman([]string{"A", "B"}, prior, cov, views, 0.25)
	require.NoError(t, err)
	assert.True(t, post.Degraded)
	assert.NotEmpty(t, post.Reason)
	assert.Equal(t, prior, post.Mean)
}

func TestBlackLittermanBadViews(t *testing.T) {
	t.Parallel()

	p := fourProblem(t)
	opt := New(Options{})
	_, err := opt.BlackLitterman(p.Assets, p.Expected, p.Cov, []View{{Weights: map[string]float64{"QQQ": 1}}}, 0)
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)
	_, err = opt.BlackLitterman(p.Assets, p.Expected, p.Cov, []View{{}}, 0)
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)
	_, err = opt.BlackLitterman(p.Assets, p.Expected, p.Cov, []View{{Weights: map[string]float64{"SPY": 1}, Variance: -1}}, 0)
	assert.ErrorIs(t, err, portfolio.ErrConfiguration)
}

func TestImpliedReturns(t *testing.T) {
	t.Parallel()

	cov := correlatedCov(t, []string{"A", "B"}, []float64{0.2, 0.1}, 0.5)
	pi := ImpliedReturns(cov, []float64{0.6, 0.4}, 2.5)
	assert.InDelta(t, 2.5*(0.6*0.04+0.4*0.01), pi[0], 1e-12)
	assert.InDelta(t, 2.5*(0.6*0.01+0.4*0.01), pi[1], 1e-12)
}

func randomReturns(t *testing.T, T int, seed uint64) *market.ReturnSeries {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 1))
	assets := []string{"SPY", "AGG", "GLD"}
	drift := []float64{0.0004, 0.0001, 0.0002}
	vol := []float64{0.012, 0.004, 0.009}
	cols := make([][]float64, len(assets))
	for j := range cols {
		cols[j] = make([]float64, T)
		for i := range cols[j] {
			cols[j][i] = drift[j] + vol[j]*rng.NormFloat64()
		}
	}
	dates := make([]time.Time, T)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	rs, err := market.NewReturnSeries(assets, dates, cols)
	require.NoError(t, err)
	return rs
}

func TestAllocateEveryMethod(t *testing.T) {
	t.Parallel()

	rs := randomReturns(t, 300, 42)
	mu := rs.AnnualizedMean(252)
	mid := (mu[0] + mu[1] + mu[2]) / 3

	opt := New(Options{})
	for _, m := range Methods {
		t.Run(string(m), func(t *testing.T) {
			spec := Spec{Method: m, TargetReturn: mid, RiskAversion: 4}
			pf, err := opt.Allocate(rs, spec, nil)
			require.NoError(t, err)
			requireValid(t, pf, portfolio.LongOnly())
			assert.Equal(t, rs.Assets(), pf.Weights.Assets)
		})
	}
}

func TestAllocateWithPriorAndViews(t *testing.T) {
	t.Parallel()

	rs := randomReturns(t, 120, 7)
	spec := Spec{
		Method:   MethodMeanVariance,
		Bounds:   portfolio.Bounds{Min: 0, Max: 0.6},
		Views:    []View{{Weights: map[string]float64{"GLD": 1}, Return: 0.12}},
		Turnover: &TurnoverSpec{Cap: 0.3, CostBps: 5},
	}
	prior := []float64{0.4, 0.4, 0.2}
	pf, err := New(Options{}).Allocate(rs, spec, prior)
	require.NoError(t, err)
	requireValid(t, pf, spec.Bounds)
	require.NotNil(t, pf.Costs)
	assert.LessOrEqual(t, pf.Costs.Turnover, 0.3+1e-4)
}

func TestAllocatePerfectlyCorrelatedPair(t *testing.T) {
	t.Parallel()

	r := []float64{0.01, -0.01, 0.01, -0.01}
	dates := make([]time.Time, len(r))
	for i := range dates {
		dates[i] = time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC)
	}
	rs, err := market.NewReturnSeries([]string{"A", "B"}, dates, [][]float64{r, append([]float64(nil), r...)})
	require.NoError(t, err)

	for _, mode := range []covariance.Mode{covariance.ShrinkAuto, covariance.ShrinkNever} {
		t.Run(string(mode), func(t *testing.T) {
			t.Parallel()
			spec := Spec{
				Method:     MethodMinVariance,
				Covariance: covariance.Options{Shrinkage: mode},
			}
			pf, err := New(Options{}).Allocate(rs, spec, nil)
			require.NoError(t, err)
			requireValid(t, pf, portfolio.LongOnly())
			assert.InDelta(t, 1.0, pf.Weights.Sum(), 1e-9)
			assert.InDeltaSlice(t, []float64{0.5, 0.5}, pf.Weights.Values, 1e-6)
		})
	}
}

func TestSpecValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Spec{}.Validate())
	assert.ErrorIs(t, Spec{Method: "kelly"}.Validate(), portfolio.ErrConfiguration)
	assert.ErrorIs(t, Spec{Turnover: &TurnoverSpec{Cap: -1}}.Validate(), portfolio.ErrConfiguration)
	assert.ErrorIs(t, Spec{Covariance: covariance.Options{Shrinkage: "maybe"}}.Validate(), portfolio.ErrConfiguration)

	assert.Equal(t, []float64{2, 1, 1.5}, budgetVector([]string{"A", "B", "C"}, map[string]float64{"A": 2, "B": 1}))
	assert.Nil(t, budgetVector([]string{"A"}, nil))
}
