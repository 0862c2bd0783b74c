// Package optimizer builds portfolios from expected returns and a covariance
// matrix: minimum variance, target-return and mean-variance quadratic
// programs, the efficient frontier, risk parity and Black-Litterman views,
// each optionally penalized or capped for turnover against a prior book.
package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/allocator/covariance"
	"github.com/rustyeddy/allocator/portfolio"
)

const (
	DefaultRiskParityTolerance = 1e-6
	DefaultRiskParityMaxIter   = 50

	// constraintTolerance bounds the violation of non-weight constraint rows
	// accepted from the solver.
	constraintTolerance = 1e-5
)

type Options struct {
	// QP solver
	MaxIter   int     `json:"max_iter" yaml:"max_iter"`
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`

	RiskParityTolerance float64 `json:"risk_parity_tolerance" yaml:"risk_parity_tolerance"`
	RiskParityMaxIter   int     `json:"risk_parity_max_iter" yaml:"risk_parity_max_iter"`

	Log logrus.FieldLogger `json:"-" yaml:"-"`
}

// Optimizer is stateless apart from its options and is safe for concurrent
// use.
type Optimizer struct {
	qp    qpSettings
	rpTol float64
	rpMax int
	log   logrus.FieldLogger
}

func New(opts Options) *Optimizer {
	o := &Optimizer{
		qp:    defaultQPSettings(),
		rpTol: DefaultRiskParityTolerance,
		rpMax: DefaultRiskParityMaxIter,
		log:   opts.Log,
	}
	if opts.MaxIter > 0 {
		o.qp.MaxIter = opts.MaxIter
	}
	if opts.Tolerance > 0 {
		o.qp.EpsAbs = opts.Tolerance
		o.qp.EpsRel = opts.Tolerance
	}
	if opts.RiskParityTolerance > 0 {
		o.rpTol = opts.RiskParityTolerance
	}
	if opts.RiskParityMaxIter > 0 {
		o.rpMax = opts.RiskParityMaxIter
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	return o
}

// Turnover configures the transaction-cost-aware variant. Penalty adds
// Penalty·‖w−Prior‖₁ to the objective; Cap > 0 adds ‖w−Prior‖₁ ≤ Cap. The
// two are independent and may be combined. CostBps prices turnover in the
// reported Costs.
type Turnover struct {
	Prior   []float64 `json:"prior"`
	Penalty float64   `json:"penalty"`
	Cap     float64   `json:"cap"`
	CostBps float64   `json:"cost_bps"`
}

func (t *Turnover) active() bool {
	return t != nil && t.Prior != nil && (t.Penalty > 0 || t.Cap > 0)
}

// rejectPenalty refuses a penalty for methods without an objective to add
// it to. Caps are handled by capTurnover.
func (t *Turnover) rejectPenalty(m Method) error {
	if t != nil && t.Penalty > 0 {
		return portfolio.Configuration("%s has no objective for a turnover penalty; use a turnover cap", m)
	}
	return nil
}

// Problem is the input shared by every optimizer entry point.
type Problem struct {
	Assets   []string
	Expected []float64 // annualized expected returns
	Cov      *covariance.Matrix
	Bounds   portfolio.Bounds
	Turnover *Turnover
}

func (p Problem) n() int { return len(p.Assets) }

func (p Problem) validate(needExpected bool) error {
	n := p.n()
	if n == 0 {
		return portfolio.DataInsufficient("no assets")
	}
	if p.Cov == nil {
		return portfolio.DataInsufficient("no covariance matrix")
	}
	if p.Cov.Dim() != n {
		return fmt.Errorf("covariance has %d assets, problem has %d", p.Cov.Dim(), n)
	}
	if needExpected && len(p.Expected) != n {
		return portfolio.DataInsufficient("expected returns for %d of %d assets", len(p.Expected), n)
	}
	if p.Expected != nil && len(p.Expected) != n {
		return fmt.Errorf("expected returns have %d entries, problem has %d", len(p.Expected), n)
	}
	if p.Turnover != nil {
		if p.Turnover.Prior != nil && len(p.Turnover.Prior) != n {
			return fmt.Errorf("turnover prior has %d entries, problem has %d", len(p.Turnover.Prior), n)
		}
		if p.Turnover.Penalty < 0 || p.Turnover.Cap < 0 || p.Turnover.CostBps < 0 {
			return portfolio.Configuration("turnover penalty, cap and cost must be non-negative")
		}
	}
	if err := p.Bounds.Feasible(n); err != nil {
		return err
	}
	if p.Turnover.active() && p.Turnover.Cap > 0 {
		if need := minTurnover(p.Turnover.Prior, p.Bounds); p.Turnover.Cap < need-1e-9 {
			return portfolio.Infeasible("turnover cap %.4f below the minimum reachable turnover %.4f", p.Turnover.Cap, need)
		}
	}
	return nil
}

func (p Problem) expected() []float64 {
	if p.Expected != nil {
		return p.Expected
	}
	return make([]float64, p.n())
}

// Costs prices the move from the turnover prior to the new weights.
type Costs struct {
	Turnover      float64 `json:"turnover"`
	GrossReturn   float64 `json:"gross_return"`
	NetReturn     float64 `json:"net_return"`
	CostImpactBps float64 `json:"cost_impact_bps"`
}

type Diagnostics struct {
	Method     string  `json:"method"`
	Status     string  `json:"status,omitempty"`
	Iterations int     `json:"iterations"`
	Converged  bool    `json:"converged"`
	Polished   bool    `json:"polished,omitempty"`
	Residual   float64 `json:"residual"`
	Degraded   bool    `json:"degraded,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// Portfolio is an optimizer result.
type Portfolio struct {
	Weights           portfolio.Weights `json:"weights"`
	ExpectedReturn    float64           `json:"expected_return"`
	Volatility        float64           `json:"volatility"`
	RiskContributions []float64         `json:"risk_contributions"`
	Costs             *Costs            `json:"costs,omitempty"`
	Diagnostics       Diagnostics       `json:"diagnostics"`
}

// MinVariance solves min wᵀΣw s.t. 1ᵀw = 1 and the bounds.
func (o *Optimizer) MinVariance(p Problem) (*Portfolio, error) {
	if err := p.validate(false); err != nil {
		return nil, err
	}
	return o.solve("min_variance", p, 2, nil, math.NaN())
}

// EfficientReturn solves min wᵀΣw s.t. μᵀw ≥ target, 1ᵀw = 1 and the
// bounds.
func (o *Optimizer) EfficientReturn(p Problem, target float64) (*Portfolio, error) {
	if err := p.validate(true); err != nil {
		return nil, err
	}
	if hi := maxReturn(p.Expected, p.Bounds); target > hi+1e-12 {
		return nil, portfolio.Infeasible("target return %.4f above the maximum feasible %.4f", target, hi)
	}
	return o.solve("efficient_return", p, 2, nil, target)
}

// MeanVariance solves min (γ/2)wᵀΣw − μᵀw s.t. 1ᵀw = 1 and the bounds.
func (o *Optimizer) MeanVariance(p Problem, riskAversion float64) (*Portfolio, error) {
	if riskAversion <= 0 {
		return nil, portfolio.Configuration("risk aversion must be positive, got %v", riskAversion)
	}
	if err := p.validate(true); err != nil {
		return nil, err
	}
	q := make([]float64, p.n())
	for i, m := range p.Expected {
		q[i] = -m
	}
	return o.solve("mean_variance", p, riskAversion, q, math.NaN())
}

// solve builds and solves the QP over x = [w, t]. t holds |w−prior| and is
// present only for the turnover variant. pScale multiplies Σ in the
// objective, qw is the linear term on w (nil for zero) and target adds the
// return row unless NaN.
func (o *Optimizer) solve(method string, p Problem, pScale float64, qw []float64, target float64) (*Portfolio, error) {
	n := p.n()
	tv := p.Turnover.active()
	nv := n
	if tv {
		nv = 2 * n
	}

	P := mat.NewSymDense(nv, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			P.SetSym(i, j, pScale*p.Cov.At(i, j))
		}
	}
	q := make([]float64, nv)
	copy(q, qw)

	var rows [][]float64
	var lo, hi []float64
	addRow := func(a []float64, l, u float64) {
		rows = append(rows, a)
		lo = append(lo, l)
		hi = append(hi, u)
	}

	sum := make([]float64, nv)
	for i := 0; i < n; i++ {
		sum[i] = 1
	}
	addRow(sum, 1, 1)
	for i := 0; i < n; i++ {
		a := make([]float64, nv)
		a[i] = 1
		addRow(a, p.Bounds.Min, p.Bounds.Max)
	}
	if !math.IsNaN(target) {
		a := make([]float64, nv)
		copy(a, p.Expected)
		addRow(a, target, math.Inf(1))
	}
	if tv {
		prior := p.Turnover.Prior
		for i := 0; i < n; i++ {
			q[n+i] = p.Turnover.Penalty
			// t_i − w_i ≥ −prior_i and t_i + w_i ≥ prior_i
			a := make([]float64, nv)
			a[n+i], a[i] = 1, -1
			addRow(a, -prior[i], math.Inf(1))
			b := make([]float64, nv)
			b[n+i], b[i] = 1, 1
			addRow(b, prior[i], math.Inf(1))
		}
		if p.Turnover.Cap > 0 {
			a := make([]float64, nv)
			for i := 0; i < n; i++ {
				a[n+i] = 1
			}
			addRow(a, math.Inf(-1), p.Turnover.Cap)
		}
	}

	A := mat.NewDense(len(rows), nv, nil)
	for r, a := range rows {
		A.SetRow(r, a)
	}
	prob := &qpProblem{P: P, q: q, A: A, l: lo, u: hi}

	res, err := solveQP(prob, o.qp)
	if err != nil {
		return nil, err
	}
	log := o.log.WithFields(logrus.Fields{
		"method":     method,
		"status":     res.Status.String(),
		"iterations": res.Iterations,
		"polished":   res.Polished,
	})
	if res.Status == qpPrimalInfeasible {
		log.Debug("qp infeasible")
		return nil, portfolio.Infeasible("%s: constraints admit no portfolio", method)
	}

	w := project(res.X[:n], p.Bounds)
	x := append([]float64(nil), w...)
	if tv {
		for i := 0; i < n; i++ {
			x = append(x, math.Abs(w[i]-p.Turnover.Prior[i]))
		}
	}
	if v := violation(prob, x); v > constraintTolerance*math.Max(1, math.Abs(target0(target))) {
		if res.Status == qpMaxIter && !res.Polished {
			return nil, &portfolio.ConvergenceError{
				Method:     method,
				Iterations: res.Iterations,
				Residual:   math.Max(res.PrimalRes, res.DualRes),
				Tolerance:  o.qp.EpsAbs,
			}
		}
		return nil, portfolio.Infeasible("%s: solution violates constraints by %.3g", method, v)
	}
	log.Debug("qp solved")

	out := o.describe(p, w)
	out.Diagnostics = Diagnostics{
		Method:     method,
		Status:     res.Status.String(),
		Iterations: res.Iterations,
		Converged:  res.Status == qpSolved || res.Polished,
		Polished:   res.Polished,
		Residual:   math.Max(res.PrimalRes, res.DualRes),
	}
	return out, nil
}

func target0(t float64) float64 {
	if math.IsNaN(t) {
		return 0
	}
	return t
}

// describe fills return, risk and cost figures for weights w.
func (o *Optimizer) describe(p Problem, w []float64) *Portfolio {
	mu := p.expected()
	ret := 0.0
	for i := range w {
		ret += mu[i] * w[i]
	}
	out := &Portfolio{
		Weights:           portfolio.NewWeights(p.Assets, w),
		ExpectedReturn:    ret,
		Volatility:        p.Cov.Volatility(w),
		RiskContributions: p.Cov.RiskContributions(w),
	}
	if p.Turnover != nil && p.Turnover.Prior != nil {
		out.Costs = priceTurnover(p.Turnover, w, ret)
	}
	return out
}

func priceTurnover(t *Turnover, w []float64, gross float64) *Costs {
	to := portfolio.Turnover(t.Prior, w)
	impact := to * t.CostBps
	return &Costs{
		Turnover:      to,
		GrossReturn:   gross,
		NetReturn:     gross - impact/1e4,
		CostImpactBps: impact,
	}
}

// project returns the Euclidean projection of x onto
// {w : Σw = 1, lo ≤ w ≤ hi}: w_i = clip(x_i − τ) with τ found by bisection.
func project(x []float64, b portfolio.Bounds) []float64 {
	n := len(x)
	w := make([]float64, n)
	fill := func(tau float64) float64 {
		s := 0.0
		for i, v := range x {
			w[i] = clamp(v-tau, b.Min, b.Max)
			s += w[i]
		}
		return s
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		lo = math.Min(lo, v-b.Max)
		hi = math.Max(hi, v-b.Min)
	}
	// fill(lo) = n·Max ≥ 1 and fill(hi) = n·Min ≤ 1.
	for k := 0; k < 200; k++ {
		mid := (lo + hi) / 2
		s := fill(mid)
		if math.Abs(s-1) < 1e-15 {
			return w
		}
		if s > 1 {
			lo = mid
		} else {
			hi = mid
		}
		if hi-lo < 1e-17 {
			break
		}
	}
	fill((lo + hi) / 2)
	return w
}

// maxReturn is the largest μᵀw over {Σw = 1, lo ≤ w ≤ hi}: start every
// weight at lo and hand the remaining budget to the highest returns first.
func maxReturn(mu []float64, b portfolio.Bounds) float64 {
	return greedyReturn(mu, b, true)
}

func minReturn(mu []float64, b portfolio.Bounds) float64 {
	return greedyReturn(mu, b, false)
}

func greedyReturn(mu []float64, b portfolio.Bounds, best bool) float64 {
	n := len(mu)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sortByReturn(order, mu, best)

	ret := 0.0
	left := 1 - float64(n)*b.Min
	for _, i := range order {
		ret += mu[i] * b.Min
	}
	for _, i := range order {
		if left <= 0 {
			break
		}
		add := math.Min(left, b.Max-b.Min)
		ret += mu[i] * add
		left -= add
	}
	return ret
}

func sortByReturn(order []int, mu []float64, desc bool) {
	sort.SliceStable(order, func(a, b int) bool {
		if desc {
			return mu[order[a]] > mu[order[b]]
		}
		return mu[order[a]] < mu[order[b]]
	})
}

// minTurnover is the smallest ‖w−prior‖₁ over the feasible weights: clip the
// prior into the box, then move the remaining |1−Σclip| of mass.
func minTurnover(prior []float64, b portfolio.Bounds) float64 {
	d, s := 0.0, 0.0
	for _, p := range prior {
		c := clamp(p, b.Min, b.Max)
		d += math.Abs(c - p)
		s += c
	}
	return d + math.Abs(1-s)
}

// capTurnover pulls w back toward the prior until ‖w−prior‖₁ ≤ Cap. It moves
// along the segment from the feasible point nearest the prior to w, so the
// result keeps Σw = 1 and the bounds. The reason is empty when w already
// met the cap.
func capTurnover(p Problem, w []float64) ([]float64, string) {
	t := p.Turnover
	if !t.active() || t.Cap <= 0 {
		return w, ""
	}
	before := portfolio.Turnover(t.Prior, w)
	if before <= t.Cap+1e-12 {
		return w, ""
	}

	anchor := project(t.Prior, p.Bounds)
	out := make([]float64, len(w))
	blend := func(alpha float64) float64 {
		for i := range w {
			out[i] = anchor[i] + alpha*(w[i]-anchor[i])
		}
		return portfolio.Turnover(t.Prior, out)
	}
	lo, hi := 0.0, 1.0
	for k := 0; k < 100 && hi-lo > 1e-15; k++ {
		mid := (lo + hi) / 2
		if blend(mid) <= t.Cap {
			lo = mid
		} else {
			hi = mid
		}
	}
	blend(lo)
	return out, fmt.Sprintf("turnover %.4f scaled to the %.4f cap", before, t.Cap)
}

