package optimizer

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/allocator/portfolio"
)

const riskParityEps = 1e-12

// RiskParity finds weights whose risk contributions w_i(Σw)_i are
// proportional to budgets (equal when budgets is nil) by fixed-point
// iteration:
//
//	w ← normalize( sqrt( w ∘ b / (Σw + ε) ) )
//
// The square root damps the plain map b/(Σw), which shares its fixed point
// but oscillates. Iteration stops when ‖Δw‖₂ < tolerance. Bounds are applied
// by projection afterwards and a turnover cap by moving back toward the
// prior. When the iteration limit is reached the best
// iterate is returned together with a *portfolio.ConvergenceError.
func (o *Optimizer) RiskParity(p Problem, budgets []float64) (*Portfolio, error) {
	if err := p.validate(false); err != nil {
		return nil, err
	}
	if err := p.Turnover.rejectPenalty(MethodRiskParity); err != nil {
		return nil, err
	}
	n := p.n()
	b, err := normalizeBudgets(budgets, n)
	if err != nil {
		return nil, err
	}

	if n == 1 {
		out := o.describe(p, []float64{1})
		out.Diagnostics = Diagnostics{Method: "risk_parity", Converged: true}
		return out, nil
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	next := make([]float64, n)
	best := append([]float64(nil), w...)
	bestRes := math.Inf(1)

	var mrc mat.VecDense
	iters, converged := 0, false
	for iters < o.rpMax {
		iters++
		mrc.MulVec(p.Cov.Cov, mat.NewVecDense(n, w))
		for i := range next {
			t := b[i] / (math.Max(mrc.AtVec(i), 0) + riskParityEps)
			next[i] = math.Sqrt(w[i] * t)
		}
		floats.Scale(1/floats.Sum(next), next)

		res := floats.Distance(next, w, 2)
		copy(w, next)
		if res < bestRes {
			bestRes = res
			copy(best, w)
		}
		if res < o.rpTol {
			converged = true
			break
		}
	}

	final := best
	if !withinBounds(final, p.Bounds) {
		final = project(final, p.Bounds)
	}
	final, capped := capTurnover(p, final)
	out := o.describe(p, final)
	out.Diagnostics = Diagnostics{
		Method:     "risk_parity",
		Iterations: iters,
		Converged:  converged,
		Residual:   bestRes,
		Degraded:   capped != "",
		Reason:     capped,
	}

	log := o.log.WithFields(logrus.Fields{"iterations": iters, "residual": bestRes})
	if !converged {
		log.Warn("risk parity did not converge, returning best iterate")
		return out, &portfolio.ConvergenceError{
			Method:     "risk parity",
			Iterations: iters,
			Residual:   bestRes,
			Tolerance:  o.rpTol,
		}
	}
	log.Debug("risk parity converged")
	return out, nil
}

func normalizeBudgets(budgets []float64, n int) ([]float64, error) {
	b := make([]float64, n)
	if budgets == nil {
		for i := range b {
			b[i] = 1 / float64(n)
		}
		return b, nil
	}
	if len(budgets) != n {
		return nil, portfolio.Configuration("%d risk budgets for %d assets", len(budgets), n)
	}
	total := 0.0
	for i, v := range budgets {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, portfolio.Configuration("risk budget %d must be positive, got %v", i, v)
		}
		total += v
	}
	for i, v := range budgets {
		b[i] = v / total
	}
	return b, nil
}

func withinBounds(w []float64, b portfolio.Bounds) bool {
	for _, v := range w {
		if v < b.Min || v > b.Max {
			return false
		}
	}
	return true
}
