package optimizer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/allocator/covariance"
	"github.com/rustyeddy/allocator/portfolio"
)

const DefaultTau = 0.05

// View is one investor view: Σ_i Weights[i]·μ_i = Return. An absolute view
// has a single asset with weight 1; a relative view pairs +1 and −1.
// Variance is the view's uncertainty; zero derives it from τPΣPᵀ.
type View struct {
	Weights  map[string]float64 `json:"weights" yaml:"weights"`
	Return   float64            `json:"return" yaml:"return"`
	Variance float64            `json:"variance,omitempty" yaml:"variance,omitempty"`
}

// Posterior is the Black-Litterman combination of prior returns and views.
// When the combination cannot be computed the prior is returned with
// Degraded set and Reason explaining why.
type Posterior struct {
	Assets   []string      `json:"assets"`
	Mean     []float64     `json:"mean"`
	Cov      *mat.SymDense `json:"-"`
	Degraded bool          `json:"degraded"`
	Reason   string        `json:"reason,omitempty"`
}

// ImpliedReturns reverse-optimizes equilibrium returns δΣw from market
// weights.
func ImpliedReturns(cov *covariance.Matrix, market []float64, riskAversion float64) []float64 {
	var pi mat.VecDense
	pi.MulVec(cov.Cov, mat.NewVecDense(len(market), append([]float64(nil), market...)))
	pi.ScaleVec(riskAversion, &pi)
	return append([]float64(nil), pi.RawVector().Data...)
}

// BlackLitterman computes
//
//	μ_BL = [(τΣ)⁻¹ + PᵀΩ⁻¹P]⁻¹ [(τΣ)⁻¹μ + PᵀΩ⁻¹Q]
//	Σ_BL = Σ + [(τΣ)⁻¹ + PᵀΩ⁻¹P]⁻¹
//
// Malformed views are configuration errors. Numerical failures are not:
// they return the prior flagged as degraded.
func (o *Optimizer) BlackLitterman(assets []string, prior []float64, cov *covariance.Matrix, views []View, tau float64) (*Posterior, error) {
	n := len(assets)
	if n == 0 || cov == nil || cov.Dim() != n || len(prior) != n {
		return nil, portfolio.DataInsufficient("black-litterman needs prior returns and covariance for %d assets", n)
	}
	if tau <= 0 {
		tau = DefaultTau
	}
	P, Q, err := viewMatrix(assets, views)
	if err != nil {
		return nil, err
	}

	fallback := func(reason string) *Posterior {
		o.log.WithField("reason", reason).Warn("black-litterman degraded to prior")
		c := mat.NewSymDense(n, nil)
		c.CopySym(cov.Cov)
		return &Posterior{
			Assets:   append([]string(nil), assets...),
			Mean:     append([]float64(nil), prior...),
			Cov:      c,
			Degraded: true,
			Reason:   reason,
		}
	}
	if len(views) == 0 {
		post := fallback("no views")
		post.Degraded = false
		post.Reason = ""
		return post, nil
	}

	tauSigma := mat.NewSymDense(n, nil)
	tauSigma.ScaleSym(tau, cov.Cov)
	var cs mat.Cholesky
	if ok := cs.Factorize(tauSigma); !ok {
		return fallback("τΣ is not positive definite"), nil
	}
	var tsInv mat.SymDense
	if err := cs.InverseTo(&tsInv); err != nil {
		return fallback(fmt.Sprintf("inverting τΣ: %v", err)), nil
	}

	k := len(views)
	var pspt mat.Dense
	pspt.Product(P, cov.Cov, P.T())
	omegaInv := make([]float64, k)
	for v := 0; v < k; v++ {
		omega := views[v].Variance
		if omega == 0 {
			omega = tau * pspt.At(v, v)
		}
		if omega <= 0 || math.IsNaN(omega) || math.IsInf(omega, 0) {
			return fallback(fmt.Sprintf("view %d has non-positive uncertainty %.3g", v, omega)), nil
		}
		omegaInv[v] = 1 / omega
	}

	// M = (τΣ)⁻¹ + PᵀΩ⁻¹P
	M := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s := tsInv.At(i, j)
			for v := 0; v < k; v++ {
				s += P.At(v, i) * omegaInv[v] * P.At(v, j)
			}
			M.SetSym(i, j, s)
		}
	}

	// rhs = (τΣ)⁻¹μ + PᵀΩ⁻¹Q
	rhs := mat.NewVecDense(n, nil)
	rhs.MulVec(&tsInv, mat.NewVecDense(n, append([]float64(nil), prior...)))
	for i := 0; i < n; i++ {
		s := rhs.AtVec(i)
		for v := 0; v < k; v++ {
			s += P.At(v, i) * omegaInv[v] * Q[v]
		}
		rhs.SetVec(i, s)
	}

	var cm mat.Cholesky
	if ok := cm.Factorize(M); !ok {
		return fallback("posterior precision is not positive definite"), nil
	}
	var mean mat.VecDense
	if err := cm.SolveVecTo(&mean, rhs); err != nil {
		return fallback(fmt.Sprintf("solving posterior mean: %v", err)), nil
	}
	var mInv mat.SymDense
	if err := cm.InverseTo(&mInv); err != nil {
		return fallback(fmt.Sprintf("inverting posterior precision: %v", err)), nil
	}

	out := &Posterior{
		Assets: append([]string(nil), assets...),
		Mean:   make([]float64, n),
		Cov:    mat.NewSymDense(n, nil),
	}
	for i := 0; i < n; i++ {
		out.Mean[i] = mean.AtVec(i)
		if math.IsNaN(out.Mean[i]) || math.IsInf(out.Mean[i], 0) {
			return fallback("posterior mean is not finite"), nil
		}
	}
	out.Cov.AddSym(cov.Cov, &mInv)

	o.log.WithField("views", k).Debug("black-litterman posterior computed")
	return out, nil
}

func viewMatrix(assets []string, views []View) (*mat.Dense, []float64, error) {
	if len(views) == 0 {
		return nil, nil, nil
	}
	index := make(map[string]int, len(assets))
	for i, a := range assets {
		index[a] = i
	}
	P := mat.NewDense(len(views), len(assets), nil)
	Q := make([]float64, len(views))
	for v, view := range views {
		if len(view.Weights) == 0 {
			return nil, nil, portfolio.Configuration("view %d names no assets", v)
		}
		if view.Variance < 0 {
			return nil, nil, portfolio.Configuration("view %d has negative variance", v)
		}
		for a, w := range view.Weights {
			i, ok := index[a]
			if !ok {
				return nil, nil, portfolio.Configuration("view %d references unknown asset %q", v, a)
			}
			P.Set(v, i, w)
		}
		Q[v] = view.Return
	}
	return P, Q, nil
}
