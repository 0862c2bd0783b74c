package optimizer

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/rustyeddy/allocator/portfolio"
)

// qpProblem is
//
//	minimize   ½xᵀPx + qᵀx
//	subject to l ≤ Ax ≤ u
//
// with P positive semi-definite. Infinite entries of l and u are allowed.
type qpProblem struct {
	P *mat.SymDense
	q []float64
	A *mat.Dense
	l []float64
	u []float64
}

type qpStatus int

const (
	qpSolved qpStatus = iota
	qpMaxIter
	qpPrimalInfeasible
)

func (s qpStatus) String() string {
	switch s {
	case qpSolved:
		return "solved"
	case qpMaxIter:
		return "max_iter"
	case qpPrimalInfeasible:
		return "primal_infeasible"
	}
	return "unknown"
}

type qpSettings struct {
	Rho        float64
	Sigma      float64
	Alpha      float64
	MaxIter    int
	EpsAbs     float64
	EpsRel     float64
	EpsPinf    float64
	CheckEvery int
	Polish     bool
}

func defaultQPSettings() qpSettings {
	return qpSettings{
		Rho:        0.1,
		Sigma:      1e-6,
		Alpha:      1.6,
		MaxIter:    10000,
		EpsAbs:     1e-8,
		EpsRel:     1e-8,
		EpsPinf:    1e-7,
		CheckEvery: 10,
		Polish:     true,
	}
}

type qpResult struct {
	X          []float64
	Y          []float64
	Status     qpStatus
	Iterations int
	Polished   bool
	PrimalRes  float64
	DualRes    float64
	Objective  float64
}

const (
	rhoEqualityScale = 1e3
	rhoMin           = 1e-6
	rhoMax           = 1e6
	adaptEvery       = 5 // checks between rho updates
	adaptRatio       = 5
)

// solveQP runs ADMM in the operator-splitting form of Stellato et al. with
// per-row step sizes, periodic rho adaptation and a final active-set polish.
func solveQP(prob *qpProblem, s qpSettings) (*qpResult, error) {
	n := len(prob.q)
	m := len(prob.l)

	rho := make([]float64, m)
	rhoBase := s.Rho
	setRho(rho, prob.l, prob.u, rhoBase)

	chol, err := factorKKT(prob, rho, s.Sigma)
	if err != nil {
		return nil, err
	}

	x := make([]float64, n)
	z := make([]float64, m)
	y := make([]float64, m)
	yPrev := make([]float64, m)
	work := make([]float64, m)
	rhsData := make([]float64, n)

	xv := mat.NewVecDense(n, x)
	yv := mat.NewVecDense(m, y)
	wv := mat.NewVecDense(m, work)
	rhs := mat.NewVecDense(n, rhsData)
	xt := mat.NewVecDense(n, nil)
	zt := mat.NewVecDense(m, nil)
	atw := mat.NewVecDense(n, nil)

	res := &qpResult{Status: qpMaxIter}
	checks := 0
	for k := 1; k <= s.MaxIter; k++ {
		copy(yPrev, y)

		// x̃ = K⁻¹(σx − q + Aᵀ(ρz − y))
		for i := 0; i < m; i++ {
			work[i] = rho[i]*z[i] - y[i]
		}
		atw.MulVec(prob.A.T(), wv)
		for j := 0; j < n; j++ {
			rhsData[j] = s.Sigma*x[j] - prob.q[j] + atw.AtVec(j)
		}
		if err := chol.SolveVecTo(xt, rhs); err != nil {
			return nil, portfolio.SingularCovariance("KKT solve: %v", err)
		}
		zt.MulVec(prob.A, xt)

		for j := 0; j < n; j++ {
			x[j] = s.Alpha*xt.AtVec(j) + (1-s.Alpha)*x[j]
		}
		for i := 0; i < m; i++ {
			relaxed := s.Alpha*zt.AtVec(i) + (1-s.Alpha)*z[i]
			zi := clamp(relaxed+y[i]/rho[i], prob.l[i], prob.u[i])
			y[i] += rho[i] * (relaxed - zi)
			z[i] = zi
		}

		if k%s.CheckEvery != 0 && k != s.MaxIter {
			continue
		}
		checks++
		res.Iterations = k

		r := residuals(prob, xv, z, yv)
		res.PrimalRes, res.DualRes = r.prim, r.dual
		if r.prim <= s.EpsAbs+s.EpsRel*r.primScale && r.dual <= s.EpsAbs+s.EpsRel*r.dualScale {
			res.Status = qpSolved
			break
		}
		if primalInfeasible(prob, y, yPrev, s.EpsPinf) {
			res.Status = qpPrimalInfeasible
			break
		}

		if checks%adaptEvery == 0 && r.dual > 0 && r.dualScale > 0 && r.primScale > 0 {
			ratio := math.Sqrt((r.prim / r.primScale) / (r.dual / r.dualScale))
			if ratio > adaptRatio || ratio < 1.0/adaptRatio {
				rhoBase = math.Max(rhoMin, math.Min(rhoMax, rhoBase*ratio))
				setRho(rho, prob.l, prob.u, rhoBase)
				if chol, err = factorKKT(prob, rho, s.Sigma); err != nil {
					return nil, err
				}
			}
		}
	}

	res.X = append([]float64(nil), x...)
	res.Y = append([]float64(nil), y...)
	res.Objective = objective(prob, res.X)
	if res.Status == qpPrimalInfeasible || !s.Polish {
		return res, nil
	}

	if px, py, ok := polish(prob, z, y); ok {
		obj := objective(prob, px)
		if violation(prob, px) <= 1e-9 && obj <= res.Objective+1e-7*(1+math.Abs(res.Objective)) {
			res.X, res.Y = px, py
			res.Objective = obj
			res.Polished = true
			res.PrimalRes = 0
		}
	}
	return res, nil
}

func setRho(rho, l, u []float64, base float64) {
	for i := range rho {
		switch {
		case l[i] == u[i]:
			rho[i] = rhoEqualityScale * base
		case math.IsInf(l[i], -1) && math.IsInf(u[i], 1):
			rho[i] = rhoMin
		default:
			rho[i] = base
		}
	}
}

// factorKKT factors K = P + σI + Aᵀdiag(ρ)A.
func factorKKT(prob *qpProblem, rho []float64, sigma float64) (*mat.Cholesky, error) {
	n := len(prob.q)
	m := len(rho)
	K := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := prob.P.At(i, j)
			if i == j {
				v += sigma
			}
			for r := 0; r < m; r++ {
				v += prob.A.At(r, i) * rho[r] * prob.A.At(r, j)
			}
			K.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(K); !ok {
		return nil, portfolio.SingularCovariance("KKT matrix is not positive definite")
	}
	return &chol, nil
}

type residual struct {
	prim, dual           float64
	primScale, dualScale float64
}

func residuals(prob *qpProblem, x *mat.VecDense, z []float64, y *mat.VecDense) residual {
	var ax, px, aty mat.VecDense
	ax.MulVec(prob.A, x)
	px.MulVec(prob.P, x)
	aty.MulVec(prob.A.T(), y)

	var r residual
	for i := range z {
		r.prim = math.Max(r.prim, math.Abs(ax.AtVec(i)-z[i]))
		r.primScale = math.Max(r.primScale, math.Max(math.Abs(ax.AtVec(i)), math.Abs(z[i])))
	}
	for j := range prob.q {
		d := px.AtVec(j) + prob.q[j] + aty.AtVec(j)
		r.dual = math.Max(r.dual, math.Abs(d))
		r.dualScale = math.Max(r.dualScale, math.Max(math.Abs(px.AtVec(j)), math.Max(math.Abs(aty.AtVec(j)), math.Abs(prob.q[j]))))
	}
	return r
}

// primalInfeasible tests the certificate ‖Aᵀδy‖ small and
// uᵀmax(δy,0) + lᵀmin(δy,0) < 0.
func primalInfeasible(prob *qpProblem, y, yPrev []float64, eps float64) bool {
	m := len(y)
	dy := make([]float64, m)
	norm := 0.0
	for i := range dy {
		dy[i] = y[i] - yPrev[i]
		norm = math.Max(norm, math.Abs(dy[i]))
	}
	if norm < 1e-12 {
		return false
	}
	var atdy mat.VecDense
	atdy.MulVec(prob.A.T(), mat.NewVecDense(m, dy))
	for j := 0; j < atdy.Len(); j++ {
		if math.Abs(atdy.AtVec(j)) >= eps*norm {
			return false
		}
	}
	support := 0.0
	for i, d := range dy {
		switch {
		case d > eps*norm:
			if math.IsInf(prob.u[i], 1) {
				return false
			}
			support += prob.u[i] * d
		case d < -eps*norm:
			if math.IsInf(prob.l[i], -1) {
				return false
			}
			support += prob.l[i] * d
		}
	}
	return support < -eps*norm
}

// polish solves the equality-constrained QP on the guessed active set:
//
//	[P+δI  Aᵣᵀ] [x]   [-q]
//	[Aᵣ   -δI] [y] = [ b]
//
// with iterative refinement against the unregularized system.
func polish(prob *qpProblem, z, y []float64) ([]float64, []float64, bool) {
	const delta = 1e-9
	n := len(prob.q)

	var rows []int
	var b []float64
	for i := range prob.l {
		switch {
		case prob.l[i] == prob.u[i]:
			rows = append(rows, i)
			b = append(b, prob.l[i])
		case z[i]-prob.l[i] < -y[i]:
			rows = append(rows, i)
			b = append(b, prob.l[i])
		case prob.u[i]-z[i] < y[i]:
			rows = append(rows, i)
			b = append(b, prob.u[i])
		}
	}

	size := n + len(rows)
	exact := mat.NewDense(size, size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			exact.Set(i, j, prob.P.At(i, j))
		}
	}
	for r, row := range rows {
		for j := 0; j < n; j++ {
			a := prob.A.At(row, j)
			exact.Set(n+r, j, a)
			exact.Set(j, n+r, a)
		}
	}
	reg := mat.DenseCopyOf(exact)
	for i := 0; i < size; i++ {
		if i < n {
			reg.Set(i, i, reg.At(i, i)+delta)
		} else {
			reg.Set(i, i, -delta)
		}
	}

	rhs := mat.NewVecDense(size, nil)
	for j := 0; j < n; j++ {
		rhs.SetVec(j, -prob.q[j])
	}
	for r := range rows {
		rhs.SetVec(n+r, b[r])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(reg, rhs); err != nil {
		return nil, nil, false
	}
	for k := 0; k < 3; k++ {
		var kx, resid, step mat.VecDense
		kx.MulVec(exact, &sol)
		resid.SubVec(rhs, &kx)
		if err := step.SolveVec(reg, &resid); err != nil {
			break
		}
		sol.AddVec(&sol, &step)
	}

	x := make([]float64, n)
	for j := range x {
		x[j] = sol.AtVec(j)
		if math.IsNaN(x[j]) || math.IsInf(x[j], 0) {
			return nil, nil, false
		}
	}
	yFull := make([]float64, len(prob.l))
	for r, row := range rows {
		yFull[row] = sol.AtVec(n + r)
	}
	return x, yFull, true
}

func objective(prob *qpProblem, x []float64) float64 {
	v := mat.NewVecDense(len(x), x)
	return 0.5*mat.Inner(v, prob.P, v) + mat.Dot(mat.NewVecDense(len(prob.q), prob.q), v)
}

// violation is the largest amount by which Ax leaves [l, u].
func violation(prob *qpProblem, x []float64) float64 {
	var ax mat.VecDense
	ax.MulVec(prob.A, mat.NewVecDense(len(x), x))
	worst := 0.0
	for i := range prob.l {
		v := ax.AtVec(i)
		worst = math.Max(worst, math.Max(prob.l[i]-v, v-prob.u[i]))
	}
	return worst
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
