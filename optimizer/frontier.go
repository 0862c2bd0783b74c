package optimizer

import (
	"math"

	"github.com/rustyeddy/allocator/portfolio"
)

// FrontierPoint is one solved portfolio on the efficient frontier.
type FrontierPoint struct {
	TargetReturn       float64           `json:"target_return"`
	ExpectedReturn     float64           `json:"expected_return"`
	Volatility         float64           `json:"volatility"`
	Weights            portfolio.Weights `json:"weights"`
	Turnover           float64           `json:"turnover"`
	CostAdjustedReturn float64           `json:"cost_adjusted_return"`
}

// Frontier is ordered by increasing target return.
type Frontier []FrontierPoint

// Volatilities returns the volatility of every point in order.
func (f Frontier) Volatilities() []float64 {
	out := make([]float64, len(f))
	for i, pt := range f {
		out[i] = pt.Volatility
	}
	return out
}

// Frontier scans points target returns evenly spaced between the minimum
// and maximum feasible portfolio returns. Targets at or below the return of
// the minimum-variance portfolio share its solution. A universe whose
// feasible return range is a single value yields exactly one point.
func (o *Optimizer) Frontier(p Problem, points int) (Frontier, error) {
	if points < 1 {
		return nil, portfolio.Configuration("frontier needs at least 1 point, got %d", points)
	}
	if err := p.validate(true); err != nil {
		return nil, err
	}

	lo := minReturn(p.Expected, p.Bounds)
	hi := maxReturn(p.Expected, p.Bounds)

	mvp, err := o.MinVariance(p)
	if err != nil {
		return nil, err
	}
	if hi-lo <= 1e-12*math.Max(1, math.Abs(hi)) || points == 1 {
		return Frontier{o.point(p, mvp.ExpectedReturn, mvp)}, nil
	}

	out := make(Frontier, 0, points)
	for k := 0; k < points; k++ {
		target := lo + (hi-lo)*float64(k)/float64(points-1)
		if k == points-1 {
			target = hi
		}
		if target <= mvp.ExpectedReturn {
			out = append(out, o.point(p, target, mvp))
			continue
		}
		pf, err := o.EfficientReturn(p, target)
		if err != nil {
			return nil, err
		}
		out = append(out, o.point(p, target, pf))
	}

	o.log.WithField("points", len(out)).Debug("frontier solved")
	return out, nil
}

func (o *Optimizer) point(p Problem, target float64, pf *Portfolio) FrontierPoint {
	fp := FrontierPoint{
		TargetReturn:       target,
		ExpectedReturn:     pf.ExpectedReturn,
		Volatility:         pf.Volatility,
		Weights:            pf.Weights,
		CostAdjustedReturn: pf.ExpectedReturn,
	}
	if pf.Costs != nil {
		fp.Turnover = pf.Costs.Turnover
		fp.CostAdjustedReturn = pf.Costs.NetReturn
	}
	return fp
}
