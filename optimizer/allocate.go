package optimizer

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/allocator/covariance"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/portfolio"
)

type Method string

const (
	MethodMinVariance     Method = "min_variance"
	MethodEfficientReturn Method = "efficient_return"
	MethodMeanVariance    Method = "mean_variance"
	MethodRiskParity      Method = "risk_parity"
	MethodEqualWeight     Method = "equal_weight"
)

// Methods lists every allocation method accepted by Allocate.
var Methods = []Method{
	MethodMinVariance,
	MethodEfficientReturn,
	MethodMeanVariance,
	MethodRiskParity,
	MethodEqualWeight,
}

// TurnoverSpec is the per-run turnover treatment. The prior is supplied per
// call to Allocate.
type TurnoverSpec struct {
	Penalty float64 `json:"penalty" yaml:"penalty"`
	Cap     float64 `json:"cap" yaml:"cap"`
	CostBps float64 `json:"cost_bps" yaml:"cost_bps"`
}

// Spec describes how to turn a return series into weights.
type Spec struct {
	Method       Method             `json:"method" yaml:"method"`
	Covariance   covariance.Options `json:"covariance" yaml:"covariance"`
	Bounds       portfolio.Bounds   `json:"bounds" yaml:"bounds"`
	TargetReturn float64            `json:"target_return" yaml:"target_return"`
	RiskAversion float64            `json:"risk_aversion" yaml:"risk_aversion"`

	// Budgets are risk-parity budgets by asset; missing assets get the
	// average of the given budgets, nil means equal risk.
	Budgets map[string]float64 `json:"budgets,omitempty" yaml:"budgets,omitempty"`

	Views []View  `json:"views,omitempty" yaml:"views,omitempty"`
	Tau   float64 `json:"tau,omitempty" yaml:"tau,omitempty"`

	Turnover *TurnoverSpec `json:"turnover,omitempty" yaml:"turnover,omitempty"`
}

func (s Spec) withDefaults() Spec {
	if s.Method == "" {
		s.Method = MethodMinVariance
	}
	if s.Bounds == (portfolio.Bounds{}) {
		s.Bounds = portfolio.LongOnly()
	}
	if s.RiskAversion == 0 {
		s.RiskAversion = 1
	}
	if s.Covariance.PeriodsPerYear <= 0 {
		s.Covariance.PeriodsPerYear = covariance.DefaultPeriodsPerYear
	}
	return s
}

// Validate checks the parts of the spec that do not depend on data.
func (s Spec) Validate() error {
	s = s.withDefaults()
	known := false
	for _, m := range Methods {
		if s.Method == m {
			known = true
		}
	}
	if !known {
		return portfolio.Configuration("unknown allocation method %q", s.Method)
	}
	if s.RiskAversion < 0 {
		return portfolio.Configuration("risk aversion must be positive")
	}
	if s.Turnover != nil && (s.Turnover.Penalty < 0 || s.Turnover.Cap < 0 || s.Turnover.CostBps < 0) {
		return portfolio.Configuration("turnover penalty, cap and cost must be non-negative")
	}
	if s.Turnover != nil && s.Turnover.Penalty > 0 && (s.Method == MethodRiskParity || s.Method == MethodEqualWeight) {
		return portfolio.Configuration("%s has no objective for a turnover penalty; use a turnover cap", s.Method)
	}
	return s.Covariance.Validate()
}

// Allocate estimates covariance and expected returns from rs, applies any
// views, and runs the spec's method. prior is the current book and is the
// turnover reference when the spec has a turnover treatment; nil means no
// prior.
//
// For risk parity a non-converged result is returned together with its
// *portfolio.ConvergenceError.
func (o *Optimizer) Allocate(rs *market.ReturnSeries, spec Spec, prior []float64) (*Portfolio, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	spec = spec.withDefaults()
	if spec.Covariance.Log == nil {
		spec.Covariance.Log = o.log
	}

	assets := rs.Assets()
	cov, err := covariance.Estimate(rs, spec.Covariance)
	if err != nil {
		return nil, err
	}
	mu := rs.AnnualizedMean(spec.Covariance.PeriodsPerYear)

	var degraded string
	if len(spec.Views) > 0 {
		post, err := o.BlackLitterman(assets, mu, cov, spec.Views, spec.Tau)
		if err != nil {
			return nil, err
		}
		mu = post.Mean
		if post.Degraded {
			degraded = post.Reason
		}
	}

	p := Problem{
		Assets:   assets,
		Expected: mu,
		Cov:      cov,
		Bounds:   spec.Bounds,
	}
	if spec.Turnover != nil && prior != nil {
		p.Turnover = &Turnover{
			Prior:   prior,
			Penalty: spec.Turnover.Penalty,
			Cap:     spec.Turnover.Cap,
			CostBps: spec.Turnover.CostBps,
		}
	}

	var pf *Portfolio
	switch spec.Method {
	case MethodMinVariance:
		pf, err = o.MinVariance(p)
	case MethodEfficientReturn:
		pf, err = o.EfficientReturn(p, spec.TargetReturn)
	case MethodMeanVariance:
		pf, err = o.MeanVariance(p, spec.RiskAversion)
	case MethodRiskParity:
		pf, err = o.RiskParity(p, budgetVector(assets, spec.Budgets))
	case MethodEqualWeight:
		pf, err = o.EqualWeight(p)
	}
	var ce *portfolio.ConvergenceError
	if err != nil && !(errors.As(err, &ce) && pf != nil) {
		return nil, err
	}
	if degraded != "" {
		if pf.Diagnostics.Reason != "" {
			degraded = pf.Diagnostics.Reason + "; " + degraded
		}
		pf.Diagnostics.Degraded = true
		pf.Diagnostics.Reason = degraded
	}

	o.log.WithFields(logrus.Fields{
		"method":   spec.Method,
		"assets":   len(assets),
		"obs":      rs.Len(),
		"expected": pf.ExpectedReturn,
		"vol":      pf.Volatility,
	}).Debug("allocated")
	return pf, err
}

// EqualWeight returns 1/n in every asset. 1/n always lies inside feasible
// bounds.
func (o *Optimizer) EqualWeight(p Problem) (*Portfolio, error) {
	if err := p.validate(false); err != nil {
		return nil, err
	}
	if err := p.Turnover.rejectPenalty(MethodEqualWeight); err != nil {
		return nil, err
	}
	w, capped := capTurnover(p, portfolio.Equal(p.Assets).Values)
	out := o.describe(p, w)
	out.Diagnostics = Diagnostics{
		Method:    string(MethodEqualWeight),
		Converged: true,
		Degraded:  capped != "",
		Reason:    capped,
	}
	return out, nil
}

func budgetVector(assets []string, budgets map[string]float64) []float64 {
	if len(budgets) == 0 {
		return nil
	}
	avg := 0.0
	for _, v := range budgets {
		avg += v
	}
	avg /= float64(len(budgets))
	out := make([]float64, len(assets))
	for i, a := range assets {
		if v, ok := budgets[a]; ok {
			out[i] = v
		} else {
			out[i] = avg
		}
	}
	return out
}
