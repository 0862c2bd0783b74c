package backtest

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/optimizer"
	"github.com/rustyeddy/allocator/portfolio"
)

// Policy decides target weights at each rebalance.
type Policy interface {
	Name() string
	Target(ctx *Context) (portfolio.Weights, error)
}

// Context is what a policy sees at a decision date. View stops at the row
// before Date, so the closes of Date and later cannot be read.
type Context struct {
	View    market.View
	Date    time.Time
	Current portfolio.Weights // drifted weights before the trade; 1 − Σ is cash
	Count   int               // rebalances already made in this run
}

// FixedWeights rebalances back to the same weights every time.
type FixedWeights struct {
	Weights portfolio.Weights
}

func (p FixedWeights) Name() string { return "fixed" }

func (p FixedWeights) Target(ctx *Context) (portfolio.Weights, error) {
	assets := ctx.View.Assets()
	if len(p.Weights.Assets) == 0 {
		return portfolio.NewWeights(assets, p.Weights.Values), nil
	}
	return portfolio.NewWeights(assets, p.Weights.Align(assets)), nil
}

type EqualWeight struct{}

func (EqualWeight) Name() string { return string(optimizer.MethodEqualWeight) }

func (EqualWeight) Target(ctx *Context) (portfolio.Weights, error) {
	return portfolio.Equal(ctx.View.Assets()), nil
}

// OptimizedPolicy re-fits an allocation on the trailing Lookback returns of
// the view at every rebalance. The drifted book is the turnover prior; an
// all-cash book has none.
type OptimizedPolicy struct {
	Optimizer *optimizer.Optimizer
	Spec      optimizer.Spec
	Lookback  int // periods; 0 uses the whole view
	Log       logrus.FieldLogger
}

func (p *OptimizedPolicy) Name() string {
	m := p.Spec.Method
	if m == "" {
		m = optimizer.MethodMinVariance
	}
	return string(m)
}

func (p *OptimizedPolicy) Target(ctx *Context) (portfolio.Weights, error) {
	rs, err := ctx.View.Returns(p.Lookback)
	if err != nil {
		return portfolio.Weights{}, err
	}
	opt := p.Optimizer
	if opt == nil {
		opt = optimizer.New(optimizer.Options{Log: p.Log})
	}
	var prior []float64
	if ctx.Current.Sum() > 0 {
		prior = ctx.Current.Align(rs.Assets())
	}
	pf, err := opt.Allocate(rs, p.Spec, prior)
	var ce *portfolio.ConvergenceError
	if errors.As(err, &ce) && pf != nil {
		log := p.Log
		if log == nil {
			log = logrus.StandardLogger()
		}
		log.WithFields(logrus.Fields{
			"date":       ctx.Date.Format(market.DateLayout),
			"iterations": ce.Iterations,
			"residual":   ce.Residual,
		}).Warn("using best iterate")
		err = nil
	}
	if err != nil {
		return portfolio.Weights{}, err
	}
	return pf.Weights, nil
}
