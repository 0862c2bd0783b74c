package backtest

import (
	"context"
	"fmt"

	"github.com/rustyeddy/allocator/risk"
)

// Runner replays several policies over one engine and checks each run
// against risk limits.
type Runner struct {
	Engine   *Engine
	Policies []Policy
	Limits   risk.Limits
}

// Result pairs a run with its limit check.
type Result struct {
	Run      *Run          `json:"run"`
	Decision risk.Decision `json:"decision"`
}

// Run simulates every policy in order. ctx is checked between policies.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	if r.Engine == nil {
		return nil, fmt.Errorf("backtest: Engine is required")
	}
	if len(r.Policies) == 0 {
		return nil, fmt.Errorf("backtest: at least one Policy is required")
	}
	if err := r.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	out := make([]Result, 0, len(r.Policies))
	for _, p := range r.Policies {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		run, err := r.Engine.Run(p)
		if err != nil {
			return out, err
		}
		out = append(out, Result{
			Run:      run,
			Decision: risk.Evaluate(r.Limits, run.Stats.Metrics()),
		})
	}
	return out, nil
}
