package backtest

import (
	"fmt"
	"io"

	"github.com/rustyeddy/allocator/market"
)

// PrintRun writes a plain-text summary of run.
func PrintRun(w io.Writer, run *Run) {
	s := run.Stats
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Policy:        %s\n", run.Policy)
	fmt.Fprintf(w, "Assets:        %v\n", run.Assets)
	if run.Config.Benchmark != "" {
		fmt.Fprintf(w, "Benchmark:     %s\n", run.Config.Benchmark)
	}
	if len(run.Dates) > 0 {
		fmt.Fprintf(w, "Period:        %s .. %s (%d periods)\n",
			run.Dates[0].Format(market.DateLayout), run.Dates[len(run.Dates)-1].Format(market.DateLayout), s.Periods)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Total Return:  %.2f%%\n", 100*s.TotalReturn)
	fmt.Fprintf(w, "CAGR:          %.2f%%\n", 100*s.CAGR)
	fmt.Fprintf(w, "Volatility:    %.2f%%\n", 100*s.Volatility)
	fmt.Fprintf(w, "Sharpe:        %.2f\n", s.Sharpe)
	fmt.Fprintf(w, "Sortino:       %.2f\n", s.Sortino)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", 100*s.MaxDrawdown)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trading")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Rebalances:    %d\n", s.Rebalances)
	fmt.Fprintf(w, "Turnover:      %.4f (%.2f / yr)\n", s.TotalTurnover, s.AnnualTurnover)
	fmt.Fprintf(w, "Cost:          %.2f bps\n", 1e4*s.TotalCost)

	if b := s.Benchmark; b != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Versus Benchmark")
		fmt.Fprintln(w, "--------------------------------------------------")
		fmt.Fprintf(w, "Bench Return:  %.2f%%\n", 100*b.TotalReturn)
		fmt.Fprintf(w, "Beta:          %.2f\n", b.Beta)
		fmt.Fprintf(w, "Alpha:         %.2f%%\n", 100*b.Alpha)
		fmt.Fprintf(w, "Tracking Err:  %.2f%%\n", 100*b.TrackingError)
		fmt.Fprintf(w, "Info Ratio:    %.2f\n", b.InformationRatio)
	}

	if len(run.Weights) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Final Weights")
		fmt.Fprintln(w, "--------------------------------------------------")
		for i, a := range run.Assets {
			fmt.Fprintf(w, "%-14s %6.2f%%\n", a+":", 100*run.Weights[i])
		}
	}
	fmt.Fprintln(w)
}
