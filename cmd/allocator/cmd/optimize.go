package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/optimizer"
	"github.com/rustyeddy/allocator/portfolio"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compute target weights from the latest history",
	Long: `Estimate covariance and expected returns over the optimizer lookback and
solve for target weights with the configured method.

Methods: min_variance, efficient_return, mean_variance, risk_parity, equal_weight.
Black-Litterman views in the config adjust expected returns for any method.

Example:
  allocator optimize -c allocator.yaml --method risk_parity`,
	RunE: runOptimize,
}

var (
	optMethod string
	optJSON   bool
)

func init() {
	rootCmd.AddCommand(optimizeCmd)
	optimizeCmd.Flags().StringVarP(&optMethod, "method", "m", "", "override optimizer.method")
	optimizeCmd.Flags().BoolVar(&optJSON, "json", false, "print the result as JSON")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	if err := applyMethod(optMethod); err != nil {
		return err
	}
	h, err := loadPrices()
	if err != nil {
		return err
	}
	rs, err := fitReturns(h)
	if err != nil {
		return err
	}

	spec := cfg.Spec()
	spec.Covariance.Log = log
	pf, err := newOptimizer().Allocate(rs, spec, nil)
	var ce *portfolio.ConvergenceError
	if errors.As(err, &ce) && pf != nil {
		log.WithError(err).Warn("returning best iterate")
		err = nil
	}
	if err != nil {
		return err
	}

	if optJSON {
		return writeJSON(cmd.OutOrStdout(), pf)
	}
	return render(cmd.OutOrStdout(), portfolioMarkdown(rs, pf))
}

func portfolioMarkdown(rs *market.ReturnSeries, pf *optimizer.Portfolio) string {
	var b strings.Builder
	dates := rs.Dates()
	fmt.Fprintf(&b, "# %s\n\n", pf.Diagnostics.Method)
	fmt.Fprintf(&b, "Fit on %d returns, %s .. %s.\n\n",
		rs.Len(), dates[0].Format(market.DateLayout), dates[len(dates)-1].Format(market.DateLayout))

	b.WriteString("| Asset | Weight | Risk contribution |\n|---|---|---|\n")
	for i, a := range pf.Weights.Assets {
		rc := 0.0
		if i < len(pf.RiskContributions) {
			rc = pf.RiskContributions[i]
		}
		fmt.Fprintf(&b, "| %s | %.2f%% | %.2f%% |\n", a, 100*pf.Weights.Values[i], 100*rc)
	}

	fmt.Fprintf(&b, "\n| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Expected return | %.2f%% |\n", 100*pf.ExpectedReturn)
	fmt.Fprintf(&b, "| Volatility | %.2f%% |\n", 100*pf.Volatility)
	if c := pf.Costs; c != nil {
		fmt.Fprintf(&b, "| Turnover | %.4f |\n", c.Turnover)
		fmt.Fprintf(&b, "| Net return | %.2f%% |\n", 100*c.NetReturn)
	}
	d := pf.Diagnostics
	fmt.Fprintf(&b, "| Iterations | %d |\n", d.Iterations)
	fmt.Fprintf(&b, "| Converged | %t |\n", d.Converged)
	if d.Degraded {
		fmt.Fprintf(&b, "| Degraded | %s |\n", d.Reason)
	}
	return b.String()
}
