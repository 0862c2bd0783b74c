package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/covariance"
	"github.com/rustyeddy/allocator/optimizer"
)

var frontierCmd = &cobra.Command{
	Use:   "frontier",
	Short: "Trace the efficient frontier",
	Long: `Solve minimum-variance portfolios for evenly spaced target returns between
the lowest and highest feasible portfolio return.

Example:
  allocator frontier -c allocator.yaml --points 15`,
	RunE: runFrontier,
}

var (
	frontierPoints int
	frontierJSON   bool
)

func init() {
	rootCmd.AddCommand(frontierCmd)
	frontierCmd.Flags().IntVarP(&frontierPoints, "points", "n", 0, "number of points (default optimizer.frontier_points)")
	frontierCmd.Flags().BoolVar(&frontierJSON, "json", false, "print the frontier as JSON")
}

func runFrontier(cmd *cobra.Command, args []string) error {
	h, err := loadPrices()
	if err != nil {
		return err
	}
	rs, err := fitReturns(h)
	if err != nil {
		return err
	}

	opts := cfg.CovarianceOptions()
	opts.Log = log
	cov, err := covariance.Estimate(rs, opts)
	if err != nil {
		return err
	}
	ppy := cfg.Covariance.PeriodsPerYear
	if ppy <= 0 {
		ppy = covariance.DefaultPeriodsPerYear
	}
	mu := rs.AnnualizedMean(ppy)

	opt := newOptimizer()
	if views := cfg.Optimizer.BlackLitterman.Views; len(views) > 0 {
		post, err := opt.BlackLitterman(rs.Assets(), mu, cov, views, cfg.Optimizer.BlackLitterman.Tau)
		if err != nil {
			return err
		}
		mu = post.Mean
	}

	points := frontierPoints
	if points <= 0 {
		points = cfg.Optimizer.FrontierPoints
	}
	f, err := opt.Frontier(optimizer.Problem{
		Assets:   rs.Assets(),
		Expected: mu,
		Cov:      cov,
		Bounds:   cfg.Bounds(),
	}, points)
	if err != nil {
		return err
	}

	if frontierJSON {
		return writeJSON(cmd.OutOrStdout(), f)
	}

	var b strings.Builder
	assets := rs.Assets()
	fmt.Fprintf(&b, "# Efficient frontier\n\n%d points, shrinkage intensity %.3f, condition number %.1f\n\n",
		len(f), cov.Diagnostics.Intensity, cov.Diagnostics.ConditionNumber)
	b.WriteString("| Return | Volatility | " + strings.Join(assets, " | ") + " |\n")
	b.WriteString("|---|---|" + strings.Repeat("---|", len(assets)) + "\n")
	for _, pt := range f {
		fmt.Fprintf(&b, "| %.2f%% | %.2f%% |", 100*pt.ExpectedReturn, 100*pt.Volatility)
		for _, w := range pt.Weights.Values {
			fmt.Fprintf(&b, " %.1f%% |", 100*w)
		}
		b.WriteString("\n")
	}
	return render(cmd.OutOrStdout(), b.String())
}
