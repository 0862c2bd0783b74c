package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/journal"
	"github.com/rustyeddy/allocator/montecarlo"
	"github.com/rustyeddy/allocator/portfolio"
)

var montecarloCmd = &cobra.Command{
	Use:   "montecarlo",
	Short: "Stress-test an allocation on resampled history",
	Long: `Fit weights with the configured method (or take them from --weights) and
replay them over block-bootstrap resamples of the period's returns. Paths
are reproducible for a given seed.

Example:
  allocator montecarlo -c allocator.yaml --paths 2000 --block 20 --seed 7`,
	RunE: runMonteCarlo,
}

var (
	mcWeights string
	mcPaths   int
	mcBlock   int
	mcHorizon int
	mcSeed    uint64
	mcJSON    bool
)

func init() {
	rootCmd.AddCommand(montecarloCmd)
	montecarloCmd.Flags().StringVarP(&mcWeights, "weights", "w", "", "fixed weights ASSET=W,... instead of fitting")
	montecarloCmd.Flags().IntVar(&mcPaths, "paths", 0, "override montecarlo.paths")
	montecarloCmd.Flags().IntVar(&mcBlock, "block", 0, "override montecarlo.block_size")
	montecarloCmd.Flags().IntVar(&mcHorizon, "horizon", 0, "override montecarlo.horizon")
	montecarloCmd.Flags().Uint64Var(&mcSeed, "seed", 0, "override montecarlo.seed")
	montecarloCmd.Flags().BoolVar(&mcJSON, "json", false, "print the summary as JSON")
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	if mcPaths > 0 {
		cfg.MonteCarlo.Paths = mcPaths
	}
	if mcBlock > 0 {
		cfg.MonteCarlo.BlockSize = mcBlock
	}
	if mcHorizon > 0 {
		cfg.MonteCarlo.Horizon = mcHorizon
	}
	if cmd.Flags().Changed("seed") {
		cfg.MonteCarlo.Seed = mcSeed
	}

	h, err := loadPrices()
	if err != nil {
		return err
	}
	start, end, err := cfg.Period()
	if err != nil {
		return err
	}
	sel, err := h.Select(cfg.Universe.Tickers...)
	if err != nil {
		return portfolio.DataInsufficient("%v", err)
	}
	if sel, err = sel.Between(start, end); err != nil {
		return err
	}
	history, err := sel.Returns()
	if err != nil {
		return err
	}

	var w portfolio.Weights
	if mcWeights != "" {
		if w, err = parseWeights(mcWeights); err != nil {
			return err
		}
	} else {
		rs, err := fitReturns(h)
		if err != nil {
			return err
		}
		spec := cfg.Spec()
		spec.Covariance.Log = log
		pf, err := newOptimizer().Allocate(rs, spec, nil)
		var ce *portfolio.ConvergenceError
		if errors.As(err, &ce) && pf != nil {
			log.WithError(err).Warn("using best iterate")
			err = nil
		}
		if err != nil {
			return err
		}
		w = pf.Weights
	}
	log.WithField("weights", w.String()).Info("stress-testing allocation")

	mc := cfg.MonteCarloConfig()
	mc.Log = log
	sum, err := montecarlo.Run(history, w, mc)
	if err != nil {
		return err
	}

	if mcJSON {
		return writeJSON(cmd.OutOrStdout(), sum)
	}
	return renderReport(cmd.OutOrStdout(), journal.Report{
		Title:      "Monte Carlo: " + w.String(),
		MonteCarlo: sum,
	})
}
