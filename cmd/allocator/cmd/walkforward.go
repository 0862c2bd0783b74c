package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/journal"
	"github.com/rustyeddy/allocator/risk"
	"github.com/rustyeddy/allocator/walkforward"
)

var walkforwardCmd = &cobra.Command{
	Use:   "walkforward",
	Short: "Validate the allocation method out of sample",
	Long: `Fit on a trailing (rolling) or growing (anchored) train range, hold the
weights over the following test range, and roll forward. The test segments
are chained into one out-of-sample run and compared with the in-sample fit.

Example:
  allocator walkforward -c allocator.yaml --train 504 --test 63 --mode anchored`,
	RunE: runWalkForward,
}

var (
	wfMethod string
	wfTrain  int
	wfTest   int
	wfMode   string
	wfReport bool
	wfJSON   bool
)

func init() {
	rootCmd.AddCommand(walkforwardCmd)
	walkforwardCmd.Flags().StringVarP(&wfMethod, "method", "m", "", "override optimizer.method")
	walkforwardCmd.Flags().IntVar(&wfTrain, "train", 0, "override walkforward.train_periods")
	walkforwardCmd.Flags().IntVar(&wfTest, "test", 0, "override walkforward.test_periods")
	walkforwardCmd.Flags().StringVar(&wfMode, "mode", "", "override walkforward.mode (rolling or anchored)")
	walkforwardCmd.Flags().BoolVar(&wfReport, "report", false, "write report, chart and CSVs under journal.report_dir")
	walkforwardCmd.Flags().BoolVar(&wfJSON, "json", false, "print the result as JSON")
}

func runWalkForward(cmd *cobra.Command, args []string) error {
	ctx := ctxOf(cmd)
	if wfTrain > 0 {
		cfg.WalkForward.TrainPeriods = wfTrain
	}
	if wfTest > 0 {
		cfg.WalkForward.TestPeriods = wfTest
	}
	if wfMode != "" {
		cfg.WalkForward.Mode = wfMode
	}
	if wfMethod != "" {
		cfg.Optimizer.Method = wfMethod
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	h, err := loadPrices()
	if err != nil {
		return err
	}
	wcfg, err := cfg.WalkForwardConfig()
	if err != nil {
		return err
	}
	wcfg.Log = log
	wcfg.Spec.Covariance.Log = log

	res, err := walkforward.New(newOptimizer(), log).Run(h, wcfg)
	if err != nil {
		return err
	}
	if wfJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	decision := risk.Evaluate(cfg.Limits, res.OutOfSample.Stats.Metrics())

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()
	id, err := j.RecordRun(ctx, journal.Entry{
		Kind:  journal.KindWalkForward,
		Run:   res.OutOfSample,
		Extra: walkForwardSummary(res),
	})
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	rep := journal.Report{
		Title:       "Walk-forward: " + cfg.Optimizer.Method,
		RunID:       id,
		Run:         res.OutOfSample,
		Drawdown:    res.Drawdown,
		Decision:    &decision,
		WalkForward: res,
	}
	if wfReport {
		if err := writeArtifacts(reportDir(id), rep); err != nil {
			return err
		}
	}
	return renderReport(cmd.OutOrStdout(), rep)
}

// walkForwardSummary is what the journal keeps beside the out-of-sample run.
func walkForwardSummary(res *walkforward.Result) map[string]any {
	return map[string]any{
		"windows":              res.Windows,
		"in_sample_sharpe":     res.InSampleSharpe,
		"out_of_sample_sharpe": res.OutOfSampleSharpe,
		"degradation":          res.Degradation,
		"overfitting":          res.Overfitting,
		"consistency":          res.Consistency,
		"thresholds":           res.Thresholds,
	}
}
