package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/journal"
	"github.com/rustyeddy/allocator/risk"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Simulate allocation policies over history",
	Long: `Replay one or more policies over the configured period. Each rebalance
decides on prices strictly before the rebalance date and trades at its close.

Policies:
  - any optimizer method (min_variance, risk_parity, ...): refit at every rebalance
  - equal_weight: 1/N at every rebalance
  - ASSET=W,...: fixed target weights, e.g. SPY=0.6,AGG=0.4

Every run is recorded in the journal. Risk limits from the config are
checked against each run.

Example:
  allocator backtest -c allocator.yaml -p min_variance -p SPY=0.6,AGG=0.4 --report`,
	RunE: runBacktest,
}

var (
	btPolicies []string
	btReport   bool
	btJSON     bool
	btNoRecord bool
	btBrief    bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.Flags().StringArrayVarP(&btPolicies, "policy", "p", nil, "policy to simulate, repeatable (default optimizer.method)")
	backtestCmd.Flags().BoolVar(&btReport, "report", false, "write report, chart and CSVs under journal.report_dir")
	backtestCmd.Flags().BoolVar(&btJSON, "json", false, "print results as JSON")
	backtestCmd.Flags().BoolVar(&btNoRecord, "no-record", false, "do not record runs in the journal")
	backtestCmd.Flags().BoolVar(&btBrief, "brief", false, "print a plain-text summary instead of the report")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := ctxOf(cmd)

	h, err := loadPrices()
	if err != nil {
		return err
	}
	bt, err := cfg.BacktestConfig()
	if err != nil {
		return err
	}
	bt.Log = log
	engine, err := backtest.NewEngine(h, bt)
	if err != nil {
		return err
	}

	names := btPolicies
	if len(names) == 0 {
		names = []string{cfg.Optimizer.Method}
	}
	var policies []backtest.Policy
	for _, n := range names {
		p, err := policyFor(n)
		if err != nil {
			return err
		}
		policies = append(policies, p)
	}

	runner := &backtest.Runner{Engine: engine, Policies: policies, Limits: cfg.Limits}
	results, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	var j *journal.SQLite
	if !btNoRecord {
		if j, err = openJournal(); err != nil {
			return err
		}
		defer j.Close()
	}

	for _, res := range results {
		run := res.Run
		dd, err := risk.Analyze(run.Dates, run.Equity)
		if err != nil {
			return err
		}

		id := ""
		if j != nil {
			id, err = j.RecordRun(ctx, journal.Entry{Kind: journal.KindBacktest, Run: run, Extra: res.Decision})
			if err != nil {
				return fmt.Errorf("record run: %w", err)
			}
		}
		log.WithFields(logrus.Fields{
			"run":     id,
			"policy":  run.Policy,
			"sharpe":  run.Stats.Sharpe,
			"allowed": res.Decision.Allowed,
		}).Info("backtest recorded")

		if btJSON {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			continue
		}
		if btBrief {
			backtest.PrintRun(cmd.OutOrStdout(), run)
			continue
		}

		decision := res.Decision
		rep := journal.Report{
			Title:    "Backtest: " + run.Policy,
			RunID:    id,
			Run:      run,
			Drawdown: dd,
			Decision: &decision,
		}
		if btReport && id != "" {
			if err := writeArtifacts(reportDir(id), rep); err != nil {
				return err
			}
		}
		if err := renderReport(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	}
	return nil
}
