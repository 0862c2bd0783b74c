package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/allocator/journal"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/risk"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Query the run journal",
	Long: `List, show, export and delete recorded runs.

Examples:
  allocator runs list -n 10
  allocator runs show 01HV7Z6K3B2Q9X1T4M8N5P0R7S
  allocator runs export 01HV7Z6K3B2Q9X1T4M8N5P0R7S -o ./out`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the report of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write report, chart and CSVs of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var (
	runsLimit int
	runsOut   string
)

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsExportCmd, runsDeleteCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "number of runs to list (0 = all)")
	runsExportCmd.Flags().StringVarP(&runsOut, "output", "o", "", "output directory (default journal.report_dir/<run-id>)")
}

func runRunsList(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.ListRuns(ctxOf(cmd), runsLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	var b strings.Builder
	b.WriteString("| Run | Kind | Policy | Period | Return | Sharpe | Max DD |\n|---|---|---|---|---|---|---|\n")
	for _, r := range recs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s .. %s | %.2f%% | %.2f | %.2f%% |\n",
			r.ID, r.Kind, r.Policy,
			r.Start.Format(market.DateLayout), r.End.Format(market.DateLayout),
			100*r.Stats.TotalReturn, r.Stats.Sharpe, 100*r.Stats.MaxDrawdown)
	}
	return render(cmd.OutOrStdout(), b.String())
}

func loadReport(cmd *cobra.Command, id string) (journal.Report, error) {
	j, err := openJournal()
	if err != nil {
		return journal.Report{}, err
	}
	defer j.Close()

	run, rec, err := j.LoadRun(ctxOf(cmd), id)
	if err != nil {
		return journal.Report{}, err
	}
	dd, err := risk.Analyze(run.Dates, run.Equity)
	if err != nil {
		return journal.Report{}, err
	}
	decision := risk.Evaluate(cfg.Limits, run.Stats.Metrics())
	return journal.Report{
		Title:     fmt.Sprintf("%s: %s", rec.Kind, rec.Policy),
		RunID:     rec.ID,
		Generated: rec.Created,
		Run:       run,
		Drawdown:  dd,
		Decision:  &decision,
	}, nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	rep, err := loadReport(cmd, args[0])
	if err != nil {
		return err
	}
	return renderReport(cmd.OutOrStdout(), rep)
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	rep, err := loadReport(cmd, args[0])
	if err != nil {
		return err
	}
	dir := runsOut
	if dir == "" {
		dir = reportDir(rep.RunID)
	}
	if err := writeArtifacts(dir, rep); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %s to %s\n", rep.RunID, dir)
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()
	if err := j.DeleteRun(ctxOf(cmd), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", args[0])
	return nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
