package journal

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/montecarlo"
	"github.com/rustyeddy/allocator/risk"
	"github.com/rustyeddy/allocator/walkforward"
)

// Report is the input of the markdown report. Every section is optional.
type Report struct {
	Title     string
	RunID     string
	Generated time.Time
	Chart     string // path of the equity chart, relative to the report

	Run         *backtest.Run
	Drawdown    *risk.Report
	Decision    *risk.Decision
	WalkForward *walkforward.Result
	MonteCarlo  *montecarlo.Summary

	// MaxEvents caps the drawdown table; 0 means 5.
	MaxEvents int
}

var reportFuncs = template.FuncMap{
	"pct":  func(x float64) string { return fmt.Sprintf("%.2f%%", 100*x) },
	"f2":   func(x float64) string { return fmt.Sprintf("%.2f", x) },
	"f4":   func(x float64) string { return fmt.Sprintf("%.4f", x) },
	"bps":  func(x float64) string { return fmt.Sprintf("%.1f bps", 1e4*x) },
	"date": func(t time.Time) string { return t.Format(market.DateLayout) },
	"first": func(ts []time.Time) time.Time {
		if len(ts) == 0 {
			return time.Time{}
		}
		return ts[0]
	},
	"last": func(ts []time.Time) time.Time {
		if len(ts) == 0 {
			return time.Time{}
		}
		return ts[len(ts)-1]
	},
	"top": func(evs []risk.Event, n int) []risk.Event {
		if len(evs) > n {
			return evs[:n]
		}
		return evs
	},
}

const reportTemplate = `# {{ .Title }}
{{ if .RunID }}
Run ` + "`{{ .RunID }}`" + ` · generated {{ .Generated.Format "2006-01-02 15:04 MST" }}
{{ end }}
{{- with .Run }}
## Summary

| | |
|---|---|
| Policy | {{ .Policy }} |
| Assets | {{ range $i, $a := .Assets }}{{ if $i }}, {{ end }}{{ $a }}{{ end }} |
| Period | {{ date (first .Dates) }} .. {{ date (last .Dates) }} ({{ .Stats.Periods }} periods) |
| Rebalance | {{ if .Config.Rebalance }}{{ .Config.Rebalance }}{{ else }}initial only{{ end }} |
| Cost | {{ .Config.CostBps }} bps |

## Performance

| Metric | Value |
|---|---|
| Total return | {{ pct .Stats.TotalReturn }} |
| CAGR | {{ pct .Stats.CAGR }} |
| Volatility | {{ pct .Stats.Volatility }} |
| Sharpe | {{ f2 .Stats.Sharpe }} |
| Sortino | {{ f2 .Stats.Sortino }} |
| Max drawdown | {{ pct .Stats.MaxDrawdown }} |
| Longest drawdown | {{ .Stats.LongestDrawdown }} periods |
| Rebalances | {{ .Stats.Rebalances }} |
| Annual turnover | {{ f2 .Stats.AnnualTurnover }} |
| Total cost | {{ bps .Stats.TotalCost }} |
{{ with .Stats.Benchmark }}
## Versus {{ $.Run.Config.Benchmark }}

| Metric | Value |
|---|---|
| Benchmark return | {{ pct .TotalReturn }} |
| Benchmark Sharpe | {{ f2 .Sharpe }} |
| Benchmark max drawdown | {{ pct .MaxDrawdown }} |
| Beta | {{ f2 .Beta }} |
| Alpha | {{ pct .Alpha }} |
| Correlation | {{ f2 .Correlation }} |
| Tracking error | {{ pct .TrackingError }} |
| Information ratio | {{ f2 .InformationRatio }} |
{{ end }}
{{- if .Weights }}
## Final weights

| Asset | Weight |
|---|---|
{{ range $i, $a := .Assets }}| {{ $a }} | {{ pct (index $.Run.Weights $i) }} |
{{ end }}{{ end }}{{ end }}
{{- if .Chart }}
![equity]({{ .Chart }})
{{ end }}
{{- with .Drawdown }}
## Drawdowns

Max {{ pct .MaxDrawdown }}, average {{ pct .AverageDrawdown }}, current {{ pct .Current }}, longest {{ .LongestDuration }} periods.
{{ if .Events }}
| Peak | Trough | Recovery | Depth | Periods |
|---|---|---|---|---|
{{ range top .Events $.MaxEvents }}| {{ date .Peak }} | {{ date .Trough }} | {{ if .Recovery }}{{ date .Recovery }}{{ else }}open{{ end }} | {{ pct .Depth }} | {{ .Duration }} |
{{ end }}{{ end }}{{ end }}
{{- with .Decision }}
## Risk limits

{{ if .Allowed }}All limits respected.{{ else }}{{ range .Violations }}- **{{ .Code }}**: {{ .Msg }}
{{ end }}{{ end }}
{{ end }}
{{- with .WalkForward }}
## Walk-forward

| | |
|---|---|
| Windows | {{ len .Windows }} |
| In-sample Sharpe | {{ f2 .InSampleSharpe }} |
| Out-of-sample Sharpe | {{ f2 .OutOfSampleSharpe }} |
| Degradation | {{ pct .Degradation }} |
| Overfitting | {{ .Overfitting }} |
| Consistency | {{ pct .Consistency }} |

| # | Train | Test | IS Sharpe | OOS Sharpe | OOS return | Turnover |
|---|---|---|---|---|---|---|
{{ range .Windows }}| {{ .Window.Index }} | {{ date .Window.TrainStart }} .. {{ date .Window.TrainEnd }} | {{ date .Window.TestStart }} .. {{ date .Window.TestEnd }} | {{ f2 .InSample.Sharpe }} | {{ f2 .OutOfSample.Sharpe }} | {{ pct .OutOfSample.TotalReturn }} | {{ f4 .Turnover }} |
{{ end }}{{ end }}
{{- with .MonteCarlo }}
## Monte Carlo

{{ .Paths }} paths of {{ .Horizon }} periods, block size {{ .BlockSize }}, seed {{ .Seed }}. Probability of a positive return: {{ pct .ProbPositive }}.

| | Mean | P5 | P25 | P50 | P75 | P95 |
|---|---|---|---|---|---|---|
| Terminal return | {{ pct .TerminalReturn.Mean }} | {{ pct .TerminalReturn.P5 }} | {{ pct .TerminalReturn.P25 }} | {{ pct .TerminalReturn.P50 }} | {{ pct .TerminalReturn.P75 }} | {{ pct .TerminalReturn.P95 }} |
| Sharpe | {{ f2 .Sharpe.Mean }} | {{ f2 .Sharpe.P5 }} | {{ f2 .Sharpe.P25 }} | {{ f2 .Sharpe.P50 }} | {{ f2 .Sharpe.P75 }} | {{ f2 .Sharpe.P95 }} |
| Max drawdown | {{ pct .MaxDrawdown.Mean }} | {{ pct .MaxDrawdown.P5 }} | {{ pct .MaxDrawdown.P25 }} | {{ pct .MaxDrawdown.P50 }} | {{ pct .MaxDrawdown.P75 }} | {{ pct .MaxDrawdown.P95 }} |
{{ end }}`

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplate))

// WriteReport renders r as markdown.
func WriteReport(w io.Writer, r Report) error {
	if r.Title == "" {
		r.Title = "Allocation Report"
	}
	if r.Generated.IsZero() {
		r.Generated = time.Now()
	}
	if r.MaxEvents <= 0 {
		r.MaxEvents = 5
	}
	if err := reportTmpl.Execute(w, r); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}
