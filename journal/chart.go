package journal

import (
	"fmt"
	"math"
	"os"

	charts "github.com/vicanso/go-charts/v2"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/market"
)

// EquityChart renders the run's equity curve, and its benchmark when there
// is one, as a PNG.
func EquityChart(run *backtest.Run, title string) ([]byte, error) {
	if run == nil || len(run.Equity) < 2 {
		return nil, fmt.Errorf("equity chart: need at least 2 points")
	}
	if title == "" {
		title = run.Policy
	}

	labels := make([]string, len(run.Dates))
	for i, d := range run.Dates {
		labels[i] = d.Format(market.DateLayout)
	}

	values := [][]float64{run.Equity}
	names := []string{run.Policy}
	if run.BenchmarkEquity != nil {
		values = append(values, run.BenchmarkEquity)
		names = append(names, run.Config.Benchmark)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range values {
		for _, v := range s {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = hi * 0.05
	}
	yMin, yMax := lo-pad, hi+pad

	split := 6
	if len(labels) <= 30 {
		split = max(len(labels)/3, 2)
	}

	subtitle := fmt.Sprintf("Return: %.2f%% | Sharpe: %.2f | MaxDD: %.2f%%",
		100*run.Stats.TotalReturn, run.Stats.Sharpe, 100*run.Stats.MaxDrawdown)

	p, err := charts.LineRender(
		values,
		charts.TitleTextOptionFunc(title, subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: split,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1000),
		charts.HeightOptionFunc(500),
	)
	if err != nil {
		return nil, fmt.Errorf("render equity chart: %w", err)
	}
	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("equity chart bytes: %w", err)
	}
	return buf, nil
}

// WriteEquityChart renders the equity chart to path.
func WriteEquityChart(path string, run *backtest.Run, title string) error {
	buf, err := EquityChart(run, title)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
