package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/journal"
	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/optimizer"
	"github.com/rustyeddy/allocator/portfolio"
)

func loadPrices() (*market.PriceHistory, error) {
	h, err := market.LoadCSV(cfg.Data.Prices)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	log.WithFields(logrus.Fields{
		"path":   cfg.Data.Prices,
		"assets": len(h.Assets()),
		"dates":  h.Len(),
	}).Info("prices loaded")
	return h, nil
}

// fitReturns returns the universe's returns over the optimizer lookback,
// ending at data.end when it is set.
func fitReturns(h *market.PriceHistory) (*market.ReturnSeries, error) {
	sel, err := h.Select(cfg.Universe.Tickers...)
	if err != nil {
		return nil, portfolio.DataInsufficient("%v", err)
	}
	_, end, err := cfg.Period()
	if err != nil {
		return nil, err
	}
	decision := sel.Len()
	if !end.IsZero() {
		decision = sel.IndexOf(end.AddDate(0, 0, 1))
	}
	return sel.View(decision).Returns(cfg.Optimizer.Lookback)
}

func newOptimizer() *optimizer.Optimizer {
	opts := cfg.OptimizerOptions()
	opts.Log = log
	return optimizer.New(opts)
}

// applyMethod overrides optimizer.method and revalidates.
func applyMethod(method string) error {
	if method == "" {
		return nil
	}
	cfg.Optimizer.Method = method
	return cfg.Validate()
}

// parseWeights reads "SPY=0.6,AGG=0.4".
func parseWeights(s string) (portfolio.Weights, error) {
	var w portfolio.Weights
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return w, portfolio.InvalidWeights("weight %q is not ASSET=VALUE", part)
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return w, portfolio.InvalidWeights("weight %q: %v", part, err)
		}
		w.Assets = append(w.Assets, strings.TrimSpace(k))
		w.Values = append(w.Values, x)
	}
	return w, nil
}

func render(w io.Writer, md string) error {
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func renderReport(w io.Writer, rep journal.Report) error {
	var buf bytes.Buffer
	if err := journal.WriteReport(&buf, rep); err != nil {
		return err
	}
	return render(w, buf.String())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openJournal() (*journal.SQLite, error) {
	if dir := filepath.Dir(cfg.Journal.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	j, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

// writeArtifacts writes report.md, equity.png, equity.csv and trades.csv
// for rep.Run into dir.
func writeArtifacts(dir string, rep journal.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if run := rep.Run; run != nil {
		if len(run.Equity) > 1 {
			if err := journal.WriteEquityChart(filepath.Join(dir, "equity.png"), run, rep.Title); err != nil {
				return err
			}
			rep.Chart = "equity.png"
		}
		if err := writeFile(filepath.Join(dir, "equity.csv"), func(w io.Writer) error {
			return journal.WriteEquityCSV(w, run)
		}); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, "trades.csv"), func(w io.Writer) error {
			return journal.WriteTradesCSV(w, run)
		}); err != nil {
			return err
		}
	}
	if err := writeFile(filepath.Join(dir, "report.md"), func(w io.Writer) error {
		return journal.WriteReport(w, rep)
	}); err != nil {
		return err
	}
	log.WithField("dir", dir).Info("report written")
	return nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func reportDir(id string) string {
	return filepath.Join(cfg.Journal.ReportDir, id)
}

func policyFor(name string) (backtest.Policy, error) {
	switch name {
	case "", cfg.Optimizer.Method:
		return optimizedPolicy(optimizer.Method(cfg.Optimizer.Method)), nil
	case string(optimizer.MethodEqualWeight):
		return backtest.EqualWeight{}, nil
	}
	for _, m := range optimizer.Methods {
		if string(m) == name {
			return optimizedPolicy(m), nil
		}
	}
	if strings.Contains(name, "=") {
		w, err := parseWeights(name)
		if err != nil {
			return nil, err
		}
		return backtest.FixedWeights{Weights: w}, nil
	}
	return nil, portfolio.Configuration("unknown policy %q", name)
}

func optimizedPolicy(m optimizer.Method) *backtest.OptimizedPolicy {
	spec := cfg.Spec()
	spec.Method = m
	spec.Covariance.Log = log
	return &backtest.OptimizedPolicy{
		Optimizer: newOptimizer(),
		Spec:      spec,
		Lookback:  cfg.Optimizer.Lookback,
		Log:       log,
	}
}
