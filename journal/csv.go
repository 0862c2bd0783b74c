package journal

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rustyeddy/allocator/backtest"
	"github.com/rustyeddy/allocator/market"
)

// WriteEquityCSV writes date,equity,return[,benchmark] rows for run.
func WriteEquityCSV(w io.Writer, run *backtest.Run) error {
	cw := csv.NewWriter(w)
	header := []string{"date", "equity", "return"}
	if run.BenchmarkEquity != nil {
		header = append(header, "benchmark")
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, d := range run.Dates {
		ret := ""
		if i > 0 {
			ret = f(run.Returns[i-1])
		}
		rec := []string{d.Format(market.DateLayout), f(run.Equity[i]), ret}
		if run.BenchmarkEquity != nil {
			rec = append(rec, f(run.BenchmarkEquity[i]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV writes one row per trade of every rebalance.
func WriteTradesCSV(w io.Writer, run *backtest.Run) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "decided_as_of", "asset", "from", "to", "price", "shares", "turnover", "cost"}); err != nil {
		return err
	}
	for _, rb := range run.Rebalances {
		asOf := ""
		if !rb.DecidedAsOf.IsZero() {
			asOf = rb.DecidedAsOf.Format(market.DateLayout)
		}
		for _, tr := range rb.Trades {
			err := cw.Write([]string{
				rb.Date.Format(market.DateLayout),
				asOf,
				tr.Asset,
				f(tr.From),
				f(tr.To),
				f(tr.Price),
				strconv.FormatInt(tr.Shares, 10),
				f(rb.Turnover),
				f(rb.Cost),
			})
			if err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
