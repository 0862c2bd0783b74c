package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/allocator/backtest"
)

const runColumns = `run_id, kind, policy, created_at, start_date, end_date, assets, benchmark,
	final_weights, stats, config, extra, note`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		rec                               RunRecord
		kind, created, start, end, assets string
		weights, stats, cfg               string
		extra                             sql.NullString
	)
	err := s.Scan(&rec.ID, &kind, &rec.Policy, &created, &start, &end, &assets, &rec.Benchmark,
		&weights, &stats, &cfg, &extra, &rec.Note)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Kind = Kind(kind)
	if rec.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return RunRecord{}, fmt.Errorf("run %s created_at: %w", rec.ID, err)
	}
	if rec.Start, err = parseDay(start); err != nil {
		return RunRecord{}, err
	}
	if rec.End, err = parseDay(end); err != nil {
		return RunRecord{}, err
	}
	if assets != "" {
		rec.Assets = strings.Split(assets, ",")
	}
	if err := json.Unmarshal([]byte(weights), &rec.Weights); err != nil {
		return RunRecord{}, fmt.Errorf("run %s weights: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(stats), &rec.Stats); err != nil {
		return RunRecord{}, fmt.Errorf("run %s stats: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(cfg), &rec.Config); err != nil {
		return RunRecord{}, fmt.Errorf("run %s config: %w", rec.ID, err)
	}
	if extra.Valid {
		rec.Extra = json.RawMessage(extra.String)
	}
	return rec, nil
}

// GetRun returns a single run header by id.
func (j *SQLite) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	return rec, err
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (j *SQLite) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns a run's equity curve in date order.
func (j *SQLite) ListEquity(ctx context.Context, runID string) ([]EquityPoint, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT date, equity, benchmark FROM equity
		WHERE run_id = ?
		ORDER BY date ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquityPoint
	for rows.Next() {
		var (
			p     EquityPoint
			d     string
			bench sql.NullFloat64
		)
		if err := rows.Scan(&d, &p.Equity, &bench); err != nil {
			return nil, err
		}
		if p.Date, err = parseDay(d); err != nil {
			return nil, err
		}
		if bench.Valid {
			v := bench.Float64
			p.Benchmark = &v
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	return out, nil
}

// ListRebalances returns a run's rebalances with their trades.
func (j *SQLite) ListRebalances(ctx context.Context, runID string) ([]RebalanceRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, date, decided_as_of, turnover, cost, equity FROM rebalances
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RebalanceRecord
	for rows.Next() {
		var (
			rb         RebalanceRecord
			date, asOf string
		)
		if err := rows.Scan(&rb.Seq, &date, &asOf, &rb.Turnover, &rb.Cost, &rb.Equity); err != nil {
			return nil, err
		}
		if rb.Date, err = parseDay(date); err != nil {
			return nil, err
		}
		if rb.DecidedAsOf, err = parseDay(asOf); err != nil {
			return nil, err
		}
		out = append(out, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	trades, err := j.db.QueryContext(ctx, `
		SELECT seq, asset, from_weight, to_weight, price, shares FROM trades
		WHERE run_id = ?
		ORDER BY seq ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer trades.Close()

	bySeq := make(map[int]int, len(out))
	for i, rb := range out {
		bySeq[rb.Seq] = i
	}
	for trades.Next() {
		var (
			seq int
			tr  backtest.Trade
		)
		if err := trades.Scan(&seq, &tr.Asset, &tr.From, &tr.To, &tr.Price, &tr.Shares); err != nil {
			return nil, err
		}
		if i, ok := bySeq[seq]; ok {
			out[i].Trades = append(out[i].Trades, tr)
		}
	}
	return out, trades.Err()
}

// LoadRun rebuilds the recorded run from its header, equity curve and
// rebalances. Returns are recovered from consecutive equity values.
func (j *SQLite) LoadRun(ctx context.Context, runID string) (*backtest.Run, RunRecord, error) {
	rec, err := j.GetRun(ctx, runID)
	if err != nil {
		return nil, RunRecord{}, err
	}
	eq, err := j.ListEquity(ctx, runID)
	if err != nil {
		return nil, RunRecord{}, err
	}
	rbs, err := j.ListRebalances(ctx, runID)
	if err != nil {
		return nil, RunRecord{}, err
	}

	run := &backtest.Run{
		Policy:     rec.Policy,
		Config:     rec.Config,
		Assets:     rec.Assets,
		Dates:      make([]time.Time, len(eq)),
		Equity:     make([]float64, len(eq)),
		Returns:    make([]float64, 0, len(eq)-1),
		Rebalances: make([]backtest.Rebalance, 0, len(rbs)),
		Weights:    rec.Weights,
		Stats:      rec.Stats,
	}
	hasBench := eq[0].Benchmark != nil
	if hasBench {
		run.BenchmarkEquity = make([]float64, len(eq))
		run.BenchmarkReturns = make([]float64, 0, len(eq)-1)
	}
	for i, p := range eq {
		run.Dates[i] = p.Date
		run.Equity[i] = p.Equity
		if i > 0 {
			run.Returns = append(run.Returns, p.Equity/eq[i-1].Equity-1)
		}
		if hasBench && p.Benchmark != nil {
			run.BenchmarkEquity[i] = *p.Benchmark
			if i > 0 {
				run.BenchmarkReturns = append(run.BenchmarkReturns, *p.Benchmark/run.BenchmarkEquity[i-1]-1)
			}
		}
	}
	for _, rb := range rbs {
		run.Rebalances = append(run.Rebalances, backtest.Rebalance{
			Date:        rb.Date,
			DecidedAsOf: rb.DecidedAsOf,
			Turnover:    rb.Turnover,
			Cost:        rb.Cost,
			Equity:      rb.Equity,
			Trades:      rb.Trades,
		})
	}
	return run, rec, nil
}
