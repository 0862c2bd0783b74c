package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/allocator/market"
	"github.com/rustyeddy/allocator/pkg/id"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the journal database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// RecordRun stores the run header, its equity curve and every rebalance in
// one transaction and returns the new run id.
func (j *SQLite) RecordRun(ctx context.Context, e Entry) (string, error) {
	run := e.Run
	if run == nil || len(run.Dates) == 0 {
		return "", fmt.Errorf("journal: empty run")
	}
	if e.Kind == "" {
		e.Kind = KindBacktest
	}

	created := time.Now().UTC()
	runID := id.At(created)

	weights, err := json.Marshal(run.Weights)
	if err != nil {
		return "", err
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return "", err
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return "", err
	}
	var extra []byte
	if e.Extra != nil {
		if extra, err = json.Marshal(e.Extra); err != nil {
			return "", fmt.Errorf("marshal extra: %w", err)
		}
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, kind, policy, created_at, start_date, end_date, assets, benchmark,
		 total_return, cagr, volatility, sharpe, max_drawdown, final_weights, stats, config, extra, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, string(e.Kind), run.Policy, created.Format(time.RFC3339Nano),
		day(run.Dates[0]), day(run.Dates[len(run.Dates)-1]),
		strings.Join(run.Assets, ","), run.Config.Benchmark,
		run.Stats.TotalReturn, run.Stats.CAGR, run.Stats.Volatility, run.Stats.Sharpe, run.Stats.MaxDrawdown,
		string(weights), string(stats), string(cfg), nullable(extra), e.Note,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	eq, err := tx.PrepareContext(ctx, `INSERT INTO equity (run_id, date, equity, benchmark) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer eq.Close()
	for i, d := range run.Dates {
		var bench sql.NullFloat64
		if run.BenchmarkEquity != nil {
			bench = sql.NullFloat64{Float64: run.BenchmarkEquity[i], Valid: true}
		}
		if _, err := eq.ExecContext(ctx, runID, day(d), run.Equity[i], bench); err != nil {
			return "", fmt.Errorf("insert equity: %w", err)
		}
	}

	for seq, rb := range run.Rebalances {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rebalances (run_id, seq, date, decided_as_of, turnover, cost, equity)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, seq, day(rb.Date), day(rb.DecidedAsOf), rb.Turnover, rb.Cost, rb.Equity)
		if err != nil {
			return "", fmt.Errorf("insert rebalance: %w", err)
		}
		for _, tr := range rb.Trades {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO trades (run_id, seq, asset, from_weight, to_weight, price, shares)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, seq, tr.Asset, tr.From, tr.To, tr.Price, tr.Shares)
			if err != nil {
				return "", fmt.Errorf("insert trade: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return runID, nil
}

// DeleteRun removes a run and everything recorded with it.
func (j *SQLite) DeleteRun(ctx context.Context, runID string) error {
	res, err := j.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(market.DateLayout)
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(market.DateLayout, s)
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
