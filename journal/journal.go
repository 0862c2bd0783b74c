// Package journal keeps a history of simulation runs in SQLite and renders
// runs as CSV, markdown reports and equity charts.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rustyeddy/allocator/backtest"
)

// ErrNotFound is returned for an unknown run id.
var ErrNotFound = errors.New("run not found")

type Kind string

const (
	KindBacktest    Kind = "backtest"
	KindWalkForward Kind = "walkforward"
)

// Entry is what RecordRun stores. Extra is any JSON-encodable summary that
// belongs with the run, such as walk-forward window results.
type Entry struct {
	Kind  Kind
	Run   *backtest.Run
	Extra any
	Note  string
}

// RunRecord is the stored header of a run.
type RunRecord struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Policy    string          `json:"policy"`
	Created   time.Time       `json:"created"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	Assets    []string        `json:"assets"`
	Benchmark string          `json:"benchmark,omitempty"`
	Weights   []float64       `json:"final_weights"`
	Stats     backtest.Stats  `json:"stats"`
	Config    backtest.Config `json:"config"`
	Extra     json.RawMessage `json:"extra,omitempty"`
	Note      string          `json:"note,omitempty"`
}

type EquityPoint struct {
	Date      time.Time `json:"date"`
	Equity    float64   `json:"equity"`
	Benchmark *float64  `json:"benchmark,omitempty"`
}

type RebalanceRecord struct {
	Seq         int              `json:"seq"`
	Date        time.Time        `json:"date"`
	DecidedAsOf time.Time        `json:"decided_as_of"`
	Turnover    float64          `json:"turnover"`
	Cost        float64          `json:"cost"`
	Equity      float64          `json:"equity"`
	Trades      []backtest.Trade `json:"trades"`
}

// Journal is the run history used by the CLI.
type Journal interface {
	RecordRun(ctx context.Context, e Entry) (string, error)
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	ListEquity(ctx context.Context, id string) ([]EquityPoint, error)
	ListRebalances(ctx context.Context, id string) ([]RebalanceRecord, error)
	LoadRun(ctx context.Context, id string) (*backtest.Run, RunRecord, error)
	Close() error
}
