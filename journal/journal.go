// Package journal persists backtest and optimization runs to SQLite so
// they can be listed, compared and exported later.
package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/optimize"
	"github.com/rustyeddy/backtester/strategies"
)

var ErrRunNotFound = errors.New("run not found")

type Kind string

const (
	KindBacktest Kind = "backtest"
	KindOptimize Kind = "optimize"
)

// Run is the header row of a journaled run.
type Run struct {
	ID       string
	Kind     Kind
	Created  time.Time
	Symbol   string
	Strategy strategies.ID
	Params   strategies.Params // the run's parameters, or the best combination
	Backtest backtest.Params
	Start    time.Time
	End      time.Time

	InitialCapital float64
	FinalEquity    float64

	// Optimization runs only.
	Metric       string
	Combinations int
	Failed       int
	Partial      bool

	Notes string
}

// RunDetail is a run with its headline metrics.
type RunDetail struct {
	Run
	Metrics map[string]float64
}

// BacktestRecord is what SaveBacktest stores.
type BacktestRecord struct {
	Symbol   string
	Strategy strategies.ID
	Params   strategies.Params
	Backtest backtest.Params
	Result   *backtest.Result
	Notes    string
}

// OptimizationRecord is what SaveOptimization stores.
type OptimizationRecord struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Grid     optimize.Grid
	Backtest backtest.Params
	Result   *optimize.Result
	Notes    string
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Kind     Kind
	Strategy strategies.ID
	Symbol   string
	Limit    int
}
