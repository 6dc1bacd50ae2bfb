package journal

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/optimize"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func series(closes ...float64) market.Series {
	s := market.Series{Symbol: "TEST"}
	for i, c := range closes {
		s.Candles = append(s.Candles, market.Candle{
			Time: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c,
		})
	}
	return s
}

func sineSeries(n int) market.Series {
	s := market.Series{Symbol: "SINE"}
	for i := 0; i < n; i++ {
		c := 100 + 20*math.Sin(float64(i)/7)
		s.Candles = append(s.Candles, market.Candle{
			Time: day0.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c,
		})
	}
	return s
}

func backtestRecord(t *testing.T, symbol string) BacktestRecord {
	t.Helper()

	bt := backtest.Params{InitialCapital: 10000, CommissionPct: 0.1, StopLossPct: backtest.Optional(5)}
	s := series(100, 105, 110, 104, 108)
	s.Symbol = symbol
	sig := []market.Signal{market.Long, market.Hold, market.Short, market.Hold, market.Hold}

	res, err := backtest.Run(context.Background(), s, sig, bt)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	return BacktestRecord{
		Symbol:   symbol,
		Strategy: strategies.SMACross,
		Params:   strategies.Params{"short": 10, "long": 50},
		Backtest: bt,
		Result:   res,
		Notes:    "smoke",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"runs", "metrics", "trades", "equity", "optimization_rows"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reopen.db")
	j, err := NewSQLite(path, nil)
	require.NoError(t, err)
	runID, err := j.SaveBacktest(context.Background(), backtestRecord(t, "AAPL"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = NewSQLite(path, nil)
	require.NoError(t, err)
	defer j.Close()

	run, err := j.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", run.Symbol)
}

func TestSaveBacktestRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	rec := backtestRecord(t, "AAPL")

	runID, err := j.SaveBacktest(ctx, rec)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run, err := j.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, KindBacktest, run.Kind)
	assert.Equal(t, strategies.SMACross, run.Strategy)
	assert.Equal(t, rec.Params, run.Params)
	assert.Equal(t, rec.Backtest, run.Backtest)
	assert.True(t, run.Start.Equal(day0))
	assert.True(t, run.End.Equal(day0.AddDate(0, 0, 4)))
	assert.Equal(t, rec.Result.FinalEquity, run.FinalEquity)
	assert.Equal(t, "smoke", run.Notes)
	assert.WithinDuration(t, time.Now(), run.Created, time.Minute)

	assert.Equal(t, rec.Result.Metrics.FinalEquity, run.Metrics["final_equity"])
	assert.Equal(t, float64(rec.Result.Metrics.TotalTrades), run.Metrics["total_trades"])
	assert.Equal(t, rec.Result.Metrics.TotalCommission, run.Metrics["total_commission"])

	trades, err := j.ListTrades(ctx, runID)
	require.NoError(t, err)
	require.Len(t, trades, len(rec.Result.Trades))
	for i, want := range rec.Result.Trades {
		got := trades[i]
		assert.True(t, want.Time.Equal(got.Time), "trade %d time", i)
		got.Time = want.Time
		assert.Equal(t, want, got, "trade %d", i)
	}

	equity, buyHold, err := j.ListEquity(ctx, runID)
	require.NoError(t, err)
	require.Len(t, equity, len(rec.Result.Equity))
	require.Len(t, buyHold, len(rec.Result.BuyHold))
	for i := range equity {
		assert.Equal(t, rec.Result.Equity[i].Value, equity[i].Value)
		assert.Equal(t, rec.Result.BuyHold[i].Value, buyHold[i].Value)
		assert.True(t, rec.Result.Equity[i].Time.Equal(equity[i].Time))
	}
}

func TestSaveBacktestWithoutResult(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	_, err := j.SaveBacktest(context.Background(), BacktestRecord{Symbol: "X"})
	assert.Error(t, err)
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	_, err := j.GetRun(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestSaveOptimizationRoundTrip(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	s := sineSeries(120)
	grid := optimize.Grid{
		{Name: "short", Min: 5, Max: 10, Step: 5},
		{Name: "long", Min: 20, Max: 30, Step: 10},
	}
	bt := backtest.Params{InitialCapital: 10000, AllowShort: true}
	res, err := optimize.Run(ctx, s, strategies.SMACross, grid, bt, "total_pnl", optimize.Options{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)
	require.GreaterOrEqual(t, res.BestIndex, 0)

	runID, err := j.SaveOptimization(ctx, OptimizationRecord{
		Symbol:   s.Symbol,
		Start:    s.Start(),
		End:      s.End(),
		Grid:     grid,
		Backtest: bt,
		Result:   res,
	})
	require.NoError(t, err)

	run, err := j.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, KindOptimize, run.Kind)
	assert.Equal(t, "total_pnl", run.Metric)
	assert.Equal(t, 4, run.Combinations)
	assert.Equal(t, 0, run.Failed)
	assert.False(t, run.Partial)
	assert.Equal(t, res.Best, run.Params)
	assert.Equal(t, res.BestMetrics.FinalEquity, run.FinalEquity)
	assert.Equal(t, res.BestScore, run.Metrics["total_pnl"])

	rows, err := j.ListRows(ctx, runID)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i, row := range rows {
		assert.Equal(t, i, row.Index)
		assert.Equal(t, res.Rows[i].Params, row.Params)
		assert.Equal(t, res.Rows[i].Score, row.Score)
		assert.Equal(t, res.Rows[i].Metrics["total_pnl"], row.Metrics["total_pnl"])
		assert.True(t, row.OK())
	}

	trades, err := j.ListTrades(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, trades, len(res.BestTrades))
}

func TestSaveOptimizationFailedRows(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	// short >= long is rejected by the strategy, so every row fails.
	grid := optimize.Grid{
		{Name: "short", Min: 30, Max: 30, Step: 1},
		{Name: "long", Min: 10, Max: 20, Step: 10},
	}
	bt := backtest.Params{InitialCapital: 10000}
	res, err := optimize.Run(ctx, sineSeries(60), strategies.SMACross, grid, bt, "sharpe", optimize.Options{})
	require.NoError(t, err)
	require.Equal(t, -1, res.BestIndex)

	runID, err := j.SaveOptimization(ctx, OptimizationRecord{Symbol: "SINE", Backtest: bt, Result: res})
	require.NoError(t, err)

	run, err := j.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Failed)
	assert.Equal(t, 10000.0, run.FinalEquity)
	assert.Empty(t, run.Metrics)
	assert.True(t, run.Start.IsZero())

	rows, err := j.ListRows(ctx, runID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.False(t, row.OK())
		assert.Equal(t, optimize.FailedScore, row.Score)
		assert.Equal(t, optimize.FailedScore, row.Metrics["sharpe"])
	}
}

func TestListRunsFilter(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	var ids []string
	for _, sym := range []string{"AAPL", "MSFT", "AAPL"} {
		id, err := j.SaveBacktest(ctx, backtestRecord(t, sym))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := j.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID, "newest first")

	aapl, err := j.ListRuns(ctx, RunFilter{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, aapl, 2)

	limited, err := j.ListRuns(ctx, RunFilter{Kind: KindBacktest, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := j.ListRuns(ctx, RunFilter{Kind: KindOptimize})
	require.NoError(t, err)
	assert.Empty(t, none)

	other, err := j.ListRuns(ctx, RunFilter{Strategy: strategies.Bollinger})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	runID, err := j.SaveBacktest(ctx, backtestRecord(t, "AAPL"))
	require.NoError(t, err)

	require.NoError(t, j.DeleteRun(ctx, runID))

	_, err = j.GetRun(ctx, runID)
	assert.True(t, errors.Is(err, ErrRunNotFound))
	trades, err := j.ListTrades(ctx, runID)
	require.NoError(t, err)
	assert.Empty(t, trades)

	err = j.DeleteRun(ctx, runID)
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
