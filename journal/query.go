package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/optimize"
	"github.com/rustyeddy/backtester/strategies"
)

const runColumns = `id, kind, created, symbol, strategy, params, backtest, start_time, end_time,
	initial_capital, final_equity, metric, combinations, failed, partial, notes`

// ListRuns returns runs newest first.
func (j *SQLite) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Strategy != "" {
		where = append(where, "strategy = ?")
		args = append(args, string(f.Strategy))
	}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}

	q := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	// ULIDs sort by creation time, so id breaks ties inside a second.
	q += " ORDER BY created DESC, id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun loads a run header with the metrics recorded for it.
func (j *SQLite) GetRun(ctx context.Context, runID string) (RunDetail, error) {
	row := j.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunDetail{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunDetail{}, err
	}

	metrics, err := j.metrics(ctx, runID, runMetricsRow)
	if err != nil {
		return RunDetail{}, err
	}
	return RunDetail{Run: r, Metrics: metrics}, nil
}

func (j *SQLite) ListTrades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, entry_seq, time, side, order_action, order_trigger, level, price, shares,
		       cost, revenue, commission, margin, pnl, equity
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: list trades: %w", err)
	}
	defer rows.Close()

	var trades []backtest.Trade
	for rows.Next() {
		var (
			t                      backtest.Trade
			side, action, trigger int
		)
		err := rows.Scan(&t.Seq, &t.EntrySeq, &t.Time, &side, &action, &trigger, &t.Level, &t.Price, &t.Shares,
			&t.Cost, &t.Revenue, &t.Commission, &t.Margin, &t.PnL, &t.Equity)
		if err != nil {
			return nil, err
		}
		t.Time = t.Time.UTC()
		t.Side = backtest.Side(side)
		t.Action = backtest.Action(action)
		t.Trigger = backtest.Trigger(trigger)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ListEquity returns the strategy and buy & hold curves of a run.
func (j *SQLite) ListEquity(ctx context.Context, runID string) (equity, buyHold []backtest.Point, err error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT time, equity, buy_hold FROM equity WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("journal: list equity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e, b backtest.Point
		if err := rows.Scan(&e.Time, &e.Value, &b.Value); err != nil {
			return nil, nil, err
		}
		e.Time = e.Time.UTC()
		b.Time = e.Time
		equity = append(equity, e)
		buyHold = append(buyHold, b)
	}
	return equity, buyHold, rows.Err()
}

// ListRows returns the result table of an optimization run in index order.
func (j *SQLite) ListRows(ctx context.Context, runID string) ([]optimize.Row, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT idx, params, score, error FROM optimization_rows WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("journal: list rows: %w", err)
	}
	defer rows.Close()

	var out []optimize.Row
	for rows.Next() {
		var (
			r      optimize.Row
			params string
			msg    string
		)
		if err := rows.Scan(&r.Index, &params, &r.Score, &msg); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return nil, fmt.Errorf("journal: row %d params: %w", r.Index, err)
		}
		if msg != "" {
			r.Err = errors.New(msg)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Metrics come from a second query; the connection pool holds one conn.
	for i := range out {
		m, err := j.metrics(ctx, runID, out[i].Index)
		if err != nil {
			return nil, err
		}
		out[i].Metrics = m
	}
	return out, nil
}

func (j *SQLite) metrics(ctx context.Context, runID string, row int) (map[string]float64, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT name, value FROM metrics WHERE run_id = ? AND row_idx = ?`, runID, row)
	if err != nil {
		return nil, fmt.Errorf("journal: metrics: %w", err)
	}
	defer rows.Close()

	m := make(map[string]float64)
	for rows.Next() {
		var (
			name string
			v    sql.NullFloat64
		)
		if err := rows.Scan(&name, &v); err != nil {
			return nil, err
		}
		if v.Valid {
			m[name] = v.Float64
		} else {
			m[name] = math.NaN()
		}
	}
	return m, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r          Run
		kind, strt string
		params, bt string
		start, end sql.NullTime
	)
	err := s.Scan(&r.ID, &kind, &r.Created, &r.Symbol, &strt, &params, &bt, &start, &end,
		&r.InitialCapital, &r.FinalEquity, &r.Metric, &r.Combinations, &r.Failed, &r.Partial, &r.Notes)
	if err != nil {
		return Run{}, err
	}
	r.Kind = Kind(kind)
	r.Strategy = strategies.ID(strt)
	r.Created = r.Created.UTC()
	if start.Valid {
		r.Start = start.Time.UTC()
	}
	if end.Valid {
		r.End = end.Time.UTC()
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return Run{}, fmt.Errorf("journal: run %s params: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(bt), &r.Backtest); err != nil {
		return Run{}, fmt.Errorf("journal: run %s backtest params: %w", r.ID, err)
	}
	return r, nil
}
