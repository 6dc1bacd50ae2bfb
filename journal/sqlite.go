package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/pkg/id"
	"go.uber.org/zap"
)

// runMetricsRow is the metrics.row_idx of a run's own metrics.
const runMetricsRow = -1

type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLite opens (or creates) the journal at path and applies the schema.
func NewSQLite(path string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// One writer; sqlite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &SQLite{db: db, log: log.With(zap.String("journal", path))}, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

// SaveBacktest stores a backtest with its trades, equity and metrics and
// returns the new run id.
func (j *SQLite) SaveBacktest(ctx context.Context, rec BacktestRecord) (string, error) {
	if rec.Result == nil {
		return "", fmt.Errorf("journal: backtest %s has no result", rec.Strategy)
	}
	res := rec.Result

	run := Run{
		ID:             id.New(),
		Kind:           KindBacktest,
		Created:        time.Now().UTC(),
		Symbol:         rec.Symbol,
		Strategy:       rec.Strategy,
		Params:         rec.Params,
		Backtest:       rec.Backtest,
		InitialCapital: rec.Backtest.InitialCapital,
		FinalEquity:    res.FinalEquity,
		Notes:          rec.Notes,
	}
	if n := len(res.Equity); n > 0 {
		run.Start, run.End = res.Equity[0].Time, res.Equity[n-1].Time
	}

	err := j.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		if err := insertMetrics(ctx, tx, run.ID, runMetricsRow, res.Metrics.Values()); err != nil {
			return err
		}
		if err := insertTrades(ctx, tx, run.ID, res.Trades); err != nil {
			return err
		}
		return insertEquity(ctx, tx, run.ID, res.Equity, res.BuyHold)
	})
	if err != nil {
		return "", fmt.Errorf("journal: save backtest: %w", err)
	}

	j.log.Info("backtest journaled",
		zap.String("run_id", run.ID),
		zap.String("symbol", run.Symbol),
		zap.String("strategy", string(run.Strategy)),
		zap.Int("trades", len(res.Trades)))
	return run.ID, nil
}

// SaveOptimization stores the result table of an optimization plus the
// trades and curves of its best combination.
func (j *SQLite) SaveOptimization(ctx context.Context, rec OptimizationRecord) (string, error) {
	if rec.Result == nil {
		return "", fmt.Errorf("journal: optimization has no result")
	}
	res := rec.Result

	run := Run{
		ID:             id.New(),
		Kind:           KindOptimize,
		Created:        time.Now().UTC(),
		Symbol:         rec.Symbol,
		Strategy:       res.Strategy,
		Params:         res.Best,
		Backtest:       rec.Backtest,
		Start:          rec.Start,
		End:            rec.End,
		InitialCapital: rec.Backtest.InitialCapital,
		FinalEquity:    rec.Backtest.InitialCapital,
		Metric:         res.Metric,
		Combinations:   res.Total,
		Failed:         res.Failed(),
		Partial:        res.Partial,
		Notes:          rec.Notes,
	}
	if res.BestIndex >= 0 {
		run.FinalEquity = res.BestMetrics.FinalEquity
	}

	err := j.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		if res.BestIndex >= 0 {
			if err := insertMetrics(ctx, tx, run.ID, runMetricsRow, res.BestMetrics.Values()); err != nil {
				return err
			}
			if err := insertTrades(ctx, tx, run.ID, res.BestTrades); err != nil {
				return err
			}
			if err := insertEquity(ctx, tx, run.ID, res.BestEquity, res.BestBuyHold); err != nil {
				return err
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO optimization_rows (run_id, idx, params, score, error)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, row := range res.Rows {
			params, err := json.Marshal(row.Params)
			if err != nil {
				return err
			}
			msg := ""
			if row.Err != nil {
				msg = row.Err.Error()
			}
			if _, err := stmt.ExecContext(ctx, run.ID, row.Index, string(params), row.Score, msg); err != nil {
				return err
			}
			if err := insertMetrics(ctx, tx, run.ID, row.Index, row.Metrics); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("journal: save optimization: %w", err)
	}

	j.log.Info("optimization journaled",
		zap.String("run_id", run.ID),
		zap.String("strategy", string(run.Strategy)),
		zap.Int("rows", len(res.Rows)),
		zap.Bool("partial", run.Partial))
	return run.ID, nil
}

// DeleteRun removes a run and everything recorded under it.
func (j *SQLite) DeleteRun(ctx context.Context, runID string) error {
	return j.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"metrics", "trades", "equity", "optimization_rows"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runID); err != nil {
				return err
			}
		}
		r, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID)
		if err != nil {
			return err
		}
		if n, _ := r.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil
	})
}

func (j *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertRun(ctx context.Context, tx *sql.Tx, r Run) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return err
	}
	bt, err := json.Marshal(r.Backtest)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, kind, created, symbol, strategy, params, backtest, start_time, end_time,
		 initial_capital, final_equity, metric, combinations, failed, partial, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.Created, r.Symbol, string(r.Strategy), string(params), string(bt),
		nullTime(r.Start), nullTime(r.End),
		r.InitialCapital, r.FinalEquity, r.Metric, r.Combinations, r.Failed, r.Partial, r.Notes,
	)
	return err
}

func insertMetrics(ctx context.Context, tx *sql.Tx, runID string, row int, values map[string]float64) error {
	if len(values) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metrics (run_id, row_idx, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for name, v := range values {
		// NaN has no SQL representation; it reads back as NaN from NULL.
		val := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
		if _, err := stmt.ExecContext(ctx, runID, row, name, val); err != nil {
			return err
		}
	}
	return nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, runID string, trades []backtest.Trade) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
		(run_id, seq, entry_seq, time, side, order_action, order_trigger, label, level, price, shares,
		 cost, revenue, commission, margin, pnl, equity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx,
			runID, t.Seq, t.EntrySeq, t.Time, int(t.Side), int(t.Action), int(t.Trigger), t.Label(),
			t.Level, t.Price, t.Shares, t.Cost, t.Revenue, t.Commission, t.Margin, t.PnL, t.Equity,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertEquity(ctx context.Context, tx *sql.Tx, runID string, equity, buyHold []backtest.Point) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO equity (run_id, idx, time, equity, buy_hold) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range equity {
		bh := p.Value
		if i < len(buyHold) {
			bh = buyHold[i].Value
		}
		if _, err := stmt.ExecContext(ctx, runID, i, p.Time, p.Value, bh); err != nil {
			return err
		}
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
