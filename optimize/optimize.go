package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/strategies"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FailedScore is the metric recorded for a combination that did not
// produce a result. No real score is ever below it.
const FailedScore = -math.MaxFloat64

const defaultProgressEvery = 10

type Options struct {
	// Workers > 1 runs combinations concurrently.
	Workers int
	// MaxCombinations keeps only the first N combinations; 0 means all.
	MaxCombinations int
	// Progress is called every ProgressEvery finished combinations and once
	// at the end.
	Progress      func(done, total int)
	ProgressEvery int

	Logger  *zap.Logger
	Metrics *Collector
}

// Row is the outcome of one combination.
type Row struct {
	Index   int
	Params  strategies.Params
	Metrics map[string]float64
	Score   float64
	Err     error
}

func (r Row) OK() bool { return r.Err == nil }

func (r *Row) fail(metric string, err error) {
	r.Err = err
	r.Score = FailedScore
	r.Metrics = map[string]float64{metric: FailedScore}
}

type Result struct {
	Strategy strategies.ID
	Metric   string

	// BestIndex is the combination index of the best row, -1 when no
	// combination succeeded.
	BestIndex   int
	Best        strategies.Params
	BestScore   float64
	BestMetrics backtest.Metrics
	BestEquity  []backtest.Point
	BestBuyHold []backtest.Point
	BestTrades  []backtest.Trade

	// Rows holds every finished combination in enumeration order.
	Rows []Row
	// Total is the number of combinations that were scheduled.
	Total int
	// Partial is set when the context ended before every combination ran.
	Partial bool
}

// Empty reports a result with nothing in it: the soft failure returned for
// an unknown strategy or metric, or a grid without usable ranges.
func (r *Result) Empty() bool {
	return len(r.Rows) == 0
}

// Failed counts the rows that carry an error.
func (r *Result) Failed() int {
	n := 0
	for _, row := range r.Rows {
		if !row.OK() {
			n++
		}
	}
	return n
}

type runner struct {
	series market.Series
	id     strategies.ID
	bt     backtest.Params
	metric string
	space  Space
	opts   Options
	log    *zap.Logger

	mu    sync.Mutex
	done  int
	total int
	every int
}

// Run evaluates every combination of grid for the strategy id and keeps the
// one with the highest value of metric (a backtest.MetricNames key).
//
// Bad combinations never abort the search: they become rows with Err set
// and Score FailedScore. An unknown strategy, an unknown metric or a grid
// with no usable range yields an empty Result and a nil error.
func Run(ctx context.Context, series market.Series, id strategies.ID, grid Grid, bt backtest.Params, metric string, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("strategy", string(id)), zap.String("metric", metric))
	res := &Result{Strategy: id, Metric: metric, BestIndex: -1}

	if _, ok := strategies.Lookup(id); !ok {
		log.Warn("unknown strategy, nothing to optimize")
		return res, nil
	}
	if !backtest.IsMetric(metric) {
		log.Warn("unknown optimization metric, nothing to optimize")
		return res, nil
	}
	valid, skipped := grid.Clean()
	for _, err := range skipped {
		log.Warn("skipping parameter range", zap.Error(err))
	}
	if len(valid) == 0 {
		log.Warn("no valid parameter ranges, nothing to optimize")
		return res, nil
	}
	if err := bt.Validate(); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	r := &runner{
		series: series,
		id:     id,
		bt:     bt,
		metric: metric,
		space:  valid.Space(),
		opts:   opts,
		log:    log,
		every:  opts.ProgressEvery,
	}
	if r.every <= 0 {
		r.every = defaultProgressEvery
	}
	r.total = r.space.Size()
	if opts.MaxCombinations > 0 && r.total > opts.MaxCombinations {
		log.Info("truncating grid",
			zap.Int("combinations", r.total),
			zap.Int("max", opts.MaxCombinations))
		r.total = opts.MaxCombinations
	}
	res.Total = r.total

	log.Info("optimization started",
		zap.Int("combinations", r.total),
		zap.Int("workers", max(opts.Workers, 1)))
	start := time.Now()

	rows := make([]Row, r.total)
	completed := make([]bool, r.total)
	if opts.Workers > 1 {
		r.parallel(ctx, rows, completed)
	} else {
		r.sequential(ctx, rows, completed)
	}

	for k, ok := range completed {
		if !ok {
			res.Partial = true
			continue
		}
		res.Rows = append(res.Rows, rows[k])
	}
	if res.Partial {
		log.Warn("optimization interrupted",
			zap.Int("completed", len(res.Rows)),
			zap.Int("combinations", r.total),
			zap.Error(ctx.Err()))
	}

	best := -1
	for i, row := range res.Rows {
		if row.OK() && (best < 0 || row.Score > res.Rows[best].Score) {
			best = i
		}
	}
	if best < 0 {
		log.Warn("no combination succeeded", zap.Int("failed", res.Failed()))
		return res, nil
	}

	row := res.Rows[best]
	res.BestIndex = row.Index
	res.Best = row.Params.Clone()
	res.BestScore = row.Score

	// Runs are deterministic, so replaying the winner reproduces its
	// curves without keeping every run's trades in memory.
	out, err := r.replay(context.WithoutCancel(ctx), row.Params)
	if err != nil {
		return nil, fmt.Errorf("optimize: replay best %s: %w", row.Params, err)
	}
	res.BestMetrics = out.Metrics
	res.BestEquity = out.Equity
	res.BestBuyHold = out.BuyHold
	res.BestTrades = out.Trades

	log.Info("optimization finished",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("completed", len(res.Rows)),
		zap.Int("failed", res.Failed()),
		zap.Stringer("best", res.Best),
		zap.Float64("score", res.BestScore))
	return res, nil
}

func (r *runner) sequential(ctx context.Context, rows []Row, completed []bool) {
	for k := 0; k < r.total; k++ {
		if ctx.Err() != nil {
			return
		}
		row, ok := r.evaluate(ctx, k)
		if !ok {
			return
		}
		rows[k], completed[k] = row, true
		r.progress()
	}
}

// parallel fans the combinations out. Each goroutine owns rows[k] and
// completed[k]; the best is reduced by the caller after Wait.
func (r *runner) parallel(ctx context.Context, rows []Row, completed []bool) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for k := 0; k < r.total; k++ {
		k := k
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			row, ok := r.evaluate(gctx, k)
			if !ok {
				return nil
			}
			rows[k], completed[k] = row, true
			r.progress()
			return nil
		})
	}
	_ = g.Wait()
}

// evaluate runs combination k. ok is false only when the context ended
// while the combination was running.
func (r *runner) evaluate(ctx context.Context, k int) (row Row, ok bool) {
	start := time.Now()
	row = Row{Index: k, Params: r.space.At(k)}
	ok = true

	defer func() {
		if p := recover(); p != nil {
			row.fail(r.metric, fmt.Errorf("%w: panic: %v", backtest.ErrComputation, p))
		}
		if ok {
			r.opts.Metrics.observe(r.id, row.OK(), time.Since(start))
			if !row.OK() {
				r.log.Debug("combination failed",
					zap.Stringer("params", row.Params),
					zap.Error(row.Err))
			}
		}
	}()

	out, err := r.replay(ctx, row.Params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return row, false
		}
		row.fail(r.metric, err)
		return row, true
	}

	row.Metrics = out.Metrics.Values()
	score, found := row.Metrics[r.metric]
	if !found || math.IsNaN(score) {
		row.fail(r.metric, fmt.Errorf("%w: %s is undefined for this run", backtest.ErrComputation, r.metric))
		return row, true
	}
	row.Score = score
	return row, true
}

// replay builds the strategy, generates its signals and backtests them.
func (r *runner) replay(ctx context.Context, p strategies.Params) (*backtest.Result, error) {
	strat, err := strategies.New(r.id, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backtest.ErrConfiguration, err)
	}
	sigs, err := strat.Signals(r.series.Candles)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", backtest.ErrComputation, err)
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("%w: %s produced no signals", backtest.ErrComputation, strat.Name())
	}
	return backtest.Run(ctx, r.series, sigs, r.bt)
}

func (r *runner) progress() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.done++
	if r.opts.Progress == nil {
		return
	}
	if r.done%r.every == 0 || r.done == r.total {
		r.opts.Progress(r.done, r.total)
	}
}
