package optimize

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func sineSeries(n int) market.Series {
	s := market.Series{Symbol: "SINE"}
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + 20*math.Sin(float64(i)/7) + float64(i)*0.05
		s.Candles = append(s.Candles, market.Candle{
			Time:  start.AddDate(0, 0, i),
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		})
	}
	return s
}

func smaGrid() Grid {
	return Grid{
		{Name: "short", Min: 5, Max: 10, Step: 5},
		{Name: "long", Min: 20, Max: 30, Step: 10},
	}
}

func btParams() backtest.Params {
	return backtest.Params{InitialCapital: 10000, CommissionPct: 0.1, AllowShort: true}
}

func TestParamRangeValues(t *testing.T) {
	t.Parallel()

	vs := ParamRange{Name: "std", Min: 1, Max: 3, Step: 0.1}.Values()
	require.Len(t, vs, 21)
	assert.Equal(t, 1.0, vs[0])
	assert.Equal(t, 1.1, vs[1])
	assert.Equal(t, 2.3, vs[13])
	assert.Equal(t, 3.0, vs[20], "max is included despite float accumulation")

	assert.Equal(t, []float64{5, 10, 15, 20, 25, 30}, ParamRange{Name: "n", Min: 5, Max: 30, Step: 5}.Values())
	assert.Equal(t, []float64{0, 0.3, 0.6, 0.9}, ParamRange{Name: "x", Min: 0, Max: 1, Step: 0.3}.Values())
	assert.Equal(t, []float64{7}, ParamRange{Name: "x", Min: 7, Max: 7, Step: 1}.Values())
}

func TestParamRangeCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		r    ParamRange
	}{
		{"zero step", ParamRange{Name: "a", Min: 1, Max: 2, Step: 0}},
		{"negative step", ParamRange{Name: "a", Min: 1, Max: 2, Step: -1}},
		{"max below min", ParamRange{Name: "a", Min: 3, Max: 2, Step: 1}},
		{"missing step", ParamRange{Name: "a", Min: 1, Max: 2, Step: math.NaN()}},
		{"no name", ParamRange{Min: 1, Max: 2, Step: 1}},
		{"too many values", ParamRange{Name: "a", Min: 0, Max: 1, Step: 1e-9}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Check()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIncompleteRange))
			assert.Nil(t, tt.r.Values())
		})
	}
}

func TestGridClean(t *testing.T) {
	t.Parallel()

	g := Grid{
		{Name: "a", Min: 1, Max: 2, Step: 1},
		{Name: "b", Min: 1, Max: 2, Step: 0},
		{Name: "a", Min: 5, Max: 6, Step: 1},
	}
	valid, errs := g.Clean()
	assert.Equal(t, Grid{{Name: "a", Min: 1, Max: 2, Step: 1}}, valid)
	assert.Len(t, errs, 2)
}

func TestSpaceAt(t *testing.T) {
	t.Parallel()

	s := Grid{
		{Name: "a", Min: 1, Max: 2, Step: 1},
		{Name: "b", Min: 10, Max: 30, Step: 10},
	}.Space()
	require.Equal(t, 6, s.Size())

	assert.Equal(t, strategies.Params{"a": 1, "b": 10}, s.At(0))
	assert.Equal(t, strategies.Params{"a": 1, "b": 20}, s.At(1))
	assert.Equal(t, strategies.Params{"a": 2, "b": 10}, s.At(3))
	assert.Equal(t, strategies.Params{"a": 2, "b": 30}, s.At(5))

	assert.Equal(t, 0, Grid{}.Size())
}

func TestParseGridYAML(t *testing.T) {
	t.Parallel()

	doc := []byte(`
long:
  min: 20
  max: 60
  step: 20
short:
  min: 5
  max: 15
  step: 5
std:
  min: 1
  max: 2
`)
	g, err := ParseGridYAML(doc)
	require.NoError(t, err)
	require.Len(t, g, 3)
	assert.Equal(t, "long", g[0].Name)
	assert.Equal(t, "short", g[1].Name)
	assert.True(t, math.IsNaN(g[2].Step))

	valid, errs := g.Clean()
	assert.Len(t, valid, 2)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "std")

	out, err := yaml.Marshal(valid)
	require.NoError(t, err)
	back, err := ParseGridYAML(out)
	require.NoError(t, err)
	assert.Equal(t, valid, back)

	_, err = ParseGridYAML([]byte("- a\n- b\n"))
	assert.Error(t, err)
}

func TestDefaultGrid(t *testing.T) {
	t.Parallel()

	for _, id := range strategies.IDs() {
		g, err := DefaultGrid(id)
		require.NoError(t, err)
		valid, errs := g.Clean()
		assert.Empty(t, errs, id)
		assert.Len(t, valid, len(g))
	}

	g, err := DefaultGrid(strategies.SMACross)
	require.NoError(t, err)
	assert.Equal(t, "short", g[0].Name)
	assert.Equal(t, "long", g[1].Name)

	_, err = DefaultGrid("nope")
	assert.True(t, errors.Is(err, strategies.ErrUnknownStrategy))
}

func TestRunSoftFailures(t *testing.T) {
	t.Parallel()

	series := sineSeries(120)
	tests := []struct {
		name   string
		id     strategies.ID
		grid   Grid
		metric string
	}{
		{"unknown strategy", "martingale", smaGrid(), "sharpe"},
		{"unknown metric", strategies.SMACross, smaGrid(), "sharpe_ratio"},
		{"no valid ranges", strategies.SMACross, Grid{{Name: "short", Min: 5, Max: 1, Step: 1}}, "sharpe"},
		{"empty grid", strategies.SMACross, nil, "sharpe"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run(context.Background(), series, tt.id, tt.grid, btParams(), tt.metric, Options{})
			require.NoError(t, err)
			assert.True(t, res.Empty())
			assert.Equal(t, -1, res.BestIndex)
			assert.Empty(t, res.Best)
			assert.Empty(t, res.BestEquity)
			assert.Empty(t, res.BestTrades)
		})
	}
}

func TestRunBadBacktestParams(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), sineSeries(120), strategies.SMACross, smaGrid(), backtest.Params{}, "sharpe", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backtest.ErrConfiguration))
}

func TestRunBestIsMaximum(t *testing.T) {
	t.Parallel()

	series := sineSeries(250)
	res, err := Run(context.Background(), series, strategies.SMACross, smaGrid(), btParams(), "total_pnl", Options{})
	require.NoError(t, err)

	require.Len(t, res.Rows, 4)
	assert.Equal(t, 4, res.Total)
	assert.False(t, res.Partial)

	maxScore := FailedScore
	for i, row := range res.Rows {
		assert.Equal(t, i, row.Index)
		require.True(t, row.OK(), row.Err)
		maxScore = max(maxScore, row.Metrics["total_pnl"])
	}
	assert.Equal(t, maxScore, res.BestScore)
	assert.Equal(t, res.BestScore, res.BestMetrics.Values()["total_pnl"])
	assert.Equal(t, res.Rows[res.BestIndex].Params, res.Best)

	assert.Len(t, res.BestEquity, len(series.Candles))
	assert.Len(t, res.BestBuyHold, len(series.Candles))
	assert.NotEmpty(t, res.BestTrades)

	assert.Equal(t, strategies.Params{"short": 5, "long": 20}, res.Rows[0].Params)
	assert.Equal(t, strategies.Params{"short": 5, "long": 30}, res.Rows[1].Params)
	assert.Equal(t, strategies.Params{"short": 10, "long": 20}, res.Rows[2].Params)
}

func TestRunTiesKeepFirst(t *testing.T) {
	t.Parallel()

	p := btParams()
	p.CommissionPct = 0
	res, err := Run(context.Background(), sineSeries(250), strategies.SMACross, smaGrid(), p, "total_commission", Options{Workers: 3, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	for _, row := range res.Rows {
		require.True(t, row.OK())
		assert.Equal(t, 0.0, row.Score)
	}
	assert.Equal(t, 0, res.BestIndex)
	assert.Equal(t, strategies.Params{"short": 5, "long": 20}, res.Best)
}

func TestRunFailedRows(t *testing.T) {
	t.Parallel()

	grid := Grid{
		{Name: "short", Min: 10, Max: 30, Step: 10},
		{Name: "long", Min: 20, Max: 20, Step: 1},
	}
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)

	res, err := Run(context.Background(), sineSeries(200), strategies.SMACross, grid, btParams(), "sharpe", Options{Metrics: collector})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	assert.True(t, res.Rows[0].OK())
	for _, row := range res.Rows[1:] {
		require.Error(t, row.Err)
		assert.True(t, errors.Is(row.Err, strategies.ErrInvalidParams))
		assert.Equal(t, FailedScore, row.Score)
		assert.Equal(t, FailedScore, row.Metrics["sharpe"])
	}
	assert.Equal(t, 2, res.Failed())
	assert.Equal(t, 0, res.BestIndex)

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.combinations.WithLabelValues("sma-cross")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.failures.WithLabelValues("sma-cross")))
}

func TestRunInsufficientData(t *testing.T) {
	t.Parallel()

	res, err := Run(context.Background(), sineSeries(15), strategies.SMACross, smaGrid(), btParams(), "sharpe", Options{})
	require.NoError(t, err)

	assert.False(t, res.Empty())
	assert.Equal(t, -1, res.BestIndex)
	assert.Equal(t, 4, res.Failed())
	for _, row := range res.Rows {
		assert.True(t, errors.Is(row.Err, strategies.ErrInsufficientData))
		assert.True(t, errors.Is(row.Err, backtest.ErrComputation))
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	series := sineSeries(300)
	grid := Grid{
		{Name: "short", Min: 5, Max: 15, Step: 5},
		{Name: "long", Min: 20, Max: 50, Step: 10},
	}

	seq, err := Run(context.Background(), series, strategies.SMACross, grid, btParams(), "sharpe", Options{})
	require.NoError(t, err)
	par, err := Run(context.Background(), series, strategies.SMACross, grid, btParams(), "sharpe", Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, seq.Rows, par.Rows)
	assert.Equal(t, seq.BestIndex, par.BestIndex)
	assert.Equal(t, seq.Best, par.Best)
	assert.Equal(t, seq.BestTrades, par.BestTrades)
}

func TestRunProgressAndTruncation(t *testing.T) {
	t.Parallel()

	var calls [][2]int
	opts := Options{
		ProgressEvery: 3,
		Progress:      func(done, total int) { calls = append(calls, [2]int{done, total}) },
	}
	_, err := Run(context.Background(), sineSeries(200), strategies.SMACross, smaGrid(), btParams(), "sharpe", opts)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{3, 4}, {4, 4}}, calls)

	res, err := Run(context.Background(), sineSeries(200), strategies.SMACross, smaGrid(), btParams(), "sharpe", Options{MaxCombinations: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Rows, 2)
	assert.False(t, res.Partial)
}

func TestRunCancelledKeepsPartialRows(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := Options{
		ProgressEvery: 1,
		Progress: func(done, total int) {
			if done == 1 {
				cancel()
			}
		},
	}
	res, err := Run(ctx, sineSeries(200), strategies.SMACross, smaGrid(), btParams(), "sharpe", opts)
	require.NoError(t, err)

	assert.True(t, res.Partial)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 0, res.BestIndex)
	assert.NotEmpty(t, res.BestEquity, "best run is replayed after cancellation")
}

func TestCollectorNil(t *testing.T) {
	t.Parallel()

	var c *Collector
	assert.NotPanics(t, func() { c.observe(strategies.SMACross, false, time.Millisecond) })

	c, err := NewCollector(nil)
	require.NoError(t, err)
	c.observe(strategies.SMACross, true, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.combinations.WithLabelValues("sma-cross")))
}
