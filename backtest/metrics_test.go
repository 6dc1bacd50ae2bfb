package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(day int, v float64) Point {
	return Point{Time: day0.AddDate(0, 0, day), Value: v}
}

func TestComputeMetricsTradeBreakdown(t *testing.T) {
	t.Parallel()

	trades := []Trade{
		{Seq: 1, EntrySeq: 1, Time: day0, Side: Long, Action: Open, Commission: 1, Equity: 9999},
		{Seq: 2, EntrySeq: 1, Time: day0.AddDate(0, 0, 10), Side: Long, Action: Close, PnL: 200, Commission: 1, Equity: 10198},
		{Seq: 3, EntrySeq: 3, Time: day0.AddDate(0, 0, 10), Side: Short, Action: Open, Commission: 1, Equity: 10197},
		{Seq: 4, EntrySeq: 3, Time: day0.AddDate(0, 0, 15), Side: Short, Action: Close, Trigger: FinalClose, PnL: -100, Commission: 1, Equity: 10096},
	}
	equity := []Point{point(0, 10000), point(10, 10200), point(12, 10100), point(15, 10096)}

	m := ComputeMetrics(trades, equity, 10000)

	assert.Equal(t, 10096.0, m.FinalEquity)
	assert.InDelta(t, 96, m.TotalPnL, 1e-9)
	assert.InDelta(t, 0.96, m.TotalPnLPct, 1e-9)
	assert.InDelta(t, 0.96*365/15, m.AnnualizedReturnPct, 1e-9)

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Equal(t, 50.0, m.WinRatePct)

	assert.Equal(t, 1, m.LongTrades)
	assert.Equal(t, 200.0, m.AvgLongPnL)
	assert.InDelta(t, 2, m.AvgLongPnLPct, 1e-9)
	assert.Equal(t, 1, m.ShortTrades)
	assert.Equal(t, -100.0, m.AvgShortPnL)

	assert.Equal(t, 200.0, m.AvgWin)
	assert.Equal(t, -100.0, m.AvgLoss)
	assert.InDelta(t, -1, m.AvgLossPct, 1e-9)
	assert.Equal(t, 2.0, m.ProfitFactor)
	assert.Equal(t, 2.0, m.RewardRisk)

	require.True(t, m.HasMaxWin)
	assert.Equal(t, 200.0, m.MaxWin)
	assert.Equal(t, day0.AddDate(0, 0, 10), m.MaxWinTime)
	require.True(t, m.HasMaxLoss)
	assert.Equal(t, -100.0, m.MaxLoss)

	assert.Equal(t, 7.5, m.AvgTradeDays)
	assert.Equal(t, 4.0, m.TotalCommission)

	assert.InDelta(t, 104, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 104.0/10200*100, m.MaxDrawdownPct, 1e-9)
}

func TestComputeMetricsRiskRatios(t *testing.T) {
	t.Parallel()

	equity := []Point{point(0, 110), point(1, 99), point(2, 108.9)}
	m := ComputeMetrics(nil, equity, 100)

	rets := []float64{0.1, -0.1, 0.1}
	mean := (rets[0] + rets[1] + rets[2]) / 3
	var ss float64
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / 2)

	assert.InDelta(t, mean/sd*math.Sqrt(252), m.Sharpe, 1e-9)
	assert.True(t, math.IsInf(m.Sortino, 1), "one negative return is not enough for a downside deviation")
	assert.InDelta(t, 11, m.MaxDrawdown, 1e-9)
	assert.InDelta(t, 10, m.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, (math.Pow(1+mean, 252)-1)/0.1, m.Calmar, 1e-6*math.Abs(m.Calmar))
}

func TestComputeMetricsSortino(t *testing.T) {
	t.Parallel()

	equity := []Point{point(0, 90), point(1, 99), point(2, 79.2), point(3, 87.12)}
	m := ComputeMetrics(nil, equity, 100)

	rets := []float64{-0.1, 0.1, -0.2, 0.1}
	mean := (rets[0] + rets[1] + rets[2] + rets[3]) / 4
	negMean := -0.15
	negSD := math.Sqrt(((-0.1-negMean)*(-0.1-negMean) + (-0.2-negMean)*(-0.2-negMean)) / 1)
	assert.InDelta(t, mean/negSD*math.Sqrt(252), m.Sortino, 1e-6)
}

func TestComputeMetricsDegenerate(t *testing.T) {
	t.Parallel()

	t.Run("flat curve", func(t *testing.T) {
		m := ComputeMetrics(nil, []Point{point(0, 100), point(1, 100), point(2, 100)}, 100)
		assert.Equal(t, 0.0, m.Sharpe)
		assert.True(t, math.IsInf(m.Sortino, 1))
		assert.True(t, math.IsInf(m.Calmar, 1))
		assert.True(t, math.IsInf(m.ProfitFactor, 1))
		assert.True(t, math.IsInf(m.RewardRisk, 1))
		assert.Equal(t, 0.0, m.WinRatePct)
		assert.Equal(t, 0.0, m.AvgTradeDays)

		v := m.Values()
		assert.NotContains(t, v, "max_win")
		assert.NotContains(t, v, "max_loss_pct")
	})

	t.Run("only winners", func(t *testing.T) {
		trades := []Trade{
			{Seq: 1, EntrySeq: 1, Side: Long, Action: Open, Equity: 100},
			{Seq: 2, EntrySeq: 1, Side: Long, Action: Close, PnL: 10, Equity: 110},
		}
		m := ComputeMetrics(trades, []Point{point(0, 100), point(1, 110)}, 100)
		assert.True(t, math.IsInf(m.ProfitFactor, 1))
		assert.True(t, math.IsInf(m.RewardRisk, 1))
		assert.False(t, m.HasMaxLoss)
		assert.Equal(t, 100.0, m.WinRatePct)
	})

	t.Run("same day annualized is zero", func(t *testing.T) {
		m := ComputeMetrics(nil, []Point{point(0, 100)}, 90)
		assert.Equal(t, 0.0, m.AnnualizedReturnPct)
	})

	t.Run("drawdown pct is clamped", func(t *testing.T) {
		m := ComputeMetrics(nil, []Point{point(0, 100), point(1, -50)}, 100)
		assert.Equal(t, 150.0, m.MaxDrawdown)
		assert.Equal(t, 100.0, m.MaxDrawdownPct)
	})
}

func TestMetricsValues(t *testing.T) {
	t.Parallel()

	m := Metrics{HasMaxWin: true, MaxWin: 5, HasMaxLoss: true, MaxLoss: -3, Sharpe: 1.5, TotalTrades: 4}
	v := m.Values()

	assert.Len(t, v, len(MetricNames))
	for name := range v {
		assert.True(t, IsMetric(name), name)
	}
	assert.Equal(t, 1.5, v["sharpe"])
	assert.Equal(t, 4.0, v["total_trades"])
	assert.Equal(t, -3.0, v["max_loss"])

	assert.False(t, IsMetric("sharpe_ratio"))
}

func TestTradeLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		trade Trade
		want  string
	}{
		{Trade{Side: Long, Action: Open}, "BUY"},
		{Trade{Side: Short, Action: Open}, "SELL SHORT"},
		{Trade{Side: Long, Action: Close}, "SELL"},
		{Trade{Side: Short, Action: Close}, "COVER"},
		{Trade{Side: Short, Action: Close, Trigger: TakeProfit, Level: 88.5}, "COVER (Take Profit @ 88.50)"},
		{Trade{Side: Long, Action: Close, Trigger: FinalClose}, "SELL (Final Close LONG)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trade.Label())
		})
	}
}
