package backtest

import (
	"math"
	"slices"
	"time"
)

const tradingDays = 252

// Metrics summarizes one run. Monetary fields are in account currency and
// *Pct fields are already multiplied by 100.
//
// MaxWin and MaxLoss are only meaningful when HasMaxWin / HasMaxLoss are set.
type Metrics struct {
	FinalEquity         float64
	TotalPnL            float64
	TotalPnLPct         float64
	AnnualizedReturnPct float64

	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRatePct    float64

	LongTrades     int
	AvgLongPnL     float64
	AvgLongPnLPct  float64
	ShortTrades    int
	AvgShortPnL    float64
	AvgShortPnLPct float64

	AvgWin     float64
	AvgWinPct  float64
	AvgLoss    float64 // negative
	AvgLossPct float64

	HasMaxWin   bool
	MaxWin      float64
	MaxWinPct   float64
	MaxWinTime  time.Time
	HasMaxLoss  bool
	MaxLoss     float64
	MaxLossPct  float64
	MaxLossTime time.Time

	AvgTradeDays float64

	MaxDrawdown    float64
	MaxDrawdownPct float64

	Sharpe       float64
	Sortino      float64
	Calmar       float64
	ProfitFactor float64
	RewardRisk   float64

	TotalCommission float64
}

// MetricNames lists the keys of Values in display order.
var MetricNames = []string{
	"final_equity",
	"total_pnl",
	"total_pnl_pct",
	"annualized_return_pct",
	"total_trades",
	"winning_trades",
	"losing_trades",
	"win_rate_pct",
	"long_trades",
	"avg_long_pnl",
	"avg_long_pnl_pct",
	"short_trades",
	"avg_short_pnl",
	"avg_short_pnl_pct",
	"avg_win",
	"avg_win_pct",
	"avg_loss",
	"avg_loss_pct",
	"max_win",
	"max_win_pct",
	"max_loss",
	"max_loss_pct",
	"avg_trade_days",
	"max_drawdown",
	"max_drawdown_pct",
	"sharpe",
	"sortino",
	"calmar",
	"profit_factor",
	"reward_risk",
	"total_commission",
}

// IsMetric reports whether name is one of MetricNames.
func IsMetric(name string) bool {
	return slices.Contains(MetricNames, name)
}

// Values flattens m into MetricNames keys. Undefined max win/loss figures
// are left out rather than reported as zero.
func (m Metrics) Values() map[string]float64 {
	v := map[string]float64{
		"final_equity":          m.FinalEquity,
		"total_pnl":             m.TotalPnL,
		"total_pnl_pct":         m.TotalPnLPct,
		"annualized_return_pct": m.AnnualizedReturnPct,
		"total_trades":          float64(m.TotalTrades),
		"winning_trades":        float64(m.WinningTrades),
		"losing_trades":         float64(m.LosingTrades),
		"win_rate_pct":          m.WinRatePct,
		"long_trades":           float64(m.LongTrades),
		"avg_long_pnl":          m.AvgLongPnL,
		"avg_long_pnl_pct":      m.AvgLongPnLPct,
		"short_trades":          float64(m.ShortTrades),
		"avg_short_pnl":         m.AvgShortPnL,
		"avg_short_pnl_pct":     m.AvgShortPnLPct,
		"avg_win":               m.AvgWin,
		"avg_win_pct":           m.AvgWinPct,
		"avg_loss":              m.AvgLoss,
		"avg_loss_pct":          m.AvgLossPct,
		"avg_trade_days":        m.AvgTradeDays,
		"max_drawdown":          m.MaxDrawdown,
		"max_drawdown_pct":      m.MaxDrawdownPct,
		"sharpe":                m.Sharpe,
		"sortino":               m.Sortino,
		"calmar":                m.Calmar,
		"profit_factor":         m.ProfitFactor,
		"reward_risk":           m.RewardRisk,
		"total_commission":      m.TotalCommission,
	}
	if m.HasMaxWin {
		v["max_win"] = m.MaxWin
		v["max_win_pct"] = m.MaxWinPct
	}
	if m.HasMaxLoss {
		v["max_loss"] = m.MaxLoss
		v["max_loss_pct"] = m.MaxLossPct
	}
	return v
}

// ComputeMetrics derives the run statistics from its trade log and equity
// curve. The final equity is the equity after the last trade, or the
// initial capital when nothing traded.
func ComputeMetrics(trades []Trade, equity []Point, initial float64) Metrics {
	m := Metrics{FinalEquity: initial}
	if n := len(trades); n > 0 {
		m.FinalEquity = trades[n-1].Equity
	}
	m.TotalPnL = m.FinalEquity - initial
	m.TotalPnLPct = pct(m.TotalPnL, initial)

	if len(equity) > 1 {
		days := math.Floor(equity[len(equity)-1].Time.Sub(equity[0].Time).Hours() / 24)
		if days > 0 {
			m.AnnualizedReturnPct = m.TotalPnLPct * 365 / days
		}
	}

	tradeStats(&m, trades, initial)
	m.AvgTradeDays = avgTradeDays(trades)
	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(equity)
	riskRatios(&m, dailyReturns(equity, initial))
	return m
}

func tradeStats(m *Metrics, trades []Trade, initial float64) {
	var (
		grossWin, grossLoss float64
		longSum, shortSum   float64
	)
	for _, t := range trades {
		m.TotalCommission += t.Commission
		if t.Action != Close {
			continue
		}
		m.TotalTrades++

		switch t.Side {
		case Long:
			m.LongTrades++
			longSum += t.PnL
		case Short:
			m.ShortTrades++
			shortSum += t.PnL
		}

		switch {
		case t.PnL > 0:
			m.WinningTrades++
			grossWin += t.PnL
			if !m.HasMaxWin || t.PnL > m.MaxWin {
				m.HasMaxWin, m.MaxWin, m.MaxWinTime = true, t.PnL, t.Time
			}
		case t.PnL < 0:
			m.LosingTrades++
			grossLoss += t.PnL
			if !m.HasMaxLoss || t.PnL < m.MaxLoss {
				m.HasMaxLoss, m.MaxLoss, m.MaxLossTime = true, t.PnL, t.Time
			}
		}
	}

	m.WinRatePct = pct(float64(m.WinningTrades), float64(m.TotalTrades))
	m.AvgLongPnL = avg(longSum, m.LongTrades)
	m.AvgShortPnL = avg(shortSum, m.ShortTrades)
	m.AvgWin = avg(grossWin, m.WinningTrades)
	m.AvgLoss = avg(grossLoss, m.LosingTrades)

	m.AvgLongPnLPct = pct(m.AvgLongPnL, initial)
	m.AvgShortPnLPct = pct(m.AvgShortPnL, initial)
	m.AvgWinPct = pct(m.AvgWin, initial)
	m.AvgLossPct = pct(m.AvgLoss, initial)
	m.MaxWinPct = pct(m.MaxWin, initial)
	m.MaxLossPct = pct(m.MaxLoss, initial)

	m.ProfitFactor = math.Inf(1)
	if grossLoss != 0 {
		m.ProfitFactor = grossWin / math.Abs(grossLoss)
	}
	m.RewardRisk = math.Inf(1)
	if m.AvgLoss != 0 {
		m.RewardRisk = m.AvgWin / math.Abs(m.AvgLoss)
	}
}

// avgTradeDays pairs each close with the open it names in EntrySeq, so a
// same-bar reversal still pairs correctly.
func avgTradeDays(trades []Trade) float64 {
	opened := make(map[int]time.Time)
	var total float64
	var n int
	for _, t := range trades {
		if t.Action == Open {
			opened[t.Seq] = t.Time
			continue
		}
		at, ok := opened[t.EntrySeq]
		if !ok {
			continue
		}
		total += math.Floor(t.Time.Sub(at).Hours() / 24)
		n++
	}
	return avg(total, n)
}

func maxDrawdown(equity []Point) (dd, ddPct float64) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak := equity[0].Value
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		d := peak - p.Value
		if d > dd {
			dd = d
		}
		if peak > 0 {
			if dp := d / peak * 100; dp > ddPct {
				ddPct = dp
			}
		}
	}
	return dd, min(max(ddPct, 0), 100)
}

// dailyReturns are the bar-over-bar returns of the curve, starting from the
// initial capital.
func dailyReturns(equity []Point, initial float64) []float64 {
	out := make([]float64, 0, len(equity))
	prev := initial
	for _, p := range equity {
		if prev != 0 {
			out = append(out, (p.Value-prev)/prev)
		}
		prev = p.Value
	}
	return out
}

func riskRatios(m *Metrics, returns []float64) {
	mean := meanOf(returns)

	if sd := sampleStd(returns); len(returns) >= 2 && sd > 0 {
		m.Sharpe = mean / sd * math.Sqrt(tradingDays)
	}

	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	m.Sortino = math.Inf(1)
	if sd := sampleStd(downside); len(downside) >= 2 && sd > 0 {
		m.Sortino = mean / sd * math.Sqrt(tradingDays)
	}

	m.Calmar = math.Inf(1)
	if m.MaxDrawdownPct > 0 {
		annual := math.Pow(1+mean, tradingDays) - 1
		m.Calmar = annual / (m.MaxDrawdownPct / 100)
	}
}

// BuyHoldReturnPct is the return of the buy & hold curve from its first to
// its last point.
func BuyHoldReturnPct(curve []Point) float64 {
	if len(curve) == 0 || curve[0].Value == 0 {
		return 0
	}
	return (curve[len(curve)-1].Value/curve[0].Value - 1) * 100
}

func pct(x, of float64) float64 {
	if of == 0 {
		return 0
	}
	return x / of * 100
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func meanOf(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return avg(s, len(xs))
}

func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := meanOf(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - mu) * (x - mu)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
