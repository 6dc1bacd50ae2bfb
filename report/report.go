// Package report renders backtest and optimization results for people:
// a plain text summary plus CSV exports of trades, curves and result
// tables.
package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/shopspring/decimal"
)

// Summary is everything Print shows about one backtest.
type Summary struct {
	Symbol   string
	Strategy string
	Params   strategies.Params
	Start    time.Time
	End      time.Time

	InitialCapital float64
	Metrics        backtest.Metrics
	BuyHoldPct     float64
}

// NewSummary collects a Summary from a finished run.
func NewSummary(symbol, strategy string, params strategies.Params, bt backtest.Params, res *backtest.Result) Summary {
	s := Summary{
		Symbol:         symbol,
		Strategy:       strategy,
		Params:         params,
		InitialCapital: bt.InitialCapital,
		Metrics:        res.Metrics,
		BuyHoldPct:     backtest.BuyHoldReturnPct(res.BuyHold),
	}
	if n := len(res.Equity); n > 0 {
		s.Start, s.End = res.Equity[0].Time, res.Equity[n-1].Time
	}
	return s
}

// Num rounds v half away from zero to two places. NaN prints as N/A and
// infinities as inf.
func Num(v float64) string {
	switch {
	case math.IsNaN(v):
		return "N/A"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

func pct(v float64) string {
	s := Num(v)
	if s == "N/A" {
		return s
	}
	return s + "%"
}

func date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

// Print writes the text report for s.
func Print(w io.Writer, s Summary) error {
	m := s.Metrics
	p := &printer{w: w}

	p.printf("%s %s  %s .. %s\n", s.Strategy, s.Symbol, date(s.Start), date(s.End))
	if len(s.Params) > 0 {
		p.printf("Parameters: %s\n", s.Params)
	}
	p.printf("\n")

	p.line("Initial capital", Num(s.InitialCapital))
	p.line("Final equity", Num(m.FinalEquity))
	p.line("Total P/L", fmt.Sprintf("%s (%s)", Num(m.TotalPnL), pct(m.TotalPnLPct)))
	p.line("Annualized return", pct(m.AnnualizedReturnPct))
	p.line("Buy & hold return", pct(s.BuyHoldPct))
	p.line("Total commission", Num(m.TotalCommission))
	p.printf("\n")

	p.line("Trades", fmt.Sprintf("%d (won %d, lost %d)", m.TotalTrades, m.WinningTrades, m.LosingTrades))
	p.line("Win rate", pct(m.WinRatePct))
	p.line("Long trades", fmt.Sprintf("%d  avg %s (%s)", m.LongTrades, Num(m.AvgLongPnL), pct(m.AvgLongPnLPct)))
	p.line("Short trades", fmt.Sprintf("%d  avg %s (%s)", m.ShortTrades, Num(m.AvgShortPnL), pct(m.AvgShortPnLPct)))
	p.line("Avg win", fmt.Sprintf("%s (%s)", Num(m.AvgWin), pct(m.AvgWinPct)))
	p.line("Avg loss", fmt.Sprintf("%s (%s)", Num(m.AvgLoss), pct(m.AvgLossPct)))
	p.line("Max win", extreme(m.HasMaxWin, m.MaxWin, m.MaxWinPct, m.MaxWinTime))
	p.line("Max loss", extreme(m.HasMaxLoss, m.MaxLoss, m.MaxLossPct, m.MaxLossTime))
	p.line("Avg trade days", Num(m.AvgTradeDays))
	p.printf("\n")

	p.line("Max drawdown", fmt.Sprintf("%s (%s)", Num(m.MaxDrawdown), pct(m.MaxDrawdownPct)))
	p.line("Sharpe", Num(m.Sharpe))
	p.line("Sortino", Num(m.Sortino))
	p.line("Calmar", Num(m.Calmar))
	p.line("Profit factor", Num(m.ProfitFactor))
	p.line("Reward/risk", Num(m.RewardRisk))

	return p.err
}

func extreme(ok bool, v, pctV float64, at time.Time) string {
	if !ok {
		return "N/A"
	}
	return fmt.Sprintf("%s (%s) on %s", Num(v), pct(pctV), date(at))
}

// printer keeps the first write error so Print can stay linear.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) line(label, value string) {
	p.printf("%-20s %s\n", label+":", value)
}
