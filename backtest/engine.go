package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/backtester/market"
)

// defaultSizingFraction of available capital is committed per trade when
// no fixed amount is set.
const defaultSizingFraction = 0.95

// Point is one sample of an equity or reference curve.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

type Result struct {
	Trades      []Trade
	Equity      []Point
	BuyHold     []Point
	Metrics     Metrics
	FinalEquity float64
}

type engine struct {
	p       Params
	capital float64
	pos     Position
	trades  []Trade
}

// Run replays the series bar by bar, acting on signals[i] at bar i.
//
// Each bar records the equity entering it, then either opens a position
// (when flat) or checks risk exits and signal reversals (when a position
// was already open). Whatever is still open on the last bar is closed at
// its close.
func Run(ctx context.Context, series market.Series, signals []market.Signal, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if signals == nil {
		return nil, fmt.Errorf("%w: backtest: no signal series", ErrConfiguration)
	}
	candles := series.Candles
	if len(signals) != len(candles) {
		return nil, fmt.Errorf("%w: backtest: %d signals for %d bars", ErrConfiguration, len(signals), len(candles))
	}
	for i, s := range signals {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: backtest: signal %d at bar %d", ErrData, s, i)
		}
	}

	e := &engine{p: p, capital: p.InitialCapital}
	equity := make([]Point, 0, len(candles))
	last := len(candles) - 1

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		equity = append(equity, Point{Time: c.Time, Value: e.equity(c.Close)})

		sig := signals[i]
		if !e.pos.open() {
			e.enter(c, sig)
		} else {
			e.pos.observe(c)
			if level, trig, hit := checkExit(&e.pos, c); hit {
				e.close(c, level, trig)
			} else if sig != market.Hold && sideOf(sig) == -e.pos.Side {
				e.close(c, c.Close, OnSignal)
				e.enter(c, sig)
			}
		}

		if i == last && e.pos.open() {
			e.close(c, c.Close, FinalClose)
		}
	}

	if math.IsNaN(e.capital) || math.IsInf(e.capital, 0) {
		return nil, fmt.Errorf("%w: backtest: final equity is %g", ErrComputation, e.capital)
	}

	return &Result{
		Trades:      e.trades,
		Equity:      equity,
		BuyHold:     BuyHold(candles, p.InitialCapital),
		Metrics:     ComputeMetrics(e.trades, equity, p.InitialCapital),
		FinalEquity: e.capital,
	}, nil
}

func (e *engine) equity(px float64) float64 {
	return e.capital + e.pos.markToMarket(px)
}

// shares sizes an entry at px.
func (e *engine) shares(px float64) int64 {
	if !(px > 0) {
		return 0
	}
	budget := defaultSizingFraction * e.capital
	if f := e.p.FixedTradeAmount; f != nil && *f > 0 {
		budget = *f
	}
	n := math.Floor(budget / px)
	if !(n > 0) || n > 1<<53 {
		return 0
	}
	return int64(n)
}

// enter opens a position at the bar's close if the signal asks for one and
// the capital covers it.
func (e *engine) enter(c market.Candle, sig market.Signal) {
	side := sideOf(sig)
	if side == Flat || (side == Short && !e.p.AllowShort) {
		return
	}

	px := c.Close
	n := e.shares(px)
	if n <= 0 {
		return
	}
	notional := float64(n) * px
	commission := e.p.commission(notional)
	cost := notional + commission
	if cost > e.capital {
		return
	}

	seq := len(e.trades) + 1
	pos := Position{
		Side:       side,
		Shares:     n,
		EntryPrice: px,
		EntryTime:  c.Time,
		EntrySeq:   seq,
	}
	dir := float64(side)
	if sl := e.p.StopLossPct; sl != nil {
		pos.StopLoss = px * (100 - dir*(*sl)) / 100
	}
	if tp := e.p.TakeProfitPct; tp != nil {
		pos.TakeProfit = px * (100 + dir*(*tp)) / 100
	}
	if tr := e.p.TrailingStopPct; tr != nil {
		pos.Trailing = true
		pos.TrailPct = *tr
		pos.TrailExtreme = c.High
		if side == Short {
			pos.TrailExtreme = c.Low
		}
	}

	if side == Long {
		e.capital -= cost
	} else {
		// Simplified margin: the notional is reserved, not debited.
		e.capital -= commission
		pos.Margin = notional
	}
	e.pos = pos

	e.trades = append(e.trades, Trade{
		Seq:        seq,
		EntrySeq:   seq,
		Time:       c.Time,
		Side:       side,
		Action:     Open,
		Trigger:    OnSignal,
		Price:      px,
		Shares:     n,
		Cost:       cost,
		Commission: commission,
		Margin:     pos.Margin,
		Equity:     e.equity(px),
	})
}

// close flattens the position at px.
func (e *engine) close(c market.Candle, px float64, trig Trigger) {
	p := e.pos
	notional := float64(p.Shares) * px
	commission := e.p.commission(notional)
	pnl := p.pnl(px)

	var revenue float64
	if p.Side == Long {
		revenue = notional - commission
	} else {
		revenue = pnl - commission
	}
	e.capital += revenue
	e.pos = Position{}

	t := Trade{
		Seq:        len(e.trades) + 1,
		EntrySeq:   p.EntrySeq,
		Time:       c.Time,
		Side:       p.Side,
		Action:     Close,
		Trigger:    trig,
		Price:      px,
		Shares:     p.Shares,
		Revenue:    revenue,
		Commission: commission,
		PnL:        pnl,
		Equity:     e.capital,
	}
	if t.IsRiskExit() {
		t.Level = px
	}
	e.trades = append(e.trades, t)
}

// BuyHold is the reference curve of holding from the first close:
// initial * close[t] / close[0]. A zero first close yields a flat curve.
func BuyHold(candles []market.Candle, initial float64) []Point {
	out := make([]Point, len(candles))
	if len(candles) == 0 {
		return out
	}
	base := candles[0].Close
	for i, c := range candles {
		v := initial
		if base != 0 {
			v = initial * c.Close / base
		}
		out[i] = Point{Time: c.Time, Value: v}
	}
	return out
}
