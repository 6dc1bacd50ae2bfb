package backtest

import (
	"time"

	"github.com/rustyeddy/backtester/market"
)

// Side: +1 long, -1 short, 0 flat
type Side int8

const (
	Flat  Side = 0
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// sideOf maps an entry signal to the side it opens.
func sideOf(sig market.Signal) Side {
	return Side(sig)
}

// Position is the single open position of a run. Stop and take levels are
// prices, 0 means none. Trailing is set when a trailing stop was requested,
// including a 0% one that exits on any pullback from the extreme.
type Position struct {
	Side       Side
	Shares     int64
	EntryPrice float64
	EntryTime  time.Time
	EntrySeq   int
	Margin     float64 // notional reserved by a short, never debited

	StopLoss     float64
	TakeProfit   float64
	Trailing     bool
	TrailPct     float64
	TrailExtreme float64 // highest high (long) or lowest low (short) since entry
}

func (p *Position) open() bool { return p.Side != Flat }

// markToMarket is the position's contribution to equity at px. A long was
// paid for in full so it counts its market value; a short only its
// unrealized P/L.
func (p *Position) markToMarket(px float64) float64 {
	switch p.Side {
	case Long:
		return float64(p.Shares) * px
	case Short:
		return float64(p.Shares) * (p.EntryPrice - px)
	}
	return 0
}

func (p *Position) pnl(exit float64) float64 {
	return float64(p.Shares) * (exit - p.EntryPrice) * float64(p.Side)
}

// observe moves the trailing extreme with the bar.
func (p *Position) observe(c market.Candle) {
	if !p.Trailing {
		return
	}
	switch p.Side {
	case Long:
		if c.High > p.TrailExtreme {
			p.TrailExtreme = c.High
		}
	case Short:
		if c.Low < p.TrailExtreme {
			p.TrailExtreme = c.Low
		}
	}
}

func (p *Position) trailLevel() (float64, bool) {
	if !p.Trailing {
		return 0, false
	}
	return p.TrailExtreme * (100 - float64(p.Side)*p.TrailPct) / 100, true
}

// checkExit finds the risk exit touched by the bar, if any. Only one fires:
// trailing stop, then stop loss, then take profit. The fill is the level.
func checkExit(p *Position, c market.Candle) (level float64, trig Trigger, hit bool) {
	trail, trailing := p.trailLevel()

	switch p.Side {
	case Long:
		switch {
		case trailing && c.Low <= trail:
			return trail, TrailingStop, true
		case p.StopLoss != 0 && c.Low <= p.StopLoss:
			return p.StopLoss, StopLoss, true
		case p.TakeProfit != 0 && c.High >= p.TakeProfit:
			return p.TakeProfit, TakeProfit, true
		}
	case Short:
		switch {
		case trailing && c.High >= trail:
			return trail, TrailingStop, true
		case p.StopLoss != 0 && c.High >= p.StopLoss:
			return p.StopLoss, StopLoss, true
		case p.TakeProfit != 0 && c.Low <= p.TakeProfit:
			return p.TakeProfit, TakeProfit, true
		}
	}
	return 0, OnSignal, false
}
