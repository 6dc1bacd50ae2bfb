package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/market"
)

// MACross signals when a fast moving average crosses a slow one. It emits
// only on the cross event and flattens when the averages uncross without a
// full opposite cross.
type MACross struct {
	id         ID
	fastPeriod int
	slowPeriod int
	newMA      func(period int) indicators.Indicator
}

func newCross(id ID, p Params) (Strategy, error) {
	x := &MACross{id: id}
	switch id {
	case SMACross:
		x.fastPeriod, x.slowPeriod = p.Int("short"), p.Int("long")
		x.newMA = func(n int) indicators.Indicator { return indicators.NewSMA(n) }
	case EMACross:
		x.fastPeriod, x.slowPeriod = p.Int("fast"), p.Int("slow")
		x.newMA = func(n int) indicators.Indicator { return indicators.NewEMA(n) }
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownStrategy, id)
	}
	if x.fastPeriod <= 0 || x.slowPeriod <= 0 {
		return nil, invalid("%s: periods must be > 0", id)
	}
	if x.fastPeriod >= x.slowPeriod {
		return nil, invalid("%s: fast period %d must be below slow period %d", id, x.fastPeriod, x.slowPeriod)
	}
	return x, nil
}

func (x *MACross) Name() string {
	return fmt.Sprintf("%s(%d,%d)", x.id, x.fastPeriod, x.slowPeriod)
}

// Warmup covers the slow average plus one bar to know the prior relation.
func (x *MACross) Warmup() int { return x.slowPeriod + 1 }

func (x *MACross) Signals(candles []market.Candle) ([]market.Signal, error) {
	if len(candles) < x.Warmup() {
		return nil, insufficient(x.Name(), x.Warmup(), len(candles))
	}

	fast, slow := x.newMA(x.fastPeriod), x.newMA(x.slowPeriod)
	out := make([]market.Signal, len(candles))
	tr := tracker{reverse: true}

	prevFast, prevSlow := math.NaN(), math.NaN()
	for i, c := range candles {
		fast.Update(c)
		slow.Update(c)
		f, s := fast.Value(), slow.Value()

		if !anyNaN(prevFast, prevSlow, f, s) {
			out[i] = tr.step(conditions{
				long:      prevFast < prevSlow && f > s,
				short:     prevFast > prevSlow && f < s,
				exitLong:  f < s,
				exitShort: f > s,
			})
		}
		prevFast, prevSlow = f, s
	}
	return out, nil
}
