package strategies

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/market"
)

// EMAADXStrategy takes EMA crosses only when ADX says the market is
// trending and the directional indicators agree with the cross. Positions
// are closed when the averages uncross, whatever the ADX.
type EMAADXStrategy struct {
	fast, slow int
	adxPeriod  int
	threshold  float64
}

func newEMAADX(p Params) (Strategy, error) {
	s := &EMAADXStrategy{
		fast:      p.Int("fast"),
		slow:      p.Int("slow"),
		adxPeriod: p.Int("adx"),
		threshold: p["threshold"],
	}
	if s.fast <= 0 || s.slow <= 0 || s.adxPeriod <= 0 {
		return nil, invalid("%s: periods must be > 0", EMAADX)
	}
	if s.fast >= s.slow {
		return nil, invalid("%s: fast period %d must be below slow period %d", EMAADX, s.fast, s.slow)
	}
	if s.threshold < 0 || s.threshold > 100 {
		return nil, invalid("%s: threshold %g must be within [0, 100]", EMAADX, s.threshold)
	}
	return s, nil
}

func (s *EMAADXStrategy) Name() string {
	return fmt.Sprintf("%s(%d,%d,%d,%g)", EMAADX, s.fast, s.slow, s.adxPeriod, s.threshold)
}

func (s *EMAADXStrategy) Warmup() int { return max(s.slow+1, 2*s.adxPeriod) }

func (s *EMAADXStrategy) Signals(candles []market.Candle) ([]market.Signal, error) {
	if len(candles) < s.Warmup() {
		return nil, insufficient(s.Name(), s.Warmup(), len(candles))
	}

	fast, slow := indicators.NewEMA(s.fast), indicators.NewEMA(s.slow)
	adx := indicators.NewADX(s.adxPeriod)
	out := make([]market.Signal, len(candles))
	tr := tracker{reverse: true}

	prevFast, prevSlow := math.NaN(), math.NaN()
	for i, c := range candles {
		fast.Update(c)
		slow.Update(c)
		adx.Update(c)
		f, sl, a := fast.Value(), slow.Value(), adx.Value()

		if !anyNaN(prevFast, prevSlow, f, sl, a) {
			trending := a >= s.threshold
			out[i] = tr.step(conditions{
				long:      trending && prevFast < prevSlow && f > sl && adx.PlusDI() > adx.MinusDI(),
				short:     trending && prevFast > prevSlow && f < sl && adx.MinusDI() > adx.PlusDI(),
				exitLong:  f < sl,
				exitShort: f > sl,
			})
		}
		prevFast, prevSlow = f, sl
	}
	return out, nil
}
