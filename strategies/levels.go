package strategies

import (
	"fmt"

	"github.com/rustyeddy/backtester/indicators"
	"github.com/rustyeddy/backtester/market"
)

// CCISMAStrategy holds a long while CCI is positive and the close is above
// its SMA, and a short while both are on the other side.
type CCISMAStrategy struct {
	cciPeriod int
	smaPeriod int
}

func newCCISMA(p Params) (Strategy, error) {
	s := &CCISMAStrategy{cciPeriod: p.Int("cci"), smaPeriod: p.Int("sma")}
	if s.cciPeriod <= 0 || s.smaPeriod <= 0 {
		return nil, invalid("%s: periods must be > 0", CCISMA)
	}
	return s, nil
}

func (s *CCISMAStrategy) Name() string {
	return fmt.Sprintf("%s(%d,%d)", CCISMA, s.cciPeriod, s.smaPeriod)
}

func (s *CCISMAStrategy) Warmup() int { return max(s.cciPeriod, s.smaPeriod) + 1 }

func (s *CCISMAStrategy) Signals(candles []market.Candle) ([]market.Signal, error) {
	if len(candles) < s.Warmup() {
		return nil, insufficient(s.Name(), s.Warmup(), len(candles))
	}

	cci, sma := indicators.NewCCI(s.cciPeriod), indicators.NewSMA(s.smaPeriod)
	out := make([]market.Signal, len(candles))
	tr := tracker{reverse: true}
	primed := false

	for i, c := range candles {
		cci.Update(c)
		sma.Update(c)
		cv, sv := cci.Value(), sma.Value()
		if anyNaN(cv, sv) {
			continue
		}
		// The first bar with both values only establishes a baseline.
		if !primed {
			primed = true
			continue
		}
		long := cv > 0 && c.Close > sv
		short := cv < 0 && c.Close < sv
		out[i] = tr.step(conditions{
			long:      long,
			short:     short,
			exitLong:  !long,
			exitShort: !short,
		})
	}
	return out, nil
}

// BollingerStrategy trades closes crossing the bands. Longs exit when the
// close crosses down through the upper or middle band; shorts mirror it.
type BollingerStrategy struct {
	length int
	k      float64
}

func newBollinger(p Params) (Strategy, error) {
	s := &BollingerStrategy{length: p.Int("length"), k: p["std"]}
	if s.length <= 1 {
		return nil, invalid("%s: length must be > 1", Bollinger)
	}
	if s.k <= 0 {
		return nil, invalid("%s: std must be > 0", Bollinger)
	}
	return s, nil
}

func (s *BollingerStrategy) Name() string {
	return fmt.Sprintf("%s(%d,%g)", Bollinger, s.length, s.k)
}

func (s *BollingerStrategy) Warmup() int { return s.length + 1 }

func (s *BollingerStrategy) Signals(candles []market.Candle) ([]market.Signal, error) {
	if len(candles) < s.Warmup() {
		return nil, insufficient(s.Name(), s.Warmup(), len(candles))
	}

	bb := indicators.NewBollinger(s.length, s.k)
	out := make([]market.Signal, len(candles))
	tr := tracker{}

	var prevClose, prevLower, prevMid, prevUpper float64
	havePrev := false
	for i, c := range candles {
		c := c
		bb.Update(c)
		lower, mid, upper := bb.Bands()
		if anyNaN(lower, mid, upper) {
			continue
		}
		if havePrev {
			upThrough := func(prevLevel, level float64) bool { return prevClose <= prevLevel && c.Close > level }
			downThrough := func(prevLevel, level float64) bool { return prevClose >= prevLevel && c.Close < level }
			out[i] = tr.step(conditions{
				long:      upThrough(prevLower, lower),
				short:     downThrough(prevUpper, upper),
				exitLong:  downThrough(prevMid, mid),
				exitShort: upThrough(prevMid, mid),
			})
		}
		prevClose, prevLower, prevMid, prevUpper = c.Close, lower, mid, upper
		havePrev = true
	}
	return out, nil
}

// StochasticStrategy buys when %D crosses above %DD while below the buy level
// and sells when %D crosses below %DD while above the sell level. It keeps no
// position state.
type StochasticStrategy struct {
	k, d, dd  int
	buy, sell float64
}

func newStochastic(p Params) (Strategy, error) {
	s := &StochasticStrategy{
		k:    p.Int("k"),
		d:    p.Int("d"),
		dd:   p.Int("dd"),
		buy:  p["buy"],
		sell: p["sell"],
	}
	if s.k <= 0 || s.d <= 0 || s.dd <= 0 {
		return nil, invalid("%s: periods must be > 0", Stochastic)
	}
	if s.buy < 0 || s.sell > 100 {
		return nil, invalid("%s: levels must lie within [0, 100]", Stochastic)
	}
	if s.buy >= s.sell {
		return nil, invalid("%s: buy level %g must be below sell level %g", Stochastic, s.buy, s.sell)
	}
	return s, nil
}

func (s *StochasticStrategy) Name() string {
	return fmt.Sprintf("%s(%d,%d,%d,%g,%g)", Stochastic, s.k, s.d, s.dd, s.buy, s.sell)
}

func (s *StochasticStrategy) Warmup() int { return s.k + s.d + s.dd - 1 }

func (s *StochasticStrategy) Signals(candles []market.Candle) ([]market.Signal, error) {
	if len(candles) < s.Warmup() {
		return nil, insufficient(s.Name(), s.Warmup(), len(candles))
	}

	st := indicators.NewStochastic(s.k, s.d, s.dd)
	out := make([]market.Signal, len(candles))

	var prevD, prevDD float64
	havePrev := false
	for i, c := range candles {
		st.Update(c)
		_, d, dd := st.Lines()
		if anyNaN(d, dd) {
			continue
		}
		if havePrev {
			switch {
			case prevD < prevDD && d > dd && d < s.buy:
				out[i] = market.Long
			case prevD > prevDD && d < dd && d > s.sell:
				out[i] = market.Short
			}
		}
		prevD, prevDD = d, dd
		havePrev = true
	}
	return out, nil
}

// SupertrendStrategy follows supertrend direction flips.
type SupertrendStrategy struct {
	period     int
	multiplier float64
}

func newSupertrend(p Params) (Strategy, error) {
	s := &SupertrendStrategy{period: p.Int("period"), multiplier: p["multiplier"]}
	if s.period <= 0 {
		return nil, invalid("%s: period must be > 0", Supertrend)
	}
	if s.multiplier <= 0 {
		return nil, invalid("%s: multiplier must be > 0", Supertrend)
	}
	return s, nil
}

func (s *SupertrendStrategy) Name() string {
	return fmt.Sprintf("%s(%d,%g)", Supertrend, s.period, s.multiplier)
}

func (s *SupertrendStrategy) Warmup() int { return s.period + 2 }

func (s *SupertrendStrategy) Signals(candles []market.Candle) ([]market.Signal, error) {
	if len(candles) < s.Warmup() {
		return nil, insufficient(s.Name(), s.Warmup(), len(candles))
	}

	st := indicators.NewSupertrend(s.period, s.multiplier)
	out := make([]market.Signal, len(candles))
	tr := tracker{reverse: true}

	prev := 0
	for i, c := range candles {
		st.Update(c)
		dir := st.Direction()
		if prev != 0 && dir != prev {
			out[i] = tr.step(conditions{
				long:  dir > 0,
				short: dir < 0,
			})
		}
		prev = dir
	}
	return out, nil
}
