package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
)

// ATR is a streaming Average True Range with Wilder smoothing. The first
// value is the simple average of the first period true ranges.
type ATR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prevCandle  market.Candle
	hasPrevious bool
}

func NewATR(period int) *ATR {
	if period <= 0 {
		panic("ATR period must be > 0")
	}
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

// Warmup is period+1 because the first true range needs a previous close.
func (a *ATR) Warmup() int {
	return a.period + 1
}

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrevious = false
}

func (a *ATR) Update(c market.Candle) {
	if !a.hasPrevious {
		a.prevCandle = c
		a.hasPrevious = true
		return
	}

	tr := trueRange(c, a.prevCandle)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}
	a.prevCandle = c
}

func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return math.NaN()
	}
	return a.atr
}

func trueRange(current, previous market.Candle) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - previous.Close)
	lowClose := math.Abs(current.Low - previous.Close)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// Supertrend follows price with an ATR band that flips sides when the close
// crosses it. Value is the active band; Direction is +1 in an uptrend and -1
// in a downtrend, 0 before Ready.
type Supertrend struct {
	period     int
	multiplier float64
	atr        *ATR

	upper, lower float64
	prevClose    float64
	dir          int
	ready        bool
}

func NewSupertrend(period int, multiplier float64) *Supertrend {
	return &Supertrend{period: period, multiplier: multiplier, atr: NewATR(period)}
}

func (s *Supertrend) Name() string {
	return fmt.Sprintf("SUPERTREND(%d,%g)", s.period, s.multiplier)
}
func (s *Supertrend) Warmup() int { return s.atr.Warmup() }
func (s *Supertrend) Ready() bool { return s.ready }
func (s *Supertrend) Direction() int {
	return s.dir
}

func (s *Supertrend) Reset() {
	s.atr.Reset()
	s.upper, s.lower, s.prevClose = 0, 0, 0
	s.dir = 0
	s.ready = false
}

func (s *Supertrend) Update(c market.Candle) {
	s.atr.Update(c)
	if !s.atr.Ready() {
		s.prevClose = c.Close
		return
	}

	mid := (c.High + c.Low) / 2
	band := s.multiplier * s.atr.Value()
	basicUpper, basicLower := mid+band, mid-band

	if !s.ready {
		s.upper, s.lower = basicUpper, basicLower
		s.dir = 1
		if c.Close < s.lower {
			s.dir = -1
		}
		s.ready = true
		s.prevClose = c.Close
		return
	}

	// Bands only tighten while price stays on their side.
	if basicUpper < s.upper || s.prevClose > s.upper {
		s.upper = basicUpper
	}
	if basicLower > s.lower || s.prevClose < s.lower {
		s.lower = basicLower
	}

	switch {
	case s.dir < 0 && c.Close > s.upper:
		s.dir = 1
	case s.dir > 0 && c.Close < s.lower:
		s.dir = -1
	}
	s.prevClose = c.Close
}

func (s *Supertrend) Value() float64 {
	if !s.ready {
		return math.NaN()
	}
	if s.dir > 0 {
		return s.lower
	}
	return s.upper
}
