package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
)

// Source picks the price an indicator consumes from a candle.
type Source func(c market.Candle) float64

func CloseSource(c market.Candle) float64 { return c.Close }

// TypicalSource is (high+low+close)/3.
func TypicalSource(c market.Candle) float64 { return (c.High + c.Low + c.Close) / 3 }

// SMA is a streaming simple moving average.
type SMA struct {
	period int
	src    Source
	win    *window
}

func NewSMA(period int) *SMA {
	return NewSMAOf(period, CloseSource)
}

// NewSMAOf averages an arbitrary source instead of the close.
func NewSMAOf(period int, src Source) *SMA {
	if period <= 0 {
		panic("SMA period must be > 0")
	}
	return &SMA{period: period, src: src, win: newWindow(period)}
}

func (m *SMA) Name() string { return fmt.Sprintf("SMA(%d)", m.period) }
func (m *SMA) Warmup() int  { return m.period }
func (m *SMA) Reset()       { m.win.reset() }
func (m *SMA) Ready() bool  { return m.win.full() }

func (m *SMA) Update(c market.Candle) {
	m.win.push(m.src(c))
}

func (m *SMA) Value() float64 {
	if !m.Ready() {
		return math.NaN()
	}
	return m.win.mean()
}

// EMA is a streaming exponential moving average seeded with the SMA of the
// first period closes.
type EMA struct {
	period int
	alpha  float64

	seen  int
	sum   float64
	value float64
}

func NewEMA(period int) *EMA {
	if period <= 0 {
		panic("EMA period must be > 0")
	}
	return &EMA{period: period, alpha: 2.0 / float64(period+1)}
}

func (e *EMA) Name() string { return fmt.Sprintf("EMA(%d)", e.period) }
func (e *EMA) Warmup() int  { return e.period }
func (e *EMA) Ready() bool  { return e.seen >= e.period }

func (e *EMA) Reset() {
	e.seen, e.sum, e.value = 0, 0, 0
}

func (e *EMA) Update(c market.Candle) {
	x := c.Close
	e.seen++
	switch {
	case e.seen < e.period:
		e.sum += x
	case e.seen == e.period:
		e.sum += x
		e.value = e.sum / float64(e.period)
	default:
		e.value = e.alpha*x + (1-e.alpha)*e.value
	}
}

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return math.NaN()
	}
	return e.value
}

// StdDev is the rolling population standard deviation of closes.
type StdDev struct {
	period int
	win    *window
}

func NewStdDev(period int) *StdDev {
	if period <= 0 {
		panic("StdDev period must be > 0")
	}
	return &StdDev{period: period, win: newWindow(period)}
}

func (s *StdDev) Name() string { return fmt.Sprintf("STDEV(%d)", s.period) }
func (s *StdDev) Warmup() int  { return s.period }
func (s *StdDev) Reset()       { s.win.reset() }
func (s *StdDev) Ready() bool  { return s.win.full() }

func (s *StdDev) Update(c market.Candle) {
	s.win.push(c.Close)
}

func (s *StdDev) Value() float64 {
	if !s.Ready() {
		return math.NaN()
	}
	mean := s.win.mean()
	var ss float64
	s.win.each(func(x float64) {
		d := x - mean
		ss += d * d
	})
	return math.Sqrt(ss / float64(s.period))
}
