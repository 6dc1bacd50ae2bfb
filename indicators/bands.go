package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
)

// Bollinger tracks a middle SMA with upper/lower bands k standard deviations
// away. Value returns the middle band.
type Bollinger struct {
	period int
	k      float64
	sma    *SMA
	sd     *StdDev
}

func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{period: period, k: k, sma: NewSMA(period), sd: NewStdDev(period)}
}

func (b *Bollinger) Name() string { return fmt.Sprintf("BB(%d,%g)", b.period, b.k) }
func (b *Bollinger) Warmup() int  { return b.period }
func (b *Bollinger) Ready() bool  { return b.sma.Ready() }
func (b *Bollinger) Value() float64 {
	return b.sma.Value()
}

func (b *Bollinger) Reset() {
	b.sma.Reset()
	b.sd.Reset()
}

func (b *Bollinger) Update(c market.Candle) {
	b.sma.Update(c)
	b.sd.Update(c)
}

// Bands returns lower, middle, upper. All NaN before Ready.
func (b *Bollinger) Bands() (lower, middle, upper float64) {
	if !b.Ready() {
		nan := math.NaN()
		return nan, nan, nan
	}
	m := b.sma.Value()
	d := b.k * b.sd.Value()
	return m - d, m, m + d
}

// CCI is the Commodity Channel Index over the typical price:
//
//	(tp - SMA(tp)) / (0.015 * meanDeviation)
//
// A flat window (zero mean deviation) yields 0.
type CCI struct {
	period int
	win    *window
}

func NewCCI(period int) *CCI {
	if period <= 0 {
		panic("CCI period must be > 0")
	}
	return &CCI{period: period, win: newWindow(period)}
}

func (c *CCI) Name() string { return fmt.Sprintf("CCI(%d)", c.period) }
func (c *CCI) Warmup() int  { return c.period }
func (c *CCI) Reset()       { c.win.reset() }
func (c *CCI) Ready() bool  { return c.win.full() }

func (c *CCI) Update(candle market.Candle) {
	c.win.push(TypicalSource(candle))
}

func (c *CCI) Value() float64 {
	if !c.Ready() {
		return math.NaN()
	}
	mean := c.win.mean()
	var dev float64
	var last float64
	c.win.each(func(x float64) {
		dev += math.Abs(x - mean)
		last = x
	})
	dev /= float64(c.period)
	if dev == 0 {
		return 0
	}
	return (last - mean) / (0.015 * dev)
}
