package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
)

// Stochastic computes %K over kPeriod bars, %D as the SMA of %K over
// dPeriod, and %DD as the SMA of %D over ddPeriod. Value returns %D.
type Stochastic struct {
	kPeriod, dPeriod, ddPeriod int

	highs, lows *window
	kWin, dWin  *window
	k, d, dd    float64
}

func NewStochastic(kPeriod, dPeriod, ddPeriod int) *Stochastic {
	if kPeriod <= 0 || dPeriod <= 0 || ddPeriod <= 0 {
		panic("Stochastic periods must be > 0")
	}
	s := &Stochastic{
		kPeriod:  kPeriod,
		dPeriod:  dPeriod,
		ddPeriod: ddPeriod,
		highs:    newWindow(kPeriod),
		lows:     newWindow(kPeriod),
		kWin:     newWindow(dPeriod),
		dWin:     newWindow(ddPeriod),
	}
	s.Reset()
	return s
}

func (s *Stochastic) Name() string {
	return fmt.Sprintf("STOCH(%d,%d,%d)", s.kPeriod, s.dPeriod, s.ddPeriod)
}

func (s *Stochastic) Warmup() int { return s.kPeriod + s.dPeriod + s.ddPeriod - 2 }

func (s *Stochastic) Reset() {
	s.highs.reset()
	s.lows.reset()
	s.kWin.reset()
	s.dWin.reset()
	nan := math.NaN()
	s.k, s.d, s.dd = nan, nan, nan
}

func (s *Stochastic) Update(c market.Candle) {
	s.highs.push(c.High)
	s.lows.push(c.Low)
	if !s.highs.full() {
		return
	}

	hh, ll := math.Inf(-1), math.Inf(1)
	s.highs.each(func(x float64) { hh = math.Max(hh, x) })
	s.lows.each(func(x float64) { ll = math.Min(ll, x) })

	// A flat range has no defined position; park it mid-scale.
	s.k = 50
	if hh > ll {
		s.k = 100 * (c.Close - ll) / (hh - ll)
	}

	s.kWin.push(s.k)
	if !s.kWin.full() {
		return
	}
	s.d = s.kWin.mean()

	s.dWin.push(s.d)
	if !s.dWin.full() {
		return
	}
	s.dd = s.dWin.mean()
}

func (s *Stochastic) Ready() bool { return !math.IsNaN(s.dd) }

func (s *Stochastic) Value() float64 {
	if !s.Ready() {
		return math.NaN()
	}
	return s.d
}

// Lines returns %K, %D and %DD; each is NaN until its own warmup completes.
func (s *Stochastic) Lines() (k, d, dd float64) {
	return s.k, s.d, s.dd
}
