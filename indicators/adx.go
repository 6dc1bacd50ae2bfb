package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/backtester/market"
)

// ADX is the Average Directional Index (Wilder).
//
// It needs period deltas to seed the smoothed true range and directional
// movement, then period DX values to seed the ADX itself, so the first
// value arrives on candle 2*period.
type ADX struct {
	period int

	prev    market.Candle
	hasPrev bool
	periods int

	smTR, smPlusDM, smMinusDM float64
	plusDI, minusDI           float64

	dxSum   float64
	dxCount int
	adx     float64
	ready   bool
}

func NewADX(period int) *ADX {
	if period <= 0 {
		panic("ADX period must be > 0")
	}
	return &ADX{period: period}
}

func (a *ADX) Name() string { return fmt.Sprintf("ADX(%d)", a.period) }
func (a *ADX) Warmup() int  { return 2 * a.period }
func (a *ADX) Ready() bool  { return a.ready }

func (a *ADX) Reset() {
	*a = ADX{period: a.period}
}

func (a *ADX) Update(c market.Candle) {
	if !a.hasPrev {
		a.prev = c
		a.hasPrev = true
		return
	}

	tr := trueRange(c, a.prev)
	up := c.High - a.prev.High
	down := a.prev.Low - c.Low
	var plusDM, minusDM float64
	if up > down && up > 0 {
		plusDM = up
	}
	if down > up && down > 0 {
		minusDM = down
	}
	a.prev = c
	a.periods++

	n := float64(a.period)
	if a.periods <= a.period {
		a.smTR += tr
		a.smPlusDM += plusDM
		a.smMinusDM += minusDM
		if a.periods < a.period {
			return
		}
	} else {
		a.smTR = a.smTR - a.smTR/n + tr
		a.smPlusDM = a.smPlusDM - a.smPlusDM/n + plusDM
		a.smMinusDM = a.smMinusDM - a.smMinusDM/n + minusDM
	}

	a.plusDI, a.minusDI = directional(a.smPlusDM, a.smMinusDM, a.smTR)
	dx := directionalIndex(a.plusDI, a.minusDI)

	if a.ready {
		a.adx = (a.adx*(n-1) + dx) / n
		return
	}
	a.dxSum += dx
	a.dxCount++
	if a.dxCount == a.period {
		a.adx = a.dxSum / n
		a.ready = true
	}
}

func (a *ADX) Value() float64 {
	if !a.ready {
		return math.NaN()
	}
	return a.adx
}

// PlusDI and MinusDI are valid once period deltas have been seen.
func (a *ADX) PlusDI() float64  { return a.plusDI }
func (a *ADX) MinusDI() float64 { return a.minusDI }

func directional(smPlusDM, smMinusDM, smTR float64) (plus, minus float64) {
	if smTR <= 0 {
		return 0, 0
	}
	return 100 * smPlusDM / smTR, 100 * smMinusDM / smTR
}

func directionalIndex(plusDI, minusDI float64) float64 {
	den := plusDI + minusDI
	if den <= 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / den
}
