// Package indicators provides streaming technical analysis indicators over
// daily candles.
package indicators

import (
	"math"

	"github.com/rustyeddy/backtester/market"
)

// Indicator computes a single streaming value from candles.
// It is deterministic and safe to reuse across backtests after Reset.
type Indicator interface {
	// Name returns a stable identifier like "SMA(20)" or "CCI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed candle.
	Update(c market.Candle)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or NaN before Ready.
	Value() float64
}

// Compute feeds every candle through ind and returns one value per candle,
// NaN until the indicator is ready.
func Compute(ind Indicator, candles []market.Candle) []float64 {
	ind.Reset()
	out := make([]float64, len(candles))
	for i, c := range candles {
		ind.Update(c)
		out[i] = ind.Value()
	}
	return out
}

// FirstValid returns the index of the first non-NaN value, or -1.
func FirstValid(xs []float64) int {
	for i, x := range xs {
		if !math.IsNaN(x) {
			return i
		}
	}
	return -1
}

// window is a fixed-size ring of the most recent values with a running sum.
type window struct {
	buf  []float64
	next int
	n    int
	sum  float64
}

func newWindow(size int) *window {
	return &window{buf: make([]float64, size)}
}

func (w *window) push(x float64) {
	if w.n == len(w.buf) {
		w.sum -= w.buf[w.next]
	} else {
		w.n++
	}
	w.buf[w.next] = x
	w.sum += x
	w.next = (w.next + 1) % len(w.buf)
}

func (w *window) full() bool { return w.n == len(w.buf) }

func (w *window) reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.next, w.n, w.sum = 0, 0, 0
}

func (w *window) mean() float64 {
	if w.n == 0 {
		return math.NaN()
	}
	return w.sum / float64(w.n)
}

// each calls fn for every value currently held, oldest first.
func (w *window) each(fn func(float64)) {
	start := 0
	if w.n == len(w.buf) {
		start = w.next
	}
	for i := 0; i < w.n; i++ {
		fn(w.buf[(start+i)%len(w.buf)])
	}
}
