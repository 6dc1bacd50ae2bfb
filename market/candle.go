package market

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bar. Candles are treated as immutable once loaded.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a chronologically ordered run of candles for one symbol.
type Series struct {
	Symbol  string
	Candles []Candle
}

func (s Series) Len() int {
	return len(s.Candles)
}

// Start and End return the first and last bar times, zero when empty.
func (s Series) Start() time.Time {
	if len(s.Candles) == 0 {
		return time.Time{}
	}
	return s.Candles[0].Time
}

func (s Series) End() time.Time {
	if len(s.Candles) == 0 {
		return time.Time{}
	}
	return s.Candles[len(s.Candles)-1].Time
}

// Between returns the candles with from <= Time <= to. A zero bound is open.
func (s Series) Between(from, to time.Time) Series {
	out := Series{Symbol: s.Symbol}
	for _, c := range s.Candles {
		if !from.IsZero() && c.Time.Before(from) {
			continue
		}
		if !to.IsZero() && c.Time.After(to) {
			continue
		}
		out.Candles = append(out.Candles, c)
	}
	return out
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Validate checks ordering: timestamps must be unique and strictly increasing.
func (s Series) Validate() error {
	for i := 1; i < len(s.Candles); i++ {
		prev, cur := s.Candles[i-1].Time, s.Candles[i].Time
		if !cur.After(prev) {
			return fmt.Errorf("%w: %s: bar %d at %s is not after %s",
				ErrData, s.Symbol, i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
	}
	return nil
}
