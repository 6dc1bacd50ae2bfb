package strategies

import (
	"math"

	"github.com/rustyeddy/backtester/market"
)

// conditions are evaluated once per bar by a strategy.
type conditions struct {
	long      bool // enter (or reverse into) long
	short     bool // enter (or reverse into) short
	exitLong  bool // leave a long without reversing
	exitShort bool // leave a short without reversing
}

// tracker simulates the position a strategy believes it holds so it only
// emits a signal when that position should change.
//
// With reverse set, an opposite entry condition while in a position flips it
// directly; otherwise it only flattens.
type tracker struct {
	pos     market.Signal
	reverse bool
}

func (t *tracker) step(c conditions) market.Signal {
	switch t.pos {
	case market.Hold:
		switch {
		case c.long:
			t.pos = market.Long
			return market.Long
		case c.short:
			t.pos = market.Short
			return market.Short
		}
	case market.Long:
		switch {
		case c.short && t.reverse:
			t.pos = market.Short
			return market.Short
		case c.short || c.exitLong:
			t.pos = market.Hold
			return market.Short
		}
	case market.Short:
		switch {
		case c.long && t.reverse:
			t.pos = market.Long
			return market.Long
		case c.long || c.exitShort:
			t.pos = market.Hold
			return market.Long
		}
	}
	return market.Hold
}

func anyNaN(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
