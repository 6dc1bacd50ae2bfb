package backtest

import (
	"fmt"
	"time"
)

type Action uint8

const (
	Open Action = iota
	Close
)

func (a Action) String() string {
	if a == Open {
		return "OPEN"
	}
	return "CLOSE"
}

// Trigger says why a trade happened.
type Trigger uint8

const (
	OnSignal Trigger = iota
	StopLoss
	TakeProfit
	TrailingStop
	FinalClose
)

func (t Trigger) String() string {
	switch t {
	case StopLoss:
		return "Stop Loss"
	case TakeProfit:
		return "Take Profit"
	case TrailingStop:
		return "Trailing Stop"
	case FinalClose:
		return "Final Close"
	default:
		return "Signal"
	}
}

// Trade is one executed order. Opens and closes share the type; a close
// points back at its open through EntrySeq.
type Trade struct {
	Seq      int // 1-based position in the log
	EntrySeq int // Seq of the opening trade; equal to Seq on opens

	Time    time.Time
	Side    Side // side of the position opened or closed
	Action  Action
	Trigger Trigger
	Level   float64 // trigger level of a risk exit

	Price  float64
	Shares int64

	// Cost is notional plus commission, checked against capital on opens.
	Cost float64
	// Revenue is what a close credits back to capital.
	Revenue    float64
	Commission float64
	Margin     float64
	PnL        float64 // gross, closes only

	Equity float64 // equity right after the trade
}

// Label renders the trade the way reports and the journal show it.
func (t Trade) Label() string {
	var base string
	switch {
	case t.Action == Open && t.Side == Long:
		base = "BUY"
	case t.Action == Open:
		base = "SELL SHORT"
	case t.Side == Long:
		base = "SELL"
	default:
		base = "COVER"
	}

	switch t.Trigger {
	case StopLoss, TakeProfit, TrailingStop:
		return fmt.Sprintf("%s (%s @ %.2f)", base, t.Trigger, t.Level)
	case FinalClose:
		return fmt.Sprintf("%s (%s %s)", base, t.Trigger, t.Side)
	}
	return base
}

// IsRiskExit reports whether the trade closed on a stop or target.
func (t Trade) IsRiskExit() bool {
	return t.Trigger == StopLoss || t.Trigger == TakeProfit || t.Trigger == TrailingStop
}
