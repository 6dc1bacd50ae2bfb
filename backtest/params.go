package backtest

import (
	"fmt"
	"math"
)

// Params are the fixed inputs of a backtest run. Percentages are plain
// numbers: 5 means 5%.
//
// The optional fields are disabled when nil. The engine never treats 0 as
// disabled; callers that read 0 from a form or a config file go through
// Optional first.
type Params struct {
	InitialCapital   float64  `json:"initial_capital" yaml:"initial_capital"`
	CommissionPct    float64  `json:"commission_pct" yaml:"commission_pct"`
	AllowShort       bool     `json:"allow_short" yaml:"allow_short"`
	FixedTradeAmount *float64 `json:"fixed_trade_amount,omitempty" yaml:"fixed_trade_amount,omitempty"`
	StopLossPct      *float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct,omitempty"`
	TakeProfitPct    *float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct,omitempty"`
	TrailingStopPct  *float64 `json:"trailing_stop_pct,omitempty" yaml:"trailing_stop_pct,omitempty"`
}

// Optional returns nil for 0 and a pointer to v otherwise.
func Optional(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

// Validate reports an ErrConfiguration for inputs the engine cannot run with.
func (p Params) Validate() error {
	if !(p.InitialCapital > 0) || math.IsInf(p.InitialCapital, 0) {
		return fmt.Errorf("%w: backtest: initial capital must be > 0, got %g", ErrConfiguration, p.InitialCapital)
	}
	if !(p.CommissionPct >= 0) || math.IsInf(p.CommissionPct, 0) {
		return fmt.Errorf("%w: backtest: commission must be >= 0, got %g", ErrConfiguration, p.CommissionPct)
	}

	optional := []struct {
		name string
		v    *float64
	}{
		{"fixed trade amount", p.FixedTradeAmount},
		{"stop loss", p.StopLossPct},
		{"take profit", p.TakeProfitPct},
		{"trailing stop", p.TrailingStopPct},
	}
	for _, o := range optional {
		if o.v == nil {
			continue
		}
		if !(*o.v >= 0) || math.IsInf(*o.v, 0) {
			return fmt.Errorf("%w: backtest: %s must be >= 0, got %g", ErrConfiguration, o.name, *o.v)
		}
	}
	return nil
}

func (p Params) commission(notional float64) float64 {
	return notional * p.CommissionPct / 100
}
