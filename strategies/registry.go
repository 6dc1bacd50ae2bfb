package strategies

import (
	"fmt"
	"math"
	"strings"
)

// ID is the stable identifier of a registered strategy.
type ID string

const (
	SMACross   ID = "sma-cross"
	EMACross   ID = "ema-cross"
	CCISMA     ID = "cci-sma"
	Bollinger  ID = "bollinger"
	Stochastic ID = "stochastic"
	Supertrend ID = "supertrend"
	EMAADX     ID = "ema-adx"
)

// Entry describes a registered strategy and how to build it.
type Entry struct {
	ID          ID
	Title       string
	Description string
	Params      []ParamSpec
	build       func(p Params) (Strategy, error)
}

// Defaults returns every parameter at its default value.
func (e Entry) Defaults() Params {
	p := make(Params, len(e.Params))
	for _, s := range e.Params {
		p[s.Name] = s.Default
	}
	return p
}

// Spec looks up a parameter by name.
func (e Entry) Spec(name string) (ParamSpec, bool) {
	for _, s := range e.Params {
		if s.Name == name {
			return s, true
		}
	}
	return ParamSpec{}, false
}

// The set is closed: adding a strategy means adding an entry here.
var registry = []Entry{
	{
		ID:          SMACross,
		Title:       "SMA crossover",
		Description: "long when the short SMA crosses above the long SMA, short on the opposite cross",
		Params: []ParamSpec{
			{Name: "short", Label: "Short SMA length", Default: 10, Min: 5, Max: 30, Step: 1, Integer: true},
			{Name: "long", Label: "Long SMA length", Default: 50, Min: 20, Max: 100, Step: 5, Integer: true},
		},
		build: func(p Params) (Strategy, error) { return newCross(SMACross, p) },
	},
	{
		ID:          EMACross,
		Title:       "EMA crossover",
		Description: "long when the fast EMA crosses above the slow EMA, short on the opposite cross",
		Params: []ParamSpec{
			{Name: "fast", Label: "Fast EMA length", Default: 20, Min: 5, Max: 50, Step: 5, Integer: true},
			{Name: "slow", Label: "Slow EMA length", Default: 50, Min: 20, Max: 200, Step: 10, Integer: true},
		},
		build: func(p Params) (Strategy, error) { return newCross(EMACross, p) },
	},
	{
		ID:          CCISMA,
		Title:       "CCI + SMA",
		Description: "long while CCI > 0 and close > SMA, short while CCI < 0 and close < SMA",
		Params: []ParamSpec{
			{Name: "cci", Label: "CCI length", Default: 14, Min: 5, Max: 30, Step: 1, Integer: true},
			{Name: "sma", Label: "SMA length", Default: 20, Min: 10, Max: 50, Step: 5, Integer: true},
		},
		build: newCCISMA,
	},
	{
		ID:          Bollinger,
		Title:       "Bollinger band levels",
		Description: "long when close crosses up through the lower band, short when it crosses down through the upper band",
		Params: []ParamSpec{
			{Name: "length", Label: "Band length", Default: 20, Min: 10, Max: 50, Step: 1, Integer: true},
			{Name: "std", Label: "Standard deviations", Default: 2, Min: 1, Max: 3, Step: 0.1},
		},
		build: newBollinger,
	},
	{
		ID:          Stochastic,
		Title:       "Stochastic levels",
		Description: "long when %D crosses above %DD below the buy level, short when it crosses below %DD above the sell level",
		Params: []ParamSpec{
			{Name: "k", Label: "%K length", Default: 14, Min: 1, Max: 50, Step: 1, Integer: true},
			{Name: "d", Label: "%D length", Default: 3, Min: 1, Max: 20, Step: 1, Integer: true},
			{Name: "dd", Label: "%DD length", Default: 3, Min: 1, Max: 20, Step: 1, Integer: true},
			{Name: "buy", Label: "Buy level", Default: 20, Min: 10, Max: 50, Step: 5},
			{Name: "sell", Label: "Sell level", Default: 80, Min: 50, Max: 90, Step: 5},
		},
		build: newStochastic,
	},
	{
		ID:          Supertrend,
		Title:       "Supertrend",
		Description: "long when the supertrend flips up, short when it flips down",
		Params: []ParamSpec{
			{Name: "period", Label: "ATR length", Default: 10, Min: 5, Max: 30, Step: 1, Integer: true},
			{Name: "multiplier", Label: "ATR multiplier", Default: 3, Min: 1, Max: 6, Step: 0.1},
		},
		build: newSupertrend,
	},
	{
		ID:          EMAADX,
		Title:       "EMA crossover with ADX filter",
		Description: "EMA crosses taken only while ADX is at or above the threshold and the DI lines agree; exits on the opposite cross",
		Params: []ParamSpec{
			{Name: "fast", Label: "Fast EMA length", Default: 12, Min: 5, Max: 30, Step: 1, Integer: true},
			{Name: "slow", Label: "Slow EMA length", Default: 26, Min: 20, Max: 100, Step: 5, Integer: true},
			{Name: "adx", Label: "ADX length", Default: 14, Min: 7, Max: 28, Step: 7, Integer: true},
			{Name: "threshold", Label: "ADX threshold", Default: 20, Min: 15, Max: 35, Step: 5},
		},
		build: newEMAADX,
	},
}

// IDs lists the registered strategies in registration order.
func IDs() []ID {
	out := make([]ID, len(registry))
	for i, e := range registry {
		out[i] = e.ID
	}
	return out
}

func Lookup(id ID) (Entry, bool) {
	for _, e := range registry {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// ParseID accepts an identifier in any case, with '_' or ' ' for '-'.
func ParseID(s string) (ID, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	n = strings.NewReplacer("_", "-", " ", "-").Replace(n)
	if _, ok := Lookup(ID(n)); ok {
		return ID(n), nil
	}
	known := make([]string, 0, len(registry))
	for _, e := range registry {
		known = append(known, string(e.ID))
	}
	return "", fmt.Errorf("%w %q (supported: %s)", ErrUnknownStrategy, s, strings.Join(known, ", "))
}

// New builds a strategy. Missing parameters take their defaults; unknown
// names and non-integral values for integer parameters are rejected.
func New(id ID, p Params) (Strategy, error) {
	e, ok := Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownStrategy, id)
	}

	merged := e.Defaults()
	for name, v := range p {
		spec, ok := e.Spec(name)
		if !ok {
			return nil, invalid("%s: unknown parameter %q", id, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalid("%s: %s must be finite", id, name)
		}
		if spec.Integer && math.Abs(v-math.Round(v)) > 1e-9 {
			return nil, invalid("%s: %s must be an integer, got %g", id, name, v)
		}
		merged[name] = v
	}
	return e.build(merged)
}
