// Package strategies turns a candle series into a per-bar signal series.
package strategies

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rustyeddy/backtester/market"
)

var (
	// ErrInsufficientData means the series is shorter than the longest
	// lookback; callers treat it as a skip.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidParams covers unknown, missing, or inconsistent parameters.
	ErrInvalidParams = errors.New("invalid strategy parameters")

	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Strategy is a signal provider. Signals returns exactly one signal per
// candle. Implementations hold no state between calls, so one value may be
// shared across goroutines.
type Strategy interface {
	Name() string

	// Warmup is the minimum number of candles Signals needs.
	Warmup() int

	Signals(candles []market.Candle) ([]market.Signal, error)
}

// Params holds numeric strategy parameters by name.
type Params map[string]float64

// Int rounds a parameter to the nearest integer.
func (p Params) Int(name string) int {
	return int(math.Round(p[name]))
}

// Clone returns a copy that is safe to mutate.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String renders params sorted by name, e.g. "long=50 short=10".
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, " ")
}

// ParamSpec describes one tunable parameter and its default search range.
type ParamSpec struct {
	Name    string
	Label   string
	Default float64
	Min     float64
	Max     float64
	Step    float64
	Integer bool
}

func insufficient(name string, need, got int) error {
	return fmt.Errorf("%s: %w: need %d candles, got %d", name, ErrInsufficientData, need, got)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}
