package market

import "errors"

// ErrData marks unusable price data: missing columns, bad rows, bad ordering.
var ErrData = errors.New("data error")

// Signal is a per-bar directional intent.
type Signal int8

const (
	Short Signal = -1
	Hold  Signal = 0
	Long  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	case Hold:
		return "hold"
	default:
		return "invalid"
	}
}

func (s Signal) Valid() bool {
	return s >= Short && s <= Long
}
