package backtest

import (
	"errors"

	"github.com/rustyeddy/backtester/market"
)

var (
	// ErrConfiguration marks malformed or missing inputs: a missing signal
	// series, bad capital or commission, a mismatched series length.
	ErrConfiguration = errors.New("configuration error")

	// ErrData marks unusable price or signal data.
	ErrData = market.ErrData

	// ErrComputation marks a run that failed while being computed.
	ErrComputation = errors.New("computation error")
)
