package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaConfig holds the market data credentials. Empty key/secret fall back
// to the APCA_API_KEY_ID / APCA_API_SECRET_KEY environment variables inside
// the client.
type AlpacaConfig struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	Feed       string // "sip" or "iex"
	Adjustment string // "raw", "split", "dividend", "all"
}

// AlpacaProvider downloads daily bars from the Alpaca market data API.
type AlpacaProvider struct {
	client *marketdata.Client
	cfg    AlpacaConfig
}

var _ Provider = (*AlpacaProvider)(nil)

func NewAlpacaProvider(cfg AlpacaConfig) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		opts.BaseURL = cfg.BaseURL
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	if cfg.Adjustment == "" {
		cfg.Adjustment = "all"
	}
	return &AlpacaProvider{client: marketdata.NewClient(opts), cfg: cfg}
}

func (p *AlpacaProvider) Fetch(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return Series{}, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Series{}, fmt.Errorf("alpaca: symbol required")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}

	bars, err := p.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Adjustment(p.cfg.Adjustment),
		Start:      from,
		End:        to,
		Feed:       marketdata.Feed(p.cfg.Feed),
	})
	if err != nil {
		return Series{}, fmt.Errorf("alpaca: GetBars %s: %w", symbol, err)
	}

	s := Series{Symbol: symbol, Candles: make([]Candle, 0, len(bars))}
	for _, b := range bars {
		s.Candles = append(s.Candles, Candle{
			Time:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: float64(b.Volume),
		})
	}
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}
