package market

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ulikunitz/xz/lzma"
	"go.uber.org/zap"
)

const (
	DukascopyBaseURL = "https://datafeed.dukascopy.com/datafeed"

	// Dukascopy history starts in 2003 for the majors.
	dukascopyFirstYear = 2003
	dukascopyRecordLen = 24
)

// DukascopyProvider downloads daily bid candles from the Dukascopy datafeed.
// Each year is one LZMA compressed file:
//
//	<BaseURL>/<SYMBOL>/<YYYY>/BID_candles_day_1.bi5
//
// Records are 24 bytes, big endian: seconds since the start of the year,
// then open, close, low and high as integer points, then volume as float32.
type DukascopyProvider struct {
	BaseURL string
	Client  *http.Client
	Logger  *zap.Logger

	// Point converts integer prices. Zero picks 0.001 for JPY crosses and
	// 0.00001 otherwise.
	Point float64
}

var _ Provider = (*DukascopyProvider)(nil)

func NewDukascopyProvider(log *zap.Logger) *DukascopyProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &DukascopyProvider{
		BaseURL: DukascopyBaseURL,
		Client:  &http.Client{Timeout: 45 * time.Second},
		Logger:  log,
	}
}

func (p *DukascopyProvider) point(symbol string) float64 {
	if p.Point > 0 {
		return p.Point
	}
	if strings.Contains(symbol, "JPY") {
		return 0.001
	}
	return 0.00001
}

func (p *DukascopyProvider) yearURL(symbol string, year int) string {
	return fmt.Sprintf("%s/%s/%04d/BID_candles_day_1.bi5", strings.TrimRight(p.BaseURL, "/"), symbol, year)
}

// Fetch reads every year touching [from, to]. Missing years are skipped;
// zero-volume days (weekends, holidays) are dropped.
func (p *DukascopyProvider) Fetch(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Series{}, errors.New("dukascopy: symbol required")
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	first := dukascopyFirstYear
	if !from.IsZero() {
		first = from.UTC().Year()
	}

	out := Series{Symbol: symbol}
	for year := first; year <= to.UTC().Year(); year++ {
		candles, err := p.fetchYear(ctx, symbol, year)
		if err != nil {
			return Series{}, err
		}
		out.Candles = append(out.Candles, candles...)
	}
	if out.Len() == 0 {
		return Series{}, fmt.Errorf("dukascopy %s: %w", symbol, ErrNotCached)
	}
	return out.Between(from, to), nil
}

func (p *DukascopyProvider) fetchYear(ctx context.Context, symbol string, year int) ([]Candle, error) {
	url := p.yearURL(symbol, year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "backtester/dukascopy")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dukascopy: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		p.Logger.Debug("dukascopy year missing", zap.String("url", url))
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("dukascopy %s: http status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dukascopy %s: %w", url, err)
	}
	// An empty year is served as an empty file.
	if len(body) == 0 {
		return nil, nil
	}
	candles, err := DecodeBI5Candles(bytes.NewReader(body), time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), p.point(symbol))
	if err != nil {
		return nil, fmt.Errorf("dukascopy %s: %w", url, err)
	}
	p.Logger.Debug("dukascopy year loaded", zap.String("symbol", symbol), zap.Int("year", year), zap.Int("bars", len(candles)))
	return candles, nil
}

// DecodeBI5Candles decompresses a .bi5 candle file whose offsets count from
// base.
func DecodeBI5Candles(r io.Reader, base time.Time, point float64) ([]Candle, error) {
	lr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: lzma: %v", ErrData, err)
	}
	raw, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("%w: lzma: %v", ErrData, err)
	}
	if len(raw)%dukascopyRecordLen != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of candles", ErrData, len(raw))
	}

	out := make([]Candle, 0, len(raw)/dukascopyRecordLen)
	be := binary.BigEndian
	for off := 0; off < len(raw); off += dukascopyRecordLen {
		rec := raw[off : off+dukascopyRecordLen]
		vol := float64(math.Float32frombits(be.Uint32(rec[20:24])))
		if vol <= 0 {
			continue
		}
		out = append(out, Candle{
			Time:   base.Add(time.Duration(be.Uint32(rec[0:4])) * time.Second),
			Open:   float64(be.Uint32(rec[4:8])) * point,
			Close:  float64(be.Uint32(rec[8:12])) * point,
			Low:    float64(be.Uint32(rec[12:16])) * point,
			High:   float64(be.Uint32(rec[16:20])) * point,
			Volume: vol,
		})
	}
	return out, nil
}
