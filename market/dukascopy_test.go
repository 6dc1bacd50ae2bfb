package market

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

type bi5Candle struct {
	day                    int // days since the start of the year
	open, close, low, high uint32
	volume                 float32
}

func encodeBI5(t *testing.T, candles []bi5Candle) []byte {
	t.Helper()

	var raw bytes.Buffer
	for _, c := range candles {
		rec := make([]byte, 24)
		be := binary.BigEndian
		be.PutUint32(rec[0:4], uint32(c.day*86400))
		be.PutUint32(rec[4:8], c.open)
		be.PutUint32(rec[8:12], c.close)
		be.PutUint32(rec[12:16], c.low)
		be.PutUint32(rec[16:20], c.high)
		be.PutUint32(rec[20:24], math.Float32bits(c.volume))
		raw.Write(rec)
	}

	var out bytes.Buffer
	w, err := lzma.NewWriter(&out)
	require.NoError(t, err)
	_, err = w.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return out.Bytes()
}

func TestDecodeBI5Candles(t *testing.T) {
	t.Parallel()

	data := encodeBI5(t, []bi5Candle{
		{day: 1, open: 110000, close: 110500, low: 109800, high: 110700, volume: 1234.5},
		{day: 5, open: 110500, close: 110500, low: 110500, high: 110500, volume: 0}, // weekend
		{day: 7, open: 110500, close: 111000, low: 110400, high: 111200, volume: 99},
	})
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := DecodeBI5Candles(bytes.NewReader(data), base, 0.00001)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, base.AddDate(0, 0, 1), got[0].Time)
	assert.InDelta(t, 1.1, got[0].Open, 1e-9)
	assert.InDelta(t, 1.105, got[0].Close, 1e-9)
	assert.InDelta(t, 1.098, got[0].Low, 1e-9)
	assert.InDelta(t, 1.107, got[0].High, 1e-9)
	assert.InDelta(t, 1234.5, got[0].Volume, 1e-9)
	assert.Equal(t, base.AddDate(0, 0, 7), got[1].Time)

	_, err = DecodeBI5Candles(bytes.NewReader([]byte("not lzma")), base, 0.00001)
	assert.True(t, errors.Is(err, ErrData))
}

func TestDukascopyProviderFetch(t *testing.T) {
	t.Parallel()

	y2022 := encodeBI5(t, []bi5Candle{
		{day: 360, open: 13000, close: 13100, low: 12950, high: 13150, volume: 10},
	})
	y2023 := encodeBI5(t, []bi5Candle{
		{day: 2, open: 13100, close: 13200, low: 13050, high: 13250, volume: 10},
		{day: 3, open: 13200, close: 13150, low: 13100, high: 13300, volume: 10},
	})

	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/USDJPY/2022/BID_candles_day_1.bi5":
			_, _ = w.Write(y2022)
		case "/USDJPY/2023/BID_candles_day_1.bi5":
			_, _ = w.Write(y2023)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewDukascopyProvider(nil)
	p.BaseURL = srv.URL
	p.Client = srv.Client()

	from := time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	s, err := p.Fetch(context.Background(), "usdjpy", from, to)
	require.NoError(t, err)

	assert.Equal(t, "USDJPY", s.Symbol)
	require.Equal(t, 3, s.Len())
	require.NoError(t, s.Validate())
	assert.InDelta(t, 130.0, s.Candles[0].Open, 1e-9) // JPY point is 0.001
	assert.InDelta(t, 131.5, s.Candles[2].Close, 1e-9)
	mu.Lock()
	assert.Equal(t, []string{
		"/USDJPY/2022/BID_candles_day_1.bi5",
		"/USDJPY/2023/BID_candles_day_1.bi5",
		"/USDJPY/2024/BID_candles_day_1.bi5",
	}, paths)
	mu.Unlock()

	_, err = p.Fetch(context.Background(), "EURUSD", from, to)
	assert.True(t, errors.Is(err, ErrNotCached))
}

func TestDukascopyProviderHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewDukascopyProvider(nil)
	p.BaseURL = srv.URL
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := p.Fetch(context.Background(), "EURUSD", from, from.AddDate(0, 1, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status 500")
}
