package market

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeColumn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Date", ColTime, true},
		{" TIMESTAMP ", ColTime, true},
		{"Open", ColOpen, true},
		{"HIGH", ColHigh, true},
		{"low", ColLow, true},
		{"Close", ColClose, true},
		{"Vol", ColVolume, true},
		{"\ufeffDate", ColTime, true},
		{"Adj Close", "", false},
		{"adj_close", "", false},
		{"dividends", "", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeColumn(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	in := `Date,Open,High,Low,Close,Adj Close,Volume
2024-01-03,101,103,100,102,101.5,1200
2024-01-02,100,102,99,101,100.5,1000
`
	s, err := ReadCSV(strings.NewReader(in), "ACME")
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	assert.Equal(t, "ACME", s.Symbol)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Candles[0].Time)
	assert.Equal(t, Candle{
		Time:   time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		Open:   101,
		High:   103,
		Low:    100,
		Close:  102,
		Volume: 1200,
	}, s.Candles[1])
}

func TestReadCSVVolumeOptional(t *testing.T) {
	t.Parallel()

	in := "time,open,high,low,close\n2024-01-02T00:00:00Z,1,2,0.5,1.5\n"
	s, err := ReadCSV(strings.NewReader(in), "X")
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 0.0, s.Candles[0].Volume)
}

func TestReadCSVErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		errMsg string
	}{
		{
			name:   "empty",
			in:     "",
			errMsg: "empty csv",
		},
		{
			name:   "missing close",
			in:     "date,open,high,low\n2024-01-02,1,2,0.5\n",
			errMsg: "missing columns close",
		},
		{
			name:   "bad number",
			in:     "date,open,high,low,close\n2024-01-02,1,x,0.5,1\n",
			errMsg: `bad high "x"`,
		},
		{
			name:   "bad time",
			in:     "date,open,high,low,close\nyesterday,1,2,0.5,1\n",
			errMsg: "unrecognized time",
		},
		{
			name:   "duplicate time",
			in:     "date,open,high,low,close\n2024-01-02,1,2,0.5,1\n2024-01-02,1,2,0.5,1\n",
			errMsg: "is not after",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in), "X")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrData))
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWriteCSVThenLoad(t *testing.T) {
	t.Parallel()

	s := Series{Symbol: "SPY", Candles: []Candle{
		{Time: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Open: 480.5, High: 482, Low: 479.25, Close: 481, Volume: 1e6},
		{Time: time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), Open: 481, High: 485, Low: 480, Close: 484.75, Volume: 2e6},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, s))

	path := filepath.Join(t.TempDir(), "spy.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := LoadCSV(path, "")
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestSeriesBetween(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	s := Series{Symbol: "X"}
	for d := 1; d <= 5; d++ {
		s.Candles = append(s.Candles, Candle{Time: day(d), Close: float64(d)})
	}

	assert.Equal(t, []float64{2, 3, 4}, s.Between(day(2), day(4)).Closes())
	assert.Equal(t, []float64{1, 2}, s.Between(time.Time{}, day(2)).Closes())
	assert.Equal(t, 5, s.Between(time.Time{}, time.Time{}).Len())
	assert.Equal(t, day(1), s.Start())
	assert.Equal(t, day(5), s.End())
}
