package market

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
)

var _ Provider = (*ParquetStore)(nil)

// ParquetStore caches daily bars on disk, one file per symbol:
//
//	<Dir>/<SYMBOL>.parquet
type ParquetStore struct {
	Dir string
}

func NewParquetStore(dir string) *ParquetStore {
	return &ParquetStore{Dir: dir}
}

// BarRecord is the on-disk schema.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func (s *ParquetStore) Path(symbol string) string {
	return filepath.Join(s.Dir, strings.ToUpper(symbol)+".parquet")
}

// Write merges the series into the symbol's file. Incoming bars replace
// cached bars with the same timestamp.
func (s *ParquetStore) Write(series Series) error {
	if series.Len() == 0 {
		return nil
	}
	path := s.Path(series.Symbol)

	var existing []BarRecord
	if _, err := os.Stat(path); err == nil {
		if existing, err = parquet.ReadFile[BarRecord](path); err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
	}

	incoming := make([]BarRecord, 0, series.Len())
	for _, c := range series.Candles {
		incoming = append(incoming, BarRecord{
			Symbol:    strings.ToUpper(series.Symbol),
			Timestamp: c.Time.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, mergeBarRecords(existing, incoming))
}

// Fetch returns the cached bars inside [from, to].
func (s *ParquetStore) Fetch(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return Series{}, err
	}
	path := s.Path(symbol)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Series{}, fmt.Errorf("%s: %w", path, ErrNotCached)
	}
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return Series{}, fmt.Errorf("read %s: %w", path, err)
	}

	out := Series{Symbol: strings.ToUpper(symbol), Candles: make([]Candle, 0, len(rows))}
	for _, r := range rows {
		out.Candles = append(out.Candles, Candle{
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	return out.Between(from, to), nil
}

// Symbols lists the symbols that have a cache file.
func (s *ParquetStore) Symbols() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "*.parquet"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".parquet"))
	}
	sort.Strings(out)
	return out, nil
}

func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}
	out := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
