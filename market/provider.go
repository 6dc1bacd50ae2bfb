package market

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provider supplies a chronologically sorted series for a symbol over a date
// range. Zero bounds are open.
type Provider interface {
	Fetch(ctx context.Context, symbol string, from, to time.Time) (Series, error)
}

// ErrNotCached is returned by stores that have nothing for the symbol.
var ErrNotCached = errors.New("not cached")

// CSVProvider reads <Dir>/<SYMBOL>.csv.
type CSVProvider struct {
	Dir string
}

var _ Provider = (*CSVProvider)(nil)

func (p *CSVProvider) Path(symbol string) string {
	return filepath.Join(p.Dir, strings.ToUpper(symbol)+".csv")
}

func (p *CSVProvider) Fetch(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	if err := ctx.Err(); err != nil {
		return Series{}, err
	}
	path := p.Path(symbol)
	s, err := LoadCSV(path, strings.ToUpper(symbol))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Series{}, fmt.Errorf("%s: %w", path, ErrNotCached)
		}
		return Series{}, err
	}
	return s.Between(from, to), nil
}

// CachedProvider serves from the parquet store when it covers the request and
// otherwise asks Upstream, writing what it gets back into the store.
type CachedProvider struct {
	Store    *ParquetStore
	Upstream Provider
	Logger   *zap.Logger
}

var _ Provider = (*CachedProvider)(nil)

func (p *CachedProvider) Fetch(ctx context.Context, symbol string, from, to time.Time) (Series, error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cached, err := p.Store.Fetch(ctx, symbol, from, to)
	switch {
	case err == nil && covers(cached, from, to):
		log.Debug("cache hit", zap.String("symbol", symbol), zap.Int("bars", cached.Len()))
		return cached, nil
	case err != nil && !errors.Is(err, ErrNotCached):
		return Series{}, err
	}

	if p.Upstream == nil {
		return Series{}, fmt.Errorf("%s: %w and no upstream configured", symbol, ErrNotCached)
	}
	log.Info("cache miss, fetching", zap.String("symbol", symbol),
		zap.Time("from", from), zap.Time("to", to))

	s, err := p.Upstream.Fetch(ctx, symbol, from, to)
	if err != nil {
		return Series{}, err
	}
	if err := p.Store.Write(s); err != nil {
		log.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return s, nil
}

// covers reports whether the cached series spans [from, to]. Daily bars skip
// weekends and holidays so a few days of slack is tolerated at each edge.
func covers(s Series, from, to time.Time) bool {
	if s.Len() == 0 {
		return false
	}
	const slack = 5 * 24 * time.Hour
	if !from.IsZero() && s.Start().Sub(from) > slack {
		return false
	}
	if !to.IsZero() && to.Sub(s.End()) > slack {
		return false
	}
	return true
}
