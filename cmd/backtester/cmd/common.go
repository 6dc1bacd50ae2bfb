package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/optimize"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// dataFlags select the bars a command runs on.
type dataFlags struct {
	symbol string
	csv    string
	from   string
	to     string
}

func (d *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&d.symbol, "symbol", "s", "", "symbol to load from the configured data provider")
	cmd.Flags().StringVar(&d.csv, "csv", "", "read bars from this CSV file instead of the provider")
	cmd.Flags().StringVar(&d.from, "from", "", "first bar date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.to, "to", "", "last bar date (YYYY-MM-DD)")
}

func (d *dataFlags) window() (from, to time.Time, err error) {
	if d.from != "" {
		if from, err = market.ParseTime(d.from); err != nil {
			return from, to, fmt.Errorf("--from: %w", err)
		}
	}
	if d.to != "" {
		if to, err = market.ParseTime(d.to); err != nil {
			return from, to, fmt.Errorf("--to: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("--to %s is before --from %s", d.to, d.from)
	}
	return from, to, nil
}

// load reads the series named by the flags, validated and trimmed to the
// requested window.
func (d *dataFlags) load(ctx context.Context) (market.Series, error) {
	from, to, err := d.window()
	if err != nil {
		return market.Series{}, err
	}

	var s market.Series
	switch {
	case d.csv != "":
		s, err = market.LoadCSV(d.csv, strings.ToUpper(d.symbol))
		if err == nil {
			s = s.Between(from, to)
		}
	case d.symbol != "":
		var p market.Provider
		if p, err = cfg.Data.Source(logger); err == nil {
			s, err = p.Fetch(ctx, d.symbol, from, to)
		}
	default:
		return market.Series{}, errors.New("either --symbol or --csv is required")
	}
	if err != nil {
		return market.Series{}, fmt.Errorf("load bars: %w", err)
	}
	if err := s.Validate(); err != nil {
		return market.Series{}, err
	}

	logger.Info("bars loaded",
		zap.String("symbol", s.Symbol),
		zap.Int("bars", s.Len()),
		zap.Time("start", s.Start()),
		zap.Time("end", s.End()))
	return s, nil
}

// parseParams turns repeated name=value flags into strategy parameters.
func parseParams(kv map[string]string) (strategies.Params, error) {
	p := make(strategies.Params, len(kv))
	for k, v := range kv {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("--param %s=%s: not a number", k, v)
		}
		p[strings.TrimSpace(k)] = f
	}
	return p, nil
}

func strategyID(flag string) (strategies.ID, error) {
	name := flag
	if name == "" {
		name = cfg.Backtest.Strategy
	}
	return strategies.ParseID(name)
}

// openJournal returns nil when no journal is configured.
func openJournal() (*journal.SQLite, error) {
	if cfg.Journal.DBPath == "" {
		return nil, nil
	}
	j, err := journal.NewSQLite(cfg.Journal.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func requireJournal() (*journal.SQLite, error) {
	j, err := openJournal()
	if err == nil && j == nil {
		err = errors.New("no journal configured: pass --db or set journal.db_path")
	}
	return j, err
}

// serveMetrics registers the optimizer collector and serves /metrics on
// addr. With an empty addr it returns a nil collector.
func serveMetrics(addr string) (*optimize.Collector, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := optimize.NewCollector(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return collector, stop, nil
}

// writeFile creates path and fills it with write. The close error is
// returned too, since buffered CSV output only reaches the disk there.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
