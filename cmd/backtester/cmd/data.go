package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/market"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download, import and inspect cached bars",
	Long: `Manage the parquet bar cache under data.cache_dir.

Subcommands:
  fetch   - Download daily bars from Alpaca or Dukascopy into the cache
  import  - Copy bars from a CSV file into the cache
  info    - List cached symbols with their date ranges

Alpaca credentials are read from APCA_API_KEY_ID and APCA_API_SECRET_KEY,
which may also be set in a .env file in the working directory.

Examples:
  backtester data fetch --from 2015-01-01 AAPL MSFT SPY
  backtester data fetch --source dukascopy --from 2010-01-01 EURUSD USDJPY
  backtester data import --symbol AAPL data/AAPL.csv
  backtester data info`,
}

var dataFetchCmd = &cobra.Command{
	Use:   "fetch <symbol>...",
	Short: "Download daily bars from Alpaca or Dukascopy",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDataFetch,
}

var dataImportCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Import bars from a CSV file into the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataImport,
}

var dataInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "List cached symbols",
	Args:  cobra.NoArgs,
	RunE:  runDataInfo,
}

var (
	dataSource   string
	dataFrom     string
	dataTo       string
	importSymbol string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataFetchCmd, dataImportCmd, dataInfoCmd)

	dataFetchCmd.Flags().StringVar(&dataSource, "source", "alpaca", "download source: alpaca or dukascopy")
	dataFetchCmd.Flags().StringVar(&dataFrom, "from", "", "first bar date (YYYY-MM-DD, default five years ago)")
	dataFetchCmd.Flags().StringVar(&dataTo, "to", "", "last bar date (YYYY-MM-DD, default today)")
	dataImportCmd.Flags().StringVarP(&importSymbol, "symbol", "s", "", "symbol (default: file name without extension)")
}

func cacheStore() (*market.ParquetStore, error) {
	if cfg.Data.CacheDir == "" {
		return nil, errors.New("data.cache_dir is not set")
	}
	return market.NewParquetStore(cfg.Data.CacheDir), nil
}

func runDataFetch(cmd *cobra.Command, args []string) error {
	d := dataFlags{from: dataFrom, to: dataTo}
	from, to, err := d.window()
	if err != nil {
		return err
	}
	if from.IsZero() {
		from = time.Now().UTC().AddDate(-5, 0, 0).Truncate(24 * time.Hour)
	}

	store, err := cacheStore()
	if err != nil {
		return err
	}
	var upstream market.Provider
	switch dataSource {
	case config.ProviderAlpaca:
		upstream = market.NewAlpacaProvider(market.AlpacaConfig{
			Feed:       cfg.Data.Feed,
			Adjustment: cfg.Data.Adjustment,
		})
	case config.ProviderDukascopy:
		upstream = market.NewDukascopyProvider(logger)
	default:
		return fmt.Errorf("--source must be %s or %s", config.ProviderAlpaca, config.ProviderDukascopy)
	}

	out := cmd.OutOrStdout()
	for _, sym := range args {
		s, err := upstream.Fetch(cmd.Context(), sym, from, to)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", sym, err)
		}
		if err := store.Write(s); err != nil {
			return err
		}
		logger.Info("bars cached",
			zap.String("symbol", s.Symbol),
			zap.Int("bars", s.Len()),
			zap.String("path", store.Path(s.Symbol)))
		fmt.Fprintf(out, "✓ %s: %d bars\n", s.Symbol, s.Len())
	}
	return nil
}

func runDataImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	sym := importSymbol
	if sym == "" {
		sym = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	sym = strings.ToUpper(sym)

	s, err := market.LoadCSV(path, sym)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	store, err := cacheStore()
	if err != nil {
		return err
	}
	if err := store.Write(s); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Imported %d bars for %s into %s\n", s.Len(), s.Symbol, store.Path(s.Symbol))
	return nil
}

func runDataInfo(cmd *cobra.Command, args []string) error {
	store, err := cacheStore()
	if err != nil {
		return err
	}
	syms, err := store.Symbols()
	if err != nil {
		return err
	}
	if len(syms) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No cached bars in %s\n", store.Dir)
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBARS\tSTART\tEND")
	for _, sym := range syms {
		s, err := store.Fetch(cmd.Context(), sym, time.Time{}, time.Time{})
		if err != nil {
			logger.Warn("unreadable cache file", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", sym, s.Len(),
			s.Start().Format("2006-01-02"), s.End().Format("2006-01-02"))
	}
	return tw.Flush()
}
