package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "Bar-by-bar strategy backtesting and parameter optimization",
	Long: `Backtester replays daily OHLCV bars through a trading strategy and reports
how the strategy would have done.

It provides tools for:
  - Backtesting a strategy with stops, targets and trailing stops
  - Grid-search optimization of strategy parameters
  - Journaling runs to SQLite and exporting them as org or CSV
  - Downloading and caching bars from Alpaca or CSV files

Example:
  backtester backtest --symbol AAPL --strategy sma-cross --param short=10 --param long=50`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	cfgFile  string
	logLevel string
	dbPath   string

	// Loaded by setup before any subcommand runs.
	cfg    *config.Config
	logger *zap.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite journal path; runs are journaled when set")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if dbPath != "" {
		cfg.Journal.DBPath = dbPath
	}

	logger, err = logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	// Alpaca credentials may live in .env.
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}
	logger.Debug("configured", zap.String("config", cfgFile), zap.String("journal", cfg.Journal.DBPath))
	return nil
}
