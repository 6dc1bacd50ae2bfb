package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/logging"
	"github.com/rustyeddy/backtester/market"
	"github.com/rustyeddy/backtester/optimize"
	"github.com/rustyeddy/backtester/strategies"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the complete backtester configuration
type Config struct {
	Account      AccountConfig      `json:"account" yaml:"account"`
	Backtest     BacktestConfig     `json:"backtest" yaml:"backtest"`
	Data         DataConfig         `json:"data" yaml:"data"`
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization"`
	Journal      JournalConfig      `json:"journal" yaml:"journal"`
	Log          LogConfig          `json:"log" yaml:"log"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
}

// AccountConfig holds the money the simulated account starts with
type AccountConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
	CommissionPct  float64 `json:"commission_pct" yaml:"commission_pct"`
}

// BacktestConfig selects the strategy and the trade rules. A zero amount or
// percentage turns that rule off.
type BacktestConfig struct {
	Strategy         string             `json:"strategy" yaml:"strategy"`
	Params           map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
	AllowShort       bool               `json:"allow_short" yaml:"allow_short"`
	FixedTradeAmount float64            `json:"fixed_trade_amount" yaml:"fixed_trade_amount"`
	StopLossPct      float64            `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct    float64            `json:"take_profit_pct" yaml:"take_profit_pct"`
	TrailingStopPct  float64            `json:"trailing_stop_pct" yaml:"trailing_stop_pct"`
}

// DataConfig says where bars come from
type DataConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // "csv", "parquet", "alpaca" or "dukascopy"
	CSVDir     string `json:"csv_dir" yaml:"csv_dir"`
	CacheDir   string `json:"cache_dir" yaml:"cache_dir"`
	Feed       string `json:"feed,omitempty" yaml:"feed,omitempty"`             // alpaca: "iex" or "sip"
	Adjustment string `json:"adjustment,omitempty" yaml:"adjustment,omitempty"` // alpaca: "raw", "split", "dividend", "all"
}

// OptimizationConfig contains grid search parameters. The grid is only
// read from YAML since it depends on key order.
type OptimizationConfig struct {
	Metric          string        `json:"metric" yaml:"metric"`
	Workers         int           `json:"workers" yaml:"workers"`
	MaxCombinations int           `json:"max_combinations" yaml:"max_combinations"`
	ProgressEvery   int           `json:"progress_every" yaml:"progress_every"`
	Top             int           `json:"top" yaml:"top"`
	Grid            optimize.Grid `json:"-" yaml:"grid,omitempty"`
}

// JournalConfig points at the SQLite journal. An empty path disables it.
type JournalConfig struct {
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

const (
	ProviderCSV       = "csv"
	ProviderParquet   = "parquet"
	ProviderAlpaca    = "alpaca"
	ProviderDukascopy = "dukascopy"
)

// LoadFromFile loads configuration from a file (JSON or YAML). Fields the
// file leaves out keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// YAML first; JSON is tried for files YAML rejects.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file, JSON for .json and YAML
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.BacktestParams().Validate(); err != nil {
		return err
	}
	if c.Backtest.Strategy != "" {
		if _, err := strategies.ParseID(c.Backtest.Strategy); err != nil {
			return fmt.Errorf("backtest.strategy: %w", err)
		}
	}

	switch c.Data.Provider {
	case ProviderCSV:
		if c.Data.CSVDir == "" {
			return fmt.Errorf("data.csv_dir is required for the csv provider")
		}
	case ProviderParquet, ProviderAlpaca, ProviderDukascopy:
		if c.Data.CacheDir == "" {
			return fmt.Errorf("data.cache_dir is required for the %s provider", c.Data.Provider)
		}
	default:
		return fmt.Errorf("data.provider must be one of csv, parquet, alpaca, dukascopy")
	}

	o := c.Optimization
	if !backtest.IsMetric(o.Metric) {
		return fmt.Errorf("optimization.metric: unknown metric %q", o.Metric)
	}
	if o.Workers < 0 || o.MaxCombinations < 0 || o.ProgressEvery < 0 || o.Top < 0 {
		return fmt.Errorf("optimization: workers, max_combinations, progress_every and top must not be negative")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// BacktestParams converts the account and backtest sections to engine
// parameters.
func (c *Config) BacktestParams() backtest.Params {
	return backtest.Params{
		InitialCapital:   c.Account.InitialCapital,
		CommissionPct:    c.Account.CommissionPct,
		AllowShort:       c.Backtest.AllowShort,
		FixedTradeAmount: backtest.Optional(c.Backtest.FixedTradeAmount),
		StopLossPct:      backtest.Optional(c.Backtest.StopLossPct),
		TakeProfitPct:    backtest.Optional(c.Backtest.TakeProfitPct),
		TrailingStopPct:  backtest.Optional(c.Backtest.TrailingStopPct),
	}
}

// OptimizeOptions builds optimizer options from the optimization section.
func (c *Config) OptimizeOptions(log *zap.Logger, m *optimize.Collector) optimize.Options {
	return optimize.Options{
		Workers:         c.Optimization.Workers,
		MaxCombinations: c.Optimization.MaxCombinations,
		ProgressEvery:   c.Optimization.ProgressEvery,
		Logger:          log,
		Metrics:         m,
	}
}

// Source builds the bar source the data section describes. Alpaca and
// Dukascopy downloads go through the parquet cache.
func (d DataConfig) Source(log *zap.Logger) (market.Provider, error) {
	switch d.Provider {
	case ProviderCSV:
		return &market.CSVProvider{Dir: d.CSVDir}, nil
	case ProviderParquet:
		return market.NewParquetStore(d.CacheDir), nil
	case ProviderAlpaca:
		return &market.CachedProvider{
			Store: market.NewParquetStore(d.CacheDir),
			Upstream: market.NewAlpacaProvider(market.AlpacaConfig{
				Feed:       d.Feed,
				Adjustment: d.Adjustment,
			}),
			Logger: log,
		}, nil
	case ProviderDukascopy:
		return &market.CachedProvider{
			Store:    market.NewParquetStore(d.CacheDir),
			Upstream: market.NewDukascopyProvider(log),
			Logger:   log,
		}, nil
	}
	return nil, fmt.Errorf("unknown data provider %q", d.Provider)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialCapital: 10000,
			CommissionPct:  0.1,
		},
		Backtest: BacktestConfig{
			Strategy: string(strategies.SMACross),
		},
		Data: DataConfig{
			Provider: ProviderCSV,
			CSVDir:   "./data",
			CacheDir: "./data/cache",
			Feed:     "iex",
		},
		Optimization: OptimizationConfig{
			Metric:        "sharpe",
			Workers:       1,
			ProgressEvery: 10,
			Top:           10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
