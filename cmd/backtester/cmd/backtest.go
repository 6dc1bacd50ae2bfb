package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest one strategy on historical bars",
	Long: `Backtest generates the strategy's signals for every bar and replays them
through the engine: entries at the close, optional stop loss, take profit and
trailing stop, and a final close on the last bar.

Parameters not given with --param take the strategy defaults (see
"backtester strategies"). Trade rules default to the config file.

Examples:
  backtester backtest --csv data/AAPL.csv --strategy sma-cross --param short=10 --param long=50
  backtester backtest --symbol SPY --strategy bollinger --stop-loss 5 --short --db runs.db`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var (
	btData      dataFlags
	btStrategy  string
	btParams    map[string]string
	btRules     ruleFlags
	btTradesCSV string
	btEquityCSV string
	btNotes     string
)

// ruleFlags override the account and backtest sections of the config.
type ruleFlags struct {
	capital    float64
	commission float64
	short      bool
	fixed      float64
	stopLoss   float64
	takeProfit float64
	trailing   float64
}

func (r *ruleFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&r.capital, "capital", 0, "initial capital")
	cmd.Flags().Float64Var(&r.commission, "commission", 0, "commission percent per side")
	cmd.Flags().BoolVar(&r.short, "short", false, "allow short entries")
	cmd.Flags().Float64Var(&r.fixed, "fixed-amount", 0, "fixed cash per entry (0 = 95% of capital)")
	cmd.Flags().Float64Var(&r.stopLoss, "stop-loss", 0, "stop loss percent (0 = off)")
	cmd.Flags().Float64Var(&r.takeProfit, "take-profit", 0, "take profit percent (0 = off)")
	cmd.Flags().Float64Var(&r.trailing, "trailing-stop", 0, "trailing stop percent (0 = off)")
}

// params applies the flags the user set on top of the config.
func (r *ruleFlags) params(cmd *cobra.Command) backtest.Params {
	set := cmd.Flags().Changed
	if set("capital") {
		cfg.Account.InitialCapital = r.capital
	}
	if set("commission") {
		cfg.Account.CommissionPct = r.commission
	}
	if set("short") {
		cfg.Backtest.AllowShort = r.short
	}
	if set("fixed-amount") {
		cfg.Backtest.FixedTradeAmount = r.fixed
	}
	if set("stop-loss") {
		cfg.Backtest.StopLossPct = r.stopLoss
	}
	if set("take-profit") {
		cfg.Backtest.TakeProfitPct = r.takeProfit
	}
	if set("trailing-stop") {
		cfg.Backtest.TrailingStopPct = r.trailing
	}
	return cfg.BacktestParams()
}

func init() {
	rootCmd.AddCommand(backtestCmd)

	btData.register(backtestCmd)
	btRules.register(backtestCmd)
	backtestCmd.Flags().StringVar(&btStrategy, "strategy", "", "strategy id (default from config)")
	backtestCmd.Flags().StringToStringVarP(&btParams, "param", "p", nil, "strategy parameter name=value (repeatable)")
	backtestCmd.Flags().StringVar(&btTradesCSV, "trades-csv", "", "write the trade log to this CSV file")
	backtestCmd.Flags().StringVar(&btEquityCSV, "equity-csv", "", "write the equity curves to this CSV file")
	backtestCmd.Flags().StringVar(&btNotes, "notes", "", "notes stored with the journaled run")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id, err := strategyID(btStrategy)
	if err != nil {
		return err
	}
	// Config params belong to the config's strategy.
	params := strategies.Params{}
	if cfgID, err := strategies.ParseID(cfg.Backtest.Strategy); err == nil && cfgID == id {
		params = strategies.Params(cfg.Backtest.Params).Clone()
	}
	flagParams, err := parseParams(btParams)
	if err != nil {
		return err
	}
	for k, v := range flagParams {
		params[k] = v
	}
	bt := btRules.params(cmd)
	if err := bt.Validate(); err != nil {
		return err
	}

	strat, err := strategies.New(id, params)
	if err != nil {
		return err
	}
	series, err := btData.load(ctx)
	if err != nil {
		return err
	}

	signals, err := strat.Signals(series.Candles)
	if err != nil {
		return err
	}
	res, err := backtest.Run(ctx, series, signals, bt)
	if err != nil {
		return err
	}
	logger.Info("backtest finished",
		zap.String("strategy", strat.Name()),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("final_equity", res.FinalEquity))

	if e, ok := strategies.Lookup(id); ok {
		params = mergeDefaults(e.Defaults(), params)
	}
	sum := report.NewSummary(series.Symbol, strat.Name(), params, bt, res)
	if err := report.Print(cmd.OutOrStdout(), sum); err != nil {
		return err
	}

	if err := exportBacktest(res); err != nil {
		return err
	}
	return journalBacktest(ctx, cmd, journal.BacktestRecord{
		Symbol:   series.Symbol,
		Strategy: id,
		Params:   params,
		Backtest: bt,
		Result:   res,
		Notes:    btNotes,
	})
}

func mergeDefaults(defaults, p strategies.Params) strategies.Params {
	for k, v := range p {
		defaults[k] = v
	}
	return defaults
}

func exportBacktest(res *backtest.Result) error {
	if btTradesCSV != "" {
		err := writeFile(btTradesCSV, func(w io.Writer) error {
			return report.WriteTradesCSV(w, res.Trades)
		})
		if err != nil {
			return err
		}
	}
	if btEquityCSV != "" {
		err := writeFile(btEquityCSV, func(w io.Writer) error {
			return report.WriteEquityCSV(w, res.Equity, res.BuyHold)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func journalBacktest(ctx context.Context, cmd *cobra.Command, rec journal.BacktestRecord) error {
	j, err := openJournal()
	if err != nil || j == nil {
		return err
	}
	defer j.Close()

	runID, err := j.SaveBacktest(context.WithoutCancel(ctx), rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nJournaled run %s\n", runID)
	return nil
}
