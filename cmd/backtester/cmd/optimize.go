package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/optimize"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Grid-search strategy parameters",
	Long: `Optimize backtests every combination of a parameter grid and keeps the one
with the highest value of the chosen metric.

The grid comes from --grid, then the optimization.grid section of the config,
then the strategy's default ranges. A grid file maps parameter names to
ranges; the last parameter varies fastest:

  short: {min: 5, max: 20, step: 5}
  long:  {min: 30, max: 100, step: 10}

Interrupting the run (Ctrl-C) keeps the combinations already finished.

Examples:
  backtester optimize --csv data/AAPL.csv --strategy sma-cross --metric sharpe --workers 8
  backtester optimize --symbol SPY --strategy bollinger --grid bollinger.yaml --top 20 --db runs.db`,
	Args: cobra.NoArgs,
	RunE: runOptimize,
}

var (
	optData        dataFlags
	optRules       ruleFlags
	optStrategy    string
	optGridPath    string
	optMetric      string
	optWorkers     int
	optMax         int
	optTop         int
	optRowsCSV     string
	optMetricsAddr string
	optNotes       string
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optData.register(optimizeCmd)
	optRules.register(optimizeCmd)
	f := optimizeCmd.Flags()
	f.StringVar(&optStrategy, "strategy", "", "strategy id (default from config)")
	f.StringVarP(&optGridPath, "grid", "g", "", "YAML grid file")
	f.StringVarP(&optMetric, "metric", "m", "", "metric to maximize (default from config)")
	f.IntVarP(&optWorkers, "workers", "w", 0, "concurrent backtests (default from config)")
	f.IntVar(&optMax, "max-combinations", 0, "evaluate only the first N combinations")
	f.IntVar(&optTop, "top", 0, "rows shown in the ranking (default from config)")
	f.StringVar(&optRowsCSV, "rows-csv", "", "write every combination to this CSV file")
	f.StringVar(&optMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
	f.StringVar(&optNotes, "notes", "", "notes stored with the journaled run")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id, err := strategyID(optStrategy)
	if err != nil {
		return err
	}
	set := cmd.Flags().Changed
	if set("metric") {
		cfg.Optimization.Metric = optMetric
	}
	if set("workers") {
		cfg.Optimization.Workers = optWorkers
	}
	if set("max-combinations") {
		cfg.Optimization.MaxCombinations = optMax
	}
	if set("top") {
		cfg.Optimization.Top = optTop
	}
	if set("metrics-addr") {
		cfg.Metrics.Addr = optMetricsAddr
	}
	bt := optRules.params(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	grid, err := loadGrid(id)
	if err != nil {
		return err
	}
	series, err := optData.load(ctx)
	if err != nil {
		return err
	}

	collector, stopMetrics, err := serveMetrics(cfg.Metrics.Addr)
	if err != nil {
		return err
	}
	defer stopMetrics()

	opts := cfg.OptimizeOptions(logger, collector)
	opts.Progress = func(done, total int) {
		logger.Info("optimization progress", zap.Int("done", done), zap.Int("total", total))
	}

	metric := cfg.Optimization.Metric
	res, err := optimize.Run(ctx, series, id, grid, bt, metric, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if res.Empty() {
		fmt.Fprintf(out, "No combinations evaluated for %s (metric %s).\n", id, metric)
		return nil
	}
	if res.Partial {
		fmt.Fprintf(out, "Interrupted: %d of %d combinations finished.\n\n", len(res.Rows), res.Total)
	}
	if err := printOptimization(out, res, cfg.Optimization.Top); err != nil {
		return err
	}

	if res.BestIndex >= 0 {
		fmt.Fprintln(out)
		best := report.Summary{
			Symbol:         series.Symbol,
			Strategy:       string(id),
			Params:         res.Best,
			Start:          series.Start(),
			End:            series.End(),
			InitialCapital: bt.InitialCapital,
			Metrics:        res.BestMetrics,
			BuyHoldPct:     backtest.BuyHoldReturnPct(res.BestBuyHold),
		}
		if err := report.Print(out, best); err != nil {
			return err
		}
	}

	if optRowsCSV != "" {
		err := writeFile(optRowsCSV, func(w io.Writer) error {
			return report.WriteRowsCSV(w, res.Rows)
		})
		if err != nil {
			return err
		}
	}

	j, err := openJournal()
	if err != nil || j == nil {
		return err
	}
	defer j.Close()
	runID, err := j.SaveOptimization(context.WithoutCancel(ctx), journal.OptimizationRecord{
		Symbol:   series.Symbol,
		Start:    series.Start(),
		End:      series.End(),
		Grid:     grid,
		Backtest: bt,
		Result:   res,
		Notes:    optNotes,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nJournaled run %s\n", runID)
	return nil
}

// loadGrid picks the grid file, then the config grid, then the strategy's
// default ranges.
func loadGrid(id strategies.ID) (optimize.Grid, error) {
	switch {
	case optGridPath != "":
		data, err := os.ReadFile(optGridPath)
		if err != nil {
			return nil, fmt.Errorf("read grid: %w", err)
		}
		g, err := optimize.ParseGridYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", optGridPath, err)
		}
		return g, nil
	case len(cfg.Optimization.Grid) > 0:
		return cfg.Optimization.Grid, nil
	}
	return optimize.DefaultGrid(id)
}

func printOptimization(w io.Writer, res *optimize.Result, top int) error {
	fmt.Fprintf(w, "Strategy %s, metric %s: %d combinations, %d failed\n",
		res.Strategy, res.Metric, len(res.Rows), res.Failed())
	if res.BestIndex < 0 {
		_, err := fmt.Fprintln(w, "Every combination failed.")
		return err
	}
	fmt.Fprintf(w, "Best #%d: %s  %s = %s\n\n", res.BestIndex, res.Best, res.Metric, report.Num(res.BestScore))

	for rank, row := range report.TopN(res.Rows, res.Metric, top) {
		if _, err := fmt.Fprintf(w, "%3d. #%-5d %-40s %s\n", rank+1, row.Index, row.Params, report.Num(row.Score)); err != nil {
			return err
		}
	}
	return nil
}
