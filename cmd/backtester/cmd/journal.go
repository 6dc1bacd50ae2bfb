package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/backtester/journal"
	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/strategies"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query journaled runs",
	Long: `Query backtest and optimization runs stored in the SQLite journal.

Subcommands:
  runs    - List runs, newest first
  show    - Print a run as an org-mode entry
  trades  - Write a run's trade log as CSV
  rows    - Write an optimization run's result table as CSV
  rm      - Delete a run

Examples:
  backtester --db runs.db journal runs --kind optimize
  backtester --db runs.db journal show 01HV6Z8K3M2N4P5Q6R7S8T9V0W`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List journaled runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run as an org-mode entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "Write a run's trades as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalRowsCmd = &cobra.Command{
	Use:   "rows <run-id>",
	Short: "Write an optimization run's rows as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRows,
}

var journalRmCmd = &cobra.Command{
	Use:   "rm <run-id>",
	Short: "Delete a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRm,
}

var (
	jrKind     string
	jrStrategy string
	jrSymbol   string
	jrLimit    int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd, journalShowCmd, journalTradesCmd, journalRowsCmd, journalRmCmd)

	journalRunsCmd.Flags().StringVar(&jrKind, "kind", "", "backtest or optimize")
	journalRunsCmd.Flags().StringVar(&jrStrategy, "strategy", "", "only runs of this strategy")
	journalRunsCmd.Flags().StringVarP(&jrSymbol, "symbol", "s", "", "only runs on this symbol")
	journalRunsCmd.Flags().IntVarP(&jrLimit, "limit", "n", 20, "maximum runs listed (0 = all)")
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	f := journal.RunFilter{Kind: journal.Kind(jrKind), Symbol: jrSymbol, Limit: jrLimit}
	switch f.Kind {
	case "", journal.KindBacktest, journal.KindOptimize:
	default:
		return fmt.Errorf("--kind must be %s or %s", journal.KindBacktest, journal.KindOptimize)
	}
	if jrStrategy != "" {
		id, err := strategies.ParseID(jrStrategy)
		if err != nil {
			return err
		}
		f.Strategy = id
	}

	j, err := requireJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.ListRuns(cmd.Context(), f)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tKIND\tSYMBOL\tSTRATEGY\tPARAMS\tFINAL EQUITY")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Created.Format("2006-01-02 15:04"), r.Kind, r.Symbol, r.Strategy, r.Params, report.Num(r.FinalEquity))
	}
	return tw.Flush()
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	j, err := requireJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	trades, err := j.ListTrades(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	return journal.WriteRunOrg(cmd.OutOrStdout(), run, trades)
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := requireJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	if _, err := j.GetRun(cmd.Context(), args[0]); err != nil {
		return err
	}
	trades, err := j.ListTrades(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return report.WriteTradesCSV(cmd.OutOrStdout(), trades)
}

func runJournalRows(cmd *cobra.Command, args []string) error {
	j, err := requireJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	run, err := j.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if run.Kind != journal.KindOptimize {
		return fmt.Errorf("run %s is a %s run", run.ID, run.Kind)
	}
	rows, err := j.ListRows(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	return report.WriteRowsCSV(cmd.OutOrStdout(), rows)
}

func runJournalRm(cmd *cobra.Command, args []string) error {
	j, err := requireJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	if err := j.DeleteRun(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
	return nil
}
