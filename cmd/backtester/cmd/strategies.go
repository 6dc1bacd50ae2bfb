package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/backtester/strategies"
	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies [id]",
	Short: "List strategies and their parameters",
	Long: `List the registered strategies. With an id, show that strategy's
parameters with their defaults and default search ranges.

Examples:
  backtester strategies
  backtester strategies bollinger`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

func runStrategies(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	ids := strategies.IDs()
	if len(args) == 1 {
		id, err := strategies.ParseID(args[0])
		if err != nil {
			return err
		}
		ids = []strategies.ID{id}
	}

	for i, id := range ids {
		e, _ := strategies.Lookup(id)
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s - %s\n", e.ID, e.Title)
		if e.Description != "" {
			fmt.Fprintf(out, "  %s\n", e.Description)
		}

		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  PARAM\tDEFAULT\tMIN\tMAX\tSTEP")
		for _, p := range e.Params {
			name := p.Name
			if p.Integer {
				name += " (int)"
			}
			fmt.Fprintf(tw, "  %s\t%g\t%g\t%g\t%g\n", name, p.Default, p.Min, p.Max, p.Step)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
