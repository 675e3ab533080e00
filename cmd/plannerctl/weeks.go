package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"weekly-planner/internal/planner"
)

func weeksCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "weeks",
		Short: "List the account's weeks with completion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.stores(cmd.Context())
			weeks, err := planner.Overview(cmd.Context(), s.weeks, s.tasks)
			if err != nil {
				return err
			}
			return writeWeeks(cmd.OutOrStdout(), weeks, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, yaml)")
	return cmd
}

func writeWeeks(w io.Writer, weeks []planner.WeekSummary, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(weeks); err != nil {
			return fmt.Errorf("encode weeks: %w", err)
		}
		return enc.Close()
	case "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WEEK\tFROM\tTO\tDONE\tTOTAL\t%\tREVIEW\tCHALLENGE")
		for _, wk := range weeks {
			review := "-"
			if wk.Reviewed {
				review = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				wk.DisplayID, wk.StartDate, wk.EndDate, wk.Completed, wk.Total, wk.Percentage, review, wk.Challenge)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
