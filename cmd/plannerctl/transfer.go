package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"weekly-planner/internal/planner"
	"weekly-planner/internal/week"
)

func exportCmd(a *app) *cobra.Command {
	var date, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the week containing --date and the brain dump as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				var err error
				if day, err = week.ParseDate(date); err != nil {
					return err
				}
			}

			p, err := a.planner(cmd.Context())
			if err != nil {
				return err
			}
			p.SetDate(day)
			if err := p.SyncWeek(cmd.Context(), day); err != nil {
				return err
			}
			data, err := p.Export()
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %s to %s\n", p.WeekDisplayID(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "any day of the week to export, YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func importCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add the tasks and reviews of an export to the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			snap, err := planner.DecodeSnapshot(data)
			if err != nil {
				return err
			}

			p, err := a.planner(cmd.Context())
			if err != nil {
				return err
			}
			res, err := p.Restore(cmd.Context(), snap)
			if err != nil {
				return fmt.Errorf("import stopped after %d task(s), %d review(s): %w", res.Tasks, res.Reviews, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d task(s) and %d review(s)\n", res.Tasks, res.Reviews)
			return nil
		},
	}
}
