package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Show the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.target.RunID = args[0]
			svc, err := a.services(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.Driver()
			if err != nil {
				return err
			}
			report, err := d.Report(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, report)
			}
			renderReport(a.stdout, report)
			return nil
		},
	}
}

func (a *app) runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List or delete stored runs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.services(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.Driver()
			if err != nil {
				return err
			}
			runs, err := d.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(a.stdout, runs)
			}
			renderRuns(a.stdout, runs)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete RUN_ID",
		Short: "Delete a run's checkpoint and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.target.RunID = args[0]
			svc, err := a.services(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.Driver()
			if err != nil {
				return err
			}
			if err := d.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s deleted run %s\n", passStyle.Render(iconPass), args[0])
			return nil
		},
	})
	return cmd
}
