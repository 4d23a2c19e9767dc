package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dpetrovic89/agentic-dev-pipeline/approval"
	"github.com/dpetrovic89/agentic-dev-pipeline/config"
	"github.com/dpetrovic89/agentic-dev-pipeline/runner"
)

func (a *app) runCmd() *cobra.Command {
	var specPath string
	var offline bool

	cmd := &cobra.Command{
		Use:   "run --spec SPEC.md",
		Short: "Start a new run for a spec",
		Long: `Start a new run for a spec.

The spec is planned into tickets, each ticket is coded, tested and reviewed,
and the run pauses for approval before the summary is sent. With --offline
every worker answers with canned data and the approval is automatic.

Exit codes: 0 success, 2 finished with failed tickets, 3 awaiting approval,
4 stopped at the loop limit, 1 error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			extra := map[string]string{}
			if offline {
				extra[config.KeyOfflineMode] = "true"
			}
			svc, err := a.services(cmd.Context(), extra)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.Driver(runner.WithProgress(a.printProgress))
			if err != nil {
				return err
			}
			out, err := d.Start(cmd.Context(), specPath)
			a.target.RunID = out.RunID
			if err != nil {
				return err
			}
			return a.finish(out)
		},
	}
	cmd.Flags().StringVar(&specPath, "spec", "", "Path to the spec file")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use canned workers and approve automatically")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func (a *app) resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume RUN_ID",
		Short: "Continue a stored run from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.target.RunID = args[0]
			svc, err := a.services(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.Driver(runner.WithProgress(a.printProgress))
			if err != nil {
				return err
			}
			out, err := d.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.finish(out)
		},
	}
}

func (a *app) approveCmd() *cobra.Command {
	var approver, remote, token string

	cmd := &cobra.Command{
		Use:   "approve RUN_ID",
		Short: "Approve a paused run and let it finish",
		Long: `Approve a paused run and let it finish.

Without --remote the run is resumed in this process. With --remote the
approval is posted to a "pipeline listen --source http" server using a token
from "pipeline token issue".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			a.target.RunID = runID

			if remote != "" {
				a.target.URL = remote
				sig, err := approval.NewClient(remote, token).Approve(cmd.Context(), runID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s approval for run %s recorded by %s\n",
					passStyle.Render(iconPass), sig.RunID, sig.Approver)
				return nil
			}

			if approver == "" {
				approver = os.Getenv("USER")
			}
			svc, err := a.services(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			d, err := svc.Driver(runner.WithProgress(a.printProgress))
			if err != nil {
				return err
			}
			out, err := d.Approve(cmd.Context(), runID, approver)
			if err != nil {
				return err
			}
			return a.finish(out)
		},
	}
	cmd.Flags().StringVar(&approver, "approver", "", "Name recorded as the approver (default $USER)")
	cmd.Flags().StringVar(&remote, "remote", "", "Base URL of an approval server")
	cmd.Flags().StringVar(&token, "token", os.Getenv("PIPELINE_APPROVAL_TOKEN"), "Approval token for --remote")
	return cmd
}

func (a *app) printProgress(node string) {
	if a.jsonOut {
		return
	}
	fmt.Fprintf(a.stdout, "%s %s\n", mutedStyle.Render(iconStep), node)
}

// finish prints the outcome and records its exit code.
func (a *app) finish(out runner.Outcome) error {
	a.exit = int(out.Exit)
	if a.jsonOut {
		return writeJSON(a.stdout, out.Report)
	}
	renderReport(a.stdout, out.Report)
	switch {
	case out.Paused():
		fmt.Fprintf(a.stdout, "\n%s Run %s is waiting for approval: pipeline approve %s\n",
			warnStyle.Render(iconWait), out.RunID, out.RunID)
	case out.State.NotificationSent:
		fmt.Fprintf(a.stdout, "\n%s Notification sent: %s\n", passStyle.Render(iconPass), out.State.NotifyAck)
	default:
		fmt.Fprintf(a.stdout, "\n%s Notification was not delivered\n", warnStyle.Render(iconWarn))
	}
	fmt.Fprintf(a.stdout, "%s\n", mutedStyle.Render("exit "+strconv.Itoa(a.exit)+": "+out.Exit.String()))
	return nil
}
