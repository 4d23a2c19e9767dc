package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/dpetrovic89/agentic-dev-pipeline/runner"
)

func (a *app) listenCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "listen --source redis|nats|http|dir",
		Short: "Apply approvals from an external source until interrupted",
		Long: `Apply approvals from an external source until interrupted.

Every signal resumes the matching paused run in this process:
  redis  pub/sub channel approval_channel on redis_url
  nats   subject approval_channel on nats_url
  http   POST /runs/{id}/approve on approval_addr with a bearer token
  dir    <run id>.approve files dropped into approval_dir`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.services(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			src, err := svc.ApprovalSource(source)
			if err != nil {
				return err
			}
			d, err := svc.Driver(runner.WithProgress(a.printProgress))
			if err != nil {
				return err
			}
			err = d.ListenForApprovals(cmd.Context(), src)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&source, "source", runner.SourceDir, "Approval source: redis, nats, http or dir")
	return cmd
}
