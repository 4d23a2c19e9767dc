package runner

import (
	"context"

	"github.com/dpetrovic89/agentic-dev-pipeline/approval"
)

// ListenForApprovals applies every signal from src to the matching paused
// run until ctx is done or the source closes. A signal for a run that is
// not paused is reported back to the source as an error.
func (d *Driver) ListenForApprovals(ctx context.Context, src approval.Source) error {
	return src.Listen(ctx, func(ctx context.Context, sig approval.Signal) error {
		out, err := d.Approve(ctx, sig.RunID, sig.Approver)
		if err != nil {
			return err
		}
		d.logger.Info("approved run finished",
			"runId", out.RunID,
			"approver", sig.Approver,
			"status", out.Status,
			"exit", out.Exit.String(),
		)
		return nil
	})
}
