package workflow

import (
	"context"
	"fmt"
	"slices"

	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
	"github.com/dpetrovic89/agentic-dev-pipeline/pr"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// mergeApproved squash-merges the pull requests of approved tickets. It is
// best effort: failures are logged and the ticket is left unmerged. Already
// merged references are skipped, so a resumed notify does not merge twice.
func (s *Stages) mergeApproved(ctx context.Context, st State) State {
	if s.prs == nil {
		s.logger.Warn("merge on approval enabled without a PR provider", "runId", st.RunID)
		return st
	}

	st.Merged = append([]string(nil), st.Merged...)
	for _, t := range st.Tickets {
		if t.Status != ticket.StatusApproved || slices.Contains(st.Merged, t.PRReference) {
			continue
		}
		if err := s.mergeTicket(ctx, t); err != nil {
			s.logger.Warn("merge failed", "runId", st.RunID, "ticket", t.ID, "pr", t.PRReference, "error", err)
			s.emit(ctx, st.RunID, "merge_failed", eventlog.ActorEngine, map[string]any{
				"ticket": t.ID,
				"pr":     t.PRReference,
				"error":  err.Error(),
			})
			continue
		}
		st.Merged = append(st.Merged, t.PRReference)
		s.emit(ctx, st.RunID, "merged", eventlog.ActorEngine, map[string]any{
			"ticket": t.ID,
			"pr":     t.PRReference,
		})
	}
	return st
}

func (s *Stages) mergeTicket(ctx context.Context, t ticket.Ticket) error {
	n, err := pr.ParseNumber(t.PRReference)
	if err != nil {
		return err
	}
	return s.prs.MergePR(ctx, n, pr.MergeOptions{
		Method:       pr.MergeMethodSquash,
		CommitTitle:  buildCommitTitle(t),
		DeleteBranch: true,
	})
}

// commentReview posts the reviewer's verdict on the ticket's pull request.
// Tickets without a usable reference are skipped and a failed post is only
// reported.
func (s *Stages) commentReview(ctx context.Context, runID string, t ticket.Ticket, approved bool, reason string) {
	if s.prs == nil || t.PRReference == "" {
		return
	}
	n, err := pr.ParseNumber(t.PRReference)
	if err != nil {
		return
	}
	if err := s.prs.AddComment(ctx, n, reviewComment(t, approved, reason)); err != nil {
		s.logger.Warn("review comment failed", "runId", runID, "ticket", t.ID, "pr", t.PRReference, "error", err)
		s.emit(ctx, runID, "review_comment_failed", eventlog.ActorReviewer, map[string]any{
			"ticket": t.ID,
			"pr":     t.PRReference,
			"error":  err.Error(),
		})
	}
}

func reviewComment(t ticket.Ticket, approved bool, reason string) string {
	verdict := "Changes requested"
	if approved {
		verdict = "Approved"
	}
	if reason == "" {
		return fmt.Sprintf("%s for %s.", verdict, t.ID)
	}
	return fmt.Sprintf("%s for %s: %s", verdict, t.ID, reason)
}

// buildCommitTitle creates the squash commit title for a ticket.
func buildCommitTitle(t ticket.Ticket) string {
	return fmt.Sprintf("[%s] %s", t.ID, t.Title)
}
