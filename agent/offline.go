package agent

import (
	"context"

	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

// Canned offline responses.
const (
	OfflinePlan   = `[{"gid":"mock-1","title":"Setup basic structure","dependencies":[],"complexity":"S"}]`
	OfflineCode   = `{"branch":"feature/ticket-mock-1","pr_reference":"123"}`
	OfflineTest   = `{"total":5,"passed":5,"failed":0,"coverage":100.0}`
	OfflineReview = `{"approved":true,"reason":"Looks good!"}`
	OfflineNotify = `{"posted":true,"channel":"offline"}`
)

// Offline returns workers that answer every task with a canned success, so
// a run exercises the whole topology without external services.
func Offline() Workers {
	return Workers{
		Planner: PlannerFunc(func(context.Context, string) (string, error) {
			return OfflinePlan, nil
		}),
		Coder: CoderFunc(func(context.Context, ticket.Ticket) (string, error) {
			return OfflineCode, nil
		}),
		Tester: TesterFunc(func(context.Context, ticket.Ticket) (string, error) {
			return OfflineTest, nil
		}),
		Reviewer: ReviewerFunc(func(context.Context, ticket.Ticket) (string, error) {
			return OfflineReview, nil
		}),
		Notifier: NotifierFunc(func(context.Context, Summary) (string, error) {
			return OfflineNotify, nil
		}),
	}
}
