package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dpetrovic89/agentic-dev-pipeline/extract"
	"github.com/dpetrovic89/agentic-dev-pipeline/ticket"
)

func TestWorkers_Validate(t *testing.T) {
	if err := Offline().Validate(); err != nil {
		t.Fatalf("Offline().Validate() = %v", err)
	}

	w := Offline()
	w.Tester = nil
	w.Notifier = nil
	err := w.Validate()
	if !errors.Is(err, ErrMissingWorker) {
		t.Fatalf("Validate() = %v, want ErrMissingWorker", err)
	}
	if !strings.Contains(err.Error(), "tester, notifier") {
		t.Errorf("error %q should name the missing workers", err)
	}
}

func TestOffline_ResponsesExtract(t *testing.T) {
	ctx := context.Background()
	w := Offline()
	tk := ticket.New("mock-1", "Setup basic structure", nil, ticket.ComplexitySmall)

	plan, _ := w.Planner.Plan(ctx, "anything")
	if _, ok := extract.List(plan); !ok {
		t.Errorf("plan response %q is not a list", plan)
	}

	code, _ := w.Coder.Code(ctx, tk)
	obj, ok := extract.Object(code)
	if !ok || obj["branch"] != "feature/ticket-mock-1" || obj["pr_reference"] != "123" {
		t.Errorf("code response = %v", obj)
	}

	test, _ := w.Tester.Test(ctx, tk)
	obj, ok = extract.Object(test)
	if !ok || obj["failed"] != float64(0) {
		t.Errorf("test response = %v", obj)
	}

	review, _ := w.Reviewer.Review(ctx, tk)
	obj, ok = extract.Object(review)
	if !ok || obj["approved"] != true {
		t.Errorf("review response = %v", obj)
	}

	if ack, err := w.Notifier.Notify(ctx, Summary{}); err != nil || ack == "" {
		t.Errorf("Notify() = %q, %v", ack, err)
	}
}

func sampleSummary() Summary {
	done := ticket.New("T-1", "Add login", nil, ticket.ComplexitySmall)
	done.Status = ticket.StatusApproved
	failed := ticket.New("T-2", "Add logout", nil, ticket.ComplexityMedium)
	failed.Status = ticket.StatusEscalated
	failed.Retries = 3
	return Summary{
		RunID:           "a1b2c3d4",
		Total:           2,
		Completed:       []ticket.Ticket{done},
		Failed:          []ticket.Ticket{failed},
		HumanApproved:   true,
		AverageCoverage: 82.5,
	}
}

func TestSummary(t *testing.T) {
	s := sampleSummary()

	if got := s.ProgressBar(10); got != "[#####-----] 1/2" {
		t.Errorf("ProgressBar(10) = %q", got)
	}
	if got := (Summary{}).ProgressBar(4); got != "[----] 0/0" {
		t.Errorf("empty ProgressBar(4) = %q", got)
	}
	if esc := s.Escalated(); len(esc) != 1 || esc[0].ID != "T-2" {
		t.Errorf("Escalated() = %v", esc)
	}
	if s.Success() {
		t.Error("Success() = true with a failed ticket")
	}

	text := s.Text()
	for _, want := range []string{"a1b2c3d4", "ok   T-1", "fail T-2", "escalated, 3 retries", "82.5%"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() missing %q:\n%s", want, text)
		}
	}
}
