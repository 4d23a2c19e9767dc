package runner

import (
	"github.com/dpetrovic89/agentic-dev-pipeline/checkpoint"
	"github.com/dpetrovic89/agentic-dev-pipeline/workflow"
)

// ExitStatus is the process exit code for a run outcome.
type ExitStatus int

// Exit codes.
const (
	ExitSuccess   ExitStatus = 0
	ExitError     ExitStatus = 1
	ExitFailures  ExitStatus = 2
	ExitPaused    ExitStatus = 3
	ExitLoopLimit ExitStatus = 4
)

func (e ExitStatus) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitFailures:
		return "completed with failures"
	case ExitPaused:
		return "awaiting approval"
	case ExitLoopLimit:
		return "loop limit reached"
	default:
		return "error"
	}
}

// ExitFor maps an engine status and final state to an exit code. A loop
// limit takes precedence over ticket failures.
func ExitFor(status checkpoint.Status, st workflow.State) ExitStatus {
	switch status {
	case checkpoint.StatusPaused:
		return ExitPaused
	case checkpoint.StatusCompleted:
		if st.LoopLimited {
			return ExitLoopLimit
		}
		if st.Summary().Success() {
			return ExitSuccess
		}
		return ExitFailures
	default:
		return ExitError
	}
}
