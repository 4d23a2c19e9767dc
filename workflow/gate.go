package workflow

import (
	"github.com/randalmurphal/flowgraph/pkg/flowgraph"

	"github.com/dpetrovic89/agentic-dev-pipeline/eventlog"
)

// HumanGate is the human_gate node. Offline runs are approved automatically.
// Without a recorded approval the gate asks for one and the run ends here;
// approving replays this node from its checkpoint with the approval set.
func (s *Stages) HumanGate(ctx flowgraph.Context, st State) (State, error) {
	if s.cfg.OfflineMode && !st.HumanApproved {
		st.HumanApproved = true
		st.Approver = "offline"
	}
	if !st.HumanApproved {
		s.emit(ctx, st.RunID, "approval_requested", eventlog.ActorEngine, nil)
		return st, nil
	}
	s.emit(ctx, st.RunID, "human_approved", eventlog.ActorHuman, map[string]any{"approver": st.Approver})
	return st, nil
}

// RouteAfterPlan sends a run with nothing left to do, or one over its loop
// budget, straight to notify.
func (s *Stages) RouteAfterPlan(_ flowgraph.Context, st State) string {
	if st.LoopLimited || st.LoopCount > s.cfg.MaxGraphLoops {
		return NodeNotify
	}
	if !st.HasPending() {
		return NodeNotify
	}
	return NodeProcessTickets
}

// RouteAfterFanOut loops back to plan while any ticket can still make
// progress.
func (s *Stages) RouteAfterFanOut(_ flowgraph.Context, st State) string {
	if st.HasUnfinished() {
		return NodePlan
	}
	return NodeHumanGate
}

// RouteAfterGate continues to notify once approved and otherwise ends the
// run at the gate.
func RouteAfterGate(_ flowgraph.Context, st State) string {
	if st.HumanApproved {
		return NodeNotify
	}
	return flowgraph.END
}

// AwaitingApproval reports whether a run that stopped after node with
// state st is parked at the gate.
func AwaitingApproval(node, next string, st State) bool {
	return node == NodeHumanGate && next == flowgraph.END && !st.HumanApproved
}

// Approved records approver's approval on the state a resume starts from.
// Pair it with flowgraph.WithReplayNode when resuming from the gate so the
// gate runs again with the approval set.
func Approved(approver string) flowgraph.ResumeOption {
	return flowgraph.WithStateOverride(func(s any) any {
		st, ok := s.(State)
		if !ok {
			return s
		}
		st.HumanApproved = true
		st.Approver = approver
		return st
	})
}
