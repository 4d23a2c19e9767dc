package workflow

import (
	"github.com/randalmurphal/flowgraph/pkg/flowgraph"
)

// Node names.
const (
	NodePlan           = "plan"
	NodeProcessTickets = "process_tickets"
	NodeHumanGate      = "human_gate"
	NodeNotify         = "notify"
)

// Build wires the stages into the pipeline graph.
func Build(s *Stages) (*flowgraph.CompiledGraph[State], error) {
	return flowgraph.NewGraph[State]().
		AddNode(NodePlan, s.Plan).
		AddNode(NodeProcessTickets, s.FanOut).
		AddNode(NodeHumanGate, s.HumanGate).
		AddNode(NodeNotify, s.Notify).
		AddConditionalEdge(NodePlan, s.RouteAfterPlan).
		AddConditionalEdge(NodeProcessTickets, s.RouteAfterFanOut).
		AddConditionalEdge(NodeHumanGate, RouteAfterGate).
		AddEdge(NodeNotify, flowgraph.END).
		SetEntry(NodePlan).
		Compile()
}

// MaxIterations bounds node executions for a run under cfg. Every loop
// visits plan and process_tickets once; the final plan, the gate and notify
// follow. The loop guard in RouteAfterPlan always trips first.
func MaxIterations(cfg Config) int {
	return 2*(cfg.MaxGraphLoops+1) + 3
}
