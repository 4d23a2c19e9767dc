// Package workflow implements the development pipeline as a flowgraph
// graph: planning, per-ticket code/test/review pipelines fanned out with a
// concurrency bound, the human approval gate, and the final notification.
//
// Core types:
//   - State: run state persisted in checkpoints
//   - Config: retry, loop and parallelism bounds
//   - Stages: stage functions bound to a set of agent workers
//   - Outcome, Delta: per-attempt ticket results merged after fan-out
//
// Topology (see Build):
//
//	plan ─┬─> process_tickets ─┬─> plan            (retryable tickets remain)
//	      │                    └─> human_gate ─┬─> notify ─> END
//	      └─> notify (loop limit or nothing to do)  └─> END (not approved)
//
// Example usage:
//
//	stages, _ := workflow.NewStages(workflow.DefaultConfig(), agent.Offline())
//	graph, _ := workflow.Build(stages)
//	final, err := graph.Run(flowgraph.NewContext(ctx), workflow.NewState(runID, path, spec),
//	    flowgraph.WithCheckpointing(store),
//	    flowgraph.WithRunID(runID),
//	    flowgraph.WithMaxIterations(workflow.MaxIterations(stages.Config())))
package workflow
