// Package pipeline is the root of an agent-driven development pipeline.
//
// A run turns a specification document into tickets, pushes every ticket
// through code, test and review workers with bounded parallelism, waits for
// a human approval, and finally notifies. Runs are checkpointed after every
// step and can be resumed from another process.
//
// The work is split into subpackages:
//
//   - extract: pull JSON records out of free-form worker replies
//   - ticket: the unit of work and its lifecycle transitions
//   - workflow: stage functions, routing, the run state and the flowgraph graph
//   - checkpoint: memory, file, sqlite and redis checkpoint stores
//   - agent: the worker seam plus Claude CLI and API backed workers
//   - prompt, task: prompt templates and per-stage model selection
//   - approval, auth: approval sources and signed approval tokens
//   - notify: log, webhook and Slack notifiers
//   - pr, git: pull request providers and repository access
//   - artifact, eventlog: per-run artifacts and the JSONL event log
//   - config, errors, telemetry: the ambient stack
//   - runner: the run driver used by cmd/pipeline
//
// Most callers use the runner package:
//
//	svc, _ := runner.NewServices(ctx, settings, logger)
//	defer svc.Close()
//	drv, _ := svc.Driver()
//	out, err := drv.Start(ctx, "SPEC.md")
package pipeline
