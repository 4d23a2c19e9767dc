// Package agent defines the workers the pipeline delegates to and provides
// their implementations.
//
// Every worker takes a task and returns free-form text; the workflow
// extracts structured results from that text. Implementations:
//
//   - Offline: canned responses for dry runs
//   - LLM: planner, coder, tester and reviewer backed by a Completer
//     (Anthropic API or the Claude CLI), with prompts from package prompt
//   - LocalTester: runs the test command in a worktree of the ticket branch
//   - ChannelNotifier: posts the run summary through package notify
package agent
