// Package approval delivers human approval signals for paused runs.
//
// A Source listens on some channel and calls a Handler for every valid
// Signal. Handlers are called one at a time; a handler error is logged and
// the source keeps listening. Listen blocks until its context is cancelled.
//
// Sources:
//   - RedisSource: redis pub/sub channel carrying JSON signals
//   - NATSSource: NATS subject carrying JSON signals
//   - HTTPSource: POST /runs/{runID}/approve with a bearer approval token
//   - DirSource: a watched directory of <runID>.approve files
//
// Client posts approvals to a remote HTTPSource.
package approval
