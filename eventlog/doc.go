// Package eventlog records structured run events.
//
// Every record carries a timestamp, run ID, event name, actor and a free-form
// data map. The actor separates orchestration failures (ActorEngine) from
// failures reported by external workers (ActorCoder, ActorTester, ...).
//
// Sinks:
//   - FileSink: JSON lines, one file per day (run_YYYYMMDD.jsonl)
//   - SlogSink: structured log output
//   - MultiSink, NopSink, MemorySink
package eventlog
