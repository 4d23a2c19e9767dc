// Package checkpoint provides the flowgraph checkpoint stores runs are
// persisted in, so a paused or interrupted run can be resumed.
//
// flowgraph writes one checkpoint per executed node, holding the state and
// the next node. Every store here keeps those checkpoints in sealed form:
// CBOR, zstd compressed, prefixed by a BLAKE3 checksum. A checkpoint that
// fails verification is reported as ErrCorrupt and is never partially
// loaded.
//
// Stores:
//   - MemoryStore: flowgraph's memory store, for offline runs and tests
//   - SQLiteStore: flowgraph's SQLite store (modernc.org/sqlite, no cgo)
//   - FileStore: one directory per run, atomic replace on save
//   - RedisStore: one hash per run, shared between processes
package checkpoint
