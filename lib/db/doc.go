// Package db wraps one embedded storage engine instance per table. The engine is
// cockroachdb/pebble, a log-structured merge tree that supplies everything the server
// needs from a storage layer: ordered key iteration, atomic batched writes, point-in-time
// snapshots, range deletion and range compaction.
//
// The package focuses on:
//   - Opening one engine instance for one table index with a TableConfig
//   - Translating write durability flags into engine sync semantics
//   - Borrow tracking so a handle is never closed underneath a reader
//   - Reporting table parameters and engine statistics
//
// Key Components:
//
//   - TableConfig: Immutable per-table tuning (cache, block size, write buffer, bloom
//     filter bits, compression). Every field defaults to the engine default, encoded
//     with the Default sentinel (math.MaxUint64) or CompressionDefault.
//
//   - Table: The opened engine handle. It is safe for concurrent use by many workers
//     and scan jobs. Callers that got the handle from a tablespace hold a borrow
//     (Acquire/Release) and Close waits until every borrow has been returned.
//
//   - Snapshot: A consistent read view used by scan jobs. It is acquired once and
//     kept until the job terminates.
//
//   - Error: A single error type carrying an ErrCode (TableBusy, EngineOpen, EngineIO,
//     ...) so transport code can map failures to wire status codes with errors.As.
//
// Durability:
//
//	DurabilityBuffered writes return once the batch is in the memtable and the WAL
//	buffer. DurabilityGroupCommit waits for the WAL fsync, which the engine shares
//	between concurrent committers. DurabilityFsync additionally flushes the memtable
//	to an sstable before returning.
//
// Table presets can be loaded from YAML with LoadTableConfigs.
package db
