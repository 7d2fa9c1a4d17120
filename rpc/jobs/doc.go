/*
Package jobs implements passive scan jobs.

A scan job is created when a Scan or LimitedScan request arrives: it borrows the table,
takes a snapshot and an iterator, and is then driven by a single goroutine that pushes
chunks of key/value pairs to a Sink until the range is exhausted, the job is cancelled
or an error occurs.

Lifecycle:

	Created ──Run──▶ Streaming ──▶ Exhausted
	   │                 ├──────▶ Cancelled
	   └──Cancel──▶ Cancelled └──▶ Failed

Every terminal state releases the iterator, the snapshot and the table borrow exactly
once. Chunks carry StatusPartial while more follow, StatusOK on the final chunk and
StatusNoData if the range was empty from the start.

The Manager keeps the registry of live jobs so that disconnecting peers, closing tables
and shutting down can cancel exactly the affected jobs.
*/
package jobs
