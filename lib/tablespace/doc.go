// Package tablespace maps table indices to opened storage handles.
//
// The tablespace is an arena of slots indexed by table number. It starts with 16 slots
// and grows when a higher index is addressed. Every slot owns an optional *db.Table and
// the configuration that is applied on the next open of that index.
//
// Opening is coordinated per index: concurrent GetTable calls for an index that is not
// open yet are coalesced (golang.org/x/sync/singleflight) so the engine instance is
// opened exactly once and every caller receives the same handle. Open and close of one
// index are serialized by the slot lock, different indices open in parallel.
//
// Every handle returned by GetTable is borrowed and must be released with
// (*db.Table).Release. CloseTable, Truncate and Teardown wait for outstanding borrows.
//
// Administrative operations (Compact, Truncate) serialize per index among themselves
// while reads and writes on that index continue.
package tablespace
