package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

var log = logger.GetLogger("jobs")

// ErrCancelled is returned by Run for a job that was cancelled
var ErrCancelled = errors.New("scan job cancelled")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// State of a scan job
type State int32

const (
	StateCreated State = iota
	StateStreaming
	StateExhausted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s >= StateExhausted
}

// Sink receives the chunks of a job. Send may block (backpressure) and must return
// once ctx is done.
type Sink interface {
	Send(ctx context.Context, chunk *common.ScanChunk) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, chunk *common.ScanChunk) error

func (f SinkFunc) Send(ctx context.Context, chunk *common.ScanChunk) error {
	return f(ctx, chunk)
}

// Params describe the range of a job
type Params struct {
	Start, End []byte // [Start, End), empty is open
	Limited    bool   // stop after Limit pairs
	Limit      uint64
	ChunkSize  int // pairs per chunk, capped at common.MaxScanChunkSize
	ChunkBytes int // encoded bytes per chunk, a chunk always carries at least one pair
}

// Job is one scan over a snapshot of a table
type Job struct {
	ID      uint64
	TraceID uuid.UUID
	Peer    transport.PeerID
	Table   uint32
	Params  Params

	table *db.Table
	snap  *db.Snapshot
	iter  *db.Iterator
	valid bool // iterator positioned on a pair

	state   atomic.Int32
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	release sync.Once
}

// --------------------------------------------------------------------------
// Job
// --------------------------------------------------------------------------

// New creates a job over a table the caller has already borrowed. The job takes over
// the borrow. The snapshot is taken and the iterator positioned now, writes after New
// are not visible to the scan. ChunkSize is capped at common.MaxScanChunkSize.
func New(ctx context.Context, id uint64, peer transport.PeerID, table *db.Table, params Params) *Job {
	switch {
	case params.ChunkSize <= 0:
		params.ChunkSize = common.DefaultScanChunkSize
	case params.ChunkSize > common.MaxScanChunkSize:
		params.ChunkSize = common.MaxScanChunkSize
	}
	if params.ChunkBytes <= 0 {
		params.ChunkBytes = common.DefaultScanChunkBytes
	}
	jobCtx, cancel := context.WithCancel(ctx)
	snap := table.NewSnapshot()
	iter := snap.NewIterator(params.Start, params.End)
	j := &Job{
		ID:      id,
		TraceID: uuid.New(),
		Peer:    peer,
		Table:   table.Index(),
		Params:  params,
		table:   table,
		snap:    snap,
		iter:    iter,
		valid:   iter.First(),
		ctx:     jobCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	log.Debugf("Created scan job %d (trace %s) on table %d for peer %d", j.ID, j.TraceID, j.Table, j.Peer)
	return j
}

// State returns the current state
func (j *Job) State() State {
	return State(j.state.Load())
}

// Done is closed once the job released its resources
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Cancel stops the job. A job that never ran releases its resources right away, a
// streaming job stops before its next chunk.
func (j *Job) Cancel() {
	j.cancel()
	if j.state.CompareAndSwap(int32(StateCreated), int32(StateCancelled)) {
		log.Debugf("Scan job %d cancelled before start", j.ID)
		j.free()
	}
}

// Run streams the job to sink until it reaches a terminal state. It returns nil when
// the range was exhausted.
func (j *Job) Run(sink Sink) error {
	if !j.state.CompareAndSwap(int32(StateCreated), int32(StateStreaming)) {
		return ErrCancelled
	}
	defer j.free()

	var (
		sent   uint64
		chunks int
		valid  = j.valid
	)
	for {
		if j.ctx.Err() != nil {
			return j.finish(StateCancelled, ErrCancelled)
		}

		pairs := make([]db.KeyValue, 0, j.chunkCap(sent))
		size := 0
		for valid && len(pairs) < j.Params.ChunkSize && j.below(sent) {
			if len(pairs) > 0 && size+pairBytes(j.iter.Key(), j.iter.Value()) > j.Params.ChunkBytes {
				break
			}
			kv := db.KeyValue{
				Key:   append([]byte(nil), j.iter.Key()...),
				Value: append([]byte(nil), j.iter.Value()...),
			}
			pairs = append(pairs, kv)
			size += pairBytes(kv.Key, kv.Value)
			sent++
			valid = j.iter.Next()
		}

		if err := j.iter.Error(); err != nil {
			// the failure chunk is best effort, the peer may already be gone
			_ = sink.Send(j.ctx, &common.ScanChunk{JobID: j.ID, Status: common.StatusEngineIO, Err: err.Error()})
			return j.finish(StateFailed, err)
		}

		more := valid && j.below(sent)
		chunk := &common.ScanChunk{JobID: j.ID, Status: common.StatusPartial, Pairs: pairs}
		if !more {
			chunk.Status = common.StatusOK
			if chunks == 0 && len(pairs) == 0 {
				chunk.Status = common.StatusNoData
			}
		}

		if err := sink.Send(j.ctx, chunk); err != nil {
			if j.ctx.Err() != nil {
				return j.finish(StateCancelled, ErrCancelled)
			}
			return j.finish(StateFailed, fmt.Errorf("scan job %d: %w", j.ID, err))
		}
		chunks++

		if !more {
			log.Debugf("Scan job %d (trace %s) exhausted after %d pairs in %d chunks", j.ID, j.TraceID, sent, chunks)
			return j.finish(StateExhausted, nil)
		}
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (j *Job) below(sent uint64) bool {
	return !j.Params.Limited || sent < j.Params.Limit
}

// chunkCap is the initial capacity of a chunk, larger chunks grow on append
func (j *Job) chunkCap(sent uint64) int {
	n := min(j.Params.ChunkSize, initialChunkCap)
	if j.Params.Limited && j.Params.Limit-sent < uint64(n) {
		n = int(j.Params.Limit - sent)
	}
	return n
}

const initialChunkCap = 256

// pairBytes is the encoded size of a pair, one key and one value frame
func pairBytes(key, value []byte) int {
	return len(key) + len(value) + 2*frameHeaderSize
}

// frameHeaderSize mirrors the flags byte and length prefix of a wire frame
const frameHeaderSize = 5

func (j *Job) finish(state State, err error) error {
	j.state.Store(int32(state))
	if state == StateFailed {
		log.Warningf("Scan job %d (trace %s) failed: %v", j.ID, j.TraceID, err)
	}
	return err
}

// free releases iterator, snapshot and table borrow exactly once
func (j *Job) free() {
	j.release.Do(func() {
		if err := j.iter.Close(); err != nil {
			log.Warningf("Scan job %d: %v", j.ID, err)
		}
		if err := j.snap.Close(); err != nil {
			log.Warningf("Scan job %d: %v", j.ID, err)
		}
		j.table.Release()
		j.cancel()
		close(j.done)
	})
}
