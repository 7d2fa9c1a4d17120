package server

import (
	"context"
	"errors"
	"time"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/jobs"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

// --------------------------------------------------------------------------
// Worker
// --------------------------------------------------------------------------

// work handles requests of the shared queue until the intake is stopped
func (s *rpcServer) work() {
	for in := range s.transport.Requests() {
		s.handle(in)
	}
}

// handle decodes, executes and answers one request. Failures are contained to the
// request.
func (s *rpcServer) handle(in transport.Inbound) {
	start := time.Now()

	req, err := s.serializer.DecodeRequest(in.Frames)
	if err != nil {
		op := common.OpUnknown
		var de *common.DecodeError
		if errors.As(err, &de) {
			op = de.Op
		}
		Logger.Debugf("Rejected request of peer %d: %v", in.Peer, err)
		s.respond(in.Peer, errorResponse(op, err), start)
		return
	}

	if tr, ok := req.(common.TableRequest); ok {
		s.metrics.table(tr.TableIndex())
	}

	// nil means the response is sent by a task that outlives this call
	if resp := s.dispatch(in.Peer, req, start); resp != nil {
		s.respond(in.Peer, resp, start)
	}
}

// respond encodes and sends a response and records the request metrics
func (s *rpcServer) respond(peer transport.PeerID, resp *common.Response, start time.Time) {
	s.metrics.observe(resp.Op, resp.Status, start)
	if err := s.send(peer, resp); err != nil {
		Logger.Debugf("Dropped %s response for peer %d: %v", resp.Op, peer, err)
	}
}

func (s *rpcServer) send(peer transport.PeerID, resp *common.Response) error {
	return s.transport.Send(context.Background(), peer, s.serializer.EncodeResponse(resp))
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

func (s *rpcServer) dispatch(peer transport.PeerID, req common.Request, start time.Time) *common.Response {
	op := req.Opcode()
	switch r := req.(type) {

	// Administrative
	case *common.ServerInfoRequest:
		return serializer.NewServerInfoResponse(s.features, common.ServerVersion)
	case *common.TableOpenRequest:
		return s.result(op, s.tables.OpenTable(r.Table, &r.Config))
	case *common.TableCloseRequest:
		// the close waits for outstanding borrows
		return s.async(peer, op, start, func() error {
			s.jobs.CancelTable(r.Table)
			return s.tables.CloseTable(r.Table)
		})
	case *common.TableInfoRequest:
		info, err := s.tables.TableInfo(r.Table)
		if err != nil {
			return errorResponse(op, err)
		}
		return serializer.NewTableInfoResponse(info)
	case *common.CompactRequest:
		return s.async(peer, op, start, func() error {
			return s.tables.Compact(r.Table, r.Start, r.End)
		})
	case *common.TruncateRequest:
		return s.async(peer, op, start, func() error {
			s.jobs.CancelTable(r.Table)
			return s.tables.Truncate(r.Table)
		})

	// Reads
	case *common.ReadRequest:
		return s.withTable(op, r.Table, func(t *db.Table) *common.Response {
			frames := make([][]byte, len(r.Keys))
			for i, key := range r.Keys {
				value, found, err := t.Get(key)
				res := common.Result{Found: found, Value: value}
				if err != nil {
					res = common.Result{Err: err.Error()}
				}
				frames[i] = serializer.EncodeResult(res)
			}
			return common.NewResponse(op, frames...)
		})
	case *common.ExistsRequest:
		return s.withTable(op, r.Table, func(t *db.Table) *common.Response {
			frames := make([][]byte, len(r.Keys))
			for i, key := range r.Keys {
				found, err := t.Has(key)
				errMsg := ""
				if err != nil {
					errMsg = err.Error()
				}
				frames[i] = serializer.EncodeExistsResult(found, errMsg)
			}
			return common.NewResponse(op, frames...)
		})
	case *common.CountRequest:
		return s.withTable(op, r.Table, func(t *db.Table) *common.Response {
			n, err := t.Count(r.Start, r.End)
			if err != nil {
				return errorResponse(op, err)
			}
			return common.NewResponse(op, serializer.Uint64(n))
		})
	case *common.ScanRequest:
		return s.startScan(peer, op, start, r.Table, jobs.Params{
			Start:     r.Start,
			End:       r.End,
			ChunkSize: int(r.ChunkSize),
		})
	case *common.LimitedScanRequest:
		return s.startScan(peer, op, start, r.Table, jobs.Params{
			Start:     r.Start,
			Limited:   true,
			Limit:     r.Limit,
			ChunkSize: int(r.ChunkSize),
		})

	// Writes
	case *common.PutRequest:
		return s.withTable(op, r.Table, func(t *db.Table) *common.Response {
			return s.result(op, t.Put(r.Pairs, r.Flags.Durability()))
		})
	case *common.DeleteRequest:
		return s.withTable(op, r.Table, func(t *db.Table) *common.Response {
			return s.result(op, t.Delete(r.Keys, r.Flags.Durability()))
		})
	case *common.DeleteRangeRequest:
		return s.withTable(op, r.Table, func(t *db.Table) *common.Response {
			return s.result(op, t.DeleteRange(r.Start, r.End, r.Flags.Durability()))
		})

	default:
		return common.NewErrorResponse(op, common.StatusProtocolError, "unsupported request")
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// result creates an empty success response or an error response
func (s *rpcServer) result(op common.Opcode, err error) *common.Response {
	if err != nil {
		return errorResponse(op, err)
	}
	return common.NewResponse(op)
}

// withTable runs fn with a borrowed table, opening the table on first access
func (s *rpcServer) withTable(op common.Opcode, index uint32, fn func(t *db.Table) *common.Response) *common.Response {
	t, err := s.tables.GetTable(index)
	if err != nil {
		return errorResponse(op, err)
	}
	defer t.Release()
	return fn(t)
}

// async runs an expensive administrative operation on its own tracked goroutine so the
// worker pool keeps serving. The response is sent when the operation is done.
func (s *rpcServer) async(peer transport.PeerID, op common.Opcode, start time.Time, fn func() error) *common.Response {
	err := s.registry.Go(op.String(), func() {
		s.respond(peer, s.result(op, fn()), start)
	})
	if err != nil {
		return errorResponse(op, err)
	}
	return nil
}

// startScan creates a scan job, acknowledges it and streams it on a tracked goroutine
func (s *rpcServer) startScan(peer transport.PeerID, op common.Opcode, start time.Time, index uint32, params jobs.Params) *common.Response {
	release, err := s.registry.Acquire("scan")
	if err != nil {
		return errorResponse(op, err)
	}

	t, err := s.tables.GetTable(index)
	if err != nil {
		release()
		return errorResponse(op, err)
	}

	// the job takes over the table borrow
	job := s.jobs.Create(s.jobCtx, peer, t, params)
	s.metrics.scanStarted.Inc()

	// the acknowledgement is queued before the first chunk
	ack := serializer.NewScanAck(op, job.ID)
	s.metrics.observe(op, ack.Status, start)
	if err := s.send(peer, ack); err != nil {
		s.jobs.Discard(job)
		release()
		Logger.Debugf("Dropped scan job %d, peer %d is gone: %v", job.ID, peer, err)
		return nil
	}

	sink := jobs.SinkFunc(func(ctx context.Context, chunk *common.ScanChunk) error {
		return s.transport.Send(ctx, peer, s.serializer.EncodeResponse(serializer.NewScanChunkResponse(chunk)))
	})
	go func() {
		defer release()
		if err := s.jobs.Run(job, sink); err != nil && !errors.Is(err, jobs.ErrCancelled) {
			Logger.Debugf("Scan job %d ended: %v", job.ID, err)
		}
	}()
	return nil
}
