package client

import (
	"context"
	"fmt"
	"io"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

// ScanStream delivers the chunks of one scan job. Closing the stream before the final
// chunk drops its connection, which cancels the job on the server.
type ScanStream struct {
	jobID      uint64
	op         common.Opcode
	stream     transport.IRPCStream
	serializer serializer.IRPCSerializer
	done       bool
}

// openScan sends a scan request on a dedicated connection and waits for the ack
func (c *rpcClient) openScan(ctx context.Context, req common.Request) (*ScanStream, error) {
	stream, err := c.transport.Stream(ctx, c.serializer.EncodeRequest(req))
	if err != nil {
		return nil, err
	}

	frames, err := stream.Recv(ctx)
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	resp, err := c.serializer.DecodeResponse(frames)
	if err == nil {
		err = checkResponse(req.Opcode(), resp)
	}
	var jobID uint64
	if err == nil {
		jobID, err = serializer.ParseScanAck(resp)
	}
	if err != nil {
		_ = stream.Close()
		return nil, err
	}

	Logger.Debugf("Scan job %d started", jobID)
	return &ScanStream{
		jobID:      jobID,
		op:         req.Opcode(),
		stream:     stream,
		serializer: c.serializer,
	}, nil
}

// JobID is the server side id of the job
func (s *ScanStream) JobID() uint64 {
	return s.jobID
}

// Next returns the pairs of the next chunk. It returns io.EOF after the final chunk.
// A chunk may be empty only if the range was empty.
func (s *ScanStream) Next(ctx context.Context) ([]db.KeyValue, error) {
	if s.done {
		return nil, io.EOF
	}
	frames, err := s.stream.Recv(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := s.serializer.DecodeResponse(frames)
	if err != nil {
		return nil, err
	}
	chunk, err := serializer.ParseScanChunk(resp)
	if err != nil {
		return nil, err
	}
	if chunk.JobID != s.jobID {
		return nil, fmt.Errorf("chunk of job %d on the stream of job %d", chunk.JobID, s.jobID)
	}
	if chunk.Final() {
		s.done = true
		_ = s.stream.Close()
	}
	if chunk.Status.IsError() {
		return nil, &StatusError{Op: s.op, Status: chunk.Status, Message: chunk.Err}
	}
	return chunk.Pairs, nil
}

// Collect reads the remaining chunks and returns all pairs
func (s *ScanStream) Collect(ctx context.Context) ([]db.KeyValue, error) {
	var out []db.KeyValue
	for {
		pairs, err := s.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, pairs...)
	}
}

// Close ends the stream, cancelling the job if it is still running
func (s *ScanStream) Close() error {
	s.done = true
	return s.stream.Close()
}
