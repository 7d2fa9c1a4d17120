package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

// --------------------------------------------------------------------------
// Integer Frames
// --------------------------------------------------------------------------

// Uint32 encodes v as a 4 byte big-endian frame
func Uint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// Uint64 encodes v as an 8 byte big-endian frame
func Uint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// ParseUint64 decodes an 8 byte big-endian frame
func ParseUint64(frame []byte) (uint64, error) {
	if len(frame) != 8 {
		return 0, fmt.Errorf("expected 8 byte frame, got %d bytes", len(frame))
	}
	return binary.BigEndian.Uint64(frame), nil
}

// --------------------------------------------------------------------------
// Per-key Results
// --------------------------------------------------------------------------

// EncodeResult encodes the outcome of one key
func EncodeResult(r common.Result) []byte {
	switch {
	case r.Err != "":
		return append([]byte{common.ResultError}, r.Err...)
	case r.Found:
		frame := make([]byte, 1+len(r.Value))
		frame[0] = common.ResultFound
		copy(frame[1:], r.Value)
		return frame
	default:
		return []byte{common.ResultNotFound}
	}
}

// DecodeResult decodes a per-key result frame
func DecodeResult(frame []byte) (common.Result, error) {
	if len(frame) == 0 {
		return common.Result{}, fmt.Errorf("empty result frame")
	}
	switch frame[0] {
	case common.ResultFound:
		return common.Result{Found: true, Value: frame[1:]}, nil
	case common.ResultNotFound:
		return common.Result{}, nil
	case common.ResultError:
		return common.Result{Err: string(frame[1:])}, nil
	default:
		return common.Result{}, fmt.Errorf("unknown result sentinel 0x%02x", frame[0])
	}
}

// EncodeExistsResult encodes the boolean outcome of one key
func EncodeExistsResult(exists bool, errMsg string) []byte {
	if errMsg != "" {
		return EncodeResult(common.Result{Err: errMsg})
	}
	b := byte(0)
	if exists {
		b = 1
	}
	return []byte{common.ResultFound, b}
}

// DecodeExistsResult decodes a frame produced by EncodeExistsResult
func DecodeExistsResult(frame []byte) (common.Result, error) {
	r, err := DecodeResult(frame)
	if err != nil || !r.Found {
		return r, err
	}
	if len(r.Value) != 1 {
		return common.Result{}, fmt.Errorf("exists result has %d value bytes, expected 1", len(r.Value))
	}
	return common.Result{Found: r.Value[0] != 0}, nil
}

// --------------------------------------------------------------------------
// Administrative Responses
// --------------------------------------------------------------------------

// NewServerInfoResponse creates the response to a ServerInfo request
func NewServerInfoResponse(features db.Feature, version string) *common.Response {
	return common.NewResponse(common.OpServerInfo, Uint64(uint64(features)), []byte(version))
}

// ParseServerInfo extracts features and version from a ServerInfo response
func ParseServerInfo(resp *common.Response) (db.Feature, string, error) {
	if len(resp.Frames) < 2 {
		return 0, "", fmt.Errorf("server info response has %d frames, expected 2", len(resp.Frames))
	}
	features, err := ParseUint64(resp.Frames[0])
	if err != nil {
		return 0, "", err
	}
	return db.Feature(features), string(resp.Frames[1]), nil
}

// NewTableInfoResponse encodes name/value pairs as alternating frames
func NewTableInfoResponse(info [][2]string) *common.Response {
	frames := make([][]byte, 0, 2*len(info))
	for _, p := range info {
		frames = append(frames, []byte(p[0]), []byte(p[1]))
	}
	return common.NewResponse(common.OpTableInfo, frames...)
}

// ParseTableInfo is the inverse of NewTableInfoResponse
func ParseTableInfo(resp *common.Response) ([][2]string, error) {
	if len(resp.Frames)%2 != 0 {
		return nil, fmt.Errorf("table info response has an odd number of frames")
	}
	info := make([][2]string, 0, len(resp.Frames)/2)
	for i := 0; i < len(resp.Frames); i += 2 {
		info = append(info, [2]string{string(resp.Frames[i]), string(resp.Frames[i+1])})
	}
	return info, nil
}

// --------------------------------------------------------------------------
// Scan Jobs
// --------------------------------------------------------------------------

// NewScanAck acknowledges the creation of a scan job
func NewScanAck(op common.Opcode, jobID uint64) *common.Response {
	return common.NewResponse(op, Uint64(jobID))
}

// ParseScanAck extracts the job id of a scan acknowledgement
func ParseScanAck(resp *common.Response) (uint64, error) {
	if len(resp.Frames) < 1 {
		return 0, fmt.Errorf("scan acknowledgement is missing the job id")
	}
	return ParseUint64(resp.Frames[0])
}

// NewScanChunkResponse wraps a scan chunk as a ScanData response
func NewScanChunkResponse(chunk *common.ScanChunk) *common.Response {
	frames := make([][]byte, 0, 1+2*len(chunk.Pairs))
	frames = append(frames, Uint64(chunk.JobID))
	for _, kv := range chunk.Pairs {
		frames = append(frames, kv.Key, kv.Value)
	}
	return &common.Response{
		Op:     common.OpScanData,
		Status: chunk.Status,
		Err:    chunk.Err,
		Frames: frames,
	}
}

// ParseScanChunk is the inverse of NewScanChunkResponse
func ParseScanChunk(resp *common.Response) (*common.ScanChunk, error) {
	if resp.Op != common.OpScanData {
		return nil, common.NewDecodeError(resp.Op, "expected scan data")
	}
	if len(resp.Frames) < 1 {
		return nil, common.NewDecodeError(resp.Op, "missing job id frame")
	}
	jobID, err := ParseUint64(resp.Frames[0])
	if err != nil {
		return nil, common.NewDecodeError(resp.Op, "job id: %v", err)
	}
	body := resp.Frames[1:]
	if len(body)%2 != 0 {
		return nil, common.NewDecodeError(resp.Op, "odd number of key/value frames (%d)", len(body))
	}
	chunk := &common.ScanChunk{
		JobID:  jobID,
		Status: resp.Status,
		Err:    resp.Err,
		Pairs:  make([]db.KeyValue, len(body)/2),
	}
	for i := range chunk.Pairs {
		chunk.Pairs[i] = db.KeyValue{Key: body[2*i], Value: body[2*i+1]}
	}
	return chunk, nil
}
