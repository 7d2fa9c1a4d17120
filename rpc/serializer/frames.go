package serializer

import (
	"encoding/binary"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

// NewFrameSerializer creates the serializer for the multi-frame wire protocol
func NewFrameSerializer() IRPCSerializer {
	return &frameSerializerImpl{}
}

// frameSerializerImpl is stateless and safe for concurrent use
type frameSerializerImpl struct{}

// compression toggle encoding in TableOpen requests (an empty frame means default)
const (
	compressionOff byte = 0x00
	compressionOn  byte = 0x01
)

// --------------------------------------------------------------------------
// Requests (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (s *frameSerializerImpl) EncodeRequest(req common.Request) [][]byte {
	op := req.Opcode()
	header := []byte{common.Magic, common.Version, byte(op)}

	switch r := req.(type) {
	case *common.ServerInfoRequest:
		return [][]byte{header}

	case *common.TableOpenRequest:
		frames := [][]byte{header, Uint32(r.Table)}
		for _, v := range []uint64{r.Config.CacheBytes, r.Config.BlockBytes, r.Config.WriteBufferBytes, r.Config.BloomFilterBits} {
			if v == db.Default {
				frames = append(frames, []byte{})
			} else {
				frames = append(frames, Uint64(v))
			}
		}
		switch r.Config.Compression {
		case db.CompressionOn:
			frames = append(frames, []byte{compressionOn})
		case db.CompressionOff:
			frames = append(frames, []byte{compressionOff})
		default:
			frames = append(frames, []byte{})
		}
		return frames

	case *common.TableCloseRequest:
		return [][]byte{header, Uint32(r.Table)}
	case *common.TruncateRequest:
		return [][]byte{header, Uint32(r.Table)}
	case *common.TableInfoRequest:
		return [][]byte{header, Uint32(r.Table)}

	case *common.CompactRequest:
		return [][]byte{header, Uint32(r.Table), r.Start, r.End}
	case *common.CountRequest:
		return [][]byte{header, Uint32(r.Table), r.Start, r.End}

	case *common.ReadRequest:
		return append([][]byte{header, Uint32(r.Table)}, r.Keys...)
	case *common.ExistsRequest:
		return append([][]byte{header, Uint32(r.Table)}, r.Keys...)

	case *common.ScanRequest:
		frames := [][]byte{header, Uint32(r.Table), r.Start, r.End}
		if r.ChunkSize > 0 {
			frames = append(frames, Uint32(r.ChunkSize))
		}
		return frames
	case *common.LimitedScanRequest:
		frames := [][]byte{header, Uint32(r.Table), r.Start, Uint64(r.Limit)}
		if r.ChunkSize > 0 {
			frames = append(frames, Uint32(r.ChunkSize))
		}
		return frames

	case *common.PutRequest:
		frames := make([][]byte, 0, 2+2*len(r.Pairs))
		frames = append(frames, append(header, byte(r.Flags)), Uint32(r.Table))
		for _, kv := range r.Pairs {
			frames = append(frames, kv.Key, kv.Value)
		}
		return frames
	case *common.DeleteRequest:
		frames := make([][]byte, 0, 2+len(r.Keys))
		frames = append(frames, append(header, byte(r.Flags)), Uint32(r.Table))
		return append(frames, r.Keys...)
	case *common.DeleteRangeRequest:
		return [][]byte{append(header, byte(r.Flags)), Uint32(r.Table), r.Start, r.End}
	}
	return [][]byte{header}
}

func (s *frameSerializerImpl) DecodeRequest(frames [][]byte) (common.Request, error) {
	if len(frames) == 0 {
		return nil, common.NewDecodeError(common.OpUnknown, "missing header frame")
	}
	header := frames[0]
	if len(header) < 3 {
		return nil, common.NewDecodeError(common.OpUnknown, "header frame has %d bytes", len(header))
	}
	if header[0] != common.Magic || header[1] != common.Version {
		return nil, common.NewDecodeError(common.OpUnknown, "bad magic/version 0x%02x 0x%02x", header[0], header[1])
	}
	op := common.Opcode(header[2])

	var flags common.WriteFlags
	if op.IsWrite() && len(header) >= 4 {
		flags = common.WriteFlags(header[3])
	}

	if op == common.OpServerInfo {
		return common.NewServerInfoRequest(), nil
	}

	switch op {
	case common.OpTableOpen, common.OpTableClose, common.OpCompact, common.OpTruncate, common.OpTableInfo,
		common.OpRead, common.OpCount, common.OpExists, common.OpScan, common.OpLimitedScan,
		common.OpPut, common.OpDelete, common.OpDeleteRange:
	case common.OpScanData:
		return nil, common.NewDecodeError(op, "opcode is only valid in responses")
	default:
		return nil, common.NewDecodeError(op, "unknown opcode")
	}

	if len(frames) < 2 {
		return nil, common.NewDecodeError(op, "missing table frame")
	}
	if len(frames[1]) != 4 {
		return nil, common.NewDecodeError(op, "table frame has %d bytes, expected 4", len(frames[1]))
	}
	table := binary.BigEndian.Uint32(frames[1])
	body := frames[2:]

	switch op {
	case common.OpTableOpen:
		return decodeTableOpen(table, body)
	case common.OpTableClose:
		return common.NewTableCloseRequest(table), nil
	case common.OpTruncate:
		return common.NewTruncateRequest(table), nil
	case common.OpTableInfo:
		return common.NewTableInfoRequest(table), nil

	case common.OpCompact, common.OpCount, common.OpDeleteRange:
		if len(body) < 2 {
			return nil, common.NewDecodeError(op, "missing start/end frames")
		}
		switch op {
		case common.OpCompact:
			return common.NewCompactRequest(table, body[0], body[1]), nil
		case common.OpCount:
			return common.NewCountRequest(table, body[0], body[1]), nil
		default:
			return common.NewDeleteRangeRequest(table, flags, body[0], body[1]), nil
		}

	case common.OpRead:
		return common.NewReadRequest(table, body...), nil
	case common.OpExists:
		return common.NewExistsRequest(table, body...), nil
	case common.OpDelete:
		return common.NewDeleteRequest(table, flags, body...), nil

	case common.OpPut:
		if len(body)%2 != 0 {
			return nil, common.NewDecodeError(op, "odd number of key/value frames (%d)", len(body))
		}
		pairs := make([]db.KeyValue, len(body)/2)
		for i := range pairs {
			pairs[i] = db.KeyValue{Key: body[2*i], Value: body[2*i+1]}
		}
		return common.NewPutRequest(table, flags, pairs...), nil

	case common.OpScan:
		if len(body) < 2 {
			return nil, common.NewDecodeError(op, "missing start/end frames")
		}
		chunk, err := optionalUint32(op, body[2:], "chunk size")
		if err != nil {
			return nil, err
		}
		return common.NewScanRequest(table, body[0], body[1], chunk), nil

	case common.OpLimitedScan:
		if len(body) < 2 {
			return nil, common.NewDecodeError(op, "missing start/limit frames")
		}
		if len(body[1]) != 8 {
			return nil, common.NewDecodeError(op, "limit frame has %d bytes, expected 8", len(body[1]))
		}
		chunk, err := optionalUint32(op, body[2:], "chunk size")
		if err != nil {
			return nil, err
		}
		return common.NewLimitedScanRequest(table, body[0], binary.BigEndian.Uint64(body[1]), chunk), nil
	}
	return nil, common.NewDecodeError(op, "unknown opcode")
}

func decodeTableOpen(table uint32, body [][]byte) (common.Request, error) {
	config := db.DefaultTableConfig()
	targets := []*uint64{&config.CacheBytes, &config.BlockBytes, &config.WriteBufferBytes, &config.BloomFilterBits}
	for i, target := range targets {
		if i >= len(body) || len(body[i]) == 0 {
			continue
		}
		if len(body[i]) != 8 {
			return nil, common.NewDecodeError(common.OpTableOpen, "parameter %d has %d bytes, expected 8", i, len(body[i]))
		}
		*target = binary.BigEndian.Uint64(body[i])
	}
	if len(body) > 4 && len(body[4]) > 0 {
		if len(body[4]) != 1 {
			return nil, common.NewDecodeError(common.OpTableOpen, "compression frame has %d bytes, expected 1", len(body[4]))
		}
		if body[4][0] == compressionOff {
			config.Compression = db.CompressionOff
		} else {
			config.Compression = db.CompressionOn
		}
	}
	return common.NewTableOpenRequest(table, config), nil
}

// optionalUint32 decodes an optional trailing 4 byte frame (absent or empty = 0)
func optionalUint32(op common.Opcode, rest [][]byte, name string) (uint32, error) {
	if len(rest) == 0 || len(rest[0]) == 0 {
		return 0, nil
	}
	if len(rest[0]) != 4 {
		return 0, common.NewDecodeError(op, "%s frame has %d bytes, expected 4", name, len(rest[0]))
	}
	return binary.BigEndian.Uint32(rest[0]), nil
}

// --------------------------------------------------------------------------
// Responses (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (s *frameSerializerImpl) EncodeResponse(resp *common.Response) [][]byte {
	frames := make([][]byte, 0, 2+len(resp.Frames))
	frames = append(frames, []byte{common.Magic, common.Version, byte(resp.Op), byte(resp.Status)})
	frames = append(frames, resp.Frames...)
	if resp.Status.IsError() {
		frames = append(frames, []byte(resp.Err))
	}
	return frames
}

func (s *frameSerializerImpl) DecodeResponse(frames [][]byte) (*common.Response, error) {
	if len(frames) == 0 {
		return nil, common.NewDecodeError(common.OpUnknown, "missing header frame")
	}
	header := frames[0]
	if len(header) != 4 {
		return nil, common.NewDecodeError(common.OpUnknown, "response header has %d bytes, expected 4", len(header))
	}
	if header[0] != common.Magic || header[1] != common.Version {
		return nil, common.NewDecodeError(common.OpUnknown, "bad magic/version 0x%02x 0x%02x", header[0], header[1])
	}
	resp := &common.Response{
		Op:     common.Opcode(header[2]),
		Status: common.Status(header[3]),
		Frames: frames[1:],
	}
	if resp.Status.IsError() && len(resp.Frames) > 0 {
		last := len(resp.Frames) - 1
		resp.Err = string(resp.Frames[last])
		resp.Frames = resp.Frames[:last]
	}
	return resp, nil
}
