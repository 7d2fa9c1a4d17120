package common

import (
	"fmt"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
)

// --------------------------------------------------------------------------
// Header Constants
// --------------------------------------------------------------------------

const (
	// Magic is the first byte of every request and response header frame
	Magic byte = 0x31
	// Version is the protocol version following the magic byte
	Version byte = 0x01
)

// --------------------------------------------------------------------------
// Opcodes
// --------------------------------------------------------------------------

// Opcode identifies the operation of a request (and the response it produced)
type Opcode uint8

const (
	// Administrative operations

	OpServerInfo Opcode = 0x00 // Feature flags and version
	OpTableOpen  Opcode = 0x01 // Open a table with an optional configuration
	OpTableClose Opcode = 0x02 // Flush and close a table
	OpCompact    Opcode = 0x03 // Compact a key range
	OpTruncate   Opcode = 0x04 // Delete all data of a table
	OpTableInfo  Opcode = 0x05 // Table parameters and statistics

	// Read operations

	OpRead        Opcode = 0x10 // Read one or more keys
	OpCount       Opcode = 0x11 // Count keys in a range
	OpExists      Opcode = 0x12 // Check one or more keys
	OpScan        Opcode = 0x13 // Start a range scan job
	OpLimitedScan Opcode = 0x14 // Start a scan job bounded by a key count

	// Write operations (carry a flags byte)

	OpPut         Opcode = 0x20 // Write key/value pairs
	OpDelete      Opcode = 0x21 // Delete keys
	OpDeleteRange Opcode = 0x22 // Delete a half-open key range

	// Response only

	OpScanData Opcode = 0x50 // One chunk of a scan job

	// OpUnknown is reported for messages whose opcode could not be read
	OpUnknown Opcode = 0xFF
)

func (o Opcode) String() string {
	switch o {
	case OpServerInfo:
		return "server-info"
	case OpTableOpen:
		return "table-open"
	case OpTableClose:
		return "table-close"
	case OpCompact:
		return "compact"
	case OpTruncate:
		return "truncate"
	case OpTableInfo:
		return "table-info"
	case OpRead:
		return "read"
	case OpCount:
		return "count"
	case OpExists:
		return "exists"
	case OpScan:
		return "scan"
	case OpLimitedScan:
		return "limited-scan"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	case OpDeleteRange:
		return "delete-range"
	case OpScanData:
		return "scan-data"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(o))
	}
}

// IsWrite reports whether requests of this opcode carry write flags
func (o Opcode) IsWrite() bool {
	return o == OpPut || o == OpDelete || o == OpDeleteRange
}

// --------------------------------------------------------------------------
// Write Flags
// --------------------------------------------------------------------------

// WriteFlags is the optional fourth header byte of write requests
type WriteFlags uint8

const (
	FlagPartSync WriteFlags = 0x01 // group-commit durable
	FlagFullSync WriteFlags = 0x02 // fsync before acknowledging
)

// Durability maps the flags to the storage durability level, FULLSYNC wins
func (f WriteFlags) Durability() db.Durability {
	switch {
	case f&FlagFullSync != 0:
		return db.DurabilityFsync
	case f&FlagPartSync != 0:
		return db.DurabilityGroupCommit
	default:
		return db.DurabilityBuffered
	}
}

// FlagsFor is the inverse of Durability
func FlagsFor(d db.Durability) WriteFlags {
	switch d {
	case db.DurabilityFsync:
		return FlagFullSync
	case db.DurabilityGroupCommit:
		return FlagPartSync
	default:
		return 0
	}
}

// --------------------------------------------------------------------------
// Response Status
// --------------------------------------------------------------------------

// Status is the fourth byte of a response header
type Status uint8

const (
	StatusOK      Status = 0x00 // success (for scan chunks: final chunk)
	StatusNoData  Status = 0x01 // scan range was empty
	StatusPartial Status = 0x02 // scan chunk, more chunks follow

	StatusProtocolError Status = 0x10 // malformed request
	StatusTableBusy     Status = 0x11 // table must be closed first
	StatusEngineOpen    Status = 0x12 // table could not be opened
	StatusEngineIO      Status = 0x13 // read, write or iterate failure
	StatusInternal      Status = 0x14 // unclassified failure
	StatusShuttingDown  Status = 0x15 // server is draining
)

// IsError reports whether the status signals a failed request
func (s Status) IsError() bool {
	return s >= StatusProtocolError
}

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoData:
		return "no-data"
	case StatusPartial:
		return "partial"
	case StatusProtocolError:
		return "protocol-error"
	case StatusTableBusy:
		return "table-busy"
	case StatusEngineOpen:
		return "engine-open-error"
	case StatusEngineIO:
		return "engine-io-error"
	case StatusShuttingDown:
		return "shutting-down"
	default:
		return "internal-error"
	}
}

// --------------------------------------------------------------------------
// Result Frames
// --------------------------------------------------------------------------

// Sentinel bytes leading every per-key result frame
const (
	ResultFound    byte = 0x00 // value follows
	ResultNotFound byte = 0x01 // no value
	ResultError    byte = 0xFF // error message follows
)

// Result is the outcome for one key of a Read or Exists request
type Result struct {
	Found bool
	Value []byte
	Err   string
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Request is a decoded request. The set of implementations is closed, switch on the
// concrete type to dispatch.
type Request interface {
	Opcode() Opcode
	isRequest()
}

// TableRequest is implemented by every request that addresses a table
type TableRequest interface {
	Request
	TableIndex() uint32
}

// tableRef is embedded by every table request
type tableRef struct {
	Table uint32
}

func (t tableRef) TableIndex() uint32 { return t.Table }
func (tableRef) isRequest()           {}

type ServerInfoRequest struct{}

func (ServerInfoRequest) Opcode() Opcode { return OpServerInfo }
func (ServerInfoRequest) isRequest()     {}

// TableOpenRequest opens a table. Fields of Config equal to db.Default were omitted.
type TableOpenRequest struct {
	tableRef
	Config db.TableConfig
}

func (TableOpenRequest) Opcode() Opcode { return OpTableOpen }

type TableCloseRequest struct{ tableRef }

func (TableCloseRequest) Opcode() Opcode { return OpTableClose }

type CompactRequest struct {
	tableRef
	Start, End []byte
}

func (CompactRequest) Opcode() Opcode { return OpCompact }

type TruncateRequest struct{ tableRef }

func (TruncateRequest) Opcode() Opcode { return OpTruncate }

type TableInfoRequest struct{ tableRef }

func (TableInfoRequest) Opcode() Opcode { return OpTableInfo }

type ReadRequest struct {
	tableRef
	Keys [][]byte
}

func (ReadRequest) Opcode() Opcode { return OpRead }

type CountRequest struct {
	tableRef
	Start, End []byte
}

func (CountRequest) Opcode() Opcode { return OpCount }

type ExistsRequest struct {
	tableRef
	Keys [][]byte
}

func (ExistsRequest) Opcode() Opcode { return OpExists }

// ScanRequest starts a scan job over [Start, End). ChunkSize 0 uses the server default.
type ScanRequest struct {
	tableRef
	Start, End []byte
	ChunkSize  uint32
}

func (ScanRequest) Opcode() Opcode { return OpScan }

// LimitedScanRequest starts a scan job returning at most Limit pairs from Start on
type LimitedScanRequest struct {
	tableRef
	Start     []byte
	Limit     uint64
	ChunkSize uint32
}

func (LimitedScanRequest) Opcode() Opcode { return OpLimitedScan }

type PutRequest struct {
	tableRef
	Flags WriteFlags
	Pairs []db.KeyValue
}

func (PutRequest) Opcode() Opcode { return OpPut }

type DeleteRequest struct {
	tableRef
	Flags WriteFlags
	Keys  [][]byte
}

func (DeleteRequest) Opcode() Opcode { return OpDelete }

type DeleteRangeRequest struct {
	tableRef
	Flags      WriteFlags
	Start, End []byte
}

func (DeleteRangeRequest) Opcode() Opcode { return OpDeleteRange }

// --------------------------------------------------------------------------
// Request Factory Functions
// --------------------------------------------------------------------------

func NewServerInfoRequest() *ServerInfoRequest { return &ServerInfoRequest{} }

func NewTableOpenRequest(table uint32, config db.TableConfig) *TableOpenRequest {
	return &TableOpenRequest{tableRef: tableRef{table}, Config: config}
}

func NewTableCloseRequest(table uint32) *TableCloseRequest {
	return &TableCloseRequest{tableRef{table}}
}

func NewCompactRequest(table uint32, start, end []byte) *CompactRequest {
	return &CompactRequest{tableRef: tableRef{table}, Start: start, End: end}
}

func NewTruncateRequest(table uint32) *TruncateRequest {
	return &TruncateRequest{tableRef{table}}
}

func NewTableInfoRequest(table uint32) *TableInfoRequest {
	return &TableInfoRequest{tableRef{table}}
}

func NewReadRequest(table uint32, keys ...[]byte) *ReadRequest {
	return &ReadRequest{tableRef: tableRef{table}, Keys: keys}
}

func NewCountRequest(table uint32, start, end []byte) *CountRequest {
	return &CountRequest{tableRef: tableRef{table}, Start: start, End: end}
}

func NewExistsRequest(table uint32, keys ...[]byte) *ExistsRequest {
	return &ExistsRequest{tableRef: tableRef{table}, Keys: keys}
}

func NewScanRequest(table uint32, start, end []byte, chunkSize uint32) *ScanRequest {
	return &ScanRequest{tableRef: tableRef{table}, Start: start, End: end, ChunkSize: chunkSize}
}

func NewLimitedScanRequest(table uint32, start []byte, limit uint64, chunkSize uint32) *LimitedScanRequest {
	return &LimitedScanRequest{tableRef: tableRef{table}, Start: start, Limit: limit, ChunkSize: chunkSize}
}

func NewPutRequest(table uint32, flags WriteFlags, pairs ...db.KeyValue) *PutRequest {
	return &PutRequest{tableRef: tableRef{table}, Flags: flags, Pairs: pairs}
}

func NewDeleteRequest(table uint32, flags WriteFlags, keys ...[]byte) *DeleteRequest {
	return &DeleteRequest{tableRef: tableRef{table}, Flags: flags, Keys: keys}
}

func NewDeleteRangeRequest(table uint32, flags WriteFlags, start, end []byte) *DeleteRangeRequest {
	return &DeleteRangeRequest{tableRef: tableRef{table}, Flags: flags, Start: start, End: end}
}

// --------------------------------------------------------------------------
// Responses
// --------------------------------------------------------------------------

// Response is a decoded (or to be encoded) response. Frames holds the body frames
// following the header. For an error status Err carries the message, which is encoded
// as the last frame.
type Response struct {
	Op     Opcode
	Status Status
	Err    string
	Frames [][]byte
}

// NewResponse creates a successful response with the given body frames
func NewResponse(op Opcode, frames ...[]byte) *Response {
	return &Response{Op: op, Status: StatusOK, Frames: frames}
}

// NewErrorResponse creates a response with an error status and message
func NewErrorResponse(op Opcode, status Status, msg string) *Response {
	return &Response{Op: op, Status: status, Err: msg}
}

// ScanChunk is one batch of a scan job
type ScanChunk struct {
	JobID  uint64
	Status Status // StatusPartial, StatusOK (final), StatusNoData or an error
	Err    string
	Pairs  []db.KeyValue
}

// Final reports whether no chunk follows this one
func (c *ScanChunk) Final() bool {
	return c.Status != StatusPartial
}

// --------------------------------------------------------------------------
// Decode Errors
// --------------------------------------------------------------------------

// DecodeError is returned for a malformed frame sequence
type DecodeError struct {
	Op     Opcode
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed %s message: %s", e.Op, e.Reason)
}

// NewDecodeError creates a DecodeError
func NewDecodeError(op Opcode, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
