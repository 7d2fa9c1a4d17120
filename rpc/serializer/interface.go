package serializer

import "github.com/ulikoehler/YakDB-sub001/rpc/common"

// IRPCSerializer converts between typed messages and the frame sequences that are
// put on the wire. Decoded values reference the input frames, they are not copied.
type IRPCSerializer interface {
	// EncodeRequest encodes a request into its header and body frames
	EncodeRequest(req common.Request) [][]byte
	// DecodeRequest decodes a complete frame sequence into a typed request.
	// Malformed input is reported as *common.DecodeError.
	DecodeRequest(frames [][]byte) (common.Request, error)
	// EncodeResponse encodes a response into its header and body frames
	EncodeResponse(resp *common.Response) [][]byte
	// DecodeResponse decodes a complete frame sequence into a response
	DecodeResponse(frames [][]byte) (*common.Response, error)
}
