// Package serializer encodes and decodes the multi-frame wire protocol.
//
// A message is an ordered sequence of frames. The first frame is the header
// (0x31 0x01 <opcode> [flags] for requests, 0x31 0x01 <opcode> <status> for responses),
// the following frames carry the table index and the keys, values and parameters of the
// operation. How the frames are delimited on a connection is the transport's concern.
//
// Key Components:
//
//   - IRPCSerializer: Request and response codec. DecodeRequest is the only place that
//     looks at raw opcode bytes, it produces one of the closed set of typed requests in
//     rpc/common (ReadRequest, PutRequest, ScanRequest, ...).
//
//   - Result frames: Helpers for the per-key results of Read and Exists
//     (0x00 + value, 0x01 not found, 0xFF + error message).
//
//   - Scan helpers: Acknowledgements and ScanData chunks of passive scan jobs.
//
// Thread Safety:
//
//	The serializer is stateless and safe for concurrent use. Decoded values reference
//	the input frames instead of copying them.
//
// Usage:
//
//	s := serializer.NewFrameSerializer()
//	frames := s.EncodeRequest(common.NewReadRequest(0, []byte("a"), []byte("b")))
//	// ... send frames ...
//	req, err := s.DecodeRequest(receivedFrames)
package serializer
