// Package rpc contains the network side of YakDB: the wire protocol, the transports,
// the request dispatcher and the typed client.
//
// The package is organized into several subpackages:
//
//   - common: Opcodes, status codes, typed requests and responses, configuration
//     structures and logging.
//
//   - serializer: The multi-frame wire codec converting typed requests and responses
//     to frame sequences and back.
//
//   - transport: Message transport abstractions with TCP and Unix socket
//     implementations. Messages are sequences of frames; a shared inbound queue
//     feeds the server workers.
//
//   - jobs: Passive scan jobs streaming snapshot ranges in chunks.
//
//   - server: The worker pool and dispatcher plus the shutdown sequence.
//
//   - client: The typed client API.
//
//   - discovery: The UDP availability beacon.
//
//   - httpapi: The auxiliary HTTP front end.
package rpc
