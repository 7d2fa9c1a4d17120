// Package transport defines the interfaces for moving multi-frame messages between
// clients and the server, independent of the network protocol.
//
// Key Components:
//
//   - IRPCServerTransport: Accepts connections, assigns every connection a PeerID and
//     delivers complete request messages of all peers through one shared, bounded
//     queue. Responses are routed back with Send(peer, frames), which blocks while
//     the peer's outbox is full so slow consumers apply backpressure to the sender.
//
//   - IRPCClientTransport: Request/response calls over a pool of connections with
//     retries, and Stream for requests that are answered by a sequence of messages
//     (scan jobs) on a dedicated connection.
//
// The base package carries the protocol independent implementation, tcp and unix
// provide the connectors.
package transport
