package transport

import (
	"context"
	"errors"
	"net"

	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

// ErrPeerGone is returned when sending to a peer whose connection has ended
var ErrPeerGone = errors.New("transport: peer disconnected")

// ErrClosed is returned by operations on a closed transport
var ErrClosed = errors.New("transport: closed")

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// PeerID identifies one client connection for the lifetime of the connection
type PeerID uint64

// Inbound is one complete request message received from a peer
type Inbound struct {
	Peer   PeerID
	Frames [][]byte
}

// IRPCServerTransport is the interface for the server side of the transport layer.
// Complete messages of all connections are delivered through one shared queue,
// Responses are routed back by peer id.
type IRPCServerTransport interface {
	// Listen binds the configured endpoint. A failure here is a fatal startup error.
	Listen(config common.ServerConfig) error
	// Serve accepts connections until StopIntake or Close is called or ctx is done
	Serve(ctx context.Context) error
	// Addr returns the bound address (valid after Listen)
	Addr() net.Addr
	// Requests returns the shared inbound queue. It is closed by StopIntake.
	Requests() <-chan Inbound
	// Send queues a message for a peer. It blocks while the peer's outbox is full.
	Send(ctx context.Context, peer PeerID, frames [][]byte) error
	// OnDisconnect registers a callback that runs when a peer connection ends
	OnDisconnect(fn func(peer PeerID))
	// StopIntake stops accepting connections and reading requests. Connections stay
	// open so queued responses can still be delivered.
	StopIntake()
	// Close flushes pending responses and closes all connections
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request message and returns the response message
	Send(ctx context.Context, frames [][]byte) ([][]byte, error)
	// Stream sends a request on a dedicated connection and returns the stream of
	// response messages that follows it
	Stream(ctx context.Context, frames [][]byte) (IRPCStream, error)
	// Close closes all connections
	Close() error
}

// IRPCStream is a sequence of response messages on a dedicated connection.
// Closing a stream early drops the connection.
type IRPCStream interface {
	// Recv blocks until the next message arrived
	Recv(ctx context.Context) ([][]byte, error)
	// Close closes the underlying connection
	Close() error
}
