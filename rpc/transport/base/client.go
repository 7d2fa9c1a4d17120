package base

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientConnection represents a single net connection. A connection carries at
// most one outstanding request at a time.
type clientConnection struct {
	conn     net.Conn
	reader   *bufio.Reader
	endpoint string
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig

	idle     chan *clientConnection // pooled connections ready for a request
	open     atomic.Int64           // pooled connections (idle or busy)
	maxOpen  int64
	nextEP   atomic.Uint64 // Atomic counter for Round Robin
	mu       sync.Mutex
	stopping bool
	pooled   map[*clientConnection]struct{}
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		pooled:    make(map[*clientConnection]struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	_ = t.Close()

	t.config = config
	if t.config.Transport.MaxMessageBytes <= 0 {
		t.config.Transport.MaxMessageBytes = common.DefaultMaxMessageBytes
	}

	// Set default value for ConnectionsPerEndpoint
	connectionsPerEP := 1
	if config.Transport.ConnectionsPerEndpoint > 0 {
		connectionsPerEP = config.Transport.ConnectionsPerEndpoint
	}
	t.maxOpen = int64(len(config.Transport.Endpoints) * connectionsPerEP)

	t.mu.Lock()
	t.stopping = false
	t.idle = make(chan *clientConnection, t.maxOpen)
	t.mu.Unlock()

	// Establish one connection per endpoint eagerly, the rest is dialed on demand
	connected := 0
	for _, endpoint := range config.Transport.Endpoints {
		c, err := t.dial(context.Background(), endpoint)
		if err != nil {
			Logger.Warningf("Failed to connect to %s: %v", endpoint, err)
			continue
		}
		t.track(c)
		t.idle <- c
		connected++
	}

	// Check if we have at least one connection
	if connected == 0 {
		return fmt.Errorf("failed to connect to any endpoint")
	}

	Logger.Infof("Connected to %d of %d endpoints using %s transport (up to %d connections)",
		connected, len(config.Transport.Endpoints), t.connector.GetName(), t.maxOpen)
	return nil
}

func (t *clientTransport) Send(ctx context.Context, frames [][]byte) ([][]byte, error) {
	// We always try at least once, and up to maxRetries times
	maxRetries := t.config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		c, err := t.acquire(ctx)
		if err != nil {
			lastErr = err
		} else {
			resp, err := t.roundTrip(ctx, c, frames)
			if err == nil {
				t.release(c)
				return resp, nil
			}
			// the connection state is unknown after a failed round trip
			t.discard(c)
			lastErr = err
		}

		if ctx.Err() != nil || errors.Is(lastErr, transport.ErrClosed) {
			break
		}
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, lastErr)
		if i < maxRetries-1 {
			if err := backoff(ctx, i); err != nil {
				break
			}
		}
	}

	// All attempts failed
	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Stream(ctx context.Context, frames [][]byte) (transport.IRPCStream, error) {
	maxRetries := t.config.Transport.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if t.isStopping() {
			return nil, transport.ErrClosed
		}
		c, err := t.dial(ctx, t.nextEndpoint())
		if err == nil {
			if err = t.write(ctx, c, frames); err == nil {
				return &stream{parent: t, c: c}, nil
			}
			_ = c.conn.Close()
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < maxRetries-1 {
			if err := backoff(ctx, i); err != nil {
				break
			}
		}
	}
	return nil, fmt.Errorf("failed to open stream after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopping = true
	for c := range t.pooled {
		_ = c.conn.Close()
	}
	t.pooled = make(map[*clientConnection]struct{})
	t.open.Store(0)
	return nil
}

// --------------------------------------------------------------------------
// Stream
// --------------------------------------------------------------------------

// stream owns a dedicated connection that is never returned to the pool
type stream struct {
	parent *clientTransport
	c      *clientConnection
	once   sync.Once
}

func (s *stream) Recv(ctx context.Context) ([][]byte, error) {
	stop := s.parent.bindDeadline(ctx, s.c, false)
	defer stop()
	return readMessage(s.c.reader, s.parent.config.Transport.MaxMessageBytes)
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() { err = s.c.conn.Close() })
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// nextEndpoint selects the next endpoint via Round Robin
func (t *clientTransport) nextEndpoint() string {
	eps := t.config.Transport.Endpoints
	if len(eps) == 1 {
		// optimize for single endpoint
		return eps[0]
	}
	return eps[t.nextEP.Add(1)%uint64(len(eps))]
}

func (t *clientTransport) isStopping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopping
}

// dial connects to an endpoint and applies the connection settings
func (t *clientTransport) dial(ctx context.Context, endpoint string) (*clientConnection, error) {
	if t.config.TimeoutSecond > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t.config.TimeoutSecond)*time.Second)
		defer cancel()
	}
	conn, err := t.connector.Connect(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	// Upgrade the connection with protocol-specific settings
	if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
	}
	return &clientConnection{conn: conn, reader: bufio.NewReader(conn), endpoint: endpoint}, nil
}

// acquire takes an idle pooled connection or dials a new one while below the limit
func (t *clientTransport) acquire(ctx context.Context) (*clientConnection, error) {
	if t.isStopping() {
		return nil, transport.ErrClosed
	}
	select {
	case c := <-t.idle:
		return c, nil
	default:
	}

	if n := t.open.Add(1); n <= t.maxOpen {
		c, err := t.dial(ctx, t.nextEndpoint())
		if err != nil {
			t.open.Add(-1)
			return nil, err
		}
		t.track(c)
		return c, nil
	}
	t.open.Add(-1)

	select {
	case c := <-t.idle:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// track registers a pooled connection so Close can reach it
func (t *clientTransport) track(c *clientConnection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pooled[c] = struct{}{}
	if t.open.Load() < int64(len(t.pooled)) {
		t.open.Store(int64(len(t.pooled)))
	}
}

// release returns a healthy connection to the pool
func (t *clientTransport) release(c *clientConnection) {
	if t.isStopping() {
		t.discard(c)
		return
	}
	select {
	case t.idle <- c:
	default:
		t.discard(c)
	}
}

// discard closes a connection and frees its pool slot
func (t *clientTransport) discard(c *clientConnection) {
	_ = c.conn.Close()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pooled[c]; ok {
		delete(t.pooled, c)
		t.open.Add(-1)
	}
}

// roundTrip writes one request and reads exactly one response message
func (t *clientTransport) roundTrip(ctx context.Context, c *clientConnection, frames [][]byte) ([][]byte, error) {
	stop := t.bindDeadline(ctx, c, true)
	defer stop()
	if err := writeMessage(c.conn, frames); err != nil {
		return nil, err
	}
	return readMessage(c.reader, t.config.Transport.MaxMessageBytes)
}

func (t *clientTransport) write(ctx context.Context, c *clientConnection, frames [][]byte) error {
	stop := t.bindDeadline(ctx, c, true)
	defer stop()
	return writeMessage(c.conn, frames)
}

// bindDeadline applies the context deadline (or the configured timeout) to the
// connection and interrupts blocking I/O when ctx is cancelled. The returned function
// detaches the context again.
func (t *clientTransport) bindDeadline(ctx context.Context, c *clientConnection, useTimeout bool) func() {
	deadline, ok := ctx.Deadline()
	if !ok && useTimeout && t.config.TimeoutSecond > 0 {
		deadline, ok = time.Now().Add(time.Duration(t.config.TimeoutSecond)*time.Second), true
	}
	if ok {
		_ = c.conn.SetDeadline(deadline)
	} else {
		_ = c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	return func() { stop() }
}

// backoff sleeps with exponential backoff and a small random jitter (+-10%)
func backoff(ctx context.Context, attempt int) error {
	if attempt > 5 {
		attempt = 5
	}
	backoffMs := 50 << attempt
	jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
	timer := time.NewTimer(time.Duration(jitter) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
