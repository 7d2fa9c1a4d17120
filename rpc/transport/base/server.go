package base

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// closeFlushTimeout bounds the time Close waits for a slow peer to take its responses
const closeFlushTimeout = 5 * time.Second

// peerConn is one accepted connection with its outbox
type peerConn struct {
	id     transport.PeerID
	conn   net.Conn
	outbox chan [][]byte
	done   chan struct{} // closed when the connection is gone
	flush  chan struct{} // closed when the writer should drain and stop
	writer sync.WaitGroup
	once   sync.Once
}

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	config    common.ServerConfig
	listener  net.Listener

	inbound  chan transport.Inbound
	peers    *xsync.MapOf[transport.PeerID, *peerConn]
	nextPeer atomic.Uint64

	callbacksMu sync.RWMutex
	callbacks   []func(transport.PeerID)

	mu        sync.Mutex // guards stopped and the readers wait group
	stopped   bool
	readers   sync.WaitGroup
	stopCh    chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport using the given connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		peers:     xsync.NewMapOf[transport.PeerID, *peerConn](),
		stopCh:    make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config
	if t.config.Transport.InboundQueueSize <= 0 {
		t.config.Transport.InboundQueueSize = common.DefaultInboundQueueSize
	}
	if t.config.Transport.OutboxSize <= 0 {
		t.config.Transport.OutboxSize = common.DefaultOutboxSize
	}
	if t.config.Transport.MaxMessageBytes <= 0 {
		t.config.Transport.MaxMessageBytes = common.DefaultMaxMessageBytes
	}
	t.inbound = make(chan transport.Inbound, t.config.Transport.InboundQueueSize)

	// Create listener using the connector
	listener, err := t.connector.Listen(t.config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	t.listener = listener

	Logger.Infof("Listening for %s connections on %s", t.connector.GetName(), listener.Addr())
	return nil
}

func (t *serverTransport) Serve(ctx context.Context) error {
	if t.listener == nil {
		return fmt.Errorf("serve called before listen")
	}

	// a cancelled context stops the intake, the owner decides when to Close
	stop := context.AfterFunc(ctx, t.StopIntake)
	defer stop()

	var tempDelay time.Duration
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.isStopped() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// back off on temporary accept failures (e.g. too many open files)
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else if tempDelay *= 2; tempDelay > time.Second {
					tempDelay = time.Second
				}
				Logger.Warningf("Accept error: %v; retrying in %v", err, tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		tempDelay = 0

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		t.readers.Add(1)
		t.mu.Unlock()

		p := &peerConn{
			id:     transport.PeerID(t.nextPeer.Add(1)),
			conn:   conn,
			outbox: make(chan [][]byte, t.config.Transport.OutboxSize),
			done:   make(chan struct{}),
			flush:  make(chan struct{}),
		}
		t.peers.Store(p.id, p)
		Logger.Debugf("Accepted connection %d from %s", p.id, conn.RemoteAddr())

		p.writer.Add(1)
		go t.writeLoop(p)
		go t.readLoop(p)
	}
}

func (t *serverTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Requests() <-chan transport.Inbound {
	return t.inbound
}

func (t *serverTransport) Send(ctx context.Context, peer transport.PeerID, frames [][]byte) error {
	p, ok := t.peers.Load(peer)
	if !ok {
		return transport.ErrPeerGone
	}
	select {
	case p.outbox <- frames:
		return nil
	case <-p.done:
		return transport.ErrPeerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *serverTransport) OnDisconnect(fn func(peer transport.PeerID)) {
	t.callbacksMu.Lock()
	defer t.callbacksMu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

func (t *serverTransport) StopIntake() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.mu.Unlock()
		close(t.stopCh)

		if t.listener != nil {
			_ = t.listener.Close()
		}
		// unblock readers waiting for the next request
		t.peers.Range(func(_ transport.PeerID, p *peerConn) bool {
			_ = p.conn.SetReadDeadline(time.Now())
			return true
		})
		t.readers.Wait()
		if t.inbound != nil {
			close(t.inbound)
		}
		Logger.Infof("Stopped accepting requests")
	})
}

func (t *serverTransport) Close() error {
	t.StopIntake()
	t.closeOnce.Do(func() {
		t.peers.Range(func(_ transport.PeerID, p *peerConn) bool {
			_ = p.conn.SetWriteDeadline(time.Now().Add(closeFlushTimeout))
			close(p.flush)
			p.writer.Wait()
			t.dropPeer(p, nil)
			return true
		})
		Logger.Infof("Closed %s transport", t.connector.GetName())
	})
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// readLoop reads complete messages and pushes them to the inbound queue
func (t *serverTransport) readLoop(p *peerConn) {
	defer t.readers.Done()

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	reader := bufio.NewReader(p.conn)

	for {
		if timeout > 0 {
			// StopIntake sets an immediate deadline that must not be overwritten
			t.mu.Lock()
			var err error
			if !t.stopped {
				err = p.conn.SetReadDeadline(time.Now().Add(timeout))
			}
			t.mu.Unlock()
			if err != nil {
				t.dropPeer(p, err)
				return
			}
		}

		frames, err := readMessage(reader, t.config.Transport.MaxMessageBytes)
		if err != nil {
			if t.isStopped() {
				// connection stays open for responses of in-flight requests
				return
			}
			t.dropPeer(p, err)
			return
		}

		select {
		case t.inbound <- transport.Inbound{Peer: p.id, Frames: frames}:
		case <-p.done:
			return
		case <-t.stopCh:
			return
		}
	}
}

// writeLoop writes queued messages until the connection ends or a flush was requested
func (t *serverTransport) writeLoop(p *peerConn) {
	defer p.writer.Done()

	timeout := time.Duration(t.config.TimeoutSecond) * time.Second
	write := func(frames [][]byte) bool {
		if timeout > 0 {
			if err := p.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				t.dropPeer(p, err)
				return false
			}
		}
		if err := writeMessage(p.conn, frames); err != nil {
			t.dropPeer(p, err)
			return false
		}
		return true
	}

	for {
		select {
		case frames := <-p.outbox:
			if !write(frames) {
				return
			}
		case <-p.done:
			return
		case <-p.flush:
			for {
				select {
				case frames := <-p.outbox:
					if !write(frames) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// dropPeer closes the connection of a peer and runs the disconnect callbacks once
func (t *serverTransport) dropPeer(p *peerConn, cause error) {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
		t.peers.Delete(p.id)

		switch {
		case cause == nil:
			Logger.Debugf("Closed connection %d", p.id)
		case errors.Is(cause, io.EOF):
			Logger.Debugf("Connection %d closed by client", p.id)
		default:
			Logger.Infof("Connection %d closed: %v", p.id, cause)
		}

		t.callbacksMu.RLock()
		callbacks := t.callbacks
		t.callbacksMu.RUnlock()
		for _, fn := range callbacks {
			fn(p.id)
		}
	})
}
