package tcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

// startEchoServer answers every message with the same frames
func startEchoServer(t *testing.T) (transport.IRPCServerTransport, string) {
	t.Helper()
	srv := NewTCPServerTransport()
	require.NoError(t, srv.Listen(common.ServerConfig{
		Transport: common.ServerTransportConfig{
			TransportType: "tcp",
			Endpoint:      "127.0.0.1:0",
			TCPConf:       common.TCPConf{TCPNoDelay: true},
		},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	go func() {
		for in := range srv.Requests() {
			_ = srv.Send(ctx, in.Peer, in.Frames)
		}
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, srv.Close())
		select {
		case err := <-served:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not return")
		}
	})
	return srv, srv.Addr().String()
}

func newClient(t *testing.T, endpoint string) transport.IRPCClientTransport {
	t.Helper()
	c := NewTCPClientTransport()
	require.NoError(t, c.Connect(common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{endpoint},
			RetryCount:             2,
			ConnectionsPerEndpoint: 2,
		},
		TimeoutSecond: 5,
	}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRequestResponse(t *testing.T) {
	_, addr := startEchoServer(t)
	c := newClient(t, addr)

	msg := [][]byte{{0x31, 0x01, 0x10}, {0, 0, 0, 1}, []byte("a"), {}}
	resp, err := c.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg, resp)

	// connections are reused
	for i := 0; i < 10; i++ {
		resp, err = c.Send(context.Background(), [][]byte{{byte(i)}})
		require.NoError(t, err)
		assert.Equal(t, [][]byte{{byte(i)}}, resp)
	}
}

func TestStream(t *testing.T) {
	srv := NewTCPServerTransport()
	require.NoError(t, srv.Listen(common.ServerConfig{
		Transport: common.ServerTransportConfig{TransportType: "tcp", Endpoint: "127.0.0.1:0"},
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	defer srv.Close()

	disconnected := make(chan transport.PeerID, 1)
	srv.OnDisconnect(func(peer transport.PeerID) { disconnected <- peer })

	// reply with three messages to every request
	go func() {
		for in := range srv.Requests() {
			for i := byte(0); i < 3; i++ {
				_ = srv.Send(ctx, in.Peer, [][]byte{{i}})
			}
		}
	}()

	c := newClient(t, srv.Addr().String())
	stream, err := c.Stream(context.Background(), [][]byte{[]byte("scan")})
	require.NoError(t, err)

	for i := byte(0); i < 3; i++ {
		msg, err := stream.Recv(context.Background())
		require.NoError(t, err)
		assert.Equal(t, [][]byte{{i}}, msg)
	}

	require.NoError(t, stream.Close())
	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect callback did not run")
	}
}

func TestStopIntakeClosesQueue(t *testing.T) {
	srv := NewTCPServerTransport()
	require.NoError(t, srv.Listen(common.ServerConfig{
		Transport: common.ServerTransportConfig{TransportType: "tcp", Endpoint: "127.0.0.1:0"},
	}))
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background()) }()

	// an idle client connection keeps a reader blocked
	newClient(t, srv.Addr().String())

	srv.StopIntake()
	select {
	case _, ok := <-srv.Requests():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("inbound queue was not closed")
	}
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
	require.NoError(t, srv.Close())
}

func TestSendToUnknownPeer(t *testing.T) {
	srv, _ := startEchoServer(t)
	err := srv.Send(context.Background(), transport.PeerID(12345), [][]byte{{1}})
	assert.ErrorIs(t, err, transport.ErrPeerGone)
}

func TestListenFailure(t *testing.T) {
	_, addr := startEchoServer(t)
	other := NewTCPServerTransport()
	err := other.Listen(common.ServerConfig{
		Transport: common.ServerTransportConfig{TransportType: "tcp", Endpoint: addr},
	})
	assert.Error(t, err)
}

func TestConnectFailure(t *testing.T) {
	c := NewTCPClientTransport()
	err := c.Connect(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{"127.0.0.1:1"}},
	})
	assert.Error(t, err)

	err = c.Connect(common.ClientConfig{})
	assert.Error(t, err)
}
