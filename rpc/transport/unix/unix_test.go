package unix

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

func TestUnixRoundTrip(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "yakdb.sock")
	srv := NewUnixServerTransport()
	require.NoError(t, srv.Listen(common.ServerConfig{
		Transport: common.ServerTransportConfig{TransportType: "unix", Endpoint: socket},
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()
	defer srv.Close()
	go func() {
		for in := range srv.Requests() {
			_ = srv.Send(ctx, in.Peer, append(in.Frames, []byte("ack")))
		}
	}()

	c := NewUnixClientTransport()
	require.NoError(t, c.Connect(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{socket}},
	}))
	defer c.Close()

	resp, err := c.Send(context.Background(), [][]byte{[]byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello"), []byte("ack")}, resp)
}
