package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeaconRoundTrip(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := func(cluster string) {
		b, err := NewBeacon(BeaconConfig{
			Address:     l.Addr().String(),
			ClusterName: cluster,
			Interval:    10 * time.Millisecond,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		go func() { _ = b.Run(ctx) }()
	}
	start("prod")
	start("staging")

	hosts, err := l.Collect(context.Background(), "prod", 300*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, hosts)

	hosts, err = l.Collect(context.Background(), "nobody", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestPayload(t *testing.T) {
	assert.Equal(t, []byte("YakDB/prod"), Payload("prod"))
}

func TestDefaultPort(t *testing.T) {
	assert.Equal(t, "255.255.255.255:7199", withDefaultPort("255.255.255.255"))
	assert.Equal(t, "127.0.0.1:9", withDefaultPort("127.0.0.1:9"))
}

func TestCollectStopsOnCancel(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	started := time.Now()
	hosts, err := l.Collect(ctx, "prod", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, hosts)
	assert.Less(t, time.Since(started), 5*time.Second)
}
