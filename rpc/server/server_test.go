package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/client"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport/tcp"
)

type testServer struct {
	*rpcServer
	stop func() error
}

func startServer(t *testing.T, config common.ServerConfig) *testServer {
	t.Helper()
	config.Transport.TransportType = "tcp"
	config.Transport.Endpoint = "127.0.0.1:0"
	if config.DataDir == "" {
		config.DataDir = t.TempDir()
	}
	if config.Workers == 0 {
		config.Workers = 4
	}
	config.LogLevel = "warn"

	s := NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewFrameSerializer()).(*rpcServer)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var once sync.Once
	var stopErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case stopErr = <-done:
			case <-time.After(30 * time.Second):
				stopErr = errors.New("server did not stop")
			}
		})
		return stopErr
	}
	t.Cleanup(func() { assert.NoError(t, stop()) })
	return &testServer{rpcServer: s, stop: stop}
}

func connect(t *testing.T, s *testServer) client.IYakClient {
	t.Helper()
	c, err := client.NewRPCClient(common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Endpoints:              []string{s.Addr().String()},
			RetryCount:             2,
			ConnectionsPerEndpoint: 4,
		},
		TimeoutSecond: 10,
	}, tcp.NewTCPClientTransport(), serializer.NewFrameSerializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func kv(k, v string) db.KeyValue {
	return db.KeyValue{Key: []byte(k), Value: []byte(v)}
}

func statusOfErr(err error) common.Status {
	var se *client.StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return common.StatusOK
}

func TestEndToEnd(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := connect(t, s)
	ctx := context.Background()

	require.NoError(t, c.OpenTable(ctx, 0, db.DefaultTableConfig()))
	require.NoError(t, c.Put(ctx, 0, db.DurabilityBuffered, kv("a", "1"), kv("b", "2")))

	results, err := c.Read(ctx, 0, []byte("a"), []byte("b"), []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []common.Result{
		{Found: true, Value: []byte("1")},
		{Found: true, Value: []byte("2")},
		{Found: false},
	}, results)

	n, err := c.Count(ctx, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	require.NoError(t, c.Truncate(ctx, 0))

	n, err = c.Count(ctx, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestLastWriteWins(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := connect(t, s)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Put(ctx, 1, db.DurabilityGroupCommit, kv("k", fmt.Sprint(i))))
	}
	results, err := c.Read(ctx, 1, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("4"), results[0].Value)

	// zero keys is a valid read
	results, err = c.Read(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteAndExists(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := connect(t, s)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 2, db.DurabilityFsync, kv("a", "1"), kv("b", "2"), kv("c", "3"), kv("d", "4")))
	require.NoError(t, c.Delete(ctx, 2, db.DurabilityBuffered, []byte("a")))

	// half-open: "c" stays
	require.NoError(t, c.DeleteRange(ctx, 2, db.DurabilityBuffered, []byte("b"), []byte("c")))

	exists, err := c.Exists(ctx, 2, []byte("a"), []byte("b"), []byte("c"), []byte("d"))
	require.NoError(t, err)
	found := make([]bool, len(exists))
	for i, r := range exists {
		found[i] = r.Found
	}
	assert.Equal(t, []bool{false, false, true, true}, found)

	stream, err := c.Scan(ctx, 2, []byte("b"), []byte("c"), 0)
	require.NoError(t, err)
	pairs, err := stream.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestScan(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := connect(t, s)
	ctx := context.Background()

	var pairs []db.KeyValue
	for i := 0; i < 25; i++ {
		pairs = append(pairs, kv(fmt.Sprintf("key%03d", i), fmt.Sprintf("value%d", i)))
	}
	require.NoError(t, c.Put(ctx, 3, db.DurabilityBuffered, pairs...))

	stream, err := c.Scan(ctx, 3, nil, nil, 10)
	require.NoError(t, err)
	var sizes []int
	var got []db.KeyValue
	for {
		chunk, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
		got = append(got, chunk...)
	}
	assert.Equal(t, []int{10, 10, 5}, sizes)
	assert.Equal(t, pairs, got)

	// LimitedScan returns exactly k pairs in ascending order
	stream, err = c.LimitedScan(ctx, 3, []byte("key010"), 7, 3)
	require.NoError(t, err)
	got, err = stream.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, pairs[10:17], got)

	// empty range
	stream, err = c.Scan(ctx, 3, []byte("x"), nil, 0)
	require.NoError(t, err)
	got, err = stream.Collect(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.Eventually(t, func() bool { return s.jobs.Active() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestScanCancelledByDisconnect(t *testing.T) {
	s := startServer(t, common.ServerConfig{Transport: common.ServerTransportConfig{OutboxSize: 1}})
	c := connect(t, s)
	ctx := context.Background()

	var pairs []db.KeyValue
	for i := 0; i < 500; i++ {
		pairs = append(pairs, kv(fmt.Sprintf("k%04d", i), "v"))
	}
	require.NoError(t, c.Put(ctx, 4, db.DurabilityBuffered, pairs...))

	stream, err := c.Scan(ctx, 4, nil, nil, 1)
	require.NoError(t, err)
	first, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	require.NoError(t, stream.Close())
	require.Eventually(t, func() bool { return s.jobs.Active() == 0 }, 5*time.Second, 10*time.Millisecond)

	// the job released its borrow: closing the table does not block
	closed := make(chan error, 1)
	go func() { closed <- c.CloseTable(ctx, 4) }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close blocked on a cancelled scan")
	}
}

func TestTableOpenConfig(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := connect(t, s)
	ctx := context.Background()

	cfg := db.DefaultTableConfig()
	cfg.BloomFilterBits = 10
	cfg.Compression = db.CompressionOff
	require.NoError(t, c.OpenTable(ctx, 5, cfg))

	// same and default configs are no-ops
	require.NoError(t, c.OpenTable(ctx, 5, cfg))
	require.NoError(t, c.OpenTable(ctx, 5, db.DefaultTableConfig()))

	// a different config needs a close first
	other := cfg
	other.Compression = db.CompressionOn
	err := c.OpenTable(ctx, 5, other)
	require.Error(t, err)
	assert.Equal(t, common.StatusTableBusy, statusOfErr(err))

	info, err := c.TableInfo(ctx, 5)
	require.NoError(t, err)
	params := map[string]string{}
	for _, p := range info {
		params[p[0]] = p[1]
	}
	assert.Equal(t, "10", params["bloomFilterBits"])
	assert.Equal(t, "off", params["compression"])

	require.NoError(t, c.CloseTable(ctx, 5))
	require.NoError(t, c.CloseTable(ctx, 5))
	require.NoError(t, c.OpenTable(ctx, 5, other))
	require.NoError(t, c.Compact(ctx, 5, nil, nil))
}

func TestServerInfo(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := connect(t, s)

	features, version, err := c.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.ServerVersion, version)
	assert.Equal(t, db.FeaturesAll, features)
}

func TestMalformedRequestIsContained(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	c := connect(t, s)

	raw := tcp.NewTCPClientTransport()
	require.NoError(t, raw.Connect(common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{s.Addr().String()}},
	}))
	defer raw.Close()

	codec := serializer.NewFrameSerializer()
	ctx := context.Background()

	// a put with an odd number of key/value frames
	frames, err := raw.Send(ctx, [][]byte{
		{common.Magic, common.Version, byte(common.OpPut), 0},
		serializer.Uint32(1),
		[]byte("key-without-value"),
	})
	require.NoError(t, err)
	resp, err := codec.DecodeResponse(frames)
	require.NoError(t, err)
	assert.Equal(t, common.OpPut, resp.Op)
	assert.Equal(t, common.StatusProtocolError, resp.Status)
	assert.NotEmpty(t, resp.Err)

	// bad magic
	frames, err = raw.Send(ctx, [][]byte{{0x00, 0x00, 0x10}})
	require.NoError(t, err)
	resp, err = codec.DecodeResponse(frames)
	require.NoError(t, err)
	assert.Equal(t, common.StatusProtocolError, resp.Status)

	// the same connection and other clients keep working
	frames, err = raw.Send(ctx, codec.EncodeRequest(common.NewCountRequest(1, nil, nil)))
	require.NoError(t, err)
	resp, err = codec.DecodeResponse(frames)
	require.NoError(t, err)
	assert.Equal(t, common.StatusOK, resp.Status)

	require.NoError(t, c.Put(ctx, 1, db.DurabilityBuffered, kv("a", "1")))
}

func TestConcurrentClients(t *testing.T) {
	s := startServer(t, common.ServerConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c := connect(t, s)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table := uint32(i % 3)
			for j := 0; j < 20; j++ {
				key := []byte(fmt.Sprintf("c%d-%d", i, j))
				assert.NoError(t, c.Put(ctx, table, db.DurabilityBuffered, db.KeyValue{Key: key, Value: key}))
				results, err := c.Read(ctx, table, key)
				if assert.NoError(t, err) {
					assert.Equal(t, key, results[0].Value)
				}
			}
		}(i)
	}
	wg.Wait()

	c := connect(t, s)
	var total uint64
	for table := uint32(0); table < 3; table++ {
		n, err := c.Count(ctx, table, nil, nil)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, uint64(8*20), total)
}

func TestShutdownPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := startServer(t, common.ServerConfig{DataDir: dir})
	c := connect(t, s)
	require.NoError(t, c.Put(ctx, 7, db.DurabilityBuffered, kv("persist", "me")))

	// a stream left open does not block the shutdown
	stream, err := c.Scan(ctx, 7, nil, nil, 1)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, s.stop())
	assert.Equal(t, 0, s.tables.NumOpen())
	assert.Equal(t, 0, s.registry.Active())

	restarted := startServer(t, common.ServerConfig{DataDir: dir})
	c = connect(t, restarted)
	results, err := c.Read(ctx, 7, []byte("persist"))
	require.NoError(t, err)
	assert.Equal(t, []byte("me"), results[0].Value)
}

func TestShutdownSkipsTeardownAfterDrainTimeout(t *testing.T) {
	s := NewRPCServer(common.ServerConfig{
		Transport:             common.ServerTransportConfig{TransportType: "tcp", Endpoint: "127.0.0.1:0"},
		DataDir:               t.TempDir(),
		Workers:               1,
		ShutdownTimeoutSecond: 1,
		LogLevel:              "warn",
	}, tcp.NewTCPServerTransport(), serializer.NewFrameSerializer()).(*rpcServer)
	require.NoError(t, s.Listen())

	// a task that outlives the drain and holds a borrow
	release, err := s.registry.Acquire("stuck")
	require.NoError(t, err)
	tbl, err := s.tables.GetTable(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTeardownSkipped)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown blocked on a live borrow")
	}
	assert.Equal(t, 1, s.tables.NumOpen())

	tbl.Release()
	release()
	require.NoError(t, s.tables.Teardown())
}

func TestScanChunksStayBelowMessageLimit(t *testing.T) {
	const maxMessage = 64 * 1024
	s := startServer(t, common.ServerConfig{Transport: common.ServerTransportConfig{MaxMessageBytes: maxMessage}})
	c := connect(t, s)
	ctx := context.Background()

	value := make([]byte, 10*1024)
	var pairs []db.KeyValue
	for i := 0; i < 10; i++ {
		p := db.KeyValue{Key: []byte(fmt.Sprintf("big%02d", i)), Value: value}
		require.NoError(t, c.Put(ctx, 5, db.DurabilityBuffered, p))
		pairs = append(pairs, p)
	}

	stream, err := c.Scan(ctx, 5, nil, nil, 0)
	require.NoError(t, err)
	var got []db.KeyValue
	chunks := 0
	for {
		chunk, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		size := 0
		for _, p := range chunk {
			size += len(p.Key) + len(p.Value)
		}
		assert.LessOrEqual(t, size, maxMessage/2)
		got = append(got, chunk...)
		chunks++
	}
	assert.Greater(t, chunks, 1)
	assert.Equal(t, pairs, got)
}

func TestHTTPFrontend(t *testing.T) {
	s := startServer(t, common.ServerConfig{HTTPEndpoint: "127.0.0.1:0"})
	c := connect(t, s)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, 9, db.DurabilityBuffered, kv("via-rpc", "yes")))
	features, _, err := c.ServerInfo(ctx)
	require.NoError(t, err)
	assert.NotZero(t, features&db.FeatureHTTPFrontend)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/tables/9/keys/via-rpc", s.HTTPAddr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", string(body))

	resp, err = http.Get(fmt.Sprintf("http://%s/metrics", s.HTTPAddr()))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), `yakdb_requests_total{op="put"}`)
	assert.Contains(t, string(body), `yakdb_table_requests_total{table="9"}`)
	assert.Contains(t, string(body), "yakdb_open_tables 1")
}

func TestStartupFailures(t *testing.T) {
	// presets file that does not exist
	s := NewRPCServer(common.ServerConfig{
		Transport:        common.ServerTransportConfig{TransportType: "tcp", Endpoint: "127.0.0.1:0"},
		DataDir:          t.TempDir(),
		TablePresetsFile: "/does/not/exist.yaml",
	}, tcp.NewTCPServerTransport(), serializer.NewFrameSerializer())
	assert.Error(t, s.Listen())
	assert.Error(t, s.Serve(context.Background()))

	// invalid log level
	s = NewRPCServer(common.ServerConfig{LogLevel: "loud", DataDir: t.TempDir()},
		tcp.NewTCPServerTransport(), serializer.NewFrameSerializer())
	assert.Error(t, s.Listen())
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, common.StatusOK, statusOf(nil))
	assert.Equal(t, common.StatusProtocolError, statusOf(common.NewDecodeError(common.OpRead, "x")))
	assert.Equal(t, common.StatusTableBusy, statusOf(db.NewTableBusyError(1, "open")))
	assert.Equal(t, common.StatusEngineOpen, statusOf(db.NewEngineOpenError(1, errors.New("x"))))
	assert.Equal(t, common.StatusEngineIO, statusOf(db.NewEngineIOError(1, "get", errors.New("x"))))
	assert.Equal(t, common.StatusProtocolError, statusOf(db.NewError(db.ErrCodeInvalidArgument, 1, "x", nil)))
	assert.Equal(t, common.StatusInternal, statusOf(errors.New("boom")))
}
