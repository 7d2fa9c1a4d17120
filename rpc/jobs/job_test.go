package jobs

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

// collector records every chunk it receives
type collector struct {
	mu     sync.Mutex
	chunks []*common.ScanChunk
}

func (c *collector) Send(_ context.Context, chunk *common.ScanChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, chunk)
	return nil
}

func (c *collector) statuses() []common.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]common.Status, len(c.chunks))
	for i, ch := range c.chunks {
		out[i] = ch.Status
	}
	return out
}

func (c *collector) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ch := range c.chunks {
		for _, kv := range ch.Pairs {
			out = append(out, string(kv.Key))
		}
	}
	return out
}

func openTable(t *testing.T, n int) *db.Table {
	t.Helper()
	tbl, err := db.Open(1, filepath.Join(t.TempDir(), "1"), db.DefaultTableConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })
	pairs := make([]db.KeyValue, n)
	for i := range pairs {
		pairs[i] = db.KeyValue{Key: []byte(fmt.Sprintf("k%02d", i)), Value: []byte(fmt.Sprintf("v%02d", i))}
	}
	if n > 0 {
		require.NoError(t, tbl.Put(pairs, db.DurabilityBuffered))
	}
	return tbl
}

func borrowed(t *testing.T, tbl *db.Table) *db.Table {
	t.Helper()
	require.True(t, tbl.Acquire())
	return tbl
}

func TestScanChunks(t *testing.T) {
	tbl := openTable(t, 5)
	job := New(context.Background(), 1, transport.PeerID(1), borrowed(t, tbl), Params{ChunkSize: 2})

	sink := &collector{}
	require.NoError(t, job.Run(sink))

	assert.Equal(t, []common.Status{common.StatusPartial, common.StatusPartial, common.StatusOK}, sink.statuses())
	assert.Equal(t, []string{"k00", "k01", "k02", "k03", "k04"}, sink.keys())
	assert.Equal(t, StateExhausted, job.State())
	assert.Equal(t, 0, tbl.Borrows())
	assert.Equal(t, uint64(1), sink.chunks[0].JobID)
}

func TestScanExactChunkBoundary(t *testing.T) {
	tbl := openTable(t, 4)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{ChunkSize: 2})

	sink := &collector{}
	require.NoError(t, job.Run(sink))
	// no trailing empty chunk
	assert.Equal(t, []common.Status{common.StatusPartial, common.StatusOK}, sink.statuses())
}

func TestChunkSizeIsCapped(t *testing.T) {
	tbl := openTable(t, 3)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{ChunkSize: math.MaxInt32})
	assert.Equal(t, common.MaxScanChunkSize, job.Params.ChunkSize)

	sink := &collector{}
	require.NoError(t, job.Run(sink))
	assert.Equal(t, []common.Status{common.StatusOK}, sink.statuses())
	assert.Equal(t, []string{"k00", "k01", "k02"}, sink.keys())
}

func TestChunkBytesBudget(t *testing.T) {
	tbl := openTable(t, 5)

	// every pair encodes to 16 bytes, two fit into 40
	sink := &collector{}
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{ChunkBytes: 40})
	require.NoError(t, job.Run(sink))
	assert.Equal(t, []common.Status{common.StatusPartial, common.StatusPartial, common.StatusOK}, sink.statuses())
	assert.Equal(t, []string{"k00", "k01", "k02", "k03", "k04"}, sink.keys())

	// a pair larger than the budget still travels, alone
	sink = &collector{}
	job = New(context.Background(), 2, 0, borrowed(t, tbl), Params{ChunkBytes: 1})
	require.NoError(t, job.Run(sink))
	assert.Len(t, sink.statuses(), 5)
	for _, chunk := range sink.chunks {
		assert.Len(t, chunk.Pairs, 1)
	}
}

func TestNewPositionsIterator(t *testing.T) {
	tbl := openTable(t, 3)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{})
	assert.True(t, job.valid)
	assert.Equal(t, []byte("k00"), job.iter.Key())
	job.Cancel()

	job = New(context.Background(), 2, 0, borrowed(t, tbl), Params{Start: []byte("x")})
	assert.False(t, job.valid)
	job.Cancel()
	assert.Equal(t, 0, tbl.Borrows())
}

func TestScanRange(t *testing.T) {
	tbl := openTable(t, 10)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{Start: []byte("k03"), End: []byte("k06")})

	sink := &collector{}
	require.NoError(t, job.Run(sink))
	assert.Equal(t, []string{"k03", "k04", "k05"}, sink.keys())
	assert.Equal(t, []common.Status{common.StatusOK}, sink.statuses())
}

func TestScanEmpty(t *testing.T) {
	tbl := openTable(t, 0)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{})

	sink := &collector{}
	require.NoError(t, job.Run(sink))
	assert.Equal(t, []common.Status{common.StatusNoData}, sink.statuses())
	assert.Equal(t, 0, tbl.Borrows())
}

func TestLimitedScan(t *testing.T) {
	tbl := openTable(t, 10)

	sink := &collector{}
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{Start: []byte("k02"), Limited: true, Limit: 3, ChunkSize: 2})
	require.NoError(t, job.Run(sink))
	assert.Equal(t, []string{"k02", "k03", "k04"}, sink.keys())
	assert.Equal(t, []common.Status{common.StatusPartial, common.StatusOK}, sink.statuses())

	// limit 0 returns nothing
	sink = &collector{}
	job = New(context.Background(), 2, 0, borrowed(t, tbl), Params{Limited: true, Limit: 0})
	require.NoError(t, job.Run(sink))
	assert.Equal(t, []common.Status{common.StatusNoData}, sink.statuses())

	// limit beyond the table size
	sink = &collector{}
	job = New(context.Background(), 3, 0, borrowed(t, tbl), Params{Limited: true, Limit: 100})
	require.NoError(t, job.Run(sink))
	assert.Len(t, sink.keys(), 10)
}

func TestScanSeesSnapshot(t *testing.T) {
	tbl := openTable(t, 2)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{})

	require.NoError(t, tbl.Put([]db.KeyValue{{Key: []byte("k99"), Value: []byte("late")}}, db.DurabilityBuffered))

	sink := &collector{}
	require.NoError(t, job.Run(sink))
	assert.Equal(t, []string{"k00", "k01"}, sink.keys())
}

func TestCancelBeforeRun(t *testing.T) {
	tbl := openTable(t, 3)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{})

	job.Cancel()
	assert.Equal(t, StateCancelled, job.State())
	assert.Equal(t, 0, tbl.Borrows())

	sink := &collector{}
	assert.ErrorIs(t, job.Run(sink), ErrCancelled)
	assert.Empty(t, sink.statuses())

	// repeated cancel is harmless
	job.Cancel()
}

func TestCancelWhileStreaming(t *testing.T) {
	tbl := openTable(t, 10)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{ChunkSize: 1})

	var sent int
	first := make(chan struct{})
	sink := SinkFunc(func(ctx context.Context, chunk *common.ScanChunk) error {
		sent++
		if sent == 1 {
			close(first)
		}
		// block until the job is cancelled
		<-ctx.Done()
		return ctx.Err()
	})

	result := make(chan error, 1)
	go func() { result <- job.Run(sink) }()

	<-first
	job.Cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop")
	}
	assert.Equal(t, 1, sent)
	assert.Equal(t, StateCancelled, job.State())
	<-job.Done()
	assert.Equal(t, 0, tbl.Borrows())
}

func TestSinkFailure(t *testing.T) {
	tbl := openTable(t, 3)
	job := New(context.Background(), 1, 0, borrowed(t, tbl), Params{ChunkSize: 1})

	err := job.Run(SinkFunc(func(context.Context, *common.ScanChunk) error {
		return transport.ErrPeerGone
	}))
	assert.ErrorIs(t, err, transport.ErrPeerGone)
	assert.Equal(t, StateFailed, job.State())
	assert.Equal(t, 0, tbl.Borrows())
}

func TestParentContextCancels(t *testing.T) {
	tbl := openTable(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	job := New(ctx, 1, 0, borrowed(t, tbl), Params{})
	cancel()

	sink := &collector{}
	assert.ErrorIs(t, job.Run(sink), ErrCancelled)
	assert.Empty(t, sink.statuses())
	assert.Equal(t, 0, tbl.Borrows())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateCreated.Terminal())
}
