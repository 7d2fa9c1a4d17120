package tablespace

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
)

func newTestTablespace(t *testing.T, config Config) *Tablespace {
	t.Helper()
	config.DataDir = t.TempDir()
	ts, err := New(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ts.Teardown() })
	return ts
}

func TestConcurrentGetTableOpensOnce(t *testing.T) {
	var opens atomic.Int32
	ts := newTestTablespace(t, Config{
		Open: func(index uint32, dir string, config db.TableConfig) (*db.Table, error) {
			opens.Add(1)
			// widen the race window
			time.Sleep(20 * time.Millisecond)
			return db.Open(index, dir, config)
		},
	})

	const workers = 16
	handles := make([]*db.Table, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tbl, err := ts.GetTable(5)
			if assert.NoError(t, err) {
				handles[i] = tbl
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	for _, h := range handles {
		require.NotNil(t, h)
		assert.Same(t, handles[0], h)
		h.Release()
	}
	assert.Equal(t, []uint32{5}, ts.OpenTables())
	assert.Equal(t, 1, ts.NumOpen())
}

func TestDifferentIndicesOpenInParallel(t *testing.T) {
	var inFlight, peak atomic.Int32
	ts := newTestTablespace(t, Config{
		Open: func(index uint32, dir string, config db.TableConfig) (*db.Table, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			inFlight.Add(-1)
			return db.Open(index, dir, config)
		},
	})

	var wg sync.WaitGroup
	for i := uint32(0); i < 4; i++ {
		wg.Add(1)
		go func(i uint32) {
			defer wg.Done()
			tbl, err := ts.GetTable(i)
			if assert.NoError(t, err) {
				tbl.Release()
			}
		}(i)
	}
	wg.Wait()
	assert.Greater(t, peak.Load(), int32(1))
}

func TestGrowsBeyondInitialSlots(t *testing.T) {
	ts := newTestTablespace(t, Config{MaxTables: 1000})

	tbl, err := ts.GetTable(100)
	require.NoError(t, err)
	tbl.Release()
	assert.Equal(t, []uint32{100}, ts.OpenTables())

	_, err = ts.GetTable(1000)
	require.Error(t, err)
	assert.True(t, db.IsCode(err, db.ErrCodeInvalidArgument))
}

func TestOpenTableConfig(t *testing.T) {
	ts := newTestTablespace(t, Config{})
	custom := db.DefaultTableConfig()
	custom.BloomFilterBits = 10

	require.NoError(t, ts.OpenTable(1, &custom))
	// same or no config is a no-op
	require.NoError(t, ts.OpenTable(1, &custom))
	require.NoError(t, ts.OpenTable(1, nil))

	other := custom
	other.Compression = db.CompressionOff
	err := ts.OpenTable(1, &other)
	assert.True(t, db.IsCode(err, db.ErrCodeTableBusy))

	assert.True(t, db.IsCode(ts.Reconfigure(1, other), db.ErrCodeTableBusy))

	require.NoError(t, ts.CloseTable(1))
	require.NoError(t, ts.CloseTable(1))
	require.NoError(t, ts.Reconfigure(1, other))

	tbl, err := ts.GetTable(1)
	require.NoError(t, err)
	assert.Equal(t, other, tbl.Config())
	tbl.Release()
}

func TestPresetsApplyOnFirstOpen(t *testing.T) {
	preset := db.DefaultTableConfig()
	preset.CacheBytes = 1 << 20
	ts := newTestTablespace(t, Config{Presets: map[uint32]db.TableConfig{3: preset}})

	tbl, err := ts.GetTable(3)
	require.NoError(t, err)
	assert.Equal(t, preset, tbl.Config())
	tbl.Release()
}

func TestCloseWaitingForBorrowsFailsLookupsFast(t *testing.T) {
	ts := newTestTablespace(t, Config{})
	borrowed, err := ts.GetTable(4)
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- ts.CloseTable(4) }()
	require.Eventually(t, func() bool { return ts.NumOpen() == 0 }, 5*time.Second, time.Millisecond)

	// lookups while the close waits for the borrow neither block nor open a second handle
	done := make(chan error, 1)
	go func() {
		_, err := ts.GetTable(4)
		done <- err
	}()
	select {
	case err := <-done:
		assert.True(t, db.IsCode(err, db.ErrCodeTableBusy))
	case <-time.After(5 * time.Second):
		t.Fatal("lookup blocked behind a close")
	}
	assert.Empty(t, ts.OpenTables())

	select {
	case <-closed:
		t.Fatal("close returned before the borrow was released")
	default:
	}
	borrowed.Release()
	require.NoError(t, <-closed)

	tbl, err := ts.GetTable(4)
	require.NoError(t, err)
	tbl.Release()
}

func TestTruncate(t *testing.T) {
	ts := newTestTablespace(t, Config{})

	tbl, err := ts.GetTable(0)
	require.NoError(t, err)
	require.NoError(t, tbl.Put([]db.KeyValue{{Key: []byte("a"), Value: []byte("1")}}, db.DurabilityBuffered))
	tbl.Release()

	require.NoError(t, ts.Truncate(0))
	assert.Empty(t, ts.OpenTables())

	tbl, err = ts.GetTable(0)
	require.NoError(t, err)
	n, err := tbl.Count(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	tbl.Release()

	// truncating a closed table works as well
	require.NoError(t, ts.CloseTable(0))
	require.NoError(t, ts.Truncate(0))
	require.NoError(t, ts.Truncate(9))
}

func TestCompactAndInfo(t *testing.T) {
	ts := newTestTablespace(t, Config{})
	require.NoError(t, ts.Compact(2, nil, nil))

	info, err := ts.TableInfo(2)
	require.NoError(t, err)
	assert.Equal(t, [2]string{"index", "2"}, info[0])
}

func TestTeardown(t *testing.T) {
	ts := newTestTablespace(t, Config{})
	for i := uint32(0); i < 3; i++ {
		tbl, err := ts.GetTable(i)
		require.NoError(t, err)
		tbl.Release()
	}
	assert.Equal(t, 3, ts.NumOpen())

	require.NoError(t, ts.Teardown())
	require.NoError(t, ts.Teardown())
	assert.Equal(t, 0, ts.NumOpen())

	_, err := ts.GetTable(0)
	assert.True(t, db.IsCode(err, db.ErrCodeTableClosed))
}
