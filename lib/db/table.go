package db

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	log       = logger.GetLogger("db")
	engineLog = logger.GetLogger("pebble")
)

// --------------------------------------------------------------------------
// Engine logger adapter (implements pebble.Logger)
// --------------------------------------------------------------------------

type pebbleLogger struct {
	l logger.ILogger
}

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debugf(format, args...)
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Errorf(format, args...)
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Errorf(format, args...)
	panic(fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Table is an opened engine instance for one table index
type Table struct {
	index  uint32
	dir    string
	config TableConfig
	engine *pebble.DB
	stats  gometrics.Registry

	mu      sync.Mutex
	drained *sync.Cond
	borrows int
	closing bool
	closed  bool
	closeEr error
}

// Open opens (or creates) the engine instance stored in dir.
// Failures are reported as EngineOpen errors and are never retried here.
func Open(index uint32, dir string, config TableConfig) (*Table, error) {
	opts, cache, err := config.pebbleOptions()
	if cache != nil {
		// the engine holds its own reference once opened
		defer cache.Unref()
	}
	if err != nil {
		return nil, NewError(ErrCodeInvalidArgument, index, "open", err)
	}
	opts.Logger = pebbleLogger{l: engineLog}

	engine, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, NewEngineOpenError(index, err)
	}

	t := &Table{
		index:  index,
		dir:    dir,
		config: config,
		engine: engine,
		stats:  gometrics.NewRegistry(),
	}
	t.drained = sync.NewCond(&t.mu)

	log.Infof("opened table %d in %s (%s)", index, dir, config)
	return t, nil
}

// Index returns the table index of this handle
func (t *Table) Index() uint32 {
	return t.index
}

// Config returns the configuration the table was opened with
func (t *Table) Config() TableConfig {
	return t.config
}

// Dir returns the data directory of the table
func (t *Table) Dir() string {
	return t.dir
}

// --------------------------------------------------------------------------
// Borrowing
// --------------------------------------------------------------------------

// Acquire registers a borrow of the handle. It returns false once Close was called.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Acquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		return false
	}
	t.borrows++
	return true
}

// Release returns a borrow obtained with Acquire
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.borrows--
	if t.borrows <= 0 {
		t.borrows = 0
		t.drained.Broadcast()
	}
}

// Borrows returns the number of outstanding borrows
func (t *Table) Borrows() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.borrows
}

// Close rejects new borrows, waits until all outstanding borrows are released and
// then flushes and closes the engine. Calling Close more than once is safe; later
// calls wait for the first one to finish and return its result.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closing {
		for !t.closed {
			t.drained.Wait()
		}
		err := t.closeEr
		t.mu.Unlock()
		return err
	}
	t.closing = true
	for t.borrows > 0 {
		t.drained.Wait()
	}
	t.mu.Unlock()

	var err error
	if ferr := t.engine.Flush(); ferr != nil {
		err = NewEngineIOError(t.index, "flush", ferr)
	}
	if cerr := t.engine.Close(); cerr != nil && err == nil {
		err = NewEngineIOError(t.index, "close", cerr)
	}
	t.stats.UnregisterAll()

	t.mu.Lock()
	t.closed = true
	t.closeEr = err
	t.drained.Broadcast()
	t.mu.Unlock()

	log.Infof("closed table %d", t.index)
	return err
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Get returns a copy of the value stored for key. A missing key is not an error.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Get(key []byte) ([]byte, bool, error) {
	t.count("reads")
	value, closer, err := t.engine.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewEngineIOError(t.index, "get", err)
	}
	out := make([]byte, len(value))
	copy(out, value)
	if err := closer.Close(); err != nil {
		return nil, false, NewEngineIOError(t.index, "get", err)
	}
	return out, true, nil
}

// Has reports whether key exists
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Has(key []byte) (bool, error) {
	t.count("reads")
	_, closer, err := t.engine.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, NewEngineIOError(t.index, "exists", err)
	}
	if err := closer.Close(); err != nil {
		return false, NewEngineIOError(t.index, "exists", err)
	}
	return true, nil
}

// Count returns the number of keys in [start, end). Empty bounds are open.
// Counting a whole table is a sequential O(n) scan.
func (t *Table) Count(start, end []byte) (uint64, error) {
	t.count("scans")
	iter := t.engine.NewIter(iterOptions(start, end))
	var n uint64
	for valid := iter.First(); valid; valid = iter.Next() {
		n++
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return 0, NewEngineIOError(t.index, "count", err)
	}
	if err := iter.Close(); err != nil {
		return 0, NewEngineIOError(t.index, "count", err)
	}
	return n, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put writes all pairs as one atomic batch
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Put(pairs []KeyValue, durability Durability) error {
	t.count("writes")
	b := t.engine.NewBatch()
	defer b.Close()
	for _, kv := range pairs {
		if err := b.Set(kv.Key, kv.Value, nil); err != nil {
			return NewEngineIOError(t.index, "put", err)
		}
	}
	return t.commit(b, durability, "put")
}

// Delete removes all keys as one atomic batch. Missing keys are ignored.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) Delete(keys [][]byte, durability Durability) error {
	t.count("deletes")
	b := t.engine.NewBatch()
	defer b.Close()
	for _, key := range keys {
		if err := b.Delete(key, nil); err != nil {
			return NewEngineIOError(t.index, "delete", err)
		}
	}
	return t.commit(b, durability, "delete")
}

// DeleteRange removes every key in the half-open range [start, end).
// An empty start means "from the first key", an empty end "up to and including the
// last key". An empty or inverted range is a no-op.
func (t *Table) DeleteRange(start, end []byte, durability Durability) error {
	t.count("deletes")
	start, end, ok, err := t.resolveRange(start, end, "delete-range")
	if err != nil || !ok {
		return err
	}
	b := t.engine.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(start, end, nil); err != nil {
		return NewEngineIOError(t.index, "delete-range", err)
	}
	return t.commit(b, durability, "delete-range")
}

// Compact compacts the key range [start, end) (empty bounds are open)
func (t *Table) Compact(start, end []byte) error {
	start, end, ok, err := t.resolveRange(start, end, "compact")
	if err != nil || !ok {
		return err
	}
	if err := t.engine.Compact(start, end, true); err != nil {
		return NewEngineIOError(t.index, "compact", err)
	}
	return nil
}

// commit applies a batch with the sync semantics of the durability level
func (t *Table) commit(b *pebble.Batch, durability Durability, op string) error {
	opts := pebble.NoSync
	if durability != DurabilityBuffered {
		opts = pebble.Sync
	}
	if err := b.Commit(opts); err != nil {
		return NewEngineIOError(t.index, op, err)
	}
	if durability == DurabilityFsync {
		if err := t.engine.Flush(); err != nil {
			return NewEngineIOError(t.index, op, err)
		}
	}
	return nil
}

// resolveRange turns open bounds into concrete engine keys.
// ok is false if the range contains no keys.
func (t *Table) resolveRange(start, end []byte, op string) ([]byte, []byte, bool, error) {
	if start == nil {
		start = []byte{}
	}
	if len(end) == 0 {
		iter := t.engine.NewIter(iterOptions(start, nil))
		if !iter.Last() {
			err := iter.Error()
			_ = iter.Close()
			if err != nil {
				return nil, nil, false, NewEngineIOError(t.index, op, err)
			}
			return nil, nil, false, nil
		}
		// the immediate successor of the last key includes the last key itself
		last := iter.Key()
		end = make([]byte, len(last)+1)
		copy(end, last)
		if err := iter.Close(); err != nil {
			return nil, nil, false, NewEngineIOError(t.index, op, err)
		}
	}
	if bytes.Compare(start, end) >= 0 {
		return nil, nil, false, nil
	}
	return start, end, true, nil
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Snapshot is a point-in-time read view of a table
type Snapshot struct {
	table *Table
	snap  *pebble.Snapshot
}

// NewSnapshot acquires a consistent read view. The snapshot must be closed.
func (t *Table) NewSnapshot() *Snapshot {
	return &Snapshot{
		table: t,
		snap:  t.engine.NewSnapshot(),
	}
}

// NewIterator creates an iterator over [lower, upper) of the snapshot (empty bounds are
// open). The iterator is not positioned; call First.
func (s *Snapshot) NewIterator(lower, upper []byte) *Iterator {
	s.table.count("scans")
	return &Iterator{
		table: s.table.index,
		iter:  s.snap.NewIter(iterOptions(lower, upper)),
	}
}

// Close releases the snapshot
func (s *Snapshot) Close() error {
	if err := s.snap.Close(); err != nil {
		return NewEngineIOError(s.table.index, "snapshot-close", err)
	}
	return nil
}

// Iterator walks keys in ascending order. Key and Value are only valid until the next
// call to Next; callers that keep them must copy.
type Iterator struct {
	table uint32
	iter  *pebble.Iterator
}

func (i *Iterator) First() bool { return i.iter.First() }
func (i *Iterator) Next() bool  { return i.iter.Next() }
func (i *Iterator) Valid() bool { return i.iter.Valid() }
func (i *Iterator) Key() []byte { return i.iter.Key() }

func (i *Iterator) Value() []byte { return i.iter.Value() }

// Error returns the accumulated iteration error, if any
func (i *Iterator) Error() error {
	if err := i.iter.Error(); err != nil {
		return NewEngineIOError(i.table, "iterate", err)
	}
	return nil
}

// Close releases the iterator
func (i *Iterator) Close() error {
	if err := i.iter.Close(); err != nil {
		return NewEngineIOError(i.table, "iterate", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Info
// --------------------------------------------------------------------------

// Info returns the table parameters, the engine statistics and the access counters
// as ordered name/value pairs
func (t *Table) Info() [][2]string {
	info := [][2]string{
		{"index", strconv.FormatUint(uint64(t.index), 10)},
		{"dir", t.dir},
	}
	info = append(info, t.config.Params()...)

	m := t.engine.Metrics()
	info = append(info,
		[2]string{"diskSpaceUsage", strconv.FormatUint(m.DiskSpaceUsage(), 10)},
		[2]string{"memtableSize", strconv.FormatUint(m.MemTable.Size, 10)},
		[2]string{"flushCount", strconv.FormatInt(m.Flush.Count, 10)},
		[2]string{"compactionCount", strconv.FormatInt(m.Compact.Count, 10)},
		[2]string{"blockCacheSize", strconv.FormatInt(m.BlockCache.Size, 10)},
	)

	// access counters, sorted by name
	counters := make([][2]string, 0, 4)
	t.stats.Each(func(name string, metric interface{}) {
		if c, ok := metric.(gometrics.Counter); ok {
			counters = append(counters, [2]string{name, strconv.FormatInt(c.Count(), 10)})
		}
	})
	sort.Slice(counters, func(i, j int) bool { return counters[i][0] < counters[j][0] })
	return append(info, counters...)
}

// count increments an access counter of this table
func (t *Table) count(name string) {
	gometrics.GetOrRegisterCounter(name, t.stats).Inc(1)
}

// iterOptions builds iterator bounds, empty bounds are open
func iterOptions(lower, upper []byte) *pebble.IterOptions {
	opts := &pebble.IterOptions{}
	if len(lower) > 0 {
		opts.LowerBound = lower
	}
	if len(upper) > 0 {
		opts.UpperBound = upper
	}
	return opts
}
