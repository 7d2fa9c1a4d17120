package tablespace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"golang.org/x/sync/singleflight"
)

var log = logger.GetLogger("tablespace")

const (
	// InitialSlots is the pre-sized length of the slot arena
	InitialSlots = 16
	// DefaultMaxTables bounds the highest addressable table index
	DefaultMaxTables = 1 << 20
)

// OpenFunc opens the engine instance of one table
type OpenFunc func(index uint32, dir string, config db.TableConfig) (*db.Table, error)

// Config configures a Tablespace
type Config struct {
	// DataDir is the root data directory; tables live in <DataDir>/tables/<index>
	DataDir string
	// MaxTables is the number of addressable table indices (0 = DefaultMaxTables)
	MaxTables uint32
	// Presets are the initial configurations of individual tables
	Presets map[uint32]db.TableConfig
	// Open replaces db.Open (used by tests)
	Open OpenFunc
}

type slot struct {
	mu      sync.RWMutex // guards table, config and closing, held exclusively for open
	admin   sync.Mutex   // serializes Compact and Truncate
	table   *db.Table
	config  db.TableConfig
	closing int // detached handles still waiting for their borrows
}

// Tablespace owns every opened table of a server
type Tablespace struct {
	root      string
	maxTables uint32
	presets   map[uint32]db.TableConfig
	openFn    OpenFunc

	arenaMu sync.RWMutex
	slots   []*slot

	opens    singleflight.Group
	numOpen  atomic.Int64
	torn     atomic.Bool
	tearOnce sync.Once
	tearErr  error
}

// New creates the tables directory and an empty tablespace
func New(config Config) (*Tablespace, error) {
	root := filepath.Join(config.DataDir, "tables")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating tables directory: %w", err)
	}
	ts := &Tablespace{
		root:      root,
		maxTables: config.MaxTables,
		presets:   config.Presets,
		openFn:    config.Open,
		slots:     make([]*slot, InitialSlots),
	}
	if ts.maxTables == 0 {
		ts.maxTables = DefaultMaxTables
	}
	if ts.openFn == nil {
		ts.openFn = db.Open
	}
	return ts, nil
}

// TableDir returns the data directory of a table index
func (ts *Tablespace) TableDir(index uint32) string {
	return filepath.Join(ts.root, strconv.FormatUint(uint64(index), 10))
}

// --------------------------------------------------------------------------
// Slot arena
// --------------------------------------------------------------------------

// slot returns the slot of index, growing the arena if needed
func (ts *Tablespace) slot(index uint32) (*slot, error) {
	if index >= ts.maxTables {
		return nil, db.NewError(db.ErrCodeInvalidArgument, index, "lookup",
			fmt.Errorf("table index exceeds the maximum of %d tables", ts.maxTables))
	}

	ts.arenaMu.RLock()
	if int(index) < len(ts.slots) {
		if s := ts.slots[index]; s != nil {
			ts.arenaMu.RUnlock()
			return s, nil
		}
	}
	ts.arenaMu.RUnlock()

	ts.arenaMu.Lock()
	defer ts.arenaMu.Unlock()
	if int(index) >= len(ts.slots) {
		size := len(ts.slots) * 2
		for size <= int(index) {
			size *= 2
		}
		if size > int(ts.maxTables) {
			size = int(ts.maxTables)
		}
		grown := make([]*slot, size)
		copy(grown, ts.slots)
		ts.slots = grown
	}
	s := ts.slots[index]
	if s == nil {
		s = &slot{config: db.DefaultTableConfig()}
		if preset, ok := ts.presets[index]; ok {
			s.config = preset
		}
		ts.slots[index] = s
	}
	return s, nil
}

// existing returns the slot of index without creating it
func (ts *Tablespace) existing(index uint32) *slot {
	ts.arenaMu.RLock()
	defer ts.arenaMu.RUnlock()
	if int(index) < len(ts.slots) {
		return ts.slots[index]
	}
	return nil
}

// each calls fn for every allocated slot in index order
func (ts *Tablespace) each(fn func(index uint32, s *slot)) {
	ts.arenaMu.RLock()
	slots := make([]*slot, len(ts.slots))
	copy(slots, ts.slots)
	ts.arenaMu.RUnlock()
	for i, s := range slots {
		if s != nil {
			fn(uint32(i), s)
		}
	}
}

// --------------------------------------------------------------------------
// Open / Close
// --------------------------------------------------------------------------

// GetTable returns a borrowed handle of the table, opening it with the last configured
// (or default) configuration if it is absent. The caller must Release the handle.
// Open failures are returned as they are and not retried.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (ts *Tablespace) GetTable(index uint32) (*db.Table, error) {
	s, err := ts.slot(index)
	if err != nil {
		return nil, err
	}
	// a handle can be closed between lookup and borrow, look again in that case
	for attempt := 0; attempt < 3; attempt++ {
		s.mu.RLock()
		t := s.table
		s.mu.RUnlock()

		if t == nil {
			if t, err = ts.coalescedOpen(index, s); err != nil {
				return nil, err
			}
		}
		if t.Acquire() {
			return t, nil
		}
	}
	return nil, db.NewError(db.ErrCodeTableClosed, index, "get", errors.New("table was closed concurrently"))
}

// coalescedOpen shares one open between all concurrent callers of an index
func (ts *Tablespace) coalescedOpen(index uint32, s *slot) (*db.Table, error) {
	v, err, shared := ts.opens.Do(strconv.FormatUint(uint64(index), 10), func() (interface{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return ts.openLocked(index, s)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debugf("open of table %d was shared", index)
	}
	return v.(*db.Table), nil
}

// openLocked opens the table of a slot whose lock is held exclusively
func (ts *Tablespace) openLocked(index uint32, s *slot) (*db.Table, error) {
	if s.table != nil {
		return s.table, nil
	}
	if ts.torn.Load() {
		return nil, db.NewError(db.ErrCodeTableClosed, index, "open", errors.New("tablespace is shut down"))
	}
	if s.closing > 0 {
		return nil, db.NewError(db.ErrCodeTableBusy, index, "open", errors.New("table is being closed"))
	}
	t, err := ts.openFn(index, ts.TableDir(index), s.config)
	if err != nil {
		log.Errorf("failed to open table %d: %v", index, err)
		return nil, err
	}
	s.table = t
	ts.numOpen.Add(1)
	return t, nil
}

// OpenTable opens a table explicitly. A nil or all-default config uses the configured
// one. Opening an already open table is a no-op unless config differs from the
// configuration it was opened with, which fails with a TableBusy error.
func (ts *Tablespace) OpenTable(index uint32, config *db.TableConfig) error {
	s, err := ts.slot(index)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	explicit := config != nil && !config.IsDefault()
	if s.table != nil {
		if explicit && !config.Equal(s.table.Config()) {
			return db.NewTableBusyError(index, "open")
		}
		return nil
	}
	if explicit {
		s.config = *config
	}
	_, err = ts.openLocked(index, s)
	return err
}

// CloseTable flushes and closes a table. Closing an absent table is a no-op.
// The call blocks until outstanding borrows are released, lookups of the table fail
// with a TableBusy error meanwhile.
func (ts *Tablespace) CloseTable(index uint32) error {
	s := ts.existing(index)
	if s == nil {
		return nil
	}
	t, reopen := ts.detach(s)
	defer reopen()
	if t == nil {
		return nil
	}
	return t.Close()
}

// detach removes the handle from its slot without waiting for borrows. Opens of the
// slot fail until reopen is called.
func (ts *Tablespace) detach(s *slot) (t *db.Table, reopen func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t = s.table
	if t != nil {
		s.table = nil
		ts.numOpen.Add(-1)
	}
	s.closing++
	return t, func() {
		s.mu.Lock()
		s.closing--
		s.mu.Unlock()
	}
}

// Reconfigure records the configuration for the next open of index.
// It fails with a TableBusy error while the table is open.
func (ts *Tablespace) Reconfigure(index uint32, config db.TableConfig) error {
	s, err := ts.slot(index)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table != nil {
		return db.NewTableBusyError(index, "reconfigure")
	}
	s.config = config
	return nil
}

// --------------------------------------------------------------------------
// Administrative operations
// --------------------------------------------------------------------------

// Compact compacts [start, end) of a table, opening it if needed
func (ts *Tablespace) Compact(index uint32, start, end []byte) error {
	s, err := ts.slot(index)
	if err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	t, err := ts.GetTable(index)
	if err != nil {
		return err
	}
	defer t.Release()
	log.Infof("compacting table %d", index)
	return t.Compact(start, end)
}

// Truncate closes a table and deletes its data. The table stays absent, so the next
// access opens an empty table with the same configuration.
func (ts *Tablespace) Truncate(index uint32) error {
	s, err := ts.slot(index)
	if err != nil {
		return err
	}
	s.admin.Lock()
	defer s.admin.Unlock()

	t, reopen := ts.detach(s)
	defer reopen()
	if t != nil {
		if err := t.Close(); err != nil {
			log.Warningf("closing table %d for truncate: %v", index, err)
		}
	}
	if err := os.RemoveAll(ts.TableDir(index)); err != nil {
		return db.NewEngineIOError(index, "truncate", err)
	}
	log.Infof("truncated table %d", index)
	return nil
}

// TableInfo returns the parameters and statistics of a table, opening it if needed
func (ts *Tablespace) TableInfo(index uint32) ([][2]string, error) {
	t, err := ts.GetTable(index)
	if err != nil {
		return nil, err
	}
	defer t.Release()
	return t.Info(), nil
}

// OpenTables returns the indices of all open tables in ascending order
func (ts *Tablespace) OpenTables() []uint32 {
	var out []uint32
	ts.each(func(index uint32, s *slot) {
		s.mu.RLock()
		if s.table != nil {
			out = append(out, index)
		}
		s.mu.RUnlock()
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NumOpen returns the number of open tables
func (ts *Tablespace) NumOpen() int {
	return int(ts.numOpen.Load())
}

// Teardown closes every open table and refuses further opens. Only the first call
// has an effect; later calls return its result.
func (ts *Tablespace) Teardown() error {
	ts.tearOnce.Do(func() {
		ts.torn.Store(true)
		var errs []error
		ts.each(func(index uint32, s *slot) {
			t, reopen := ts.detach(s)
			defer reopen()
			if t == nil {
				return
			}
			if err := t.Close(); err != nil {
				errs = append(errs, err)
			}
		})
		ts.tearErr = errors.Join(errs...)
		log.Infof("tablespace torn down")
	})
	return ts.tearErr
}
