package db

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Default is the sentinel for "use the engine default" in TableConfig size fields
const Default uint64 = math.MaxUint64

// Compression is a tri-state compression toggle
type Compression uint8

const (
	CompressionDefault Compression = iota // engine default (snappy)
	CompressionOff                        // store blocks uncompressed
	CompressionOn                         // snappy compressed blocks
)

func (c Compression) String() string {
	switch c {
	case CompressionOff:
		return "off"
	case CompressionOn:
		return "on"
	default:
		return "default"
	}
}

// Durability selects how far a write has to travel before it is acknowledged
type Durability uint8

const (
	DurabilityBuffered    Durability = iota // memtable + WAL buffer
	DurabilityGroupCommit                   // WAL fsync, shared between concurrent commits
	DurabilityFsync                         // WAL fsync plus memtable flush
)

func (d Durability) String() string {
	switch d {
	case DurabilityGroupCommit:
		return "group-commit"
	case DurabilityFsync:
		return "fsync"
	default:
		return "buffered"
	}
}

// KeyValue is a single key/value pair
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Feature represents server features as bit flags (reported by ServerInfo)
type Feature uint64

const (
	FeatureOnTheFlyTableOpen Feature = 1 << iota // tables are opened on first access
	FeaturePassiveScanJobs                       // Scan/LimitedScan stream chunked results
	FeatureDeleteRange                           // range deletes are supported
	FeatureCompaction                            // manual range compaction
	FeatureHTTPFrontend                          // auxiliary HTTP API is enabled

	// FeaturesAll are always available, independent of the configuration
	FeaturesAll = FeatureOnTheFlyTableOpen | FeaturePassiveScanJobs | FeatureDeleteRange | FeatureCompaction
)

// --------------------------------------------------------------------------
// Table Configuration
// --------------------------------------------------------------------------

// TableConfig holds the tuning parameters of one table. A field equal to Default
// (or CompressionDefault) leaves the engine default in place. The configuration of an
// open table is immutable.
type TableConfig struct {
	CacheBytes       uint64
	BlockBytes       uint64
	WriteBufferBytes uint64
	BloomFilterBits  uint64
	Compression      Compression
}

// DefaultTableConfig returns a TableConfig that uses the engine default everywhere
func DefaultTableConfig() TableConfig {
	return TableConfig{
		CacheBytes:       Default,
		BlockBytes:       Default,
		WriteBufferBytes: Default,
		BloomFilterBits:  Default,
		Compression:      CompressionDefault,
	}
}

// Equal reports whether both configurations are identical
func (c TableConfig) Equal(other TableConfig) bool {
	return c == other
}

// IsDefault reports whether every field uses the engine default
func (c TableConfig) IsDefault() bool {
	return c == DefaultTableConfig()
}

// Params returns the configuration as name/value pairs (used by TableInfo)
func (c TableConfig) Params() [][2]string {
	format := func(v uint64) string {
		if v == Default {
			return "default"
		}
		return strconv.FormatUint(v, 10)
	}
	return [][2]string{
		{"cacheBytes", format(c.CacheBytes)},
		{"blockBytes", format(c.BlockBytes)},
		{"writeBufferBytes", format(c.WriteBufferBytes)},
		{"bloomFilterBits", format(c.BloomFilterBits)},
		{"compression", c.Compression.String()},
	}
}

// String returns a compact representation of the configuration
func (c TableConfig) String() string {
	parts := make([]string, 0, 5)
	for _, p := range c.Params() {
		parts = append(parts, p[0]+"="+p[1])
	}
	return strings.Join(parts, ",")
}

// pebbleOptions translates the table configuration into engine options.
// The returned cache (if any) must be unreferenced by the caller once the
// engine has been opened.
func (c TableConfig) pebbleOptions() (*pebble.Options, *pebble.Cache, error) {
	opts := &pebble.Options{}
	var cache *pebble.Cache

	if c.CacheBytes != Default {
		if c.CacheBytes > math.MaxInt64 {
			return nil, nil, fmt.Errorf("cache size %d out of range", c.CacheBytes)
		}
		cache = pebble.NewCache(int64(c.CacheBytes))
		opts.Cache = cache
	}

	if c.WriteBufferBytes != Default {
		if c.WriteBufferBytes > math.MaxInt32 {
			return nil, cache, fmt.Errorf("write buffer size %d out of range", c.WriteBufferBytes)
		}
		opts.MemTableSize = int(c.WriteBufferBytes)
	}

	level := pebble.LevelOptions{}
	if c.BlockBytes != Default {
		if c.BlockBytes > math.MaxInt32 {
			return nil, cache, fmt.Errorf("block size %d out of range", c.BlockBytes)
		}
		level.BlockSize = int(c.BlockBytes)
	}
	if c.BloomFilterBits != Default && c.BloomFilterBits > 0 {
		level.FilterPolicy = bloom.FilterPolicy(int(c.BloomFilterBits))
		level.FilterType = pebble.TableFilter
	}
	switch c.Compression {
	case CompressionOn:
		level.Compression = pebble.SnappyCompression
	case CompressionOff:
		level.Compression = pebble.NoCompression
	}
	opts.Levels = []pebble.LevelOptions{level}

	opts.EnsureDefaults()
	return opts, cache, nil
}
