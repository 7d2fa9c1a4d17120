package client

import (
	"context"

	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
)

// IYakClient is the typed client API of a YakDB server. Empty start/end keys are open
// range bounds. Every method returns a *StatusError if the server rejected the request.
type IYakClient interface {
	// ServerInfo returns the feature flags and the version of the server
	ServerInfo(ctx context.Context) (db.Feature, string, error)
	// OpenTable opens a table, fields of config equal to db.Default are not sent
	OpenTable(ctx context.Context, table uint32, config db.TableConfig) error
	// CloseTable flushes and closes a table
	CloseTable(ctx context.Context, table uint32) error
	// TableInfo returns the parameters and statistics of a table
	TableInfo(ctx context.Context, table uint32) ([][2]string, error)
	// Compact compacts [start, end)
	Compact(ctx context.Context, table uint32, start, end []byte) error
	// Truncate deletes every key of a table
	Truncate(ctx context.Context, table uint32) error

	// Read returns one result per key in request order
	Read(ctx context.Context, table uint32, keys ...[]byte) ([]common.Result, error)
	// Exists returns one result per key, Found reports existence
	Exists(ctx context.Context, table uint32, keys ...[]byte) ([]common.Result, error)
	// Count counts the keys in [start, end)
	Count(ctx context.Context, table uint32, start, end []byte) (uint64, error)
	// Scan streams [start, end) in chunks of chunkSize pairs (0 = server default)
	Scan(ctx context.Context, table uint32, start, end []byte, chunkSize uint32) (*ScanStream, error)
	// LimitedScan streams at most limit pairs from start on
	LimitedScan(ctx context.Context, table uint32, start []byte, limit uint64, chunkSize uint32) (*ScanStream, error)

	// Put writes the pairs as one atomic batch
	Put(ctx context.Context, table uint32, durability db.Durability, pairs ...db.KeyValue) error
	// Delete deletes keys
	Delete(ctx context.Context, table uint32, durability db.Durability, keys ...[]byte) error
	// DeleteRange deletes [start, end)
	DeleteRange(ctx context.Context, table uint32, durability db.Durability, start, end []byte) error

	// Close closes the connections of the client
	Close() error
}
