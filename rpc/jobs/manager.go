package jobs

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
)

// Manager is the registry of live scan jobs
type Manager struct {
	jobs       *xsync.MapOf[uint64, *Job]
	nextID     atomic.Uint64
	chunkSize  int
	chunkBytes int
	started    atomic.Uint64
}

// NewManager creates a manager. Jobs without an explicit chunk size use chunkSize,
// every chunk stays below chunkBytes encoded bytes.
func NewManager(chunkSize, chunkBytes int) *Manager {
	if chunkSize <= 0 {
		chunkSize = common.DefaultScanChunkSize
	}
	if chunkBytes <= 0 {
		chunkBytes = common.DefaultScanChunkBytes
	}
	return &Manager{
		jobs:       xsync.NewMapOf[uint64, *Job](),
		chunkSize:  chunkSize,
		chunkBytes: chunkBytes,
	}
}

// Create registers a new job over a borrowed table
func (m *Manager) Create(ctx context.Context, peer transport.PeerID, table *db.Table, params Params) *Job {
	if params.ChunkSize <= 0 {
		params.ChunkSize = m.chunkSize
	}
	if params.ChunkBytes <= 0 {
		params.ChunkBytes = m.chunkBytes
	}
	j := New(ctx, m.nextID.Add(1), peer, table, params)
	m.jobs.Store(j.ID, j)
	m.started.Add(1)
	return j
}

// Run streams the job and removes it from the registry once it is terminal
func (m *Manager) Run(j *Job, sink Sink) error {
	defer m.jobs.Delete(j.ID)
	return j.Run(sink)
}

// Discard cancels a job that will never run and removes it
func (m *Manager) Discard(j *Job) {
	j.Cancel()
	m.jobs.Delete(j.ID)
}

// CancelPeer cancels every job streaming to peer
func (m *Manager) CancelPeer(peer transport.PeerID) int {
	return m.cancelWhere(func(j *Job) bool { return j.Peer == peer })
}

// CancelTable cancels every job scanning table index and waits until they released
// their borrows
func (m *Manager) CancelTable(index uint32) int {
	var cancelled []*Job
	m.jobs.Range(func(_ uint64, j *Job) bool {
		if j.Table == index {
			j.Cancel()
			cancelled = append(cancelled, j)
		}
		return true
	})
	for _, j := range cancelled {
		<-j.Done()
	}
	return len(cancelled)
}

// CancelAll cancels every live job
func (m *Manager) CancelAll() int {
	return m.cancelWhere(func(*Job) bool { return true })
}

// Active returns the number of live jobs
func (m *Manager) Active() int {
	return m.jobs.Size()
}

// Started returns the number of jobs created since the manager was created
func (m *Manager) Started() uint64 {
	return m.started.Load()
}

func (m *Manager) cancelWhere(match func(*Job) bool) int {
	n := 0
	m.jobs.Range(func(_ uint64, j *Job) bool {
		if match(j) {
			j.Cancel()
			n++
		}
		return true
	})
	if n > 0 {
		log.Debugf("Cancelled %d scan jobs", n)
	}
	return n
}
