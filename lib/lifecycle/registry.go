package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("lifecycle")

// ErrDraining is returned when new work is submitted after Drain was called
var ErrDraining = errors.New("lifecycle: registry is draining")

// Registry is a reference-counted registry of active tasks
type Registry struct {
	mu       sync.Mutex
	active   int
	draining bool
	idle     chan struct{} // closed whenever active drops to zero while draining
	names    map[string]int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		idle:  make(chan struct{}),
		names: make(map[string]int),
	}
}

// Go runs fn on a tracked goroutine. It fails with ErrDraining once draining began.
func (r *Registry) Go(name string, fn func()) error {
	release, err := r.Acquire(name)
	if err != nil {
		return err
	}
	go func() {
		defer release()
		fn()
	}()
	return nil
}

// Acquire registers one task and returns the function that ends it. The release
// function may be called more than once; only the first call counts.
func (r *Registry) Acquire(name string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return nil, ErrDraining
	}
	r.active++
	r.names[name]++

	var once sync.Once
	return func() {
		once.Do(func() { r.release(name) })
	}, nil
}

func (r *Registry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	if r.names[name]--; r.names[name] <= 0 {
		delete(r.names, name)
	}
	if r.active == 0 && r.draining {
		select {
		case <-r.idle:
		default:
			close(r.idle)
		}
	}
}

// Active returns the number of live tasks
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Drain rejects new work and blocks until every task has ended or ctx is done.
// On timeout the names of the remaining tasks are logged.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	if r.active == 0 {
		select {
		case <-r.idle:
		default:
			close(r.idle)
		}
	}
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		log.Warningf("drain aborted with %d live tasks: %v", r.active, r.names)
		r.mu.Unlock()
		return ctx.Err()
	}
}
