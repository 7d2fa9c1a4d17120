package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainWaitsForTasks(t *testing.T) {
	r := NewRegistry()
	stop := make(chan struct{})
	var finished atomic.Bool

	require.NoError(t, r.Go("worker", func() {
		<-stop
		finished.Store(true)
	}))
	assert.Equal(t, 1, r.Active())

	drained := make(chan error, 1)
	go func() { drained <- r.Drain(context.Background()) }()

	select {
	case <-drained:
		t.Fatal("drain returned while a task was live")
	case <-time.After(50 * time.Millisecond):
	}

	close(stop)
	select {
	case err := <-drained:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("drain did not return")
	}
	assert.True(t, finished.Load())
	assert.Equal(t, 0, r.Active())
}

func TestNoWorkAfterDrain(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Drain(context.Background()))

	assert.ErrorIs(t, r.Go("late", func() {}), ErrDraining)
	_, err := r.Acquire("late")
	assert.ErrorIs(t, err, ErrDraining)
}

func TestAcquireReleaseOnce(t *testing.T) {
	r := NewRegistry()
	release, err := r.Acquire("handler")
	require.NoError(t, err)
	other, err := r.Acquire("handler")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Active())

	release()
	release()
	assert.Equal(t, 1, r.Active())

	other()
	assert.Equal(t, 0, r.Active())
}

func TestDrainTimeout(t *testing.T) {
	r := NewRegistry()
	release, err := r.Acquire("stuck")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Drain(ctx), context.DeadlineExceeded)
}
