package paging_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/serroba/sketchbook/internal/paging"
	"github.com/stretchr/testify/require"
)

// block occupies the worker until the returned release func is called.
func block(t *testing.T, q *paging.Queue) (release func()) {
	t.Helper()

	started := make(chan struct{})
	gate := make(chan struct{})

	require.NoError(t, q.Go(func() {
		close(started)
		<-gate
	}))

	<-started

	var once sync.Once

	return func() { once.Do(func() { close(gate) }) }
}

func TestQueue_RunsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	q := paging.NewQueue(nil)
	defer q.Close()

	var (
		mu  sync.Mutex
		got []int
	)

	for i := range 50 {
		require.NoError(t, q.Go(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, q.Do(context.Background(), func() error {
		mu.Lock()
		got = append(got, 50)
		mu.Unlock()

		return nil
	}))

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, got, 51)

	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
}

func TestQueue_DoReturnsJobError(t *testing.T) {
	t.Parallel()

	q := paging.NewQueue(nil)
	defer q.Close()

	boom := errors.New("boom")

	err := q.Do(context.Background(), func() error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestQueue_SupersedeSkipsStaleBackgroundJobs(t *testing.T) {
	t.Parallel()

	q := paging.NewQueue(nil)
	defer q.Close()

	release := block(t, q)

	var stale, fresh, direct bool

	require.NoError(t, q.Go(func() { stale = true }))

	q.Supersede()

	require.NoError(t, q.Go(func() { fresh = true }))

	done := make(chan error, 1)

	go func() {
		done <- q.Do(context.Background(), func() error {
			direct = true

			return nil
		})
	}()

	release()
	require.NoError(t, <-done)
	require.NoError(t, q.Barrier(context.Background()))

	require.False(t, stale, "stale load must not run")
	require.True(t, fresh)
	require.True(t, direct)
	require.Equal(t, 1, q.Skipped())
}

func TestQueue_SupersedeKeepsSynchronousJobs(t *testing.T) {
	t.Parallel()

	q := paging.NewQueue(nil)
	defer q.Close()

	release := block(t, q)

	ran := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- q.Do(context.Background(), func() error {
			close(ran)

			return nil
		})
	}()

	q.Supersede()
	release()

	require.NoError(t, <-done)
	<-ran
}

func TestQueue_DoHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	q := paging.NewQueue(nil)
	defer q.Close()

	release := block(t, q)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false

	err := q.Do(ctx, func() error {
		ran = true

		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	release()
	require.NoError(t, q.Barrier(context.Background()))
	require.False(t, ran, "a job whose context ended before it started is skipped")
}

func TestQueue_RecoversPanics(t *testing.T) {
	t.Parallel()

	q := paging.NewQueue(nil)
	defer q.Close()

	err := q.Do(context.Background(), func() error { panic("bad chunk") })
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad chunk")

	require.NoError(t, q.Barrier(context.Background()), "worker survives a panic")
}

func TestQueue_CloseDrainsAndRejects(t *testing.T) {
	t.Parallel()

	q := paging.NewQueue(nil)

	release := block(t, q)

	ran := 0

	for range 3 {
		require.NoError(t, q.Go(func() { ran++ }))
	}

	closed := make(chan struct{})

	go func() {
		q.Close()
		close(closed)
	}()

	release()
	<-closed

	require.Equal(t, 3, ran)
	require.ErrorIs(t, q.Go(func() {}), paging.ErrQueueClosed)
	require.ErrorIs(t, q.Do(context.Background(), func() error { return nil }), paging.ErrQueueClosed)
}
