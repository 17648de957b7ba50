package paging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/serroba/sketchbook/internal/logging"
)

// ErrQueueClosed is returned for work submitted after Close.
var ErrQueueClosed = errors.New("paging queue is closed")

type job struct {
	ctx        context.Context
	fn         func() error
	background bool
	epoch      uint64
	done       chan error
}

// Queue runs paging work one job at a time on a dedicated goroutine, in
// submission order. Everything that touches the chunk files of a session goes
// through it, so each file has a single writer.
//
// Background jobs are tagged with the epoch they were submitted in; Supersede
// starts a new epoch and older background jobs still waiting are skipped.
type Queue struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []*job
	epoch   uint64
	closed  bool
	skipped int

	stopped chan struct{}
}

// NewQueue starts a queue. Call Close to stop it.
func NewQueue(logger *slog.Logger) *Queue {
	q := &Queue{
		logger:  logging.OrNop(logger),
		stopped: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.run()

	return q
}

func (q *Queue) push(j *job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	j.epoch = q.epoch
	q.jobs = append(q.jobs, j)
	q.cond.Signal()

	return nil
}

// Do runs fn on the queue and waits for it. If ctx ends before fn starts,
// fn is skipped and the context error returned; once started it runs to
// completion even if Do has already returned.
func (q *Queue) Do(ctx context.Context, fn func() error) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	if err := q.push(j); err != nil {
		return err
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go submits fn to run in the background.
func (q *Queue) Go(fn func()) error {
	return q.push(&job{
		ctx:        context.Background(),
		fn:         func() error { fn(); return nil },
		background: true,
	})
}

// Supersede discards background jobs that have not started yet.
func (q *Queue) Supersede() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.epoch++
}

// Barrier waits until every job submitted before it has finished.
func (q *Queue) Barrier(ctx context.Context) error {
	return q.Do(ctx, func() error { return nil })
}

// Skipped returns how many background jobs were discarded.
func (q *Queue) Skipped() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.skipped
}

// Close runs the jobs already queued and stops the worker. Further
// submissions fail with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	<-q.stopped
}

func (q *Queue) next() (*job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for len(q.jobs) == 0 {
			if q.closed {
				return nil, false
			}

			q.cond.Wait()
		}

		j := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]

		if j.background && j.epoch != q.epoch {
			q.skipped++

			continue
		}

		return j, true
	}
}

func (q *Queue) run() {
	defer close(q.stopped)

	for {
		j, ok := q.next()
		if !ok {
			return
		}

		if err := j.ctx.Err(); err != nil {
			j.finish(err)

			continue
		}

		j.finish(q.exec(j.fn))
	}
}

func (q *Queue) exec(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("paging job panicked", "panic", r)
			err = fmt.Errorf("paging job panicked: %v", r)
		}
	}()

	return fn()
}

func (j *job) finish(err error) {
	if j.done != nil {
		j.done <- err
	}
}
