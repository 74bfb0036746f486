package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned for tasks submitted after Close.
var ErrQueueClosed = errors.New("queue closed")

type queueKey struct{}

func queueFrom(ctx context.Context) *Queue {
	if ctx == nil {
		return nil
	}
	q, _ := ctx.Value(queueKey{}).(*Queue)
	return q
}

// Queue runs submitted tasks one at a time, in submission order, on a single
// worker goroutine. Submission never blocks; the backlog is unbounded and
// append-only.
type Queue struct {
	name    string
	ctx     context.Context
	mu      sync.Mutex
	backlog []func(context.Context)
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewQueue creates a queue and starts its worker.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	q.ctx = context.WithValue(context.Background(), queueKey{}, q)
	go q.work()
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Submit appends fn to q and returns a value for its outcome. Tasks receive a
// context bound to the queue; pass it to Await when sequencing dependent calls.
func Submit[T any](q *Queue, fn func(ctx context.Context) (T, error)) *Value[T] {
	out := newValue[T](q)
	ok := q.post(func(ctx context.Context) {
		out.settle(call(ctx, fn))
	})
	if !ok {
		var zero T
		out.settle(zero, fmt.Errorf("%w: %s", ErrQueueClosed, q.name))
	}
	return out
}

func (q *Queue) post(task func(context.Context)) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.backlog = append(q.backlog, task)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) work() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.backlog) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			q.mu.Lock()
		}
		task := q.backlog[0]
		q.backlog[0] = nil
		q.backlog = q.backlog[1:]
		q.mu.Unlock()

		task(q.ctx)
	}
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Close stops accepting new tasks. Tasks already queued still run; the worker
// exits once the backlog is drained. Safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Done is closed when the worker has exited after Close.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}
