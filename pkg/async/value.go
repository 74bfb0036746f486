// Package async provides the small future and serial-queue primitives used to
// drive a single remote browser session.
//
// A Value is a single-resolution future. It is produced either by submitting a
// task to a Queue, which runs tasks one at a time on a dedicated worker, or by
// Go, which runs a task on its own goroutine. Dependent calls are sequenced by
// awaiting a Value from inside another task:
//
//	v := async.Go(ctx, func(ctx context.Context) (string, error) {
//		el, err := handle.FindElement("#container").Await(ctx)
//		if err != nil {
//			return "", err
//		}
//		return handle.Text(el).Await(ctx)
//	})
//
// Only the awaiting task is parked; the queue that produces the awaited value
// keeps running.
package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSelfAwait is returned when a task awaits a pending value that can only be
	// settled by the queue the task itself is running on.
	ErrSelfAwait = errors.New("await on own queue would deadlock")

	// ErrPanic wraps a panic recovered from a task body.
	ErrPanic = errors.New("task panicked")
)

// Value is a future that settles exactly once, either resolved with a T or
// rejected with an error.
type Value[T any] struct {
	done  chan struct{}
	once  sync.Once
	val   T
	err   error
	owner *Queue
}

func newValue[T any](owner *Queue) *Value[T] {
	return &Value[T]{
		done:  make(chan struct{}),
		owner: owner,
	}
}

// Resolved returns a value that is already resolved with v.
func Resolved[T any](v T) *Value[T] {
	out := newValue[T](nil)
	out.settle(v, nil)
	return out
}

// Rejected returns a value that is already rejected with err.
func Rejected[T any](err error) *Value[T] {
	out := newValue[T](nil)
	var zero T
	out.settle(zero, err)
	return out
}

// settle records the outcome. Later calls are ignored.
func (v *Value[T]) settle(val T, err error) bool {
	settled := false
	v.once.Do(func() {
		v.val = val
		v.err = err
		close(v.done)
		settled = true
	})
	return settled
}

// Done returns a channel that is closed once the value settles.
func (v *Value[T]) Done() <-chan struct{} {
	return v.done
}

// Settled reports whether the value has resolved or rejected.
func (v *Value[T]) Settled() bool {
	select {
	case <-v.done:
		return true
	default:
		return false
	}
}

// Await blocks the calling task until the value settles and returns its
// outcome. It returns ctx.Err() if ctx is done first.
//
// Awaiting a pending value owned by the queue whose worker is running the
// caller fails immediately with ErrSelfAwait.
func (v *Value[T]) Await(ctx context.Context) (T, error) {
	if v.Settled() {
		return v.val, v.err
	}
	if v.owner != nil && queueFrom(ctx) == v.owner {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrSelfAwait, v.owner.name)
	}
	select {
	case <-v.done:
		return v.val, v.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go runs fn on a new goroutine and returns a pending value for its outcome.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Value[T] {
	out := newValue[T](nil)
	go func() {
		out.settle(call(ctx, fn))
	}()
	return out
}

// Then returns a value resolved by applying fn to v's result. A rejection of v
// is passed through without calling fn.
func Then[T, U any](v *Value[T], fn func(T) (U, error)) *Value[U] {
	out := newValue[U](nil)
	go func() {
		<-v.done
		if v.err != nil {
			var zero U
			out.settle(zero, v.err)
			return
		}
		out.settle(call(context.Background(), func(context.Context) (U, error) {
			return fn(v.val)
		}))
	}()
	return out
}

// Trap intercepts a rejection of v. The handler may recover by returning a nil
// error or re-reject by returning one. A resolved v passes through untouched.
func Trap[T any](v *Value[T], handler func(error) (T, error)) *Value[T] {
	out := newValue[T](nil)
	go func() {
		<-v.done
		if v.err == nil {
			out.settle(v.val, nil)
			return
		}
		out.settle(call(context.Background(), func(context.Context) (T, error) {
			return handler(v.err)
		}))
	}()
	return out
}

// call runs fn, converting a panic into a rejection.
func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			val = zero
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}
