package kv

import (
	"context"
	"fmt"
)

// Future is a deferred result. It is resolved exactly once, either with a
// value or with an error, and cannot be cancelled once started.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on a new goroutine and returns a Future for its result.
// A panic in fn rejects the future instead of crashing the process.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.value, f.err = zero, fmt.Errorf("kv: operation panicked: %v", r)
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// Resolved returns a future already resolved with v.
func Resolved[T any](v T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: v}
	close(f.done)
	return f
}

// Rejected returns a future already rejected with err.
func Rejected[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done is closed once the future has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Await blocks until the future settles or ctx is done. A cancelled ctx only
// stops the wait; the operation itself still runs to completion.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// All settles once every future in fs has resolved, with results in input
// order. If any future rejects, All rejects with the error of the
// lowest-indexed failure and discards the partial results.
func All[T any](fs []*Future[T]) *Future[[]T] {
	return Go(func() ([]T, error) {
		out := make([]T, len(fs))
		for i, f := range fs {
			v, err := f.Wait()
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	})
}
