// Package future provides a write-once container for values produced by
// asynchronous device work. It is a thin completion primitive, not a full
// promise library: a Future is created unresolved, settled exactly once
// with either a value or an error, and runs registered continuations on
// settlement.
package future

import (
	"context"
	"sync"
)

// Future holds a value of type T that may not have been computed yet.
// All methods are safe for concurrent use. Once settled (resolved or
// failed) a Future never changes state again.
type Future[T any] struct {
	mu        sync.Mutex
	settled   bool
	val       T
	err       error
	callbacks []func(T, error)
	done      chan struct{}
}

// New returns an unresolved Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already settled with v.
func Resolved[T any](v T) *Future[T] {
	f := New[T]()
	f.Resolve(v)
	return f
}

// Failed returns a Future already settled with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	f.Fail(err)
	return f
}

// Resolve settles the future with a value. The first settlement wins;
// later calls are no-ops and return false.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Fail settles the future with an error.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.val = v
	f.err = err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	// Continuations run outside the lock, in registration order.
	for _, cb := range cbs {
		cb(v, err)
	}
	return true
}

// OnResolve registers a continuation that runs exactly once when the
// future settles. If the future is already settled the continuation runs
// synchronously on the calling goroutine.
func (f *Future[T]) OnResolve(cb func(T, error)) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	cb(v, err)
}

// Settled reports whether the future has been resolved or failed.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Peek returns the settled value and error without blocking. ok is false
// while the future is unresolved.
func (f *Future[T]) Peek() (v T, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err, f.settled
}

// Await blocks until the future settles or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WhenAll invokes cb exactly once, after every future in fs has settled.
// cb receives the first error observed in index order, or nil if every
// future resolved. An empty fs invokes cb(nil) synchronously.
func WhenAll[T any](fs []*Future[T], cb func(error)) {
	if len(fs) == 0 {
		cb(nil)
		return
	}

	var (
		mu      sync.Mutex
		pending = len(fs)
		errs    = make([]error, len(fs))
	)
	for i, f := range fs {
		i := i
		f.OnResolve(func(_ T, err error) {
			mu.Lock()
			errs[i] = err
			pending--
			last := pending == 0
			mu.Unlock()
			if last {
				for _, e := range errs {
					if e != nil {
						cb(e)
						return
					}
				}
				cb(nil)
			}
		})
	}
}
