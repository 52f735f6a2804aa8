package asyncrw

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Future is the handle returned by the asynchronous entry points. It
// resolves once the work has run and the lock has been released.
type Future[T any] struct {
	done chan struct{} // Closed once val and err are set
	val  T             // Work's result
	err  error         // Work's error, or a *PanicError
}

// newFuture creates an unresolved Future.
func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve sets the outcome and wakes waiters. It is called exactly
// once.
func (f *Future[T]) resolve(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done returns a channel that is closed when the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Completed reports whether the future has resolved.
func (f *Future[T]) Completed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves and returns the work's result
// and error.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Await is like Wait but gives up when ctx is done. Giving up does not
// withdraw the request from the lock: the work still runs once
// admitted.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var z T
		return z, ctx.Err()
	}
}

// PanicError is the error a Future resolves with when its work
// panicked. The lock was released before the future resolved.
type PanicError struct {
	Value any    // Value passed to panic
	Stack []byte // Stack of the panicking goroutine
}

// newPanicError captures a recovered value with the current stack.
func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

// Error describes the panic value.
func (e *PanicError) Error() string {
	return fmt.Sprintf("asyncrw: panic in locked work: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
