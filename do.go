package asyncrw

import (
	"context"
)

// Read runs fn while holding l for reading and returns fn's error. It
// blocks until fn has run and the lock has been released. If fn
// panics, the lock is released and the panic propagates.
func (l *RWLock) Read(ctx context.Context, fn func(context.Context) error) error {
	_, err := do(ctx, l, ModeRead, noValue(fn))
	return err
}

// Write runs fn while holding l for writing. See Read.
func (l *RWLock) Write(ctx context.Context, fn func(context.Context) error) error {
	_, err := do(ctx, l, ModeWrite, noValue(fn))
	return err
}

// GoRead requests l for reading and returns immediately. fn runs on
// the Scheduler carried by ctx once admitted.
func (l *RWLock) GoRead(ctx context.Context, fn func(context.Context) error) *Future[struct{}] {
	return goDo(ctx, l, ModeRead, noValue(fn))
}

// GoWrite requests l for writing and returns immediately. See GoRead.
func (l *RWLock) GoWrite(ctx context.Context, fn func(context.Context) error) *Future[struct{}] {
	return goDo(ctx, l, ModeWrite, noValue(fn))
}

// ReadValue runs fn while holding l for reading and returns its
// result.
func ReadValue[T any](ctx context.Context, l *RWLock, fn func(context.Context) (T, error)) (T, error) {
	return do(ctx, l, ModeRead, fn)
}

// WriteValue runs fn while holding l for writing and returns its
// result.
func WriteValue[T any](ctx context.Context, l *RWLock, fn func(context.Context) (T, error)) (T, error) {
	return do(ctx, l, ModeWrite, fn)
}

// ReadAsync requests l for reading and returns a Future for fn's
// result. Whether the request is admitted or queued is decided before
// ReadAsync returns, so requests are ordered by call order.
func ReadAsync[T any](ctx context.Context, l *RWLock, fn func(context.Context) (T, error)) *Future[T] {
	return goDo(ctx, l, ModeRead, fn)
}

// WriteAsync requests l for writing and returns a Future for fn's
// result. See ReadAsync.
func WriteAsync[T any](ctx context.Context, l *RWLock, fn func(context.Context) (T, error)) *Future[T] {
	return goDo(ctx, l, ModeWrite, fn)
}

// noValue adapts a work function without a result to the generic
// core path.
func noValue(fn func(context.Context) error) func(context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}
}

// do is the blocking path. A queued caller parks on ready, which the
// admitting release closes directly. The work runs on the caller's
// goroutine either way, so the wake-up never goes through the
// context's scheduler: a caller running on a Loop would otherwise
// wait on a signal queued behind itself.
func do[T any](ctx context.Context, l *RWLock, mode Mode, fn func(context.Context) (T, error)) (T, error) {
	ready := make(chan struct{})
	if !l.acquire(ctx, mode, Inline, func() { close(ready) }) {
		<-ready
	}
	return run(ctx, l, mode, fn)
}

// goDo is the asynchronous path. The continuation that runs fn and
// resolves the future is posted on the caller's scheduler, either
// right away or by the release that admits it.
func goDo[T any](ctx context.Context, l *RWLock, mode Mode, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	sched := SchedulerFromContext(ctx)

	resume := func() {
		f.resolve(settle(ctx, l, mode, fn))
	}

	if l.acquire(ctx, mode, sched, resume) {
		l.resume(ctx, mode, sched, resume)
	}
	return f
}

// run executes fn under a reservation that is already held, and
// releases it on every exit path.
func run[T any](ctx context.Context, l *RWLock, mode Mode, fn func(context.Context) (T, error)) (v T, err error) {
	defer l.release(ctx, mode)
	region(ctx, func() {
		v, err = fn(ctx)
	})
	return v, err
}

// settle is run with panics turned into a *PanicError.
func settle[T any](ctx context.Context, l *RWLock, mode Mode, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var z T
			v, err = z, newPanicError(r)
		}
	}()
	return run(ctx, l, mode, fn)
}
