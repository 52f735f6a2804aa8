package asyncrw

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestReadersRunTogether(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	r1 := hold(ctx, l, ModeRead)
	r2 := hold(ctx, l, ModeRead)
	r.Equal(Stats{Readers: 2}, l.Stats())

	r1.requireStarted(t)
	r2.requireStarted(t)

	r2.finish(t)
	r1.finish(t)
	r.Equal(Stats{}, l.Stats())
}

func TestWriterWaitsForReaders(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	r1 := hold(ctx, l, ModeRead)
	r2 := hold(ctx, l, ModeRead)
	w := hold(ctx, l, ModeWrite)
	r.Equal(Stats{Readers: 2, Queued: 1, QueuedWriters: 1}, l.Stats())

	r1.finish(t)
	r.Equal(Stats{Readers: 1, Queued: 1, QueuedWriters: 1}, l.Stats())
	w.requireNotStarted(t)

	r2.finish(t)
	r.Equal(Stats{Writer: true}, l.Stats())
	w.requireStarted(t)

	w.finish(t)
	r.Equal(Stats{}, l.Stats())
}

func TestReaderWaitsForWriter(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	w := hold(ctx, l, ModeWrite)
	r3 := hold(ctx, l, ModeRead)
	r.Equal(Stats{Writer: true, Queued: 1, QueuedReaders: 1}, l.Stats())
	r3.requireNotStarted(t)

	w.finish(t)
	r.Equal(Stats{Readers: 1}, l.Stats())
	r3.requireStarted(t)
	r3.finish(t)
}

func TestWriterAtFrontAdmittedAlone(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	r0 := hold(ctx, l, ModeRead)
	w := hold(ctx, l, ModeWrite)
	r4 := hold(ctx, l, ModeRead)
	r.Equal(Stats{Readers: 1, Queued: 2, QueuedReaders: 1, QueuedWriters: 1}, l.Stats())

	r0.finish(t)
	r.Equal(Stats{Writer: true, Queued: 1, QueuedReaders: 1}, l.Stats())
	w.requireStarted(t)
	r4.requireNotStarted(t)

	w.finish(t)
	r.Equal(Stats{Readers: 1}, l.Stats())
	r4.requireStarted(t)
	r4.finish(t)
}

func TestQueuedReadersCoalesce(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	w0 := hold(ctx, l, ModeWrite)
	r5 := hold(ctx, l, ModeRead)
	r6 := hold(ctx, l, ModeRead)
	w2 := hold(ctx, l, ModeWrite)
	r.Equal(Stats{Writer: true, Queued: 3, QueuedReaders: 2, QueuedWriters: 1}, l.Stats())

	w0.finish(t)
	r.Equal(Stats{Readers: 2, Queued: 1, QueuedWriters: 1}, l.Stats())
	r5.requireStarted(t)
	r6.requireStarted(t)

	r5.finish(t)
	w2.requireNotStarted(t)

	r6.finish(t)
	r.Equal(Stats{Writer: true}, l.Stats())
	w2.requireStarted(t)
	w2.finish(t)
}

func TestReaderQueuesBehindWaitingWriter(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	r0 := hold(ctx, l, ModeRead)
	w := hold(ctx, l, ModeWrite)

	// Only a reader is running, but a writer is waiting.
	r1 := hold(ctx, l, ModeRead)
	r.Equal(Stats{Readers: 1, Queued: 2, QueuedReaders: 1, QueuedWriters: 1}, l.Stats())
	r1.requireNotStarted(t)

	r0.finish(t)
	w.requireStarted(t)
	w.finish(t)
	r1.requireStarted(t)
	r1.finish(t)
}

func TestWritersAdmittedInArrivalOrder(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	var order []int
	r0 := hold(ctx, l, ModeRead)

	var futures []*Future[int]
	for i := 1; i <= 3; i++ {
		i := i // per-iteration copy (go 1.22 loopvar semantics)
		futures = append(futures, WriteAsync(ctx, l, func(context.Context) (int, error) {
			order = append(order, i)
			return i, nil
		}))
	}
	f := ReadAsync(ctx, l, func(context.Context) (int, error) {
		order = append(order, 4)
		return 4, nil
	})
	futures = append(futures, f)

	r0.finish(t)
	for i, f := range futures {
		v, err := f.Wait()
		r.NoError(err)
		r.Equal(i+1, v)
	}

	if diff := cmp.Diff([]int{1, 2, 3, 4}, order); diff != "" {
		t.Fatalf("admission order mismatch (-want +got):\n%s", diff)
	}
}

func TestInlineWorkCompletesInCallOrder(t *testing.T) {
	r := require.New(t)
	ctx := WithScheduler(context.Background(), Inline)
	l := New()

	var results []int
	add := func(n int) func(context.Context) error {
		return func(context.Context) error {
			results = append(results, n)
			return nil
		}
	}

	f1 := l.GoRead(ctx, add(1))
	f2 := l.GoWrite(ctx, add(2))
	f3 := l.GoRead(ctx, add(3))

	r.True(f1.Completed())
	r.True(f2.Completed())
	r.True(f3.Completed())
	r.Equal([]int{1, 2, 3}, results)
}

func TestWorkErrorReleasesLock(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()
	errBoom := errors.New("boom")

	_, err := WriteValue(ctx, l, func(context.Context) (string, error) {
		return "", errBoom
	})
	r.ErrorIs(err, errBoom)
	r.Equal(Stats{}, l.Stats())

	v, err := ReadValue(ctx, l, func(context.Context) (string, error) {
		return "ok", nil
	})
	r.NoError(err)
	r.Equal("ok", v)
}

func TestQueuedWorkErrorReleasesLock(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()
	errBoom := errors.New("boom")

	r0 := hold(ctx, l, ModeRead)
	f := l.GoWrite(ctx, func(context.Context) error { return errBoom })
	r3 := hold(ctx, l, ModeRead)

	r0.finish(t)
	_, err := f.Wait()
	r.ErrorIs(err, errBoom)

	r3.requireStarted(t)
	r3.finish(t)
	r.Equal(Stats{}, l.Stats())
}

func TestWorkPanicReleasesLock(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	r.PanicsWithValue("boom", func() {
		_ = l.Write(ctx, func(context.Context) error {
			panic("boom")
		})
	})
	r.Equal(Stats{}, l.Stats())
	r.NoError(l.Read(ctx, func(context.Context) error { return nil }))
}

func TestZeroValueLock(t *testing.T) {
	r := require.New(t)
	var l RWLock

	n, err := WriteValue(context.Background(), &l, func(context.Context) (int, error) {
		return 7, nil
	})
	r.NoError(err)
	r.Equal(7, n)
	r.Equal(Stats{}, l.Stats())
}

func TestReleaseOfUnheldLockPanics(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	r.PanicsWithValue("asyncrw: release of unheld write lock", func() {
		l.release(ctx, ModeWrite)
	})
	r.PanicsWithValue("asyncrw: release of unheld read lock", func() {
		l.release(ctx, ModeRead)
	})

	// The bookkeeping section is not left locked.
	r.Equal(Stats{}, l.Stats())
}

func TestMutualExclusion(t *testing.T) {
	r := require.New(t)
	l := New()
	errViolation := errors.New("exclusion violated")

	var readers, writers atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())

	for i := 0; i < 200; i++ {
		if i%5 == 0 {
			g.Go(func() error {
				return l.Write(ctx, func(context.Context) error {
					defer writers.Add(-1)
					if writers.Add(1) != 1 || readers.Load() != 0 {
						return errViolation
					}
					runtime.Gosched()
					return nil
				})
			})
			continue
		}
		g.Go(func() error {
			return l.Read(ctx, func(context.Context) error {
				readers.Add(1)
				defer readers.Add(-1)
				if writers.Load() != 0 {
					return errViolation
				}
				runtime.Gosched()
				return nil
			})
		})
	}

	r.NoError(g.Wait())
	r.Equal(Stats{}, l.Stats())
}

func TestAsyncMutualExclusion(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	l := New()

	var (
		mu      sync.Mutex
		readers int
		writers int
		bad     bool
	)
	enter := func(write bool) {
		mu.Lock()
		defer mu.Unlock()
		if write {
			writers++
			bad = bad || writers > 1 || readers > 0
		} else {
			readers++
			bad = bad || writers > 0
		}
	}
	leave := func(write bool) {
		mu.Lock()
		defer mu.Unlock()
		if write {
			writers--
		} else {
			readers--
		}
	}

	var futures []*Future[struct{}]
	for i := 0; i < 100; i++ {
		write := i%3 == 0
		fn := func(context.Context) error {
			enter(write)
			runtime.Gosched()
			leave(write)
			return nil
		}
		if write {
			futures = append(futures, l.GoWrite(ctx, fn))
		} else {
			futures = append(futures, l.GoRead(ctx, fn))
		}
	}

	for _, f := range futures {
		_, err := f.Wait()
		r.NoError(err)
	}
	r.False(bad)
	r.Equal(Stats{}, l.Stats())
}

func TestDrainInvariantPanicUnlocks(t *testing.T) {
	r := require.New(t)
	l := New()
	l.queue.push(&waiter{mode: ModeRead, sched: Inline, resume: func() {}})

	l.mu.Lock()
	l.writer = true
	r.PanicsWithValue("asyncrw: reader at queue front while writer active", func() {
		l.drain()
	})

	r.True(l.mu.TryLock())
	l.mu.Unlock()
}
