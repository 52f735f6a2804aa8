package asyncrw

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Mode is the access a request asks for.
type Mode uint8

const (
	// ModeRead may run alongside other readers but never alongside a
	// writer.
	ModeRead Mode = iota
	// ModeWrite runs in isolation from all readers and writers.
	ModeWrite
)

// String returns "read" or "write".
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "invalid"
	}
}

// RWLock is an asynchronous reader-writer lock. The zero value is an
// unlocked lock with no logger and no metrics; use New to configure
// one.
//
// A request is admitted on arrival only if nothing is queued and the
// current holders allow it. Otherwise it joins the back of the wait
// queue, even a reader when only readers hold the lock, so a waiting
// writer can never be overtaken. On release the queue is drained from
// the front: consecutive readers are admitted together, and a writer
// is admitted alone once no reader remains.
//
// An RWLock must not be copied after first use. It is not reentrant.
type RWLock struct {
	noCopy noCopy

	mu      sync.Mutex // Guards readers, writer and queue
	readers int        // Readers currently running their work
	writer  bool       // A writer is running its work
	queue   waitQueue  // Requests not yet admitted, oldest first

	log     *zap.Logger     // Event log; nil means no logging
	clock   clockwork.Clock // Measures queue wait; nil means wall clock
	metrics *lockMetrics    // Optional admission metrics
}

// Stats is a consistent snapshot of an RWLock's bookkeeping.
type Stats struct {
	Readers       int  // Active readers
	Writer        bool // A writer is active
	Queued        int  // Requests waiting for admission
	QueuedReaders int  // Waiting requests for ModeRead
	QueuedWriters int  // Waiting requests for ModeWrite
}

// Stats returns a snapshot of the lock state.
func (l *RWLock) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statsLocked()
}

// statsLocked builds a Stats snapshot. l.mu must be held.
func (l *RWLock) statsLocked() Stats {
	return Stats{
		Readers:       l.readers,
		Writer:        l.writer,
		Queued:        l.queue.len(),
		QueuedReaders: l.queue.readers,
		QueuedWriters: l.queue.writers,
	}
}

// acquire admits a request for mode or queues it. It reports true if
// the request was admitted on arrival, in which case resume is never
// called and the caller proceeds straight into its work. Otherwise
// resume is posted onto sched once a release admits the request.
func (l *RWLock) acquire(ctx context.Context, mode Mode, sched Scheduler, resume func()) bool {
	now := l.now()

	l.mu.Lock()
	if l.admissible(mode) {
		l.reserve(mode)
		st := l.statsLocked()
		l.mu.Unlock()

		l.observeAdmit(ctx, mode, pathImmediate, 0, st)
		return true
	}

	l.queue.push(&waiter{mode: mode, sched: sched, resume: resume, since: now})
	st := l.statsLocked()
	l.mu.Unlock()

	l.observeEnqueue(ctx, mode, st)
	return false
}

// admissible reports whether a request may run now. Any queued
// request forces newcomers to queue behind it.
func (l *RWLock) admissible(mode Mode) bool {
	if l.queue.len() > 0 || l.writer {
		return false
	}
	return mode == ModeRead || l.readers == 0
}

// reserve takes the lock for an admitted request. l.mu must be held.
func (l *RWLock) reserve(mode Mode) {
	if mode == ModeWrite {
		l.writer = true
	} else {
		l.readers++
	}
}

// release undoes the reservation held for mode and admits whatever
// the queue allows. Admitted waiters are resumed after the critical
// section; their reservations are already in place by then.
func (l *RWLock) release(ctx context.Context, mode Mode) {
	l.mu.Lock()
	switch {
	case mode == ModeWrite && !l.writer:
		l.mu.Unlock()
		panic("asyncrw: release of unheld write lock")
	case mode == ModeRead && l.readers <= 0:
		l.mu.Unlock()
		panic("asyncrw: release of unheld read lock")
	case mode == ModeWrite:
		l.writer = false
	default:
		l.readers--
	}

	admitted := l.drain()
	st := l.statsLocked()
	l.mu.Unlock()

	l.observeRelease(ctx, mode, st)

	now := l.now()
	for _, w := range admitted {
		l.observeAdmit(ctx, w.mode, pathQueued, now.Sub(w.since), st)
		l.resume(ctx, w.mode, w.sched, w.resume)
	}
}

// resume posts an admitted request's continuation onto sched. The
// reservation is already held, so a scheduler that refuses the post
// must not strand it: the continuation then runs on Background.
func (l *RWLock) resume(ctx context.Context, mode Mode, sched Scheduler, fn func()) {
	if post(sched, fn) {
		tracef(ctx, "RESUME %v FALLBACK", mode)
		l.logger().Warn("scheduler refused resume, running on background",
			zap.Stringer("mode", mode))
	}
}

// drain pops admissible waiters from the front of the queue and
// reserves the lock for each. It stops at a writer that cannot run
// yet, and right after admitting a writer. l.mu must be held; it is
// released before drain panics on a broken invariant.
func (l *RWLock) drain() []*waiter {
	var admitted []*waiter

	for w := l.queue.front(); w != nil; w = l.queue.front() {
		if w.mode == ModeWrite {
			if l.readers > 0 {
				break
			}
			l.queue.pop()
			l.writer = true
			admitted = append(admitted, w)
			break
		}

		if l.writer {
			l.mu.Unlock()
			panic("asyncrw: reader at queue front while writer active")
		}
		l.queue.pop()
		l.readers++
		admitted = append(admitted, w)
	}

	return admitted
}

// now reads the lock's clock, or the wall clock for a zero-value lock.
func (l *RWLock) now() time.Time {
	if l.clock == nil {
		return time.Now()
	}
	return l.clock.Now()
}

// logger returns the configured logger or a no-op one.
func (l *RWLock) logger() *zap.Logger {
	if l.log == nil {
		return nopLogger
	}
	return l.log
}
