package asyncrw

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

// ErrLoopClosed is returned by Loop.Run once the loop has been closed.
var ErrLoopClosed = errors.New("asyncrw: loop closed")

// Scheduler is the execution context a queued request resumes on.
// Post must not block; the lock calls it from the releasing
// goroutine. Post reports whether fn was accepted. A refused resume
// is run on Background instead, so the request still completes and
// releases the lock.
type Scheduler interface {
	Post(fn func()) bool
}

// SchedulerFunc adapts a function to the Scheduler interface. It
// accepts every post.
type SchedulerFunc func(fn func())

// Post calls f(fn) and reports true.
func (f SchedulerFunc) Post(fn func()) bool {
	f(fn)
	return true
}

var (
	// Background runs each posted function on a new goroutine. It is
	// used when a request's context carries no Scheduler.
	Background Scheduler = SchedulerFunc(func(fn func()) { go fn() })

	// Inline runs each posted function on the goroutine that posts
	// it. Functions posted to Inline must not block.
	Inline Scheduler = SchedulerFunc(func(fn func()) { fn() })
)

// post hands fn to s, falling back to Background if s refuses it. It
// reports whether the fallback was used.
func post(s Scheduler, fn func()) bool {
	if s.Post(fn) {
		return false
	}
	Background.Post(fn)
	return true
}

// Loop is a Scheduler that runs posted functions one at a time, in
// posting order, on the goroutine that calls Run. It plays the part of
// an event loop or UI thread: work resumed on a Loop never runs
// concurrently with anything else posted to it.
//
// Functions posted while no Run is active wait for the next Run. Close
// hands any such leftovers to Background, and a closed Loop refuses
// further posts.
type Loop struct {
	noCopy noCopy

	mu      sync.Mutex          // Guards tasks, closed and running
	tasks   deque.Deque[func()] // Posted functions not yet run
	wake    chan struct{}       // Signals Run that tasks or closed changed
	closed  bool                // Close was called
	running bool                // A Run is executing tasks
	log     *zap.Logger         // Reports refused posts and handoffs
}

// NewLoop creates a Loop. Refused posts and work handed off at Close
// are reported to log at warn level; log may be nil.
func NewLoop(log *zap.Logger) *Loop {
	if log == nil {
		log = nopLogger
	}
	return &Loop{
		wake: make(chan struct{}, 1),
		log:  log,
	}
}

// Post queues fn to run on the loop. It never blocks, and refuses fn
// once the loop is closed.
func (lp *Loop) Post(fn func()) bool {
	lp.mu.Lock()
	if lp.closed {
		lp.mu.Unlock()
		lp.log.Warn("post to closed loop refused")
		return false
	}
	lp.tasks.PushBack(fn)
	lp.mu.Unlock()

	lp.signal()
	return true
}

// Run executes posted functions until ctx is done or the loop is
// closed. Functions already queued when Close is called still run, as
// do functions queued when ctx is done. Run returns ctx's error, nil
// after Close, or ErrLoopClosed if the loop was closed before Run was
// called.
func (lp *Loop) Run(ctx context.Context) error {
	lp.mu.Lock()
	if lp.closed && lp.tasks.Len() == 0 {
		lp.mu.Unlock()
		return ErrLoopClosed
	}
	lp.running = true
	lp.mu.Unlock()
	defer lp.stop()

	for {
		fn, closed := lp.next()
		if fn != nil {
			fn()
			continue
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			lp.flush()
			return ctx.Err()
		case <-lp.wake:
		}
	}
}

// next pops the oldest task. With no task left it reports whether
// the loop is closed.
func (lp *Loop) next() (func(), bool) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if lp.tasks.Len() == 0 {
		return nil, lp.closed
	}
	return lp.tasks.PopFront(), false
}

// flush runs every queued task on the calling goroutine.
func (lp *Loop) flush() {
	for fn, _ := lp.next(); fn != nil; fn, _ = lp.next() {
		fn()
	}
}

// stop marks Run as finished. Tasks posted between Run's last check
// and a concurrent Close are handed off.
func (lp *Loop) stop() {
	lp.mu.Lock()
	lp.running = false
	rest := lp.orphansLocked()
	lp.mu.Unlock()
	lp.handoff(rest)
}

// orphansLocked removes and returns the queued tasks if the loop is
// closed and nothing is left to run them.
func (lp *Loop) orphansLocked() []func() {
	if !lp.closed || lp.running {
		return nil
	}
	rest := make([]func(), 0, lp.tasks.Len())
	for lp.tasks.Len() > 0 {
		rest = append(rest, lp.tasks.PopFront())
	}
	return rest
}

// handoff runs orphaned tasks on Background.
func (lp *Loop) handoff(rest []func()) {
	if len(rest) == 0 {
		return
	}
	lp.log.Warn("closed loop handing pending work to background", zap.Int("tasks", len(rest)))
	for _, fn := range rest {
		Background.Post(fn)
	}
}

// signal wakes a Run waiting for tasks, without blocking.
func (lp *Loop) signal() {
	select {
	case lp.wake <- struct{}{}:
	default:
	}
}

// Close refuses further posts and lets a running Run return once the
// queue is empty. Without a running Run, pending functions are handed
// to Background.
func (lp *Loop) Close() {
	lp.mu.Lock()
	lp.closed = true
	rest := lp.orphansLocked()
	lp.mu.Unlock()

	lp.handoff(rest)
	lp.signal()
}

// Pending returns the number of posted functions not yet run.
func (lp *Loop) Pending() int {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return lp.tasks.Len()
}
