package asyncrw

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var nopLogger = zap.NewNop()

// Option configures an RWLock created by New.
type Option func(*RWLock)

// New creates an unlocked RWLock with the given options applied.
func New(opts ...Option) *RWLock {
	l := new(RWLock)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithLogger logs admission, queueing and release events at debug
// level. A nil logger disables logging.
func WithLogger(log *zap.Logger) Option {
	return func(l *RWLock) {
		l.log = log
	}
}

// WithClock sets the clock used to measure how long requests wait in
// the queue.
func WithClock(clock clockwork.Clock) Option {
	return func(l *RWLock) {
		l.clock = clock
	}
}

// WithMetrics registers the lock's counters, gauges and wait-time
// histogram in set, labelled with lock=name. name must be unique
// within set: New panics if another lock already registered it.
func WithMetrics(set *metrics.Set, name string) Option {
	return func(l *RWLock) {
		l.metrics = newLockMetrics(set, name, l)
	}
}
