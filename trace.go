package asyncrw

import (
	"context"
	"runtime/trace"
	"time"

	"go.uber.org/zap"
)

const (
	traceRegionType = "asyncrw-work"
	traceCategory   = "asyncrw"
)

// region runs fn inside a runtime/trace region so admitted work shows
// up in execution traces.
func region(ctx context.Context, fn func()) {
	trace.WithRegion(ctx, traceRegionType, fn)
}

// tracef logs an event to the execution trace when tracing is on.
func tracef(ctx context.Context, format string, args ...any) {
	if trace.IsEnabled() {
		trace.Logf(ctx, traceCategory, format, args...)
	}
}

// stateFields renders a request mode and lock snapshot as log fields.
func stateFields(mode Mode, st Stats) []zap.Field {
	return []zap.Field{
		zap.Stringer("mode", mode),
		zap.Int("readers", st.Readers),
		zap.Bool("writer", st.Writer),
		zap.Int("queued", st.Queued),
	}
}

// observeAdmit records an admission. wait is the time spent queued
// and is zero on the immediate path.
func (l *RWLock) observeAdmit(ctx context.Context, mode Mode, path string, wait time.Duration, st Stats) {
	tracef(ctx, "ADMIT %v %v R%d W%t Q%d", mode, path, st.Readers, st.Writer, st.Queued)
	l.metrics.admit(mode, path, wait)

	if log := l.logger(); log.Core().Enabled(zap.DebugLevel) {
		fields := append(stateFields(mode, st), zap.String("path", path))
		if path == pathQueued {
			fields = append(fields, zap.Duration("wait", wait))
		}
		log.Debug("admit", fields...)
	}
}

// observeEnqueue records a request joining the wait queue.
func (l *RWLock) observeEnqueue(ctx context.Context, mode Mode, st Stats) {
	tracef(ctx, "ENQUEUE %v R%d W%t Q%d", mode, st.Readers, st.Writer, st.Queued)
	l.logger().Debug("enqueue", stateFields(mode, st)...)
}

// observeRelease records a release, with the state after draining.
func (l *RWLock) observeRelease(ctx context.Context, mode Mode, st Stats) {
	tracef(ctx, "RELEASE %v R%d W%t Q%d", mode, st.Readers, st.Writer, st.Queued)
	l.logger().Debug("release", stateFields(mode, st)...)
}
