package asyncrw

import (
	"context"
)

// schedulerContextKey is a unique type used as a key for storing a
// Scheduler in a context.
type schedulerContextKey struct{}

// WithScheduler returns a context carrying s. A request made with
// this context that has to wait is resumed on s.
func WithScheduler(ctx context.Context, s Scheduler) context.Context {
	return context.WithValue(ctx, schedulerContextKey{}, s)
}

// SchedulerFromContext returns the Scheduler stored in ctx, or
// Background if there is none.
func SchedulerFromContext(ctx context.Context) Scheduler {
	if s, ok := ctx.Value(schedulerContextKey{}).(Scheduler); ok && s != nil {
		return s
	}
	return Background
}
