package asyncrw

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

const (
	pathImmediate = "immediate"
	pathQueued    = "queued"
)

// lockMetrics holds the metrics of one lock in a metrics.Set.
type lockMetrics struct {
	admitted map[Mode]map[string]*metrics.Counter // By mode, then admission path
	wait     map[Mode]*metrics.Histogram           // Queue wait in seconds, by mode
}

// newLockMetrics registers the metrics of l in set. The gauges read
// l's own state, so name must be unique within set; registering a
// second lock under the same name panics.
func newLockMetrics(set *metrics.Set, name string, l *RWLock) *lockMetrics {
	m := &lockMetrics{
		admitted: make(map[Mode]map[string]*metrics.Counter),
		wait:     make(map[Mode]*metrics.Histogram),
	}

	for _, mode := range []Mode{ModeRead, ModeWrite} {
		m.admitted[mode] = make(map[string]*metrics.Counter)
		for _, path := range []string{pathImmediate, pathQueued} {
			m.admitted[mode][path] = set.GetOrCreateCounter(fmt.Sprintf(
				`asyncrw_admitted_total{lock=%q,mode=%q,path=%q}`, name, mode, path))
		}
		m.wait[mode] = set.GetOrCreateHistogram(fmt.Sprintf(
			`asyncrw_wait_seconds{lock=%q,mode=%q}`, name, mode))
	}

	set.NewGauge(fmt.Sprintf(`asyncrw_active_readers{lock=%q}`, name), func() float64 {
		return float64(l.Stats().Readers)
	})
	set.NewGauge(fmt.Sprintf(`asyncrw_queued{lock=%q}`, name), func() float64 {
		return float64(l.Stats().Queued)
	})

	return m
}

// admit counts an admission and, for queued requests, records the
// wait. A nil m records nothing.
func (m *lockMetrics) admit(mode Mode, path string, wait time.Duration) {
	if m == nil {
		return
	}
	m.admitted[mode][path].Inc()
	if path == pathQueued {
		m.wait[mode].Update(wait.Seconds())
	}
}
