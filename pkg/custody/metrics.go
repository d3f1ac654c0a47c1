package custody

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for the custody core. Construct
// one with NewMetrics and pass it to the service via WithMetrics; a nil
// Metrics disables instrumentation.
type Metrics struct {
	commits      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	lockWait     prometheus.Histogram
	lockTimeouts prometheus.Counter
	locksHeld    prometheus.Gauge
}

// NewMetrics creates and registers the custody collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "commits_total",
			Help:      "Committed custody mutations by operation.",
		}, []string{"op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "failures_total",
			Help:      "Failed custody mutations by operation and error code.",
		}, []string{"op", "code"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "custody",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the per-object guard.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "custody",
			Name:      "lock_timeouts_total",
			Help:      "Guard acquisitions that exceeded the wait bound.",
		}),
		locksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "custody",
			Name:      "locks_held",
			Help:      "Object guards currently held.",
		}),
	}
	reg.MustRegister(m.commits, m.failures, m.lockWait, m.lockTimeouts, m.locksHeld)
	return m
}

func (m *Metrics) observeCommit(op string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(op).Inc()
}

func (m *Metrics) observeFailure(op string, err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op, ErrorCode(err)).Inc()
}

func (m *Metrics) observeLockWait(d time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
	if timedOut {
		m.lockTimeouts.Inc()
	}
}

func (m *Metrics) lockHeld(delta float64) {
	if m == nil {
		return
	}
	m.locksHeld.Add(delta)
}

// ErrorCode maps an error to its taxonomy label, shared by metrics and the
// HTTP layer.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrLocationNotFound), errors.Is(err, ErrAttachmentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidLocation):
		return "invalid_location"
	case errors.Is(err, ErrDuplicateCode):
		return "duplicate_code"
	case errors.Is(err, ErrDuplicateTag):
		return "duplicate_tag"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrSequenceConflict):
		return "sequence_conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidActor):
		return "invalid_actor"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMetadataTooLarge):
		return "validation"
	default:
		return "storage"
	}
}
