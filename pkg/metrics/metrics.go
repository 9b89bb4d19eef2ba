package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Job runner metrics
	JobRuns        *prometheus.CounterVec
	JobItems       *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	LockContention *prometheus.CounterVec
	LockLost       *prometheus.CounterVec

	// Channel metrics
	ChannelSends      *prometheus.CounterVec
	BreakerRejections *prometheus.CounterVec
}

// New creates all application metrics and registers them on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Total number of job runs by outcome",
		}, []string{"job", "status"}),
		JobItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "items_total",
			Help:      "Total number of items a job reported as handled",
		}, []string{"job"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Time spent in a single job run",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		LockContention: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "lock_contention_total",
			Help:      "Runs skipped because another run held the job lock",
		}, []string{"job"}),
		LockLost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "lock_lost_total",
			Help:      "Runs cancelled because their job lock could not be refreshed",
		}, []string{"job"}),

		ChannelSends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "sends_total",
			Help:      "Total number of channel sends by outcome",
		}, []string{"channel", "status"}),
		BreakerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "breaker_rejections_total",
			Help:      "Sends rejected while the circuit breaker was open",
		}, []string{"channel"}),
	}
}
