package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	gaps      *prometheus.CounterVec
	staleRuns prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddGaps increments the missing-month counter for the supplied dataset.
func (m *Metrics) AddGaps(dataset string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if dataset == "" {
		dataset = "unknown"
	}
	m.gaps.WithLabelValues(dataset).Add(float64(count))
}

// AddStaleRuns increments the stalled-run counter.
func (m *Metrics) AddStaleRuns(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.staleRuns.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "churnscope_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "churnscope_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "churnscope_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	gaps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "churnscope_activity_gaps_total",
		Help: "Missing activity months discovered by the gap scan, grouped by dataset.",
	}, []string{"dataset"})
	staleRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "churnscope_stale_runs_total",
		Help: "Label runs observed stuck in RUNNING past the staleness cutoff.",
	})
	registerer.MustRegister(runs, failures, duration, gaps, staleRuns)
	return &Metrics{runs: runs, failures: failures, duration: duration, gaps: gaps, staleRuns: staleRuns}
}
