package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// SchedulerMetrics tracks the outbox poll loop. Every method is safe on a
// nil receiver so the scheduler can run without a registry.
type SchedulerMetrics struct {
	runs         *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	timeouts     *prometheus.CounterVec
	errors       *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	processed    *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	pollInterval *prometheus.GaugeVec
}

func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)
	counter := func(name, help string, vars ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeys_scheduler_" + name, Help: help, ConstLabels: labels,
		}, vars)
		registerer.MustRegister(c)
		return c
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "journeys_scheduler_" + name, Help: help, ConstLabels: labels,
		}, []string{"job"})
		registerer.MustRegister(g)
		return g
	}

	m := &SchedulerMetrics{
		runs:         counter("job_runs_total", "Relay cycles started.", "job"),
		timeouts:     counter("job_timeouts_total", "Relay cycles that hit their deadline.", "job"),
		errors:       counter("job_errors_total", "Failed relay cycles by reason.", "job", "reason"),
		skipped:      counter("job_skipped_total", "Relay cycles skipped without polling.", "job", "reason"),
		processed:    counter("batch_processed_total", "Items handled by relay cycles.", "job", "resource"),
		breakerState: gauge("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)."),
		pollInterval: gauge("poll_interval_seconds", "Poll interval after breaker widening."),
	}
	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "journeys_scheduler_job_duration_seconds",
		Help:        "Relay cycle latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 120},
		ConstLabels: labels,
	}, []string{"job"})
	registerer.MustRegister(m.duration)
	return m
}

func constLabels(cfg Config) prometheus.Labels {
	labels := prometheus.Labels{"service": "journeys", "env": "unknown"}
	if v := strings.TrimSpace(cfg.ServiceName); v != "" {
		labels["service"] = v
	}
	if v := strings.TrimSpace(cfg.Environment); v != "" {
		labels["env"] = v
	}
	return labels
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.runs.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.timeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError counts err under its classified reason.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.errors.WithLabelValues(job, ClassifySchedulerError(err).Reason).Inc()
	}
}

func (m *SchedulerMetrics) IncJobSkipped(job, reason string) {
	if m != nil {
		m.skipped.WithLabelValues(job, reason).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.processed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) SetBreakerState(job string, state gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(job).Set(v)
}

func (m *SchedulerMetrics) SetPollInterval(job string, interval time.Duration) {
	if m != nil {
		m.pollInterval.WithLabelValues(job).Set(interval.Seconds())
	}
}
