package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeDelivered    = "delivered"
	OutcomeRetry        = "retry"
	OutcomeDeadLettered = "dead_letter"
)

// OutboxMetrics exposes publisher and processor counters.
type OutboxMetrics struct {
	appended      *prometheus.CounterVec
	envelopes     *prometheus.CounterVec
	dispatchTime  *prometheus.HistogramVec
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram
	handlerErrors *prometheus.CounterVec
}

func NewOutboxMetrics(registerer prometheus.Registerer, cfg Config) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabels(cfg)

	appended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "journeys_outbox_appended_total",
		Help:        "Envelopes appended to the outbox by event type.",
		ConstLabels: constLabels,
	}, []string{"event_type"})
	envelopes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "journeys_outbox_envelopes_total",
		Help:        "Outbox redelivery outcomes by event type.",
		ConstLabels: constLabels,
	}, []string{"event_type", "outcome"})
	dispatchTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "journeys_outbox_dispatch_duration_seconds",
		Help:        "Time spent redelivering one envelope.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"event_type"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "journeys_outbox_batch_duration_seconds",
		Help:        "Time spent processing one outbox batch.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	batchSize := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "journeys_outbox_batch_envelopes",
		Help:        "Pending envelopes selected per batch.",
		Buckets:     []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		ConstLabels: constLabels,
	})
	handlerErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "journeys_event_handler_errors_total",
		Help:        "In-process handler failures by event type.",
		ConstLabels: constLabels,
	}, []string{"event_type"})

	registerer.MustRegister(appended, envelopes, dispatchTime, batchDuration, batchSize, handlerErrors)

	return &OutboxMetrics{
		appended:      appended,
		envelopes:     envelopes,
		dispatchTime:  dispatchTime,
		batchDuration: batchDuration,
		batchSize:     batchSize,
		handlerErrors: handlerErrors,
	}
}

func (m *OutboxMetrics) IncAppended(eventType string) {
	if m == nil {
		return
	}
	m.appended.WithLabelValues(eventType).Inc()
}

// ObserveEnvelope records one redelivery outcome.
func (m *OutboxMetrics) ObserveEnvelope(eventType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(eventType, outcome).Inc()
	m.dispatchTime.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *OutboxMetrics) ObserveBatch(selected int, duration time.Duration) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(selected))
	m.batchDuration.Observe(duration.Seconds())
}

func (m *OutboxMetrics) IncHandlerError(eventType string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(eventType).Inc()
}
