package echobus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the pipeline.
// A nil *Metrics is valid and records nothing, so services can run without a registry.
type Metrics struct {
	Published          *prometheus.CounterVec
	PublishFailures    *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
	Retries            *prometheus.CounterVec
	DeadLetterFailures *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec
	PartitionWorkers   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Published tracks records acknowledged by the broker per topic
		Published: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echobus_published_total",
				Help: "Total number of records acknowledged by the broker",
			},
			[]string{"topic"},
		),

		// PublishFailures tracks rejected or failed sends
		PublishFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echobus_publish_failures_total",
				Help: "Total number of records the broker did not acknowledge",
			},
			[]string{"topic"},
		),

		// Deliveries tracks terminal delivery states
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echobus_deliveries_total",
				Help: "Total number of deliveries that reached a terminal state",
			},
			[]string{"topic", "state"},
		),

		Retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echobus_retries_total",
				Help: "Total number of scheduled retries",
			},
			[]string{"topic"},
		),

		DeadLetterFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "echobus_dead_letter_failures_total",
				Help: "Total number of dead-letter publishes that failed",
			},
			[]string{"topic"},
		),

		// ProcessingDuration spans the first attempt to the terminal state, retries included
		ProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "echobus_processing_duration_seconds",
				Help:    "Time from first attempt to terminal state in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"topic"},
		),

		PartitionWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "echobus_partition_workers",
				Help: "Number of running partition workers",
			},
		),
	}
}

func (m *Metrics) published(topic string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PublishFailures.WithLabelValues(topic).Inc()
		return
	}
	m.Published.WithLabelValues(topic).Inc()
}

func (m *Metrics) delivered(topic string, state DeliveryState, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(topic, state.String()).Inc()
	m.ProcessingDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

func (m *Metrics) retried(topic string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(topic).Inc()
}

func (m *Metrics) deadLetterFailed(topic string) {
	if m == nil {
		return
	}
	m.DeadLetterFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) workerStarted() {
	if m == nil {
		return
	}
	m.PartitionWorkers.Inc()
}

func (m *Metrics) workerStopped() {
	if m == nil {
		return
	}
	m.PartitionWorkers.Dec()
}
