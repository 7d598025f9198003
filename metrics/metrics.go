package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsAccepted  *prometheus.CounterVec
	EventsSkipped   prometheus.Counter
	IngestFailures  prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clickstream",
			Subsystem: "ingest",
			Name:      "events_accepted_total",
			Help:      "Events persisted by the ingestion service, by event type.",
		}, []string{"type"}),
		EventsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clickstream",
			Subsystem: "ingest",
			Name:      "events_skipped_total",
			Help:      "Events dropped because a required field was missing.",
		}),
		IngestFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "clickstream",
			Subsystem: "ingest",
			Name:      "persistence_failures_total",
			Help:      "Ingestion requests aborted by a store failure.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clickstream",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
