package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts delivered events by kind
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jch_events_total",
		Help: "Total events delivered by kind",
	}, []string{"kind"})

	// ErrorsTotal counts errors by class: syntax, io, depth, encode, delivery
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jch_errors_total",
		Help: "Total errors by class",
	}, []string{"class"})

	// Parks counts how often a ring buffer side went to sleep
	Parks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jch_ring_parks_total",
		Help: "Total ring buffer parks by side",
	}, []string{"side"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "jch_queue_depth",
		Help: "Events buffered between producer and consumer",
	}, []string{"mode"})

	TraverseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jch_traverse_duration_seconds",
		Help:    "Wall time of a traversal from first token to Finished",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"mode"})

	ColumnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jch_shred_columns_open",
		Help: "Column files currently held open by the shredder",
	})

	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jch_shred_bytes_written_total",
		Help: "Encoded bytes handed to column writers",
	})

	BodiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jch_capture_bodies_total",
		Help: "Captured http bodies by direction and outcome",
	}, []string{"direction", "outcome"})
)
