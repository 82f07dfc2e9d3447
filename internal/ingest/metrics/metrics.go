// Package metrics exposes the pipeline's prometheus instrumentation:
// per-source frame counts, queue depth gauges, encode latency, and
// reconnection counters, generalized from the teacher's per-camera
// metric vectors to this pipeline's (source, filter, topic) label set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesIngested counts successful reads per source.
	FramesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_frames_ingested_total",
			Help: "Frames successfully read from a video source.",
		},
		[]string{"source"},
	)

	// FramesDropped counts frames a filter declines to forward.
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_frames_dropped_total",
			Help: "Frames consumed by a filter but not forwarded to publication.",
		},
		[]string{"filter"},
	)

	// FramesPublished counts successful bus publications per topic.
	FramesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_frames_published_total",
			Help: "Frames successfully submitted to the bus.",
		},
		[]string{"topic"},
	)

	// PublishErrors counts bus publish failures per topic.
	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_publish_errors_total",
			Help: "Bus publish calls that returned an error.",
		},
		[]string{"topic"},
	)

	// ReconnectAttempts counts every reconnection attempt a source makes,
	// successful or not.
	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_reconnect_attempts_total",
			Help: "Source reconnection attempts, by outcome.",
		},
		[]string{"source", "outcome"}, // outcome: "success" | "failure"
	)

	// QueueDepth reports the current occupancy of an inter-stage queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Current number of records queued between stages.",
		},
		[]string{"queue"}, // "filter_input" | "filter_output" | "queue" (no filter configured)
	)

	// EncodeLatency records how long the Publisher's encode step took.
	EncodeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_encode_latency_ms",
			Help:    "Publisher encode step latency, in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"type"}, // the record's encoding_type, or "none" when not encoding
	)

	// QueueWait records how long a record waited in the filter-output
	// queue before the Publisher picked it up.
	QueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_queue_wait_ms",
			Help:    "Time a record spent queued before publication, in milliseconds.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"topic"},
	)
)
