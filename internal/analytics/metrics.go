package analytics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// promMetrics holds the Prometheus collectors fed by the sink
type promMetrics struct {
	registry         *prometheus.Registry
	framesProcessed  *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	framesSkipped    *prometheus.CounterVec
	queueEvictions   *prometheus.CounterVec
	inferenceSeconds *prometheus.HistogramVec
	detectionsTotal  *prometheus.CounterVec
}

func newPromMetrics() *promMetrics {
	m := &promMetrics{
		registry: prometheus.NewRegistry(),
		framesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "frames_processed_total",
			Help:      "Detection cycles completed per camera",
		}, []string{"camera"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "frames_dropped_total",
			Help:      "Detection results evicted from full result queues",
		}, []string{"camera"}),
		framesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "frames_skipped_total",
			Help:      "Frames skipped while draining to the freshest frame",
		}, []string{"camera"}),
		queueEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "queue_evictions_total",
			Help:      "Frames evicted from full capture queues",
		}, []string{"camera"}),
		inferenceSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zvision",
			Name:      "inference_seconds",
			Help:      "Inference latency per detection cycle",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"camera"}),
		detectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zvision",
			Name:      "detections_total",
			Help:      "Detections above the confidence threshold by class",
		}, []string{"camera", "class"}),
	}

	m.registry.MustRegister(
		m.framesProcessed,
		m.framesDropped,
		m.framesSkipped,
		m.queueEvictions,
		m.inferenceSeconds,
		m.detectionsTotal,
	)
	return m
}

func (m *promMetrics) observeInference(camera string, latency time.Duration, classCounts map[int]int) {
	m.framesProcessed.WithLabelValues(camera).Inc()
	m.inferenceSeconds.WithLabelValues(camera).Observe(latency.Seconds())
	for class, n := range classCounts {
		m.detectionsTotal.WithLabelValues(camera, strconv.Itoa(class)).Add(float64(n))
	}
}
