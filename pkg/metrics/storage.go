package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage records file operations.
type Storage struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Bytes      *prometheus.CounterVec
}

// NewStorage registers the storage collectors with reg. A nil reg returns
// nil, which disables recording.
func NewStorage(reg prometheus.Registerer) *Storage {
	if reg == nil {
		return nil
	}
	return &Storage{
		Operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage operations by operation and status",
		}, []string{"operation", "status"}),
		Duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Storage operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		Bytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes moved by direction (upload, download)",
		}, []string{"direction"}),
	}
}

// ObserveOperation counts op and records its latency.
func (m *Storage) ObserveOperation(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, status(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordBytes adds n bytes in direction.
func (m *Storage) RecordBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Bytes.WithLabelValues(direction).Add(float64(n))
}
