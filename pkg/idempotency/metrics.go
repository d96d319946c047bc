package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds idempotency-related Prometheus metrics
type Metrics struct {
	Hits                *prometheus.CounterVec
	Misses              *prometheus.CounterVec
	ParameterMismatches *prometheus.CounterVec
	ConcurrentConflicts *prometheus.CounterVec
	StorageErrors       *prometheus.CounterVec
}

// NewMetrics creates and registers the idempotency metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	labels := []string{"service", "endpoint", "method"}

	return &Metrics{
		Hits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Requests answered from a cached idempotent response",
		}, labels),
		Misses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_misses_total",
			Help: "Requests processed under a new idempotency key",
		}, labels),
		ParameterMismatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_parameter_mismatches_total",
			Help: "Keys reused with a different request",
		}, labels),
		ConcurrentConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_concurrent_conflicts_total",
			Help: "Requests rejected while the same key was in flight",
		}, labels),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_storage_errors_total",
			Help: "Idempotency store failures",
		}, []string{"service", "operation"}),
	}
}

// RecordHit counts a cached response replay
func (m *Metrics) RecordHit(service, endpoint, method string) {
	if m != nil {
		m.Hits.WithLabelValues(service, endpoint, method).Inc()
	}
}

// RecordMiss counts a request processed under a new key
func (m *Metrics) RecordMiss(service, endpoint, method string) {
	if m != nil {
		m.Misses.WithLabelValues(service, endpoint, method).Inc()
	}
}

// RecordParameterMismatch counts a key reused with a different request
func (m *Metrics) RecordParameterMismatch(service, endpoint, method string) {
	if m != nil {
		m.ParameterMismatches.WithLabelValues(service, endpoint, method).Inc()
	}
}

// RecordConcurrentConflict counts a request rejected because its key is in flight
func (m *Metrics) RecordConcurrentConflict(service, endpoint, method string) {
	if m != nil {
		m.ConcurrentConflicts.WithLabelValues(service, endpoint, method).Inc()
	}
}

// RecordStorageError counts an idempotency store failure
func (m *Metrics) RecordStorageError(service, operation string) {
	if m != nil {
		m.StorageErrors.WithLabelValues(service, operation).Inc()
	}
}
