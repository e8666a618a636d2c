// Package metrics records validation and composition metrics in Prometheus.
//
// Metrics:
//   - <ns>_operations_total: operations by name and outcome
//   - <ns>_operation_duration_seconds: operation latency
//   - <ns>_rule_violations_total: consistency violations by rule and severity
package metrics

import (
	"context"
	"time"

	"beaconcore/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements core.MetricsRecorder.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	violations *prometheus.CounterVec
}

// NewRecorder creates and registers the metrics. A nil registry gets a fresh
// one; namespace defaults to "beaconcore".
func NewRecorder(namespace string, registry *prometheus.Registry) (*Recorder, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "beaconcore"
	}
	r := &Recorder{
		registry: registry,
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Validation and composition operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of validation and composition operations in seconds",
				// validation is in-memory, composition waits on query engines
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12),
			},
			[]string{"operation"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_violations_total",
				Help:      "Consistency rule violations by rule and severity",
			},
			[]string{"rule", "severity"},
		),
	}
	for _, c := range []prometheus.Collector{r.operations, r.duration, r.violations} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Registry returns the registry the metrics live in.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Observe records one operation.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveViolation counts one rule violation.
func (r *Recorder) ObserveViolation(_ context.Context, v domain.Violation) {
	r.violations.WithLabelValues(v.Rule, string(v.Severity)).Inc()
}
