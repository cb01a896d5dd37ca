package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
)

// Recorder receives session controller instrumentation events. The controller
// depends on this narrow interface so tests can run with NopRecorder.
type Recorder interface {
	Transition(from, to domain.Phase)
	Failure(op, category string)
	OperationDuration(op string, d time.Duration)
}

// NopRecorder discards all instrumentation.
type NopRecorder struct{}

func (NopRecorder) Transition(_, _ domain.Phase)                {}
func (NopRecorder) Failure(_, _ string)                         {}
func (NopRecorder) OperationDuration(_ string, _ time.Duration) {}

// MetricsOptions configures the Prometheus session metrics.
type MetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// Metrics implements Recorder on top of Prometheus collectors.
type Metrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
}

// NewMetrics constructs and registers the session collectors.
func NewMetrics(opts MetricsOptions) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "figrclub"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "transitions_total",
		Help:      "Session state transitions partitioned by source and target phase.",
	}, []string{"from", "to"})

	if err := register(reg, &transitions); err != nil {
		return nil, err
	}

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "auth_failures_total",
		Help:      "Authentication failures partitioned by operation and error category.",
	}, []string{"operation", "category"})

	if err := register(reg, &failures); err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "operation_duration_seconds",
		Help:      "Histogram of session operation latencies in seconds.",
		Buckets:   buckets,
	}, []string{"operation"})

	if err := registerHistogram(reg, &durations); err != nil {
		return nil, err
	}

	return &Metrics{transitions: transitions, failures: failures, durations: durations}, nil
}

// Transition counts a state change.
func (m *Metrics) Transition(from, to domain.Phase) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Failure counts a failed operation by error category.
func (m *Metrics) Failure(op, category string) {
	m.failures.WithLabelValues(op, category).Inc()
}

// OperationDuration observes how long an operation took.
func (m *Metrics) OperationDuration(op string, d time.Duration) {
	m.durations.WithLabelValues(op).Observe(d.Seconds())
}

func register(reg prometheus.Registerer, vec **prometheus.CounterVec) error {
	if err := reg.Register(*vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*vec = existing
	}
	return nil
}

func registerHistogram(reg prometheus.Registerer, vec **prometheus.HistogramVec) error {
	if err := reg.Register(*vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		*vec = existing
	}
	return nil
}
