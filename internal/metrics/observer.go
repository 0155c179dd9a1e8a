package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer exports storage gateway metrics to Prometheus.
type Observer struct {
	duration      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	uploadedBytes prometheus.Counter
}

// NewObserver registers operation latency, error and upload volume metrics
// under namespace. A nil registerer means the default registry.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "storage_gateway"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of storage gateway operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "bucket"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed storage gateway operations.",
		}, []string{"operation", "bucket"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Cumulative payload size successfully uploaded to object storage.",
		}),
	}

	var err error
	if o.duration, err = register(reg, o.duration); err != nil {
		return nil, err
	}
	if o.errors, err = register(reg, o.errors); err != nil {
		return nil, err
	}
	if o.uploadedBytes, err = register(reg, o.uploadedBytes); err != nil {
		return nil, err
	}
	return o, nil
}

// register returns the already-registered collector when one with the same
// descriptor exists, so observers can be rebuilt against one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register storage metric: %w", err)
	}
	return c, nil
}

// RecordUpload tracks upload latency, size and failures.
func (o *Observer) RecordUpload(bucket string, duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.RecordOperation("upload", bucket, duration, err)
	if err == nil && sizeBytes > 0 {
		o.uploadedBytes.Add(float64(sizeBytes))
	}
}

// RecordOperation tracks latency and failures of any other operation.
func (o *Observer) RecordOperation(operation, bucket string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(operation, bucket).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(operation, bucket).Inc()
	}
}
