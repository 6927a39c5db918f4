package middleware

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/sharedstate/pkg/storage"
)

// MetricsConfig configures the Prometheus storage decorator.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "sharedstate").
	Namespace string

	// Subsystem is the metrics subsystem (default: "storage").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for operation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus storage decorator.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "sharedstate",
		Subsystem: "storage",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	opErrors   *prometheus.CounterVec
	valueBytes prometheus.Histogram
}

// globalMetrics is the singleton metrics instance, created on the first
// call to Prometheus. Registering the same collectors twice would panic.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		opsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "operations_total",
			Help:        "Total number of storage operations",
			ConstLabels: config.ConstLabels,
		}, []string{"op", "status"}),

		opDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "operation_duration_seconds",
			Help:        "Storage operation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"op"}),

		opErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "operation_errors_total",
			Help:        "Total number of failed storage operations",
			ConstLabels: config.ConstLabels,
		}, []string{"op", "error_type"}),

		valueBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "value_bytes",
			Help:        "Size of values written to storage in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{64, 512, 4096, 32768, 262144, 2097152}, // 64B to 2MB
		}),
	}
}

// Prometheus wraps next so that every operation is counted and timed.
//
// Example:
//
//	s := middleware.Prometheus(storage.NewOrigin().Open(),
//	    middleware.WithNamespace("myapp"),
//	)
func Prometheus(next storage.Storage, opts ...MetricsOption) storage.Storage {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return &measured{next: next, m: m}
}

type measured struct {
	next storage.Storage
	m    *metrics
}

func (s *measured) GetItem(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	v, ok, err := s.next.GetItem(ctx, key)
	status := "hit"
	if !ok {
		status = "miss"
	}
	s.observe("get", start, status, err)
	return v, ok, err
}

func (s *measured) SetItem(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.next.SetItem(ctx, key, value)
	if err == nil {
		s.m.valueBytes.Observe(float64(len(value)))
	}
	s.observe("set", start, "success", err)
	return err
}

func (s *measured) RemoveItem(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.RemoveItem(ctx, key)
	s.observe("remove", start, "success", err)
	return err
}

func (s *measured) Keys(ctx context.Context) ([]string, error) {
	start := time.Now()
	keys, err := s.next.Keys(ctx)
	s.observe("keys", start, "success", err)
	return keys, err
}

func (s *measured) observe(op string, start time.Time, status string, err error) {
	s.m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		status = "error"
		s.m.opErrors.WithLabelValues(op, categorizeError(err)).Inc()
	}
	s.m.opsTotal.WithLabelValues(op, status).Inc()
}

// categorizeError returns a category for the error type.
// This prevents high-cardinality labels from error messages.
func categorizeError(err error) string {
	if errors.Is(err, storage.ErrClosed) {
		return "closed"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "quota"), strings.Contains(errStr, "no space"):
		return "quota"
	case strings.Contains(errStr, "permission"), strings.Contains(errStr, "access denied"):
		return "permission"
	case strings.Contains(errStr, "slowdown"), strings.Contains(errStr, "throttl"):
		return "throttled"
	default:
		return "internal"
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector exposes the storage metrics for custom registrations and tests.
type Collector struct {
	OpsTotal   *prometheus.CounterVec
	OpDuration *prometheus.HistogramVec
	OpErrors   *prometheus.CounterVec
	ValueBytes prometheus.Histogram
}

// GetMetrics returns the global metrics collector.
// Returns nil if Prometheus has not been called yet.
func GetMetrics() *Collector {
	globalMetricsMu.Lock()
	defer globalMetricsMu.Unlock()
	if globalMetrics == nil {
		return nil
	}
	return &Collector{
		OpsTotal:   globalMetrics.opsTotal,
		OpDuration: globalMetrics.opDuration,
		OpErrors:   globalMetrics.opErrors,
		ValueBytes: globalMetrics.valueBytes,
	}
}
