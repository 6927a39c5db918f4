package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/sharedstate/pkg/storage"
)

func resetGlobalMetricsForTest() {
	globalMetricsMu.Lock()
	globalMetrics = nil
	globalMetricsMu.Unlock()
}

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

// brokenStorage fails every operation with err.
type brokenStorage struct{ err error }

func (b brokenStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, b.err
}
func (b brokenStorage) SetItem(context.Context, string, string) error { return b.err }
func (b brokenStorage) RemoveItem(context.Context, string) error      { return b.err }
func (b brokenStorage) Keys(context.Context) ([]string, error)        { return nil, b.err }

func TestPrometheus_RecordsOperations(t *testing.T) {
	resetGlobalMetricsForTest()
	reg := prometheus.NewRegistry()
	s := Prometheus(storage.NewOrigin().Open(), WithRegistry(reg), WithNamespace("test"))
	ctx := context.Background()

	if err := s.SetItem(ctx, "a", "12345"); err != nil {
		t.Fatalf("SetItem() error: %v", err)
	}
	if _, ok, _ := s.GetItem(ctx, "a"); !ok {
		t.Fatal("GetItem(a) missed")
	}
	if _, ok, _ := s.GetItem(ctx, "b"); ok {
		t.Fatal("GetItem(b) hit")
	}
	if _, err := s.Keys(ctx); err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	if err := s.RemoveItem(ctx, "a"); err != nil {
		t.Fatalf("RemoveItem() error: %v", err)
	}

	c := GetMetrics()
	if c == nil {
		t.Fatal("GetMetrics() = nil")
	}
	tests := []struct {
		op, status string
		want       float64
	}{
		{"set", "success", 1},
		{"get", "hit", 1},
		{"get", "miss", 1},
		{"keys", "success", 1},
		{"remove", "success", 1},
		{"set", "error", 0},
	}
	for _, tt := range tests {
		got := metricCounterValue(t, c.OpsTotal.WithLabelValues(tt.op, tt.status))
		if got != tt.want {
			t.Errorf("operations_total{%s,%s} = %v, want %v", tt.op, tt.status, got, tt.want)
		}
	}
	if got := metricHistogramCount(t, c.OpDuration.WithLabelValues("get")); got != 2 {
		t.Errorf("duration{get} count = %d, want 2", got)
	}
	if got := metricHistogramCount(t, c.ValueBytes); got != 1 {
		t.Errorf("value_bytes count = %d, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_storage_operations_total" {
			found = true
		}
	}
	if !found {
		t.Error("test_storage_operations_total not registered")
	}
}

func TestPrometheus_RecordsErrors(t *testing.T) {
	resetGlobalMetricsForTest()
	reg := prometheus.NewRegistry()
	s := Prometheus(brokenStorage{err: storage.ErrClosed}, WithRegistry(reg))

	err := s.SetItem(context.Background(), "k", "v")
	if !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("SetItem() error = %v, want ErrClosed", err)
	}

	c := GetMetrics()
	if got := metricCounterValue(t, c.OpsTotal.WithLabelValues("set", "error")); got != 1 {
		t.Errorf("operations_total{set,error} = %v, want 1", got)
	}
	if got := metricCounterValue(t, c.OpErrors.WithLabelValues("set", "closed")); got != 1 {
		t.Errorf("operation_errors_total{set,closed} = %v, want 1", got)
	}
	if got := metricHistogramCount(t, c.ValueBytes); got != 0 {
		t.Errorf("value_bytes count = %d, want 0 after failed write", got)
	}
}

func TestPrometheus_SharesGlobalMetrics(t *testing.T) {
	resetGlobalMetricsForTest()
	reg := prometheus.NewRegistry()
	origin := storage.NewOrigin()

	// A second call must not re-register collectors.
	a := Prometheus(origin.Open(), WithRegistry(reg))
	b := Prometheus(origin.Open(), WithRegistry(reg))

	ctx := context.Background()
	_ = a.SetItem(ctx, "x", "1")
	_ = b.SetItem(ctx, "y", "2")

	if got := metricCounterValue(t, GetMetrics().OpsTotal.WithLabelValues("set", "success")); got != 2 {
		t.Errorf("operations_total{set,success} = %v, want 2", got)
	}
}

func TestGetMetrics_NilBeforeInit(t *testing.T) {
	resetGlobalMetricsForTest()
	if GetMetrics() != nil {
		t.Error("GetMetrics() should be nil before Prometheus is called")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{storage.ErrClosed, "closed"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("read timeout"), "timeout"},
		{errors.New("AccessDenied: access denied"), "permission"},
		{errors.New("no space left on device"), "quota"},
		{errors.New("SlowDown: reduce your request rate"), "throttled"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := categorizeError(tt.err); got != tt.want {
			t.Errorf("categorizeError(%q) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
