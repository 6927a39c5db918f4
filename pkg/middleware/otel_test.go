package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vango-dev/sharedstate/pkg/storage"
)

type startedSpan struct {
	name  string
	kind  trace.SpanKind
	attrs []attribute.KeyValue
}

// recordingProvider remembers every span start and hands out no-op spans.
type recordingProvider struct {
	embedded.TracerProvider

	mu      sync.Mutex
	names   []string
	started []startedSpan
}

func (p *recordingProvider) Tracer(name string, _ ...trace.TracerOption) trace.Tracer {
	p.mu.Lock()
	p.names = append(p.names, name)
	p.mu.Unlock()
	return &recordingTracer{p: p}
}

type recordingTracer struct {
	embedded.Tracer
	p *recordingProvider
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	t.p.mu.Lock()
	t.p.started = append(t.p.started, startedSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()})
	t.p.mu.Unlock()
	return noop.NewTracerProvider().Tracer("").Start(ctx, name)
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOpenTelemetry_StartsSpanPerOperation(t *testing.T) {
	tp := &recordingProvider{}
	s := OpenTelemetry(storage.NewOrigin().Open(), WithTracerProvider(tp), WithTracerName("test-tracer"))
	ctx := context.Background()

	_ = s.SetItem(ctx, "sharedstate:user", `"ann"`)
	_, _, _ = s.GetItem(ctx, "sharedstate:user")
	_, _ = s.Keys(ctx)
	_ = s.RemoveItem(ctx, "sharedstate:user")

	if len(tp.names) != 1 || tp.names[0] != "test-tracer" {
		t.Errorf("tracer names = %v, want [test-tracer]", tp.names)
	}

	want := []string{"storage.SetItem", "storage.GetItem", "storage.Keys", "storage.RemoveItem"}
	if len(tp.started) != len(want) {
		t.Fatalf("started %d spans, want %d", len(tp.started), len(want))
	}
	for i, name := range want {
		got := tp.started[i]
		if got.name != name {
			t.Errorf("span[%d] = %q, want %q", i, got.name, name)
		}
		if got.kind != trace.SpanKindClient {
			t.Errorf("span[%d] kind = %v, want client", i, got.kind)
		}
	}

	key, ok := attrValue(tp.started[0].attrs, "sharedstate.storage.key")
	if !ok || key.AsString() != "sharedstate:user" {
		t.Errorf("SetItem key attribute = %v, %v", key.AsString(), ok)
	}
	if _, ok := attrValue(tp.started[2].attrs, "sharedstate.storage.key"); ok {
		t.Error("Keys span should not carry a key attribute")
	}
}

func TestOpenTelemetry_FilterSkipsSpans(t *testing.T) {
	tp := &recordingProvider{}
	s := OpenTelemetry(storage.NewOrigin().Open(),
		WithTracerProvider(tp),
		WithOperationFilter(func(op, _ string) bool { return op != "GetItem" }),
	)
	ctx := context.Background()

	_ = s.SetItem(ctx, "k", "v")
	v, ok, err := s.GetItem(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("GetItem() = %q, %v, %v", v, ok, err)
	}

	if len(tp.started) != 1 || tp.started[0].name != "storage.SetItem" {
		t.Errorf("started = %+v, want only SetItem", tp.started)
	}
}

func TestOpenTelemetry_AttributeExtractor(t *testing.T) {
	tp := &recordingProvider{}
	s := OpenTelemetry(storage.NewOrigin().Open(),
		WithTracerProvider(tp),
		WithAttributeExtractor(func(op, key string) []attribute.KeyValue {
			return []attribute.KeyValue{attribute.String("tenant", "acme")}
		}),
	)
	_ = s.SetItem(context.Background(), "k", "v")

	v, ok := attrValue(tp.started[0].attrs, "tenant")
	if !ok || v.AsString() != "acme" {
		t.Errorf("tenant attribute = %q, %v", v.AsString(), ok)
	}
}

func TestOpenTelemetry_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	s := OpenTelemetry(brokenStorage{err: boom}, WithTracerProvider(&recordingProvider{}))

	if err := s.SetItem(context.Background(), "k", "v"); !errors.Is(err, boom) {
		t.Errorf("SetItem() error = %v, want boom", err)
	}
	if _, err := s.Keys(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Keys() error = %v, want boom", err)
	}
}
