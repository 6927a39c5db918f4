package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/sharedstate/pkg/storage"
)

// OTelConfig configures the OpenTelemetry storage decorator.
type OTelConfig struct {
	// TracerName is the name of the tracer.
	// Default: "github.com/vango-dev/sharedstate"
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider from otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// Filter determines which operations to trace.
	// Return false to skip tracing. op is one of GetItem, SetItem,
	// RemoveItem or Keys; key is empty for Keys.
	Filter func(op, key string) bool

	// AttributeExtractor adds custom attributes to spans.
	AttributeExtractor func(op, key string) []attribute.KeyValue
}

// OTelOption configures the OpenTelemetry storage decorator.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *OTelConfig) {
		c.TracerProvider = tp
	}
}

// WithOperationFilter sets a filter for which operations to trace.
func WithOperationFilter(filter func(op, key string) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a function to extract custom attributes.
func WithAttributeExtractor(extractor func(op, key string) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// OpenTelemetry wraps next so that every operation runs inside a span.
//
// Spans include attributes:
//   - sharedstate.storage.op: the operation name
//   - sharedstate.storage.key: the storage key (absent for Keys)
//   - sharedstate.storage.hit: whether GetItem found a value
//   - sharedstate.storage.value_bytes: size of the written value
//   - sharedstate.storage.key_count: number of keys listed
func OpenTelemetry(next storage.Storage, opts ...OTelOption) storage.Storage {
	config := OTelConfig{
		TracerName: "github.com/vango-dev/sharedstate",
	}
	for _, opt := range opts {
		opt(&config)
	}

	provider := config.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}

	return &traced{
		next:   next,
		tracer: provider.Tracer(config.TracerName),
		config: config,
	}
}

type traced struct {
	next   storage.Storage
	tracer trace.Tracer
	config OTelConfig
}

func (s *traced) start(ctx context.Context, op, key string) (context.Context, trace.Span, bool) {
	if s.config.Filter != nil && !s.config.Filter(op, key) {
		return ctx, nil, false
	}

	attrs := []attribute.KeyValue{
		attribute.String("sharedstate.storage.op", op),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("sharedstate.storage.key", key))
	}
	if s.config.AttributeExtractor != nil {
		attrs = append(attrs, s.config.AttributeExtractor(op, key)...)
	}

	ctx, span := s.tracer.Start(ctx, "storage."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, span, true
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *traced) GetItem(ctx context.Context, key string) (string, bool, error) {
	ctx, span, ok := s.start(ctx, "GetItem", key)
	if !ok {
		return s.next.GetItem(ctx, key)
	}
	v, found, err := s.next.GetItem(ctx, key)
	span.SetAttributes(attribute.Bool("sharedstate.storage.hit", found))
	finish(span, err)
	return v, found, err
}

func (s *traced) SetItem(ctx context.Context, key, value string) error {
	ctx, span, ok := s.start(ctx, "SetItem", key)
	if !ok {
		return s.next.SetItem(ctx, key, value)
	}
	span.SetAttributes(attribute.Int("sharedstate.storage.value_bytes", len(value)))
	err := s.next.SetItem(ctx, key, value)
	finish(span, err)
	return err
}

func (s *traced) RemoveItem(ctx context.Context, key string) error {
	ctx, span, ok := s.start(ctx, "RemoveItem", key)
	if !ok {
		return s.next.RemoveItem(ctx, key)
	}
	err := s.next.RemoveItem(ctx, key)
	finish(span, err)
	return err
}

func (s *traced) Keys(ctx context.Context) ([]string, error) {
	ctx, span, ok := s.start(ctx, "Keys", "")
	if !ok {
		return s.next.Keys(ctx)
	}
	keys, err := s.next.Keys(ctx)
	span.SetAttributes(attribute.Int("sharedstate.storage.key_count", len(keys)))
	finish(span, err)
	return keys, err
}
