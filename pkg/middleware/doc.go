// Package middleware provides instrumentation decorators for storage media.
//
// This package includes:
//   - Prometheus metrics for every storage operation
//   - OpenTelemetry spans for every storage operation
//
// Both wrap a storage.Storage and return a storage.Storage, so they compose
// with each other and with storage.Broadcasting:
//
//	var s storage.Storage = storage.NewS3(client, "bucket", "state/")
//	s = middleware.Prometheus(s, middleware.WithNamespace("myapp"))
//	s = middleware.OpenTelemetry(s)
//	rt := sharedstate.New(sharedstate.WithStorage(s))
//
// # Prometheus Metrics
//
// Metrics collected (default namespace "sharedstate", subsystem "storage"):
//   - sharedstate_storage_operations_total{op,status}
//   - sharedstate_storage_operation_duration_seconds{op}
//   - sharedstate_storage_operation_errors_total{op,error_type}
//   - sharedstate_storage_value_bytes
//
// Expose them with promhttp:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry
//
// Spans are named after the operation ("storage.SetItem") and carry the
// storage key. The tracer comes from the global provider unless
// WithTracerProvider is given:
//
//	otel.SetTracerProvider(tp)
//	s = middleware.OpenTelemetry(s, middleware.WithTracerName("my-app"))
package middleware
