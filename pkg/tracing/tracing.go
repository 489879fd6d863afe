package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracer stays nil until a Provider is built, which keeps StartSpan free in
// tests and CLI runs.
var tracer trace.Tracer

// SetTracer sets the tracer used by StartSpan. nil disables tracing.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span of whatever span ctx carries.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// RecordError marks span as failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func activeSpan(ctx context.Context) (trace.SpanContext, bool) {
	if tracer == nil {
		return trace.SpanContext{}, false
	}
	sc := trace.SpanContextFromContext(ctx)
	return sc, sc.IsValid()
}

// InjectHeaders writes the trace context of ctx into headers so a downstream
// service or Kafka consumer can continue the trace.
func InjectHeaders(ctx context.Context, headers map[string]string) {
	if _, ok := activeSpan(ctx); !ok {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

func GetTraceID(ctx context.Context) string {
	if sc, ok := activeSpan(ctx); ok {
		return sc.TraceID().String()
	}
	return ""
}

func GetSpanID(ctx context.Context) string {
	if sc, ok := activeSpan(ctx); ok {
		return sc.SpanID().String()
	}
	return ""
}
