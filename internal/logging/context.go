package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if batchID := BatchIDFromContext(ctx); batchID != "" {
		fields = append(fields, zap.String("batch.id", batchID))
	}

	if ref := ImageRefFromContext(ctx); ref != "" {
		fields = append(fields, zap.String("image.ref", ref))
	}

	return fields
}

type batchCtxKey struct{}
type imageRefCtxKey struct{}

// WithBatchID attaches a batch run identifier to the context.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchCtxKey{}, id)
}

// BatchIDFromContext returns the batch identifier, or "".
func BatchIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(batchCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithImageRef attaches the image reference being processed to the context.
func WithImageRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, imageRefCtxKey{}, ref)
}

// ImageRefFromContext returns the image reference, or "".
func ImageRefFromContext(ctx context.Context) string {
	if ref, ok := ctx.Value(imageRefCtxKey{}).(string); ok {
		return ref
	}
	return ""
}
