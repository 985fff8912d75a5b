package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "github.com/tokmz/wsx"

// StartSpan 从 context 启动新 Span，使用全局 TracerProvider
func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(defaultTracerName).Start(ctx, spanName, opts...)
}

// StartMessageSpan 为一条入站消息启动 Consumer Span，名称为 "socket.dispatch <tag>"
func StartMessageSpan(ctx context.Context, tag, key string) (context.Context, trace.Span) {
	return StartSpan(ctx, "socket.dispatch "+tag,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("socket.tag", tag),
			attribute.String("socket.key", key),
		),
	)
}

// RecordError 记录错误到 Span
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
