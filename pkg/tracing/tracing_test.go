package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/wsx/pkg/errors"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "grpc exporter", mutate: func(c *Config) { c.ExporterType = "otlp-grpc" }},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad rate", mutate: func(c *Config) { c.SamplingRate = 1.5 }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) { c.ExporterType = "zipkin" }, wantErr: true},
		{name: "bad sampling type", mutate: func(c *Config) { c.SamplingType = "sometimes" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewTracerProviderNoop(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, nil)
	require.NoError(t, err)
	defer tp.Shutdown(ctx)

	spanCtx, span := StartSpan(ctx, "dispatch")
	defer span.End()
	assert.True(t, trace.SpanContextFromContext(spanCtx).IsValid())
}

func TestGinMiddlewareInjectsSpan(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, DefaultConfig())
	require.NoError(t, err)
	defer tp.Shutdown(ctx)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Gin("/healthz"))

	var traced, skipped bool
	r.GET("/ws", func(c *gin.Context) {
		traced = trace.SpanContextFromContext(c.Request.Context()).IsValid()
	})
	r.GET("/healthz", func(c *gin.Context) {
		skipped = !trace.SpanContextFromContext(c.Request.Context()).IsValid()
	})

	for _, path := range []string{"/ws", "/healthz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.True(t, traced)
	assert.True(t, skipped)
}

func TestSampler(t *testing.T) {
	tests := map[string]string{
		"always":       sdktrace.AlwaysSample().Description(),
		"never":        sdktrace.NeverSample().Description(),
		"ratio":        sdktrace.TraceIDRatioBased(0.5).Description(),
		"parent_based": sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.5)).Description(),
		"":             sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.5)).Description(),
	}
	for typ, want := range tests {
		cfg := &Config{SamplingType: typ, SamplingRate: 0.5}
		assert.Equal(t, want, cfg.sampler().Description(), typ)
	}
}

func TestStartMessageSpan(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, DefaultConfig())
	require.NoError(t, err)
	defer tp.Shutdown(ctx)

	spanCtx, span := StartMessageSpan(ctx, "chat", "alice")
	RecordError(span, errors.New(1, 500, "boom", nil))
	RecordError(span, nil)
	span.End()

	assert.True(t, trace.SpanContextFromContext(spanCtx).IsValid())
}
