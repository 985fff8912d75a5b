package tracing

import (
	"fmt"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tokmz/wsx/pkg/errors"
)

// Config 链路追踪配置，可由配置文件的 tracing 段解码
type Config struct {
	ServiceName    string `mapstructure:"service_name"`    // 服务名称（必填）
	ServiceVersion string `mapstructure:"service_version"` // 服务版本
	Environment    string `mapstructure:"environment"`     // 环境（dev/staging/prod）

	// 导出器类型（otlp/otlp-grpc/stdout/noop）
	ExporterType     string            `mapstructure:"exporter_type"`
	ExporterEndpoint string            `mapstructure:"exporter_endpoint"`
	ExporterHeaders  map[string]string `mapstructure:"exporter_headers"`
	Insecure         bool              `mapstructure:"insecure"`

	SamplingRate float64 `mapstructure:"sampling_rate"` // 采样率（0.0-1.0）
	SamplingType string  `mapstructure:"sampling_type"` // always/never/ratio/parent_based

	Enabled bool `mapstructure:"enabled"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置（noop 导出器，接入前不产生输出）
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "wsxd",
		ServiceVersion:     "dev",
		Environment:        "development",
		ExporterType:       "noop",
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		Enabled:            true,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// ErrInvalidConfig 追踪配置错误，错误码 3100 段
var ErrInvalidConfig = errors.New(3101, 500, "invalid tracing config", nil)

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("tracing: service_name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("tracing: sampling_rate must be within [0, 1], got %v", c.SamplingRate))
	}
	switch c.SamplingType {
	case "", "always", "never", "ratio", "parent_based":
	default:
		return ErrInvalidConfig.WithMessage("tracing: unknown sampling_type " + c.SamplingType)
	}
	switch c.ExporterType {
	case "otlp", "otlp-grpc", "stdout", "noop":
	default:
		return ErrInvalidConfig.WithMessage("tracing: unknown exporter_type " + c.ExporterType)
	}
	return nil
}

// sampler 根据配置创建采样器，未知类型按 parent_based 处理
// OTEL_TRACES_SAMPLER 环境变量由 sdk 自行处理
func (c *Config) sampler() sdktrace.Sampler {
	ratio := sdktrace.TraceIDRatioBased(c.SamplingRate)
	switch c.SamplingType {
	case "always":
		return sdktrace.AlwaysSample()
	case "never":
		return sdktrace.NeverSample()
	case "ratio":
		return ratio
	default:
		return sdktrace.ParentBased(ratio)
	}
}
