package socket

import (
	"fmt"

	"github.com/tokmz/wsx/pkg/logger"
)

// Options 连接与 Registry 配置，可由 config 的 socket 段解码
type Options struct {
	// 最大连接数，0 不限制
	MaxConnections int     `mapstructure:"max_connections"`
	// 每个连接的发送队列长度
	SendQueueSize  int     `mapstructure:"send_queue_size"`
	// 每连接每秒入站消息数，0 不限流
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateBurst      int     `mapstructure:"rate_burst"`
	// json 或 cbor
	Codec          string  `mapstructure:"codec"`
	// 事件总线队列长度
	EventQueueSize int     `mapstructure:"event_queue_size"`

	Logger  logger.Logger `mapstructure:"-"`
	Metrics Metrics       `mapstructure:"-"`

	codec   Codec
	onOpen  []func(key string)
	onClose []func(key string)
	onError []func(key string, err error)
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		MaxConnections: 10000,
		SendQueueSize:  256,
		RateBurst:      32,
		Codec:          "json",
		EventQueueSize: 1024,
	}
}

// Validate 验证配置
func (o *Options) Validate() error {
	if o.MaxConnections < 0 {
		return ErrInvalidOptions.WithMessage(fmt.Sprintf("socket: max_connections must not be negative, got %d", o.MaxConnections))
	}
	if o.SendQueueSize <= 0 {
		return ErrInvalidOptions.WithMessage(fmt.Sprintf("socket: send_queue_size must be positive, got %d", o.SendQueueSize))
	}
	if o.RateLimit < 0 {
		return ErrInvalidOptions.WithMessage(fmt.Sprintf("socket: rate_limit must not be negative, got %v", o.RateLimit))
	}
	if o.RateLimit > 0 && o.RateBurst <= 0 {
		return ErrInvalidOptions.WithMessage(fmt.Sprintf("socket: rate_burst must be positive when rate_limit is set, got %d", o.RateBurst))
	}
	if o.codec == nil {
		if _, err := CodecByName(o.Codec); err != nil {
			return err
		}
	}
	return nil
}

// resolve 补齐默认依赖
func (o *Options) resolve() {
	if o.codec == nil {
		o.codec, _ = CodecByName(o.Codec)
		if o.codec == nil {
			o.codec = JSON()
		}
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
}

// Option 配置选项
type Option func(*Options)

func buildOptions(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithOptions 整体替换配置，通常传入从配置文件解码的 Options
// 已设置的 Logger、Metrics 和生命周期回调在 o 未设置时保留
func WithOptions(o Options) Option {
	return func(dst *Options) {
		if o.Logger == nil {
			o.Logger = dst.Logger
		}
		if o.Metrics == nil {
			o.Metrics = dst.Metrics
		}
		o.onOpen = append(dst.onOpen, o.onOpen...)
		o.onClose = append(dst.onClose, o.onClose...)
		o.onError = append(dst.onError, o.onError...)
		if o.codec == nil && o.Codec == dst.Codec {
			o.codec = dst.codec
		}
		*dst = o
	}
}

// WithMaxConnections 设置最大连接数
func WithMaxConnections(n int) Option {
	return func(o *Options) {
		o.MaxConnections = n
	}
}

// WithSendQueueSize 设置发送队列长度
func WithSendQueueSize(n int) Option {
	return func(o *Options) {
		o.SendQueueSize = n
	}
}

// WithRateLimit 设置入站限流
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Options) {
		o.RateLimit = perSecond
		o.RateBurst = burst
	}
}

// WithCodec 设置编解码器
func WithCodec(c Codec) Option {
	return func(o *Options) {
		o.codec = c
		o.Codec = c.Name()
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithOnOpen 连接建立回调
func WithOnOpen(fn func(key string)) Option {
	return func(o *Options) {
		o.onOpen = append(o.onOpen, fn)
	}
}

// WithOnClose 连接关闭回调，每个连接恰好一次
func WithOnClose(fn func(key string)) Option {
	return func(o *Options) {
		o.onClose = append(o.onClose, fn)
	}
}

// WithOnError 传输错误回调，随后必有一次 OnClose
func WithOnError(fn func(key string, err error)) Option {
	return func(o *Options) {
		o.onError = append(o.onError, fn)
	}
}
