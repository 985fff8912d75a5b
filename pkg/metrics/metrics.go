package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tokmz/wsx/pkg/socket"
)

// Config Prometheus 指标配置
type Config struct {
	Namespace   string                `mapstructure:"namespace"`
	Subsystem   string                `mapstructure:"subsystem"`
	ConstLabels prometheus.Labels     `mapstructure:"-"`
	Buckets     []float64             `mapstructure:"buckets"`
	Registry    prometheus.Registerer `mapstructure:"-"`
}

// Option 配置选项
type Option func(*Config)

// WithNamespace 设置命名空间
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem 设置子系统
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels 设置常量标签
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets 设置直方图分桶
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry 设置注册器，默认 prometheus.DefaultRegisterer
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "wsx",
		Subsystem: "socket",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus socket.Metrics 的 Prometheus 实现
type Prometheus struct {
	connections      prometheus.Gauge
	connectionsTotal prometheus.Counter
	messagesTotal    *prometheus.CounterVec
	messageDuration  *prometheus.HistogramVec
	messageErrors    *prometheus.CounterVec
	unhandled        prometheus.Counter
	broadcast        prometheus.Histogram
	dropped          *prometheus.CounterVec
	readErrors       prometheus.Counter
	writeErrors      prometheus.Counter
	invalidMessages  prometheus.Counter
}

var _ socket.Metrics = (*Prometheus)(nil)

// New 创建并注册指标，同一 Registerer 上重复创建会 panic
func New(opts ...Option) *Prometheus {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(cfg.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		})
	}

	return &Prometheus{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "connections",
			Help:        "Number of registered connections",
			ConstLabels: cfg.ConstLabels,
		}),
		connectionsTotal: counter("connections_total", "Total number of accepted connections"),

		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "messages_total",
			Help:        "Total number of dispatched messages",
			ConstLabels: cfg.ConstLabels,
		}, []string{"tag"}),

		messageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "message_duration_seconds",
			Help:        "Handler duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"tag"}),

		messageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "message_errors_total",
			Help:        "Total number of handler errors",
			ConstLabels: cfg.ConstLabels,
		}, []string{"tag"}),

		unhandled: counter("unhandled_messages_total", "Total number of messages without a handler"),

		broadcast: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "broadcast_duration_seconds",
			Help:        "Broadcast fan-out duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "dropped_messages_total",
			Help:        "Total number of dropped messages",
			ConstLabels: cfg.ConstLabels,
		}, []string{"reason"}),

		readErrors:      counter("read_errors_total", "Total number of transport read errors"),
		writeErrors:     counter("write_errors_total", "Total number of transport write errors"),
		invalidMessages: counter("invalid_messages_total", "Total number of malformed messages"),
	}
}

func (p *Prometheus) IncrementConnections() {
	p.connectionsTotal.Inc()
}

// DecrementConnections 连接数由 SetConnectionCount 维护
func (p *Prometheus) DecrementConnections() {}

func (p *Prometheus) SetConnectionCount(count int) {
	p.connections.Set(float64(count))
}

func (p *Prometheus) IncrementMessageCount(tag string) {
	p.messagesTotal.WithLabelValues(tag).Inc()
}

func (p *Prometheus) RecordMessageLatency(tag string, d time.Duration) {
	p.messageDuration.WithLabelValues(tag).Observe(d.Seconds())
}

func (p *Prometheus) IncrementMessageErrors(tag string) {
	p.messageErrors.WithLabelValues(tag).Inc()
}

func (p *Prometheus) IncrementUnhandledMessages() {
	p.unhandled.Inc()
}

func (p *Prometheus) RecordBroadcastLatency(d time.Duration) {
	p.broadcast.Observe(d.Seconds())
}

func (p *Prometheus) IncrementDroppedMessages(reason string) {
	p.dropped.WithLabelValues(reason).Inc()
}

func (p *Prometheus) IncrementReadErrors()      { p.readErrors.Inc() }
func (p *Prometheus) IncrementWriteErrors()     { p.writeErrors.Inc() }
func (p *Prometheus) IncrementInvalidMessages() { p.invalidMessages.Inc() }
