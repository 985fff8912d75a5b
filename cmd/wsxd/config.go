package main

import (
	"fmt"
	"time"

	"github.com/tokmz/wsx/pkg/config"
	"github.com/tokmz/wsx/pkg/logger"
	"github.com/tokmz/wsx/pkg/socket"
	"github.com/tokmz/wsx/pkg/tracing"
	"github.com/tokmz/wsx/pkg/wsconn"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	Mode            string        `mapstructure:"mode"`             // debug/release/test
	Addr            string        `mapstructure:"addr"`             // HTTP 监听地址
	TCPAddr         string        `mapstructure:"tcp_addr"`         // 行协议 TCP 监听地址，空则不启用
	WSPath          string        `mapstructure:"ws_path"`          // WebSocket 路径
	KeyParam        string        `mapstructure:"key_param"`        // 客户端指定 key 的查询参数，空则总是随机
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`     // 读取超时
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`    // 写入超时
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`     // 空闲超时（HTTP 与 TCP 读空闲）
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // 关机超时
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`  // 信任的代理 IP
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// Config wsxd 配置，socket 段同时解码为 socket.Options 和 wsconn.Config
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Log     logger.Config  `mapstructure:"log"`
	Tracing tracing.Config `mapstructure:"tracing"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Socket  socket.Options `mapstructure:"socket"`
	WS      wsconn.Config  `mapstructure:"-"`
}

// defaults 默认值，同时让环境变量覆盖对所有键生效
func defaults() map[string]any {
	ws := wsconn.DefaultConfig()
	so := socket.DefaultOptions()
	tr := tracing.DefaultConfig()

	return map[string]any{
		"server.mode":             "release",
		"server.addr":             ":8080",
		"server.tcp_addr":         "",
		"server.ws_path":          "/ws",
		"server.key_param":        "key",
		"server.read_timeout":     "10s",
		"server.write_timeout":    "10s",
		"server.idle_timeout":     "60s",
		"server.shutdown_timeout": "10s",

		"log.level":   "info",
		"log.format":  "json",
		"log.console": true,

		"tracing.service_name":  tr.ServiceName,
		"tracing.exporter_type": tr.ExporterType,
		"tracing.sampling_rate": tr.SamplingRate,
		"tracing.sampling_type": tr.SamplingType,
		"tracing.enabled":       tr.Enabled,
		"tracing.batch_timeout": tr.BatchTimeout,

		"metrics.enabled":   true,
		"metrics.path":      "/metrics",
		"metrics.namespace": "wsx",

		"socket.max_connections":    so.MaxConnections,
		"socket.send_queue_size":    so.SendQueueSize,
		"socket.rate_limit":         so.RateLimit,
		"socket.rate_burst":         so.RateBurst,
		"socket.codec":              so.Codec,
		"socket.event_queue_size":   so.EventQueueSize,
		"socket.read_buffer_size":   ws.ReadBufferSize,
		"socket.write_buffer_size":  ws.WriteBufferSize,
		"socket.handshake_timeout":  ws.HandshakeTimeout,
		"socket.max_message_size":   ws.MaxMessageSize,
		"socket.write_wait":         ws.WriteWait,
		"socket.pong_wait":          ws.PongWait,
		"socket.ping_period":        ws.PingPeriod,
		"socket.allow_all_origins":  false,
		"socket.allowed_origins":    []string{},
		"socket.enable_compression": ws.EnableCompression,
	}
}

// loadConfig 加载配置，path 为空时只使用默认值和环境变量
func loadConfig(path string, onChange func()) (*config.Config, *Config, error) {
	opts := []config.Option{
		config.WithDefaults(defaults()),
		config.WithEnvPrefix("WSX"),
	}
	if path != "" {
		opts = append(opts, config.WithConfigFile(path))
		if onChange != nil {
			opts = append(opts, config.WithWatch(onChange))
		}
	} else {
		opts = append(opts, config.WithSearch("wsxd", ".", "/etc/wsxd"), config.WithOptional())
	}

	c := config.New(opts...)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}

	cfg, err := decodeConfig(c)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, cfg, nil
}

// decodeConfig 把已加载的配置解码为 Config
func decodeConfig(c *config.Config) (*Config, error) {
	cfg := &Config{
		Tracing: *tracing.DefaultConfig(),
		Socket:  socket.DefaultOptions(),
		WS:      wsconn.DefaultConfig(),
	}
	if err := c.Unmarshal(cfg); err != nil {
		return nil, err
	}
	// socket 段再解码一次到传输配置；走 Unmarshal 才能带上 WSX_SOCKET_* 环境变量
	transport := struct {
		WS wsconn.Config `mapstructure:"socket"`
	}{WS: cfg.WS}
	if err := c.Unmarshal(&transport); err != nil {
		return nil, err
	}
	cfg.WS = transport.WS
	switch cfg.Server.Mode {
	case "debug", "release", "test":
	default:
		return nil, fmt.Errorf("invalid server mode %q", cfg.Server.Mode)
	}
	if err := cfg.Socket.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.WS.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
