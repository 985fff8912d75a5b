package wsconn

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tokmz/wsx/pkg/socket"
)

// Config WebSocket 传输配置
type Config struct {
	// 缓冲区
	ReadBufferSize  int `mapstructure:"read_buffer_size"`
	WriteBufferSize int `mapstructure:"write_buffer_size"`

	// 握手超时
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	// 单条消息上限，超过后连接以 1009 关闭
	MaxMessageSize int64 `mapstructure:"max_message_size"`

	// 心跳：每 PingPeriod 发一次 ping，PongWait 内没有任何读入则判定断线
	WriteWait  time.Duration `mapstructure:"write_wait"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	EnableCompression bool `mapstructure:"enable_compression"`

	// Origin 白名单，为空时使用同源检查
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// 允许所有来源（仅用于开发环境）
	AllowAllOrigins bool `mapstructure:"allow_all_origins"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   512 * 1024, // 512KB
		WriteWait:        10 * time.Second,
		PongWait:         60 * time.Second,
		PingPeriod:       54 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ReadBufferSize < 0 || c.WriteBufferSize < 0 {
		return invalid("buffer sizes must not be negative")
	}
	if c.HandshakeTimeout < 0 {
		return invalid(fmt.Sprintf("handshake_timeout must not be negative, got %v", c.HandshakeTimeout))
	}
	if c.MaxMessageSize < 0 {
		return invalid(fmt.Sprintf("max_message_size must not be negative, got %d", c.MaxMessageSize))
	}
	if c.WriteWait <= 0 {
		return invalid(fmt.Sprintf("write_wait must be positive, got %v", c.WriteWait))
	}
	if c.PingPeriod < 0 || c.PongWait < 0 {
		return invalid("ping_period and pong_wait must not be negative")
	}
	if c.PingPeriod > 0 && c.PongWait > 0 && c.PingPeriod >= c.PongWait {
		return invalid(fmt.Sprintf("ping_period (%v) must be less than pong_wait (%v)", c.PingPeriod, c.PongWait))
	}
	return nil
}

func invalid(msg string) error {
	return socket.ErrInvalidOptions.WithMessage("wsconn: " + msg)
}

// checkOrigin 根据配置生成 Origin 检查函数
// 没有 Origin 头的请求来自非浏览器客户端，总是放行
func (c *Config) checkOrigin() func(*http.Request) bool {
	if c.AllowAllOrigins {
		return func(*http.Request) bool { return true }
	}

	if len(c.AllowedOrigins) > 0 {
		whitelist := make(map[string]bool, len(c.AllowedOrigins))
		for _, origin := range c.AllowedOrigins {
			whitelist[strings.ToLower(origin)] = true
		}
		return func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || whitelist[strings.ToLower(origin)]
		}
	}

	return sameOrigin
}

// sameOrigin 同源检查
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
