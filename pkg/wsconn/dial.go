package wsconn

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tokmz/wsx/pkg/socket"
)

type dialConfig struct {
	cfg        Config
	header     http.Header
	socketOpts []socket.Option
}

// DialOption 拨号选项
type DialOption func(*dialConfig)

// WithConfig 设置传输配置
func WithConfig(cfg Config) DialOption {
	return func(c *dialConfig) {
		c.cfg = cfg
	}
}

// WithHeader 设置握手请求头
func WithHeader(h http.Header) DialOption {
	return func(c *dialConfig) {
		c.header = h
	}
}

// WithSocketOptions 设置连接选项（编解码器、日志、生命周期回调等）
func WithSocketOptions(opts ...socket.Option) DialOption {
	return func(c *dialConfig) {
		c.socketOpts = append(c.socketOpts, opts...)
	}
}

// Dial 建立客户端连接，握手完成后开始按 table 分发
// 握手失败返回 socket.ErrTransport，此时不会触发任何生命周期回调
func Dial(ctx context.Context, url string, table *socket.HandlerTable, opts ...DialOption) (*socket.Peer, error) {
	dc := &dialConfig{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(dc)
	}
	if err := dc.cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  dc.cfg.HandshakeTimeout,
		ReadBufferSize:    dc.cfg.ReadBufferSize,
		WriteBufferSize:   dc.cfg.WriteBufferSize,
		EnableCompression: dc.cfg.EnableCompression,
	}

	conn, resp, err := dialer.DialContext(ctx, url, dc.header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, socket.ErrTransport.WithError(err)
	}

	return socket.NewPeer(url, NewTransport(conn, dc.cfg), table, dc.socketOpts...), nil
}
