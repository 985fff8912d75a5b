package linetransport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/wsx/pkg/logger"
	"github.com/tokmz/wsx/pkg/socket"
)

// Server 把 TCP 连接登记到 Registry
type Server struct {
	registry *socket.Registry
	log      logger.Logger
	opts     []Option
	keyFunc  func(net.Conn) string
	wg       sync.WaitGroup
}

// ServerOption 服务选项
type ServerOption func(*Server)

// WithLogger 设置日志
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithTransportOptions 每条连接使用的传输选项
func WithTransportOptions(opts ...Option) ServerOption {
	return func(s *Server) {
		s.opts = append(s.opts, opts...)
	}
}

// WithKeyFunc 自定义连接 key，默认随机 UUID
func WithKeyFunc(fn func(net.Conn) string) ServerOption {
	return func(s *Server) {
		s.keyFunc = fn
	}
}

// NewServer 创建服务
func NewServer(registry *socket.Registry, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		log:      logger.Nop(),
		keyFunc:  func(net.Conn) string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("module", "linetransport"))
	return s
}

// Serve 接受连接直到 ctx 取消或 listener 关闭，返回前关闭 listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Info("tcp_server_started", zap.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Info("tcp_server_stopped")
				return nil
			}
			s.log.Warn("tcp_accept_failed", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func(conn net.Conn) {
			defer s.wg.Done()
			s.accept(conn)
		}(conn)
	}
}

func (s *Server) accept(conn net.Conn) {
	key := s.keyFunc(conn)
	// 行协议只承载文本帧，不跟随 Registry 的编解码器
	if _, err := s.registry.Accept(key, New(conn, s.opts...), socket.WithCodec(socket.JSON())); err != nil {
		s.log.Warn("tcp_register_failed",
			zap.String("key", key),
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Error(err),
		)
	}
}
