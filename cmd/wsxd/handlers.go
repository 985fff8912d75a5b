package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsx/pkg/logger"
	"github.com/tokmz/wsx/pkg/socket"
)

// directMessage send 的载荷
type directMessage struct {
	To      string `json:"to" cbor:"to"`
	Payload any    `json:"payload" cbor:"payload"`
}

// relayed 转发给其他连接的消息
type relayed struct {
	From    string `json:"from" cbor:"from"`
	Payload any    `json:"payload" cbor:"payload"`
}

// builtinHandlers 内置处理器
//
//	ping      -> pong（回给发送者）
//	echo      -> echo（原样回给发送者）
//	whoami    -> whoami（发送者的 key）
//	broadcast -> broadcast（发给所有连接，含发送者）
//	send      -> message（发给 to 指定的连接，不存在时静默丢弃）
func builtinHandlers(log logger.Logger) (*socket.HandlerTable, error) {
	r := socket.NewRouter()
	r.Use(accessLog(log))

	if err := r.Register("ping", func(c *socket.Context) error {
		return c.Reply("pong", nil)
	}); err != nil {
		return nil, err
	}

	if err := r.Register("echo", func(c *socket.Context) error {
		var v any
		if err := c.Bind(&v); err != nil {
			return err
		}
		return c.Reply("echo", v)
	}); err != nil {
		return nil, err
	}

	if err := r.Register("whoami", func(c *socket.Context) error {
		return c.Reply("whoami", c.Key())
	}); err != nil {
		return nil, err
	}

	if err := r.Register("broadcast", func(c *socket.Context) error {
		var v any
		if err := c.Bind(&v); err != nil {
			return err
		}
		return c.Registry().Broadcast("broadcast", relayed{From: c.Key(), Payload: v})
	}); err != nil {
		return nil, err
	}

	if err := socket.Handle(r, "send", func(c *socket.Context, msg *directMessage) error {
		return c.Registry().Send(msg.To, "message", relayed{From: c.Key(), Payload: msg.Payload})
	}); err != nil {
		return nil, err
	}

	return r.Table(), nil
}

// accessLog 记录每条消息的处理耗时
func accessLog(log logger.Logger) socket.MiddlewareFunc {
	return func(c *socket.Context, next socket.NextFunc) error {
		start := time.Now()
		err := next()
		log.DebugContext(c.Context(), "message_handled",
			zap.String("tag", c.Tag()),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("ok", err == nil),
		)
		return err
	}
}
