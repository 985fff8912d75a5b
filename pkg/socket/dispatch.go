package socket

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsx/pkg/logger"
	"github.com/tokmz/wsx/pkg/tracing"
)

// contextFactory 为每条消息构造处理器上下文
type contextFactory func(c *Conn, env *Envelope) *Context

// start 启动读写协程，连接已关闭时返回 false
func (c *Conn) start(newContext contextFactory) bool {
	c.mu.Lock()
	if c.started || c.State() != StateOpen {
		c.mu.Unlock()
		return false
	}
	c.started = true
	c.mu.Unlock()

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		c.writePump()
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		c.readPump(newContext)
	}()
	go func() {
		<-done
		<-done
		close(c.stopped)
	}()
	return true
}

// readPump 分发循环，同一连接的消息严格按到达顺序逐条处理
func (c *Conn) readPump(newContext contextFactory) {
	for {
		data, err := c.transport.ReadFrame()
		if err != nil {
			c.shutdown(c.readFailure(err))
			return
		}

		// 关闭后不再分发
		if c.State() != StateOpen {
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.metrics.IncrementDroppedMessages(DropRateLimited)
			c.log.Debug("message_rate_limited", zap.String("key", c.Key()))
			continue
		}

		env, err := c.codec.Decode(data)
		if err != nil {
			c.metrics.IncrementInvalidMessages()
			c.log.Warn("envelope_decode_failed",
				zap.String("key", c.Key()),
				zap.Int("size", len(data)),
				zap.Error(err),
			)
			continue
		}

		c.dispatch(env, newContext)
	}
}

// readFailure 区分本端关闭、对端正常关闭和传输错误
func (c *Conn) readFailure(err error) error {
	if c.State() != StateOpen {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	c.metrics.IncrementReadErrors()
	return ErrTransport.WithError(err)
}

// dispatch 查表并同步执行处理器，tag 未注册时静默忽略
func (c *Conn) dispatch(env *Envelope, newContext contextFactory) {
	handler, ok := c.table.Load().Resolve(env.Tag)
	if !ok {
		c.metrics.IncrementUnhandledMessages()
		c.log.Debug("message_unhandled", zap.String("key", c.Key()), zap.String("tag", env.Tag))
		return
	}

	key := c.Key()
	ctx, span := tracing.StartMessageSpan(c.ctx, env.Tag, key)
	defer span.End()
	ctx = logger.WithConnKey(ctx, key)

	hc := newContext(c, env)
	hc.ctx = ctx

	start := time.Now()
	err := invoke(handler, hc)
	c.metrics.IncrementMessageCount(env.Tag)
	c.metrics.RecordMessageLatency(env.Tag, time.Since(start))

	switch {
	case err == nil:
	case errors.Is(err, ErrDecode):
		c.metrics.IncrementInvalidMessages()
		c.log.WarnContext(ctx, "payload_decode_failed", zap.String("tag", env.Tag), zap.Error(err))
	default:
		c.metrics.IncrementMessageErrors(env.Tag)
		tracing.RecordError(span, err)
		c.log.ErrorContext(ctx, "handler_failed", zap.String("tag", env.Tag), zap.Error(err))
	}
}

// invoke 执行处理器，panic 转为 ErrHandlerPanic
func invoke(h Handler, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrHandlerPanic.WithError(fmt.Errorf("%v", r))
		}
	}()
	return h(c)
}

// writePump 串行写出发送队列
func (c *Conn) writePump() {
	kind := c.codec.FrameType()
	for {
		select {
		case <-c.quit:
			return
		case data := <-c.send:
			if err := c.transport.WriteFrame(kind, data); err != nil {
				if c.State() == StateOpen {
					c.metrics.IncrementWriteErrors()
					c.shutdown(ErrTransport.WithError(err))
				}
				return
			}
		}
	}
}
