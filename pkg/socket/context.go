package socket

import "context"

// Context 一次消息分发的上下文
type Context struct {
	ctx      context.Context
	envelope *Envelope
	conn     *Conn
	registry *Registry
	peer     *Peer
}

// Context 返回分发用的 context，连接关闭时取消，携带追踪信息
func (c *Context) Context() context.Context { return c.ctx }

// Envelope 当前消息
func (c *Context) Envelope() *Envelope { return c.envelope }

// Tag 当前消息的 tag
func (c *Context) Tag() string { return c.envelope.Tag }

// Key 连接 key，客户端连接为拨号地址
func (c *Context) Key() string { return c.conn.Key() }

// Conn 当前连接
func (c *Context) Conn() *Conn { return c.conn }

// Registry 服务端连接所在的 Registry，客户端为 nil
func (c *Context) Registry() *Registry { return c.registry }

// Peer 客户端连接句柄，服务端为 nil
func (c *Context) Peer() *Peer { return c.peer }

// Bind 把载荷解码到 v
func (c *Context) Bind(v any) error { return c.envelope.Bind(v) }

// Reply 向当前连接发送消息
func (c *Context) Reply(tag string, v any) error { return c.conn.Send(tag, v) }
