package socket

import (
	"go.uber.org/zap"

	"github.com/tokmz/wsx/pkg/logger"
)

// Peer 客户端连接句柄，只持有一条连接和一张处理器表
// 生命周期回调在连接的协程中同步执行
type Peer struct {
	conn *Conn
	log  logger.Logger

	onClose []func(key string)
	onError []func(key string, err error)
}

// NewPeer 以 key 包装已握手的传输并启动分发循环
// 回调顺序：OnOpen 在返回前执行；关闭时先 OnError（仅传输错误），再 OnClose
func NewPeer(key string, t Transport, table *HandlerTable, opts ...Option) *Peer {
	o := buildOptions(opts)
	o.resolve()

	p := &Peer{
		log:     o.Logger.With(zap.String("module", "socket"), zap.String("peer", key)),
		onClose: o.onClose,
		onError: o.onError,
	}
	o.Logger = p.log
	p.conn = newConn(t, &o)
	p.conn.BindHandlers(table)
	p.conn.attach(key, p.closed)

	for _, fn := range o.onOpen {
		fn(key)
	}
	p.log.Info("peer_opened", zap.String("remote", t.RemoteAddr()))

	p.conn.start(p.newContext)
	return p
}

func (p *Peer) newContext(c *Conn, env *Envelope) *Context {
	return &Context{envelope: env, conn: c, peer: p}
}

func (p *Peer) closed(c *Conn, cause error) {
	key := c.Key()
	if cause != nil {
		p.log.Warn("peer_failed", zap.Error(cause))
		for _, fn := range p.onError {
			fn(key, cause)
		}
	}
	p.log.Info("peer_closed")
	for _, fn := range p.onClose {
		fn(key)
	}
}

// Key 连接 key
func (p *Peer) Key() string { return p.conn.Key() }

// Conn 底层连接
func (p *Peer) Conn() *Conn { return p.conn }

// State 连接状态
func (p *Peer) State() State { return p.conn.State() }

// Send 发送消息
func (p *Peer) Send(tag string, v any) error { return p.conn.Send(tag, v) }

// BindHandlers 替换处理器表
func (p *Peer) BindHandlers(t *HandlerTable) { p.conn.BindHandlers(t) }

// Close 关闭连接，可重复调用
func (p *Peer) Close() error { return p.conn.Close() }

// Done 连接关闭后关闭
func (p *Peer) Done() <-chan struct{} { return p.conn.Done() }

// Err 关闭原因，正常关闭为 nil
func (p *Peer) Err() error { return p.conn.Err() }
