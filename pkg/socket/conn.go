package socket

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/tokmz/wsx/pkg/logger"
)

// State 连接状态
type State int32

const (
	// StateConnecting 传输握手中；Conn 总是由已握手的传输构造，不会停留在此状态
	StateConnecting State = iota
	// StateOpen 可收发
	StateOpen
	// StateClosing 正在关闭
	StateClosing
	// StateClosed 已关闭，终态
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// closeNotify 连接关闭时通知所有者，cause 为 nil 表示正常关闭
type closeNotify func(c *Conn, cause error)

// Conn 一条已握手的双向连接
type Conn struct {
	transport Transport
	codec     Codec
	log       logger.Logger
	metrics   Metrics
	limiter   *rate.Limiter

	state atomic.Int32
	table atomic.Pointer[HandlerTable]

	// 发送队列
	send chan []byte

	// 生命周期
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	quit      chan struct{} // 通知写协程退出
	closed    chan struct{} // 进入 StateClosed 后关闭
	stopped   chan struct{} // 读写协程全部退出后关闭

	mu       sync.Mutex
	key      string
	attached bool
	started  bool
	onClosed closeNotify
	err      error
}

// NewConn 包装已完成握手的传输，返回的连接处于 StateOpen
func NewConn(t Transport, opts ...Option) *Conn {
	o := buildOptions(opts)
	return newConn(t, &o)
}

func newConn(t Transport, o *Options) *Conn {
	o.resolve()

	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		transport: t,
		codec:     o.codec,
		log:       o.Logger,
		metrics:   o.Metrics,
		send:      make(chan []byte, o.SendQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		quit:      make(chan struct{}),
		closed:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	if o.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(o.RateLimit), o.RateBurst)
	}

	// 握手属于传输层，传进来的已经可以收发
	c.state.Store(int32(StateOpen))
	return c
}

// Key 连接 key，登记前为空
func (c *Conn) Key() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// State 当前状态
func (c *Conn) State() State {
	return State(c.state.Load())
}

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() string {
	return c.transport.RemoteAddr()
}

// Codec 连接使用的编解码器
func (c *Conn) Codec() Codec {
	return c.codec
}

// Done 连接进入 StateClosed 后关闭
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// Err 关闭原因，正常关闭为 nil
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// BindHandlers 原子替换处理器表，下一条消息起生效
func (c *Conn) BindHandlers(t *HandlerTable) {
	c.table.Store(t)
}

// Handlers 当前处理器表
func (c *Conn) Handlers() *HandlerTable {
	return c.table.Load()
}

// Send 编码并入队，不等待写出
// 连接未打开返回 ErrConnectionClosed，编码失败返回 ErrEncode，队列满返回 ErrSendQueueFull
func (c *Conn) Send(tag string, v any) error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}
	data, err := c.codec.Encode(tag, v)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue 非阻塞入队已编码的帧
func (c *Conn) enqueue(data []byte) error {
	if c.State() != StateOpen {
		c.metrics.IncrementDroppedMessages(DropClosed)
		return ErrConnectionClosed
	}
	select {
	case <-c.quit:
		c.metrics.IncrementDroppedMessages(DropClosed)
		return ErrConnectionClosed
	case c.send <- data:
		return nil
	default:
		c.metrics.IncrementDroppedMessages(DropQueueFull)
		return ErrSendQueueFull
	}
}

// Close 关闭连接，可重复调用，可在自身的处理器中调用
func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// attach 登记所有者，连接已关闭或已有所有者时返回 false
func (c *Conn) attach(key string, notify closeNotify) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attached || c.State() != StateOpen {
		return false
	}
	c.key = key
	c.onClosed = notify
	c.attached = true
	return true
}

// shutdown 进入 Closing，释放传输，进入 Closed，然后通知所有者一次
func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.cancel()
		close(c.quit)
		_ = c.transport.Close()

		c.mu.Lock()
		c.err = cause
		notify := c.onClosed
		if !c.started {
			close(c.stopped)
		}
		c.mu.Unlock()

		c.state.Store(int32(StateClosed))
		close(c.closed)

		if notify != nil {
			notify(c, cause)
		}
	})
}
