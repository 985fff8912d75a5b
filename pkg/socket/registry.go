package socket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/wsx/pkg/logger"
)

// Registry 服务端连接登记表，key -> 连接
//
// 所有对 conns 的修改都在 mu 内完成；对连接的关闭、发送和事件发布都在锁外进行，
// 所以处理器和回调里可以安全地再次调用 Registry 的任何方法。
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	closed   bool
	defaults *HandlerTable

	opts    Options
	log     logger.Logger
	metrics Metrics
	events  *EventBus
}

// NewRegistry 创建 Registry
func NewRegistry(opts ...Option) (*Registry, error) {
	o := buildOptions(opts)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	o.resolve()

	r := &Registry{
		conns:   make(map[string]*Conn),
		opts:    o,
		log:     o.Logger.With(zap.String("module", "socket")),
		metrics: o.Metrics,
		events:  NewEventBus(o.EventQueueSize),
	}
	r.opts.Logger = r.log

	for _, fn := range o.onOpen {
		r.OnOpen(fn)
	}
	for _, fn := range o.onClose {
		r.OnClose(fn)
	}
	for _, fn := range o.onError {
		r.OnError(fn)
	}
	return r, nil
}

// OnOpen 订阅连接登记事件
func (r *Registry) OnOpen(fn func(key string)) {
	r.events.Subscribe(EventConnOpened, func(e Event) { fn(e.Key) })
}

// OnClose 订阅连接移除事件，每个登记过的连接恰好一次
func (r *Registry) OnClose(fn func(key string)) {
	r.events.Subscribe(EventConnClosed, func(e Event) { fn(e.Key) })
}

// OnError 订阅传输错误事件，总是先于同一连接的 OnClose
func (r *Registry) OnError(fn func(key string, err error)) {
	r.events.Subscribe(EventConnError, func(e Event) { fn(e.Key, e.Err) })
}

// Events 底层事件总线
func (r *Registry) Events() *EventBus {
	return r.events
}

// SetHandlers 设置默认处理器表，登记时尚未绑定处理器的连接使用它
func (r *Registry) SetHandlers(t *HandlerTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = t
}

// NewConn 按 Registry 的配置包装传输
// opts 只作用于这条连接，用于编解码器、发送队列和限流；生命周期回调在这里无效
func (r *Registry) NewConn(t Transport, opts ...Option) *Conn {
	o := r.opts
	for _, opt := range opts {
		opt(&o)
	}
	o.resolve()
	return newConn(t, &o)
}

// Accept 包装传输并以 key 登记，失败时关闭传输
// 传输只支持某种编解码器时用 opts 覆盖，例如 WithCodec(JSON())
func (r *Registry) Accept(key string, t Transport, opts ...Option) (*Conn, error) {
	c := r.NewConn(t, opts...)
	if err := r.Add(key, c); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Admit 检查 key 当前能否登记，不做预留；握手前用它提前拒绝
// 通过检查不保证随后的 Add 成功，并发登记仍以 Add 的结果为准
func (r *Registry) Admit(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.closed:
		return ErrRegistryClosed
	case r.conns[key] != nil:
		return ErrDuplicateKey
	case r.opts.MaxConnections > 0 && len(r.conns) >= r.opts.MaxConnections:
		return ErrTooManyConnections
	}
	return nil
}

// Add 登记连接并启动其分发循环
// key 已存在返回 ErrDuplicateKey，原有连接不受影响
func (r *Registry) Add(key string, c *Conn) error {
	if key == "" {
		return ErrInvalidKey
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	if _, exists := r.conns[key]; exists {
		r.mu.Unlock()
		return ErrDuplicateKey
	}
	if r.opts.MaxConnections > 0 && len(r.conns) >= r.opts.MaxConnections {
		r.mu.Unlock()
		return ErrTooManyConnections
	}
	if !c.attach(key, r.evict) {
		r.mu.Unlock()
		if c.State() != StateOpen {
			return ErrConnectionClosed
		}
		return ErrAlreadyRegistered
	}
	r.conns[key] = c
	count := len(r.conns)
	if c.Handlers() == nil && r.defaults != nil {
		c.BindHandlers(r.defaults)
	}
	// 在锁内入队（不阻塞），保证 opened 先于 evict 发布的 closed
	r.events.Publish(Event{Type: EventConnOpened, Key: key})
	r.mu.Unlock()

	r.metrics.IncrementConnections()
	r.metrics.SetConnectionCount(count)
	r.log.Info("conn_opened", zap.String("key", key), zap.String("remote", c.RemoteAddr()), zap.Int("count", count))

	c.start(r.newContext)
	return nil
}

func (r *Registry) newContext(c *Conn, env *Envelope) *Context {
	return &Context{envelope: env, conn: c, registry: r}
}

// Get 按 key 查找连接
func (r *Registry) Get(key string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[key]
	return c, ok
}

// Remove 移除并关闭连接，key 不存在时为空操作
// 可在该连接自己的处理器或回调中调用
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	c, ok := r.conns[key]
	if ok {
		delete(r.conns, key)
	}
	count := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return
	}

	_ = c.Close()
	r.removed(key, c, nil, count)
}

// evict 连接自行关闭时的通知入口，只移除仍是同一连接的条目
func (r *Registry) evict(c *Conn, cause error) {
	key := c.Key()

	r.mu.Lock()
	cur, ok := r.conns[key]
	if !ok || cur != c {
		r.mu.Unlock()
		return
	}
	delete(r.conns, key)
	count := len(r.conns)
	r.mu.Unlock()

	r.removed(key, c, cause, count)
}

// removed 移除后的统计、日志和事件，每个连接只会执行一次
func (r *Registry) removed(key string, c *Conn, cause error, count int) {
	r.metrics.DecrementConnections()
	r.metrics.SetConnectionCount(count)

	if cause != nil {
		r.log.Warn("conn_failed", zap.String("key", key), zap.Error(cause))
		r.events.Publish(Event{Type: EventConnError, Key: key, Err: cause})
	}
	r.log.Info("conn_closed", zap.String("key", key), zap.String("remote", c.RemoteAddr()), zap.Int("count", count))
	r.events.Publish(Event{Type: EventConnClosed, Key: key})
}

// BindHandlers 替换 key 对应连接的处理器表，key 不存在时为空操作
func (r *Registry) BindHandlers(key string, t *HandlerTable) {
	if c, ok := r.Get(key); ok {
		c.BindHandlers(t)
	}
}

// Send 向 key 对应连接发送，key 不存在时静默丢弃并返回 nil
func (r *Registry) Send(key, tag string, v any) error {
	c, ok := r.Get(key)
	if !ok {
		r.log.Debug("send_to_absent_key", zap.String("key", key), zap.String("tag", tag))
		return nil
	}
	return c.Send(tag, v)
}

// Broadcast 向调用时刻登记的所有连接发送
// 单个连接发送失败不影响其他连接，只有编码失败会返回错误
func (r *Registry) Broadcast(tag string, v any) error {
	return r.broadcast(tag, v, nil)
}

// BroadcastExcept 广播，跳过给定的 key
func (r *Registry) BroadcastExcept(tag string, v any, exclude ...string) error {
	skip := make(map[string]struct{}, len(exclude))
	for _, k := range exclude {
		skip[k] = struct{}{}
	}
	return r.broadcast(tag, v, skip)
}

type recipient struct {
	key  string
	conn *Conn
}

func (r *Registry) broadcast(tag string, v any, skip map[string]struct{}) error {
	start := time.Now()
	recipients := r.snapshot(skip)

	// 每种编解码器只编码一次，全部成功后才开始投递
	encoded := make(map[string][]byte, 1)
	for _, rc := range recipients {
		name := rc.conn.codec.Name()
		if _, ok := encoded[name]; ok {
			continue
		}
		data, err := rc.conn.codec.Encode(tag, v)
		if err != nil {
			return err
		}
		encoded[name] = data
	}

	failed := 0
	for _, rc := range recipients {
		if err := rc.conn.enqueue(encoded[rc.conn.codec.Name()]); err != nil {
			failed++
			r.log.Debug("broadcast_send_failed", zap.String("key", rc.key), zap.String("tag", tag), zap.Error(err))
		}
	}

	r.metrics.RecordBroadcastLatency(time.Since(start))
	if failed > 0 {
		r.log.Warn("broadcast_partial", zap.String("tag", tag), zap.Int("recipients", len(recipients)), zap.Int("failed", failed))
	}
	return nil
}

// snapshot 复制当前连接集合
func (r *Registry) snapshot(skip map[string]struct{}) []recipient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]recipient, 0, len(r.conns))
	for key, c := range r.conns {
		if _, ok := skip[key]; ok {
			continue
		}
		out = append(out, recipient{key: key, conn: c})
	}
	return out
}

// Keys 当前登记的 key
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.conns))
	for key := range r.conns {
		keys = append(keys, key)
	}
	return keys
}

// Len 当前连接数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Shutdown 拒绝新连接，关闭全部连接并等待分发循环退出，最后关闭事件总线
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	recipients := make([]recipient, 0, len(r.conns))
	for key, c := range r.conns {
		recipients = append(recipients, recipient{key: key, conn: c})
	}
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	r.log.Info("registry_shutdown", zap.Int("count", len(recipients)))

	for _, rc := range recipients {
		_ = rc.conn.Close()
		r.removed(rc.key, rc.conn, nil, 0)
	}

	var err error
	for _, rc := range recipients {
		select {
		case <-rc.conn.stopped:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
	}

	r.events.Close()
	return err
}
