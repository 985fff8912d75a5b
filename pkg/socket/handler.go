package socket

import (
	"sort"
	"sync"
)

// Handler 消息处理器
type Handler func(c *Context) error

// NextFunc 中间件下一步函数
type NextFunc func() error

// MiddlewareFunc 中间件函数
type MiddlewareFunc func(c *Context, next NextFunc) error

// HandlerTable 不可变的 tag -> 处理器映射，中间件链已预编译
// 可被多个连接共享，绑定与替换都是整表切换
type HandlerTable struct {
	handlers map[string]Handler
}

// NewHandlerTable 用现成映射构造处理器表，不带中间件
func NewHandlerTable(handlers map[string]Handler) *HandlerTable {
	t := &HandlerTable{handlers: make(map[string]Handler, len(handlers))}
	for tag, h := range handlers {
		if tag != "" && h != nil {
			t.handlers[tag] = h
		}
	}
	return t
}

// Resolve 查找 tag 对应的处理器，找不到时 ok 为 false，调用方应静默忽略
func (t *HandlerTable) Resolve(tag string) (Handler, bool) {
	if t == nil {
		return nil, false
	}
	h, ok := t.handlers[tag]
	return h, ok
}

// Tags 已注册的 tag，按字典序
func (t *HandlerTable) Tags() []string {
	if t == nil {
		return nil
	}
	tags := make([]string, 0, len(t.handlers))
	for tag := range t.handlers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Len 处理器数量
func (t *HandlerTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.handlers)
}

// Router 处理器表构建器
type Router struct {
	handlers   map[string]Handler
	middleware []MiddlewareFunc
	mu         sync.RWMutex
}

// NewRouter 创建路由器
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]Handler),
	}
}

// Register 注册处理器
func (r *Router) Register(tag string, handler Handler) error {
	if tag == "" {
		return ErrInvalidTag
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[tag]; exists {
		return ErrHandlerExists
	}

	r.handlers[tag] = handler
	return nil
}

// Use 添加中间件，按添加顺序由外向内执行
func (r *Router) Use(middleware ...MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// Table 生成当前注册内容的不可变快照，之后的 Register/Use 不影响已生成的表
func (r *Router) Table() *HandlerTable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := &HandlerTable{handlers: make(map[string]Handler, len(r.handlers))}
	for tag, handler := range r.handlers {
		t.handlers[tag] = buildChain(r.middleware, handler)
	}
	return t
}

// buildChain 从后向前构建中间件链
func buildChain(middleware []MiddlewareFunc, handler Handler) Handler {
	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		final = func(mw MiddlewareFunc, next Handler) Handler {
			return func(c *Context) error {
				return mw(c, func() error {
					return next(c)
				})
			}
		}(middleware[i], final)
	}
	return final
}

// HandlerFunc0 泛型处理器函数（有请求无响应）
type HandlerFunc0[Req any] func(c *Context, req *Req) error

// HandlerFunc 泛型处理器函数（有请求有响应）
type HandlerFunc[Req any, Resp any] func(c *Context, req *Req) (*Resp, error)

// Handle 注册泛型处理器，载荷解码失败时返回 ErrDecode，处理器不会被调用
func Handle[Req any](router *Router, tag string, handler HandlerFunc0[Req]) error {
	return router.Register(tag, func(c *Context) error {
		var req Req
		if err := c.Bind(&req); err != nil {
			return err
		}
		return handler(c, &req)
	})
}

// HandleReply 注册泛型处理器，成功时把结果以 replyTag 发回同一连接
func HandleReply[Req any, Resp any](router *Router, tag, replyTag string, handler HandlerFunc[Req, Resp]) error {
	return router.Register(tag, func(c *Context) error {
		var req Req
		if err := c.Bind(&req); err != nil {
			return err
		}

		resp, err := handler(c, &req)
		if err != nil {
			return err
		}
		return c.Reply(replyTag, resp)
	})
}
