package wsconn

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/wsx/pkg/errors"
	"github.com/tokmz/wsx/pkg/logger"
	"github.com/tokmz/wsx/pkg/socket"
)

// Upgrader WebSocket 升级器
type Upgrader struct {
	upgrader websocket.Upgrader
	cfg      Config
}

// NewUpgrader 创建升级器
func NewUpgrader(cfg Config) (*Upgrader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			CheckOrigin:       cfg.checkOrigin(),
			EnableCompression: cfg.EnableCompression,
		},
		cfg: cfg,
	}, nil
}

// Upgrade 升级 HTTP 连接，失败时升级器已写回 HTTP 错误
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Transport, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, socket.ErrTransport.WithError(err)
	}
	return NewTransport(conn, u.cfg), nil
}

// KeyFunc 为新连接生成 key
type KeyFunc func(c *gin.Context) string

// RandomKey 随机 UUID
func RandomKey(*gin.Context) string {
	return uuid.NewString()
}

// QueryKey 优先使用查询参数 name，缺省时随机 UUID
func QueryKey(name string) KeyFunc {
	return func(c *gin.Context) string {
		if key := c.Query(name); key != "" {
			return key
		}
		return uuid.NewString()
	}
}

type handlerConfig struct {
	keyFunc KeyFunc
	log     logger.Logger
}

// HandlerOption Handler 选项
type HandlerOption func(*handlerConfig)

// WithKeyFunc 设置 key 生成函数，默认 RandomKey
func WithKeyFunc(fn KeyFunc) HandlerOption {
	return func(c *handlerConfig) {
		c.keyFunc = fn
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) HandlerOption {
	return func(c *handlerConfig) {
		c.log = l
	}
}

// Handler 返回 gin 处理函数：升级连接并登记到 Registry
// 握手前已知不能登记的请求直接以错误对应的 http 状态码拒绝；
// 握手后登记失败（并发竞争）时以对应关闭码关闭 WebSocket
func Handler(reg *socket.Registry, up *Upgrader, opts ...HandlerOption) gin.HandlerFunc {
	cfg := &handlerConfig{keyFunc: RandomKey, log: logger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}
	log := cfg.log.With(zap.String("module", "wsconn"))

	return func(c *gin.Context) {
		key := cfg.keyFunc(c)
		if err := reg.Admit(key); err != nil {
			log.WarnContext(c.Request.Context(), "ws_admission_rejected", zap.String("key", key), zap.Error(err))
			c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
				"code":    errors.CodeOf(err),
				"message": err.Error(),
			})
			return
		}

		t, err := up.Upgrade(c.Writer, c.Request)
		if err != nil {
			log.WarnContext(c.Request.Context(), "ws_upgrade_failed", zap.String("key", key), zap.Error(err))
			return
		}

		conn := reg.NewConn(t)
		if err := reg.Add(key, conn); err != nil {
			log.WarnContext(c.Request.Context(), "ws_register_failed", zap.String("key", key), zap.Error(err))
			_ = t.CloseWith(closeCode(err), err.Error())
			_ = conn.Close()
		}
	}
}

// closeCode 登记失败对应的 WebSocket 关闭码
func closeCode(err error) int {
	switch {
	case errors.Is(err, socket.ErrDuplicateKey), errors.Is(err, socket.ErrInvalidKey):
		return websocket.ClosePolicyViolation
	case errors.Is(err, socket.ErrTooManyConnections), errors.Is(err, socket.ErrRegistryClosed):
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseInternalServerErr
	}
}
