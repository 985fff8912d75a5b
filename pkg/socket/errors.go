package socket

import "github.com/tokmz/wsx/pkg/errors"

// 错误定义，错误码 4000 段
var (
	// ErrDecode 入站数据不符合信封格式或载荷形状，单条丢弃，连接保持
	ErrDecode = errors.New(4001, 400, "socket: malformed envelope", nil)
	// ErrEncode 载荷无法被编码，本次发送中止，连接保持
	ErrEncode = errors.New(4002, 500, "socket: payload not representable", nil)
	// ErrDuplicateKey key 已被占用
	ErrDuplicateKey = errors.New(4003, 409, "socket: duplicate connection key", nil)
	// ErrTooManyConnections 超过连接数上限
	ErrTooManyConnections = errors.New(4004, 503, "socket: too many connections", nil)
	// ErrTransport 底层传输失败（握手失败、断线、写失败）
	ErrTransport = errors.New(4005, 502, "socket: transport failure", nil)

	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New(4010, 410, "socket: connection closed", nil)
	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = errors.New(4011, 503, "socket: send queue full", nil)
	// ErrAlreadyRegistered 连接已经登记到某个 Registry
	ErrAlreadyRegistered = errors.New(4012, 409, "socket: connection already registered", nil)
	// ErrRegistryClosed Registry 已关闭
	ErrRegistryClosed = errors.New(4013, 503, "socket: registry closed", nil)
	// ErrInvalidKey 空 key
	ErrInvalidKey = errors.New(4014, 400, "socket: empty connection key", nil)

	// ErrInvalidTag 空 tag
	ErrInvalidTag = errors.New(4020, 400, "socket: empty tag", nil)
	// ErrHandlerExists tag 已注册
	ErrHandlerExists = errors.New(4021, 500, "socket: handler already registered", nil)
	// ErrHandlerPanic 处理器 panic
	ErrHandlerPanic = errors.New(4022, 500, "socket: handler panicked", nil)

	// ErrUnknownCodec 未知编解码器
	ErrUnknownCodec = errors.New(4030, 500, "socket: unknown codec", nil)
	// ErrInvalidOptions 配置非法
	ErrInvalidOptions = errors.New(4031, 500, "socket: invalid options", nil)
)
