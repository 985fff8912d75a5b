package wsconn

import (
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokmz/wsx/pkg/socket"
)

// Transport 基于 gorilla/websocket 的 socket.Transport，自带心跳
type Transport struct {
	conn      *websocket.Conn
	cfg       Config
	closeOnce sync.Once
	done      chan struct{}
}

var _ socket.Transport = (*Transport)(nil)

// NewTransport 包装已握手的连接并启动心跳
func NewTransport(conn *websocket.Conn, cfg Config) *Transport {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultConfig().WriteWait
	}
	t := &Transport{
		conn: conn,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return t.extendReadDeadline()
		})
	}
	if cfg.PingPeriod > 0 {
		go t.pingLoop()
	}
	return t
}

func (t *Transport) extendReadDeadline() error {
	if t.cfg.PongWait <= 0 {
		return nil
	}
	return t.conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
}

// pingLoop 定时发送 ping，WriteControl 可与 WriteMessage 并发调用
func (t *Transport) pingLoop() {
	ticker := time.NewTicker(t.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.cfg.WriteWait)
			if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// ReadFrame 读取下一条数据消息，对端正常关闭时返回 io.EOF
func (t *Transport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, io.EOF
		}
		return nil, err
	}
	if err := t.extendReadDeadline(); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFrame 写入一条消息
func (t *Transport) WriteFrame(kind socket.FrameType, data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait)); err != nil {
		return err
	}
	msgType := websocket.TextMessage
	if kind == socket.BinaryFrame {
		msgType = websocket.BinaryMessage
	}
	return t.conn.WriteMessage(msgType, data)
}

// Close 发送 1000 关闭帧并关闭连接，可重复调用
func (t *Transport) Close() error {
	return t.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith 以指定关闭码关闭连接，只有第一次调用生效
func (t *Transport) CloseWith(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		deadline := time.Now().Add(t.cfg.WriteWait)
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		err = t.conn.Close()
	})
	return err
}

// RemoteAddr 对端地址
func (t *Transport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
