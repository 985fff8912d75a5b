package linetransport

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokmz/wsx/pkg/socket"
)

// DefaultMaxLineSize 单行上限
const DefaultMaxLineSize = 1024 * 1024

// ErrBinaryFrame 行协议只承载文本帧
var ErrBinaryFrame = errors.New("linetransport: binary frames are not supported")

// Transport 以换行分隔消息的 net.Conn 传输
type Transport struct {
	conn        net.Conn
	reader      *bufio.Reader
	wmu         sync.Mutex
	writer      *bufio.Writer
	idleTimeout time.Duration
	writeWait   time.Duration
	oversized   atomic.Int64
	closeOnce   sync.Once
}

// Option 传输选项
type Option func(*Transport)

// WithIdleTimeout 读空闲超时，0 不超时
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.idleTimeout = d
	}
}

// WithWriteWait 单次写超时，0 不超时
func WithWriteWait(d time.Duration) Option {
	return func(t *Transport) {
		t.writeWait = d
	}
}

// WithMaxLineSize 单行上限，超长的行被整行丢弃
func WithMaxLineSize(n int) Option {
	return func(t *Transport) {
		t.reader = bufio.NewReaderSize(t.conn, n)
	}
}

// New 包装 net.Conn
func New(conn net.Conn, opts ...Option) *Transport {
	t := &Transport{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, DefaultMaxLineSize),
		writer: bufio.NewWriter(conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ socket.Transport = (*Transport)(nil)

// ReadFrame 读取下一行，去掉行尾的 \r\n 或 \n，空行跳过
func (t *Transport) ReadFrame() ([]byte, error) {
	for {
		if t.idleTimeout > 0 {
			if err := t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout)); err != nil {
				return nil, err
			}
		}

		line, err := t.reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			t.oversized.Add(1)
			if err := t.discardLine(); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		// ReadSlice 的结果在下次读取时失效
		return append([]byte(nil), line...), nil
	}
}

// discardLine 丢弃当前行剩余部分
func (t *Transport) discardLine() error {
	for {
		_, err := t.reader.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return err
	}
}

// WriteFrame 写入一行
func (t *Transport) WriteFrame(kind socket.FrameType, data []byte) error {
	if kind != socket.TextFrame {
		return ErrBinaryFrame
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()

	if t.writeWait > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
			return err
		}
	}
	if _, err := t.writer.Write(data); err != nil {
		return err
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return err
	}
	return t.writer.Flush()
}

// Close 关闭连接，可重复调用
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}

// RemoteAddr 对端地址
func (t *Transport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// Oversized 被丢弃的超长行数量
func (t *Transport) Oversized() int64 {
	return t.oversized.Load()
}
