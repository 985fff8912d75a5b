package socket

// Transport 双向帧传输，例如一条 WebSocket 连接
//
// ReadFrame 只会被分发协程调用，WriteFrame 只会被写协程调用，
// Close 可能从任意协程调用，并且必须让阻塞中的 ReadFrame 返回。
// 对端正常关闭时 ReadFrame 应返回 io.EOF。
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(kind FrameType, data []byte) error
	Close() error
	RemoteAddr() string
}
