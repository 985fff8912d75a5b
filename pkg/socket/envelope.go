package socket

// Envelope 带 tag 的消息信封
// Payload 保持编码后的原始形式，由处理器按期望的形状 Bind
type Envelope struct {
	Tag     string
	Payload []byte

	codec Codec
}

// Bind 把载荷解码到 v，形状不符时返回 ErrDecode
func (e *Envelope) Bind(v any) error {
	codec := e.codec
	if codec == nil {
		codec = JSON()
	}
	if err := codec.Unmarshal(e.Payload, v); err != nil {
		return ErrDecode.WithError(err)
	}
	return nil
}

// FrameType 传输层帧类型，取值与 WebSocket 的 text/binary 消息一致
type FrameType int

const (
	// TextFrame 文本帧
	TextFrame FrameType = 1
	// BinaryFrame 二进制帧
	BinaryFrame FrameType = 2
)

func (f FrameType) String() string {
	switch f {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	default:
		return "unknown"
	}
}
