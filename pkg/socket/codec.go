package socket

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// Codec 信封编解码器
type Codec interface {
	// Name 编解码器名称（json/cbor），与配置中的 codec 对应
	Name() string
	// FrameType 编码结果使用的传输帧类型
	FrameType() FrameType
	// Encode 编码信封，值无法表示时返回 ErrEncode
	Encode(tag string, v any) ([]byte, error)
	// Decode 解码信封，缺少 tag、类型不符或格式错误时返回 ErrDecode
	Decode(data []byte) (*Envelope, error)
	// Unmarshal 解码载荷
	Unmarshal(payload []byte, v any) error
}

// CodecByName 按名称获取内置编解码器，大小写不敏感
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON(), nil
	case "cbor":
		return CBOR(), nil
	default:
		return nil, ErrUnknownCodec.WithMessage(fmt.Sprintf("socket: unknown codec %q", name))
	}
}

var jsonNull = []byte("null")

type jsonCodec struct{}

// JSON 返回 JSON 编解码器，信封形如 {"tag":"chat","payload":{...}}
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string         { return "json" }
func (jsonCodec) FrameType() FrameType { return TextFrame }

type jsonOut struct {
	Tag     string `json:"tag"`
	Payload any    `json:"payload"`
}

type jsonIn struct {
	Tag     *string         `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

func (jsonCodec) Encode(tag string, v any) ([]byte, error) {
	if tag == "" {
		return nil, ErrEncode.WithError(ErrInvalidTag)
	}
	data, err := json.Marshal(jsonOut{Tag: tag, Payload: v})
	if err != nil {
		return nil, ErrEncode.WithError(err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (*Envelope, error) {
	var in jsonIn
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, ErrDecode.WithError(err)
	}
	if in.Tag == nil || *in.Tag == "" {
		return nil, ErrDecode.WithError(ErrInvalidTag)
	}
	payload := []byte(in.Payload)
	if len(payload) == 0 {
		payload = jsonNull
	}
	return &Envelope{Tag: *in.Tag, Payload: payload, codec: jsonCodec{}}, nil
}

func (jsonCodec) Unmarshal(payload []byte, v any) error {
	return json.Unmarshal(payload, v)
}

// cborNull CBOR 的 null 编码
var cborNull = []byte{0xf6}

type cborCodec struct{}

// CBOR 返回 CBOR 编解码器，信封是两个键的 map：tag、payload
func CBOR() Codec { return cborCodec{} }

func (cborCodec) Name() string         { return "cbor" }
func (cborCodec) FrameType() FrameType { return BinaryFrame }

type cborOut struct {
	Tag     string `cbor:"tag"`
	Payload any    `cbor:"payload"`
}

type cborIn struct {
	Tag     *string         `cbor:"tag"`
	Payload cbor.RawMessage `cbor:"payload"`
}

func (cborCodec) Encode(tag string, v any) ([]byte, error) {
	if tag == "" {
		return nil, ErrEncode.WithError(ErrInvalidTag)
	}
	data, err := cbor.Marshal(cborOut{Tag: tag, Payload: v})
	if err != nil {
		return nil, ErrEncode.WithError(err)
	}
	return data, nil
}

func (cborCodec) Decode(data []byte) (*Envelope, error) {
	var in cborIn
	if err := cbor.Unmarshal(data, &in); err != nil {
		return nil, ErrDecode.WithError(err)
	}
	if in.Tag == nil || *in.Tag == "" {
		return nil, ErrDecode.WithError(ErrInvalidTag)
	}
	payload := []byte(in.Payload)
	if len(payload) == 0 {
		payload = cborNull
	}
	return &Envelope{Tag: *in.Tag, Payload: payload, codec: cborCodec{}}, nil
}

func (cborCodec) Unmarshal(payload []byte, v any) error {
	return cbor.Unmarshal(payload, v)
}
