package socket

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport 内存传输，in 模拟对端发来的帧，out 记录写出的帧
type fakeTransport struct {
	in        chan []byte
	out       chan []byte
	failCh    chan error
	closed    chan struct{}
	closeOnce sync.Once
	blockW    bool
	addr      string
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 256),
		out:    make(chan []byte, 256),
		failCh: make(chan error, 1),
		closed: make(chan struct{}),
		addr:   addr,
	}
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case err := <-f.failCh:
		return nil, err
	case <-f.closed:
		return nil, net.ErrClosed
	}
}

func (f *fakeTransport) WriteFrame(_ FrameType, data []byte) error {
	if f.blockW {
		<-f.closed
		return net.ErrClosed
	}
	select {
	case f.out <- data:
		return nil
	case <-f.closed:
		return net.ErrClosed
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return f.addr }

// push 模拟对端发送一条消息
func (f *fakeTransport) push(t *testing.T, tag string, v any) {
	t.Helper()
	data, err := JSON().Encode(tag, v)
	require.NoError(t, err)
	f.in <- data
}

// hangUp 模拟对端正常断开
func (f *fakeTransport) hangUp() { f.failCh <- io.EOF }

// fail 模拟传输错误
func (f *fakeTransport) fail(err error) { f.failCh <- err }

// recv 等待下一条写出的消息
func (f *fakeTransport) recv(t *testing.T) *Envelope {
	t.Helper()
	select {
	case data := <-f.out:
		env, err := JSON().Decode(data)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no message received", f.addr)
		return nil
	}
}

// quiet 断言一段时间内没有写出
func (f *fakeTransport) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("%s: unexpected message %s", f.addr, data)
	case <-time.After(d):
	}
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}
