package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/wsx/pkg/errors"
)

func TestConnLifecycle(t *testing.T) {
	ft := newFakeTransport("a")
	c := NewConn(ft)
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, "a", c.RemoteAddr())
	assert.Equal(t, "json", c.Codec().Name())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.True(t, ft.isClosed())

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed")
	}
	select {
	case <-c.stopped:
	default:
		t.Fatal("never started connection should count as stopped")
	}
}

func TestConnSendAfterClose(t *testing.T) {
	c := NewConn(newFakeTransport("a"))
	require.NoError(t, c.Close())
	assert.True(t, errors.Is(c.Send("x", 1), ErrConnectionClosed))
}

func TestConnSendQueueFull(t *testing.T) {
	c := NewConn(newFakeTransport("a"), WithSendQueueSize(2))
	// 未启动写协程，队列不会被消费
	require.NoError(t, c.Send("x", 1))
	require.NoError(t, c.Send("x", 2))
	assert.True(t, errors.Is(c.Send("x", 3), ErrSendQueueFull))
}

func TestConnCloseNotifiesOnce(t *testing.T) {
	c := NewConn(newFakeTransport("a"))
	calls := 0
	require.True(t, c.attach("a", func(*Conn, error) { calls++ }))
	assert.False(t, c.attach("b", func(*Conn, error) {}), "already attached")

	_ = c.Close()
	c.shutdown(ErrTransport)
	_ = c.Close()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "a", c.Key())
	assert.NoError(t, c.Err())
}

func TestConnNoDispatchAfterClose(t *testing.T) {
	ft := newFakeTransport("a")
	handled := make(chan string, 4)

	r := NewRouter()
	require.NoError(t, r.Register("stop", func(c *Context) error {
		handled <- "stop"
		return c.Conn().Close()
	}))
	require.NoError(t, r.Register("after", func(*Context) error {
		handled <- "after"
		return nil
	}))

	c := NewConn(ft)
	c.BindHandlers(r.Table())
	require.True(t, c.start(func(c *Conn, env *Envelope) *Context {
		return &Context{envelope: env, conn: c}
	}))

	ft.push(t, "stop", nil)
	ft.push(t, "after", nil)

	select {
	case <-c.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("loops did not exit")
	}
	assert.Equal(t, "stop", <-handled)
	assert.Empty(t, handled)
	assert.False(t, c.start(nil), "closed connections cannot restart")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(9).String())
	assert.Equal(t, "binary", BinaryFrame.String())
}
