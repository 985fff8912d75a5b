package socket

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/wsx/pkg/errors"
)

func TestPeerDispatchesAndReplies(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Register("ping", func(c *Context) error {
		assert.Nil(t, c.Registry())
		require.NotNil(t, c.Peer())
		return c.Peer().Send("pong", c.Key())
	}))

	ft := newFakeTransport("server")
	p := NewPeer("ws://server/ws", ft, r.Table())
	defer p.Close()

	assert.Equal(t, "ws://server/ws", p.Key())
	assert.Equal(t, StateOpen, p.State())

	ft.push(t, "unknown", nil)
	ft.push(t, "ping", nil)

	env := ft.recv(t)
	assert.Equal(t, "pong", env.Tag)
	var key string
	require.NoError(t, env.Bind(&key))
	assert.Equal(t, "ws://server/ws", key)
}

func TestPeerLifecycleCallbacks(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	closed := make(chan struct{})

	ft := newFakeTransport("server")
	p := NewPeer("k", ft, nil,
		WithOnOpen(func(key string) { record("open:" + key) }),
		WithOnError(func(key string, err error) { record("error:" + key) }),
		WithOnClose(func(key string) {
			record("close:" + key)
			close(closed)
		}),
	)

	ft.fail(stderrors.New("reset"))
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}

	<-p.Done()
	assert.True(t, errors.Is(p.Err(), ErrTransport))
	require.NoError(t, p.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"open:k", "error:k", "close:k"}, events)
}

func TestPeerBindHandlers(t *testing.T) {
	ft := newFakeTransport("server")
	p := NewPeer("k", ft, nil)
	defer p.Close()

	ft.push(t, "ping", nil)
	ft.quiet(t, 50*time.Millisecond)

	r := NewRouter()
	require.NoError(t, r.Register("ping", func(c *Context) error { return c.Reply("pong", nil) }))
	p.BindHandlers(r.Table())

	ft.push(t, "ping", nil)
	assert.Equal(t, "pong", ft.recv(t).Tag)
	assert.Same(t, p.Conn(), p.Conn())
}
