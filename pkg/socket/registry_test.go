package socket

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/wsx/pkg/errors"
)

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	reg, err := NewRegistry(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = reg.Shutdown(ctx)
	})
	return reg
}

// lifecycle 记录生命周期回调
type lifecycle struct {
	mu     sync.Mutex
	events []string
	closed chan string
}

func newLifecycle() *lifecycle {
	return &lifecycle{closed: make(chan string, 64)}
}

func (l *lifecycle) options() []Option {
	return []Option{
		WithOnOpen(func(key string) { l.add("open:" + key) }),
		WithOnError(func(key string, err error) { l.add("error:" + key) }),
		WithOnClose(func(key string) {
			l.add("close:" + key)
			l.closed <- key
		}),
	}
}

func (l *lifecycle) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

func (l *lifecycle) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *lifecycle) waitClosed(t *testing.T, key string) {
	t.Helper()
	select {
	case got := <-l.closed:
		require.Equal(t, key, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("OnClose(%s) not called", key)
	}
}

func pingBroadcastTable(t *testing.T) *HandlerTable {
	t.Helper()
	r := NewRouter()
	require.NoError(t, r.Register("ping", func(c *Context) error {
		return c.Registry().Broadcast("pong", nil)
	}))
	return r.Table()
}

func TestPingBroadcastReachesEveryConnection(t *testing.T) {
	reg := newTestRegistry(t)
	reg.SetHandlers(pingBroadcastTable(t))

	transports := map[string]*fakeTransport{}
	for _, key := range []string{"a", "b", "c"} {
		transports[key] = newFakeTransport(key)
		_, err := reg.Accept(key, transports[key])
		require.NoError(t, err)
	}

	transports["a"].push(t, "ping", nil)

	for _, key := range []string{"a", "b", "c"} {
		env := transports[key].recv(t)
		assert.Equal(t, "pong", env.Tag)
		assert.Equal(t, "null", string(env.Payload))
		transports[key].quiet(t, 50*time.Millisecond)
	}
}

func TestUnknownTagIsIgnored(t *testing.T) {
	reg := newTestRegistry(t)
	reg.SetHandlers(pingBroadcastTable(t))

	ft := newFakeTransport("a")
	conn, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.push(t, "nope", map[string]int{"x": 1})
	ft.quiet(t, 50*time.Millisecond)
	assert.Equal(t, StateOpen, conn.State())

	ft.push(t, "ping", nil)
	assert.Equal(t, "pong", ft.recv(t).Tag)
}

func TestMalformedEnvelopeKeepsConnection(t *testing.T) {
	reg := newTestRegistry(t)
	reg.SetHandlers(pingBroadcastTable(t))

	ft := newFakeTransport("a")
	conn, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.in <- []byte("not an envelope")
	ft.in <- []byte(`{"payload":1}`)
	ft.push(t, "ping", nil)

	assert.Equal(t, "pong", ft.recv(t).Tag)
	assert.Equal(t, StateOpen, conn.State())
}

func TestPayloadShapeMismatchIsDropped(t *testing.T) {
	reg := newTestRegistry(t)
	r := NewRouter()
	require.NoError(t, HandleReply(r, "move", "moved", func(_ *Context, p *point) (*point, error) {
		p.X++
		return p, nil
	}))
	reg.SetHandlers(r.Table())

	ft := newFakeTransport("a")
	_, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.push(t, "move", "not a point")
	ft.push(t, "move", point{X: 1})

	env := ft.recv(t)
	require.Equal(t, "moved", env.Tag)
	var p point
	require.NoError(t, env.Bind(&p))
	assert.Equal(t, 2, p.X)
}

func TestDuplicateAddIsRejected(t *testing.T) {
	reg := newTestRegistry(t)

	first := reg.NewConn(newFakeTransport("first"))
	require.NoError(t, reg.Add("a", first))

	second := reg.NewConn(newFakeTransport("second"))
	err := reg.Add("a", second)
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, StateOpen, first.State())
	assert.Equal(t, 1, reg.Len())
}

func TestAddRejections(t *testing.T) {
	reg := newTestRegistry(t, WithMaxConnections(1))

	assert.True(t, errors.Is(reg.Add("", reg.NewConn(newFakeTransport("x"))), ErrInvalidKey))

	c := reg.NewConn(newFakeTransport("a"))
	require.NoError(t, reg.Add("a", c))
	assert.True(t, errors.Is(reg.Add("b", reg.NewConn(newFakeTransport("b"))), ErrTooManyConnections))

	reg.Remove("a")
	assert.True(t, errors.Is(reg.Add("a", c), ErrConnectionClosed), "closed connections cannot be re-added")

	c2 := reg.NewConn(newFakeTransport("c"))
	require.NoError(t, reg.Add("c", c2))
	reg.Remove("c")
	require.NoError(t, reg.Add("d", reg.NewConn(newFakeTransport("d"))))
}

func TestAddSameConnTwice(t *testing.T) {
	reg := newTestRegistry(t)
	c := reg.NewConn(newFakeTransport("a"))
	require.NoError(t, reg.Add("a", c))
	assert.True(t, errors.Is(reg.Add("b", c), ErrAlreadyRegistered))
}

func TestAcceptClosesTransportOnFailure(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Accept("a", newFakeTransport("a"))
	require.NoError(t, err)

	ft := newFakeTransport("dup")
	_, err = reg.Accept("a", ft)
	assert.True(t, errors.Is(err, ErrDuplicateKey))
	assert.True(t, ft.isClosed())
}

func TestSendToAbsentKeyIsSilent(t *testing.T) {
	reg := newTestRegistry(t)
	assert.NoError(t, reg.Send("nobody", "hello", 1))
}

func TestSendReachesOnlyTarget(t *testing.T) {
	reg := newTestRegistry(t)
	a, b := newFakeTransport("a"), newFakeTransport("b")
	_, err := reg.Accept("a", a)
	require.NoError(t, err)
	_, err = reg.Accept("b", b)
	require.NoError(t, err)

	require.NoError(t, reg.Send("b", "hello", "b only"))
	env := b.recv(t)
	assert.Equal(t, "hello", env.Tag)
	a.quiet(t, 50*time.Millisecond)

	assert.True(t, errors.Is(reg.Send("a", "bad", make(chan int)), ErrEncode))
	_, ok := reg.Get("a")
	assert.True(t, ok, "encode failure must not close the connection")
}

func TestRemoveIsIdempotent(t *testing.T) {
	lc := newLifecycle()
	reg := newTestRegistry(t, lc.options()...)

	ft := newFakeTransport("a")
	conn, err := reg.Accept("a", ft)
	require.NoError(t, err)

	reg.Remove("a")
	reg.Remove("a")
	reg.Remove("never-added")
	lc.waitClosed(t, "a")

	_, ok := reg.Get("a")
	assert.False(t, ok)
	assert.Equal(t, StateClosed, conn.State())
	assert.True(t, ft.isClosed())
	assert.NoError(t, conn.Err())

	select {
	case key := <-lc.closed:
		t.Fatalf("OnClose(%s) called twice", key)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, []string{"open:a", "close:a"}, lc.snapshot())
}

func TestRemoveFromOwnHandler(t *testing.T) {
	lc := newLifecycle()
	reg := newTestRegistry(t, lc.options()...)

	r := NewRouter()
	require.NoError(t, r.Register("quit", func(c *Context) error {
		c.Registry().Remove(c.Key())
		return c.Registry().Broadcast("left", c.Key())
	}))
	reg.SetHandlers(r.Table())

	quitter, other := newFakeTransport("q"), newFakeTransport("o")
	_, err := reg.Accept("q", quitter)
	require.NoError(t, err)
	_, err = reg.Accept("o", other)
	require.NoError(t, err)

	quitter.push(t, "quit", nil)
	lc.waitClosed(t, "q")

	env := other.recv(t)
	assert.Equal(t, "left", env.Tag)
	assert.Equal(t, []string{"o"}, reg.Keys())
}

func TestPeerHangUpEvicts(t *testing.T) {
	lc := newLifecycle()
	reg := newTestRegistry(t, lc.options()...)

	ft := newFakeTransport("a")
	conn, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.hangUp()
	lc.waitClosed(t, "a")

	_, ok := reg.Get("a")
	assert.False(t, ok)
	assert.NoError(t, conn.Err())
	assert.Equal(t, []string{"open:a", "close:a"}, lc.snapshot())
}

func TestTransportErrorFiresOnErrorThenOnClose(t *testing.T) {
	lc := newLifecycle()
	reg := newTestRegistry(t, lc.options()...)

	ft := newFakeTransport("a")
	conn, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.fail(stderrors.New("connection reset"))
	lc.waitClosed(t, "a")

	assert.True(t, errors.Is(conn.Err(), ErrTransport))
	assert.Equal(t, []string{"open:a", "error:a", "close:a"}, lc.snapshot())
}

func TestReAddAfterEviction(t *testing.T) {
	lc := newLifecycle()
	reg := newTestRegistry(t, lc.options()...)

	old := newFakeTransport("old")
	_, err := reg.Accept("a", old)
	require.NoError(t, err)
	old.hangUp()
	lc.waitClosed(t, "a")

	fresh := newFakeTransport("fresh")
	conn, err := reg.Accept("a", fresh)
	require.NoError(t, err)

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, conn, got)
}

func TestPerConnectionOrdering(t *testing.T) {
	reg := newTestRegistry(t)

	var mu sync.Mutex
	got := map[string][]int{}
	done := make(chan struct{}, 2)

	r := NewRouter()
	require.NoError(t, Handle(r, "seq", func(c *Context, n *int) error {
		mu.Lock()
		got[c.Key()] = append(got[c.Key()], *n)
		full := len(got[c.Key()]) == 200
		mu.Unlock()
		if full {
			done <- struct{}{}
		}
		return nil
	}))
	reg.SetHandlers(r.Table())

	a, b := newFakeTransport("a"), newFakeTransport("b")
	_, err := reg.Accept("a", a)
	require.NoError(t, err)
	_, err = reg.Accept("b", b)
	require.NoError(t, err)

	go func() {
		for i := 0; i < 200; i++ {
			a.push(t, "seq", i)
		}
	}()
	go func() {
		for i := 0; i < 200; i++ {
			b.push(t, "seq", i)
		}
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("messages not dispatched")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, key := range []string{"a", "b"} {
		assert.True(t, sort.IntsAreSorted(got[key]), "%s out of order", key)
	}
}

func TestBindHandlersAppliesToNextMessage(t *testing.T) {
	reg := newTestRegistry(t)

	second := NewRouter()
	require.NoError(t, second.Register("who", func(c *Context) error { return c.Reply("me", "second") }))
	secondTable := second.Table()

	first := NewRouter()
	require.NoError(t, first.Register("who", func(c *Context) error { return c.Reply("me", "first") }))
	require.NoError(t, first.Register("swap", func(c *Context) error {
		c.Registry().BindHandlers(c.Key(), secondTable)
		return nil
	}))
	reg.SetHandlers(first.Table())

	ft := newFakeTransport("a")
	_, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.push(t, "who", nil)
	ft.push(t, "swap", nil)
	ft.push(t, "who", nil)

	var s string
	require.NoError(t, ft.recv(t).Bind(&s))
	assert.Equal(t, "first", s)
	require.NoError(t, ft.recv(t).Bind(&s))
	assert.Equal(t, "second", s)

	reg.BindHandlers("absent", secondTable)
}

func TestBroadcastIsolatesFailingRecipient(t *testing.T) {
	reg := newTestRegistry(t, WithSendQueueSize(1))

	a, c := newFakeTransport("a"), newFakeTransport("c")
	stuck := newFakeTransport("b")
	stuck.blockW = true

	for key, ft := range map[string]*fakeTransport{"a": a, "b": stuck, "c": c} {
		_, err := reg.Accept(key, ft)
		require.NoError(t, err)
	}

	// b 的写协程阻塞在第一帧，第二帧占满队列
	require.NoError(t, reg.Send("b", "fill", 1))
	require.Eventually(t, func() bool {
		return reg.Send("b", "fill", 2) == nil
	}, time.Second, 5*time.Millisecond)
	require.True(t, errors.Is(reg.Send("b", "fill", 3), ErrSendQueueFull))

	require.NoError(t, reg.Broadcast("news", "hi"))
	assert.Equal(t, "news", a.recv(t).Tag)
	assert.Equal(t, "news", c.recv(t).Tag)

	_, ok := reg.Get("b")
	assert.True(t, ok)
}

func TestBroadcastExcept(t *testing.T) {
	reg := newTestRegistry(t)
	a, b := newFakeTransport("a"), newFakeTransport("b")
	_, err := reg.Accept("a", a)
	require.NoError(t, err)
	_, err = reg.Accept("b", b)
	require.NoError(t, err)

	require.NoError(t, reg.BroadcastExcept("news", 1, "a"))
	assert.Equal(t, "news", b.recv(t).Tag)
	a.quiet(t, 50*time.Millisecond)
}

func TestBroadcastEncodeFailure(t *testing.T) {
	reg := newTestRegistry(t)
	ft := newFakeTransport("a")
	_, err := reg.Accept("a", ft)
	require.NoError(t, err)

	assert.True(t, errors.Is(reg.Broadcast("bad", func() {}), ErrEncode))
	ft.quiet(t, 50*time.Millisecond)
	assert.NoError(t, reg.Broadcast("empty-ok", nil))
}

func TestBroadcastMixedCodecs(t *testing.T) {
	reg := newTestRegistry(t)

	jt := newFakeTransport("json")
	_, err := reg.Accept("json", jt)
	require.NoError(t, err)

	ct := newFakeTransport("cbor")
	require.NoError(t, reg.Add("cbor", NewConn(ct, WithCodec(CBOR()))))

	require.NoError(t, reg.Broadcast("news", point{X: 1}))
	assert.Equal(t, "news", jt.recv(t).Tag)

	select {
	case data := <-ct.out:
		env, err := CBOR().Decode(data)
		require.NoError(t, err)
		var p point
		require.NoError(t, env.Bind(&p))
		assert.Equal(t, 1, p.X)
	case <-time.After(2 * time.Second):
		t.Fatal("cbor recipient got nothing")
	}
}

func TestAcceptOverridesCodecPerConnection(t *testing.T) {
	reg := newTestRegistry(t, WithCodec(CBOR()))

	jt := newFakeTransport("line")
	c, err := reg.Accept("line", jt, WithCodec(JSON()))
	require.NoError(t, err)
	assert.Equal(t, "json", c.Codec().Name())

	ct := newFakeTransport("ws")
	c, err = reg.Accept("ws", ct)
	require.NoError(t, err)
	assert.Equal(t, "cbor", c.Codec().Name())

	require.NoError(t, reg.Send("line", "hello", "world"))
	env := jt.recv(t)
	assert.Equal(t, "hello", env.Tag)
	assert.JSONEq(t, `"world"`, string(env.Payload))
}

func TestHandlerPanicKeepsConnection(t *testing.T) {
	reg := newTestRegistry(t)
	r := NewRouter()
	require.NoError(t, r.Register("boom", func(*Context) error { panic("boom") }))
	require.NoError(t, r.Register("ping", func(c *Context) error { return c.Reply("pong", nil) }))
	reg.SetHandlers(r.Table())

	ft := newFakeTransport("a")
	_, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.push(t, "boom", nil)
	ft.push(t, "ping", nil)
	assert.Equal(t, "pong", ft.recv(t).Tag)
}

func TestRateLimitDropsExcess(t *testing.T) {
	reg := newTestRegistry(t, WithRateLimit(0.001, 1))
	r := NewRouter()
	require.NoError(t, r.Register("ping", func(c *Context) error { return c.Reply("pong", nil) }))
	reg.SetHandlers(r.Table())

	ft := newFakeTransport("a")
	_, err := reg.Accept("a", ft)
	require.NoError(t, err)

	ft.push(t, "ping", nil)
	ft.push(t, "ping", nil)
	assert.Equal(t, "pong", ft.recv(t).Tag)
	ft.quiet(t, 100*time.Millisecond)
}

func TestConcurrentAddRemove(t *testing.T) {
	reg := newTestRegistry(t)

	var wg sync.WaitGroup
	var added atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%10)
			if _, err := reg.Accept(key, newFakeTransport(key)); err == nil {
				added.Add(1)
			}
			if i%2 == 0 {
				reg.Remove(key)
			}
			_ = reg.Broadcast("tick", i)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, reg.Len(), 10)
	for _, key := range reg.Keys() {
		c, ok := reg.Get(key)
		require.True(t, ok)
		assert.Equal(t, StateOpen, c.State())
	}
	assert.Positive(t, added.Load())
}

func TestOnOpenCallingRegistryDuringBurst(t *testing.T) {
	o := DefaultOptions()
	o.EventQueueSize = 1

	var reg *Registry
	reg = newTestRegistry(t, WithOptions(o), WithOnOpen(func(key string) {
		time.Sleep(20 * time.Millisecond)
		_ = reg.Send(key, "welcome", nil)
	}))

	transports := make([]*fakeTransport, 5)
	var wg sync.WaitGroup
	for i := range transports {
		transports[i] = newFakeTransport(fmt.Sprintf("c%d", i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := reg.Accept(fmt.Sprintf("c%d", i), transports[i])
			assert.NoError(t, err)
		}(i)
	}

	added := make(chan struct{})
	go func() {
		wg.Wait()
		close(added)
	}()
	select {
	case <-added:
	case <-time.After(3 * time.Second):
		t.Fatal("Accept blocked behind OnOpen subscribers")
	}

	assert.Equal(t, 5, reg.Len())
	for _, tr := range transports {
		assert.Equal(t, "welcome", tr.recv(t).Tag)
	}
}

func TestShutdown(t *testing.T) {
	lc := newLifecycle()
	reg, err := NewRegistry(lc.options()...)
	require.NoError(t, err)

	var transports []*fakeTransport
	for _, key := range []string{"a", "b"} {
		ft := newFakeTransport(key)
		transports = append(transports, ft)
		_, err := reg.Accept(key, ft)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, reg.Shutdown(ctx))
	require.NoError(t, reg.Shutdown(ctx))

	assert.Zero(t, reg.Len())
	for _, ft := range transports {
		assert.True(t, ft.isClosed())
	}
	events := lc.snapshot()
	assert.Contains(t, events, "close:a")
	assert.Contains(t, events, "close:b")

	_, err = reg.Accept("c", newFakeTransport("c"))
	assert.True(t, errors.Is(err, ErrRegistryClosed))
}

func TestNewRegistryValidatesOptions(t *testing.T) {
	_, err := NewRegistry(WithSendQueueSize(0))
	assert.True(t, errors.Is(err, ErrInvalidOptions))

	_, err = NewRegistry(WithOptions(Options{SendQueueSize: 8, Codec: "xml"}))
	assert.True(t, errors.Is(err, ErrUnknownCodec))
}

func TestAdmit(t *testing.T) {
	reg := newTestRegistry(t, WithMaxConnections(2))
	_, err := reg.Accept("a", newFakeTransport("a"))
	require.NoError(t, err)

	assert.NoError(t, reg.Admit("b"))
	assert.True(t, errors.Is(reg.Admit(""), ErrInvalidKey))
	assert.True(t, errors.Is(reg.Admit("a"), ErrDuplicateKey))

	_, err = reg.Accept("b", newFakeTransport("b"))
	require.NoError(t, err)
	assert.True(t, errors.Is(reg.Admit("c"), ErrTooManyConnections))

	require.NoError(t, reg.Shutdown(context.Background()))
	assert.True(t, errors.Is(reg.Admit("c"), ErrRegistryClosed))
}
