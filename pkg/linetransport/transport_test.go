package linetransport

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/wsx/pkg/socket"
)

func pipe(t *testing.T, opts ...Option) (*Transport, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return New(server, opts...), client
}

func writeAsync(conn net.Conn, s string) {
	go func() { _, _ = io.WriteString(conn, s) }()
}

func TestReadFrameSplitsLines(t *testing.T) {
	tr, client := pipe(t)
	writeAsync(client, "first\r\n\nsecond\n")

	got, err := tr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	got, err = tr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestReadFrameDropsOversizedLine(t *testing.T) {
	tr, client := pipe(t, WithMaxLineSize(16))
	writeAsync(client, strings.Repeat("x", 40)+"\nok\n")

	got, err := tr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
	assert.Equal(t, int64(1), tr.Oversized())
}

func TestReadFramePeerClosed(t *testing.T) {
	tr, client := pipe(t)
	require.NoError(t, client.Close())

	_, err := tr.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameIdleTimeout(t *testing.T) {
	tr, _ := pipe(t, WithIdleTimeout(20*time.Millisecond))

	_, err := tr.ReadFrame()
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestWriteFrame(t *testing.T) {
	tr, client := pipe(t, WithWriteWait(time.Second))

	done := make(chan error, 1)
	go func() { done <- tr.WriteFrame(socket.TextFrame, []byte(`{"tag":"a"}`)) }()

	line, err := bufio.NewReader(client).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"tag\":\"a\"}\n", line)
	require.NoError(t, <-done)

	assert.ErrorIs(t, tr.WriteFrame(socket.BinaryFrame, []byte{1}), ErrBinaryFrame)
}

func TestCloseIsIdempotent(t *testing.T) {
	tr, _ := pipe(t)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, "pipe", tr.RemoteAddr())
}

func TestServerRegistersConnections(t *testing.T) {
	reg, err := socket.NewRegistry()
	require.NoError(t, err)
	defer reg.Shutdown(context.Background())

	r := socket.NewRouter()
	require.NoError(t, r.Register("ping", func(c *socket.Context) error {
		return c.Reply("pong", c.Key())
	}))
	reg.SetHandlers(r.Table())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(reg, WithKeyFunc(func(net.Conn) string { return "tcp-1" }))
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "{\"tag\":\"ping\",\"payload\":null}\n")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"tag\":\"pong\",\"payload\":\"tcp-1\"}\n", line)
	assert.Equal(t, []string{"tcp-1"}, reg.Keys())

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServerUsesJSONWhenRegistryIsCBOR(t *testing.T) {
	reg, err := socket.NewRegistry(socket.WithCodec(socket.CBOR()))
	require.NoError(t, err)
	defer reg.Shutdown(context.Background())

	r := socket.NewRouter()
	require.NoError(t, r.Register("ping", func(c *socket.Context) error {
		return c.Registry().Broadcast("pong", c.Key())
	}))
	reg.SetHandlers(r.Table())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewServer(reg, WithKeyFunc(func(net.Conn) string { return "tcp-1" }))
	go func() { _ = srv.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "{\"tag\":\"ping\"}\n")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"tag\":\"pong\",\"payload\":\"tcp-1\"}\n", line)

	require.NoError(t, reg.Send("tcp-1", "hello", "world"))
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "{\"tag\":\"hello\",\"payload\":\"world\"}\n", line)

	c, ok := reg.Get("tcp-1")
	require.True(t, ok)
	assert.Equal(t, socket.StateOpen, c.State())
	assert.Equal(t, "json", c.Codec().Name())
}
