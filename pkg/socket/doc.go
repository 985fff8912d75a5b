// Package socket provides typed message routing over persistent bidirectional
// connections.
//
// Every message on the wire is an envelope carrying a string tag and a payload.
// A Codec turns envelopes into frames: JSON (text frames) and CBOR (binary
// frames) are built in. Inbound messages are dispatched to the handler
// registered for their tag in a HandlerTable. Messages with an unknown tag are
// ignored, and malformed messages are logged and dropped without closing the
// connection.
//
// # Server side
//
// A Registry keeps the open connections of a server under unique keys:
//
//	reg, err := socket.NewRegistry(
//	    socket.WithMaxConnections(10000),
//	    socket.WithOnClose(func(key string) { log.Println("left", key) }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	router := socket.NewRouter()
//	router.Register("ping", func(c *socket.Context) error {
//	    return c.Registry().Broadcast("pong", nil)
//	})
//	socket.Handle(router, "chat", func(c *socket.Context, msg *ChatMessage) error {
//	    return c.Registry().BroadcastExcept("chat", msg, c.Key())
//	})
//	reg.SetHandlers(router.Table())
//
//	// t is any Transport, for example a *wsconn.Transport
//	if _, err := reg.Accept("user-1", t); err != nil {
//	    // socket.ErrDuplicateKey, socket.ErrTooManyConnections, ...
//	}
//
//	reg.Shutdown(ctx)
//
// Registry.Add rejects a key that is already present. Registry.Send to an
// absent key is a silent no-op, and Registry.Broadcast delivers to a snapshot
// of the connections registered at the time of the call, so a failing
// recipient never affects the others.
//
// # Client side
//
// A Peer wraps a single client connection and its handler table:
//
//	peer := socket.NewPeer("wss://example.com/ws", t, router.Table(),
//	    socket.WithOnError(func(key string, err error) { log.Println(err) }),
//	)
//	peer.Send("ping", nil)
//
// # Ordering and concurrency
//
// Each connection has its own dispatch loop: handlers for one connection run
// one at a time in arrival order, while different connections are processed
// concurrently. Handlers may call any Registry method, including Remove for
// their own connection. Outbound messages go through a bounded per-connection
// queue drained by a writer goroutine; Send returns ErrSendQueueFull instead
// of blocking when the queue is full.
//
// Lifecycle callbacks fire exactly once per connection: OnOpen after
// registration, OnError before OnClose when the transport failed, and OnClose
// when the connection leaves the registry.
package socket
