package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tokmz/wsx/pkg/socket"
	"github.com/tokmz/wsx/pkg/wsconn"
)

var defaultExpect = []string{"pong", "echo", "whoami", "broadcast", "message"}

type dialFlags struct {
	tag     string
	payload string
	expect  []string
	codec   string
	count   int
	wait    time.Duration
}

func dialCmd() *cobra.Command {
	f := &dialFlags{}

	cmd := &cobra.Command{
		Use:   "dial <url>",
		Short: "Connect to a server, send messages and print the replies",
		Example: `  wsxd dial ws://127.0.0.1:8080/ws --tag ping
  wsxd dial ws://127.0.0.1:8080/ws?key=alice --tag broadcast --payload '{"text":"hi"}' --wait 5s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDial(ctx, cmd.OutOrStdout(), args[0], f)
		},
	}

	cmd.Flags().StringVarP(&f.tag, "tag", "t", "ping", "tag of the message to send, empty sends nothing")
	cmd.Flags().StringVarP(&f.payload, "payload", "p", "", "JSON payload of the message")
	cmd.Flags().StringSliceVarP(&f.expect, "expect", "e", defaultExpect, "tags to print when received")
	cmd.Flags().StringVar(&f.codec, "codec", "json", "wire codec: json or cbor")
	cmd.Flags().IntVarP(&f.count, "count", "n", 1, "number of messages to send")
	cmd.Flags().DurationVarP(&f.wait, "wait", "w", time.Second, "how long to keep listening after sending")
	return cmd
}

// runDial 拨号、发送并在 wait 期间打印收到的消息
func runDial(ctx context.Context, out io.Writer, url string, f *dialFlags) error {
	codec, err := socket.CodecByName(f.codec)
	if err != nil {
		return err
	}

	var payload any
	if f.payload != "" {
		if err := json.Unmarshal([]byte(f.payload), &payload); err != nil {
			return fmt.Errorf("invalid --payload: %w", err)
		}
	}

	var mu sync.Mutex
	show := func(c *socket.Context) error {
		mu.Lock()
		defer mu.Unlock()
		fPrint(out, "%s %s\n", c.Tag(), formatPayload(c))
		return nil
	}

	r := socket.NewRouter()
	for _, tag := range f.expect {
		if err := r.Register(tag, show); err != nil {
			return err
		}
	}

	peer, err := wsconn.Dial(ctx, url, r.Table(),
		wsconn.WithSocketOptions(socket.WithCodec(codec)),
	)
	if err != nil {
		return err
	}
	defer peer.Close()

	if f.tag != "" {
		for i := 0; i < f.count; i++ {
			if err := peer.Send(f.tag, payload); err != nil {
				return err
			}
		}
	}

	timer := time.NewTimer(f.wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-peer.Done():
		return peer.Err()
	}
	return nil
}

// formatPayload JSON 载荷原样输出，其他编解码器解码后输出
func formatPayload(c *socket.Context) string {
	env := c.Envelope()
	if c.Conn().Codec().Name() == "json" {
		return string(env.Payload)
	}
	var v any
	if err := c.Bind(&v); err != nil {
		return fmt.Sprintf("<%d bytes>", len(env.Payload))
	}
	return fmt.Sprintf("%v", v)
}
