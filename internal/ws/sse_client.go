package ws

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient streams notifications as Server-Sent Events. Frames are queued by
// Send and written by Serve, which runs on the request goroutine.
type SSEClient struct {
	writer    io.Writer
	flusher   http.Flusher
	log       *slog.Logger
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewSSEClient builds an SSE client with room for buffer queued frames.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger, buffer int) *SSEClient {
	if buffer <= 0 {
		buffer = 16
	}
	return &SSEClient{
		writer:  writer,
		flusher: flusher,
		log:     logger,
		send:    make(chan string, buffer),
		done:    make(chan struct{}),
	}
}

// Send queues a notification event without blocking the hub.
func (c *SSEClient) Send(payload []byte) error {
	return c.enqueue(fmt.Sprintf("event: notification\ndata: %s\n\n", payload))
}

func (c *SSEClient) enqueue(frame string) error {
	select {
	case <-c.done:
		return io.EOF
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.log.Warn("sse client too slow, dropping stream")
		return ErrSlowConsumer
	}
}

// Serve writes queued frames and periodic heartbeats until ctx ends, the
// client is closed, or a write fails.
func (c *SSEClient) Serve(ctx context.Context, heartbeat time.Duration) {
	defer c.Close()
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(": ping\n\n"); err != nil {
				return
			}
		}
	}
}

func (c *SSEClient) write(frame string) error {
	if _, err := io.WriteString(c.writer, frame); err != nil {
		c.log.Warn("sse send failed", "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close stops the stream.
func (c *SSEClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the stream stops accepting events.
func (c *SSEClient) Done() <-chan struct{} {
	return c.done
}
