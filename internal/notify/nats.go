package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSEmitter publishes events as JSON on "<prefix>.<kind>" subjects for an
// external delivery service to consume.
type NATSEmitter struct {
	conn   *nats.Conn
	pub    publisher
	prefix string
	now    func() time.Time
}

type natsMessage struct {
	Kind       Kind           `json:"kind"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload"`
	EmittedAt  time.Time      `json:"emitted_at"`
}

// NewNATSEmitter connects to url and returns an emitter publishing under prefix.
func NewNATSEmitter(url, prefix string) (*NATSEmitter, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("nats url required")
	}
	conn, err := nats.Connect(url,
		nats.Name("teamup-api"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	e := newNATSEmitter(conn, prefix)
	e.conn = conn
	return e, nil
}

func newNATSEmitter(pub publisher, prefix string) *NATSEmitter {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "teamup.notifications"
	}
	return &NATSEmitter{pub: pub, prefix: prefix, now: time.Now}
}

// Subject returns the subject used for kind.
func (e *NATSEmitter) Subject(kind Kind) string {
	return e.prefix + "." + strings.ToLower(string(kind))
}

// Emit publishes the event. NATS publish does not take a context, so it is checked first.
func (e *NATSEmitter) Emit(ctx context.Context, kind Kind, recipients []string, payload map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(natsMessage{
		Kind:       kind,
		Recipients: recipients,
		Payload:    payload,
		EmittedAt:  e.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := e.pub.Publish(e.Subject(kind), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Close drains the connection.
func (e *NATSEmitter) Close() {
	if e.conn != nil {
		_ = e.conn.Drain()
	}
}
