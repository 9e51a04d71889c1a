// Package ws fans notification payloads out to live connections of each recipient.
package ws

import (
	"context"
	"sync"
)

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub manages stream subscriptions by recipient ID. One goroutine owns the
// subscription map; callers talk to it through channels.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	recipientID string
	payload     []byte
}

type subscription struct {
	recipientID string
	client      Subscriber
}

type countRequest struct {
	recipientID string
	reply       chan int
}

// NewHub creates a running Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, 64),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.recipientID]; !ok {
				h.clients[sub.recipientID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.recipientID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.recipientID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.recipientID)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.recipientID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.recipientID)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.recipientID])
		}
	}
}

// Register adds a client to a recipient's stream.
func (h *Hub) Register(recipientID string, client Subscriber) {
	select {
	case h.register <- subscription{recipientID: recipientID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(recipientID string, client Subscriber) {
	select {
	case h.unreg <- subscription{recipientID: recipientID, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client of the recipient. It gives up when
// ctx ends before the hub accepts the message.
func (h *Hub) Broadcast(ctx context.Context, recipientID string, payload []byte) error {
	select {
	case h.broadcast <- message{recipientID: recipientID, payload: payload}:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribers reports how many clients the recipient has connected.
func (h *Hub) Subscribers(recipientID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{recipientID: recipientID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close stops the hub and closes every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
