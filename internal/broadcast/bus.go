// Package broadcast mirrors state across tabs over named channels.
//
// A Bus opens named channels. A message published on a channel reaches every
// other subscriber of that name but never the publisher itself, matching the
// semantics of a browser BroadcastChannel. Mirror builds on that to keep a
// piece of state equal across tabs with last-writer-wins semantics.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/nzvengeance/launch-shelf/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when publishing on a closed channel.
var ErrClosed = errors.New("broadcast channel closed")

// Message is one delivery on a channel. Err is set when a delivery arrived
// but could not be turned into data.
type Message struct {
	Data []byte
	Err  error
}

// Channel is one subscription to a named topic.
type Channel interface {
	Publish(ctx context.Context, data []byte) error
	// Messages is closed after Close.
	Messages() <-chan Message
	Close() error
}

// Bus opens named channels.
type Bus interface {
	Open(ctx context.Context, name string) (Channel, error)
}

const hubBuffer = 64

// Hub is an in-process Bus. Tabs sharing a Hub see each other's messages.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*hubChannel]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*hubChannel]struct{})}
}

func (h *Hub) Open(_ context.Context, name string) (Channel, error) {
	c := &hubChannel{hub: h, name: name, out: make(chan Message, hubBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[name]
	if !ok {
		subs = make(map[*hubChannel]struct{})
		h.topics[name] = subs
	}
	subs[c] = struct{}{}
	return c, nil
}

// Subscribers reports how many open channels exist for name.
func (h *Hub) Subscribers(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[name])
}

type hubChannel struct {
	hub    *Hub
	name   string
	out    chan Message
	closed bool // guarded by hub.mu
}

func (c *hubChannel) Publish(_ context.Context, data []byte) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	for sub := range c.hub.topics[c.name] {
		if sub == c {
			continue
		}
		msg := Message{Data: append([]byte(nil), data...)}
		select {
		case sub.out <- msg:
		default:
			metrics.BroadcastMessages.WithLabelValues(c.name, "dropped").Inc()
			log.Warn().Str("channel", c.name).Msg("subscriber buffer full, message dropped")
		}
	}
	return nil
}

func (c *hubChannel) Messages() <-chan Message { return c.out }

func (c *hubChannel) Close() error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	delete(c.hub.topics[c.name], c)
	if len(c.hub.topics[c.name]) == 0 {
		delete(c.hub.topics, c.name)
	}
	close(c.out)
	return nil
}
