package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TopicPrefix namespaces channel names on a shared redis server.
const TopicPrefix = "launch-shelf:channel:"

// RedisBus carries channels over Redis pub/sub. Redis delivers a message to
// its own publisher too, so each bus stamps messages with its origin and
// drops the ones it sent.
type RedisBus struct {
	client *redis.Client
	origin string
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, origin: uuid.NewString()}
}

// Origin identifies this bus in message envelopes.
func (b *RedisBus) Origin() string { return b.origin }

type envelope struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

func (b *RedisBus) Open(ctx context.Context, name string) (Channel, error) {
	topic := TopicPrefix + name
	ps := b.client.Subscribe(ctx, topic)

	// Wait for the subscription to be confirmed so failures surface here.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	c := &redisChannel{
		bus:   b,
		topic: topic,
		ps:    ps,
		out:   make(chan Message, hubBuffer),
		done:  make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

type redisChannel struct {
	bus   *RedisBus
	topic string
	ps    *redis.PubSub
	out   chan Message
	done  chan struct{}
	once  sync.Once
}

func (c *redisChannel) pump() {
	defer close(c.out)
	for msg := range c.ps.Channel() {
		var env envelope
		var out Message
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			out.Err = fmt.Errorf("malformed message on %s: %w", c.topic, err)
		} else if env.Origin == c.bus.origin {
			continue
		} else {
			out.Data = env.Data
		}

		select {
		case c.out <- out:
		case <-c.done:
			return
		}
	}
}

func (c *redisChannel) Publish(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	payload, err := json.Marshal(envelope{Origin: c.bus.origin, Data: data})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return c.bus.client.Publish(ctx, c.topic, payload).Err()
}

func (c *redisChannel) Messages() <-chan Message { return c.out }

func (c *redisChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ps.Close()
	})
	return err
}
