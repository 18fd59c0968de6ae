package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/nzvengeance/launch-shelf/internal/metrics"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 5 * time.Second

// State is the piece of state a Mirror keeps in sync. persist.Binding
// satisfies it.
type State[T any] interface {
	Get() T
	Set(T) error
	Subscribe(func(T)) (cancel func())
}

// Mirror publishes local changes of a State on a named channel and applies
// every received message to it, unconditionally.
type Mirror[T any] struct {
	name    string
	state   State[T]
	ch      Channel
	onError func(error)
	// onReceive sees every value applied from the channel.
	onReceive func(T)

	mu         sync.Mutex
	last       T // last value seen on or sent to the channel
	pending    T
	hasPending bool

	wake        chan struct{}
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

// Option configures a Mirror.
type Option[T any] func(*Mirror[T])

// OnReceive registers fn to run after a value received from another tab has
// been applied to the state. Local changes never reach fn.
func OnReceive[T any](fn func(T)) Option[T] {
	return func(m *Mirror[T]) { m.onReceive = fn }
}

// Attach opens channel name on bus and starts mirroring state. When the
// channel cannot be opened, onError is called once and the returned Mirror
// is inert: state stays local and Close is a no-op.
func Attach[T any](ctx context.Context, bus Bus, name string, state State[T], onError func(error), opts ...Option[T]) *Mirror[T] {
	if onError == nil {
		onError = func(err error) {
			log.Warn().Err(err).Str("channel", name).Msg("broadcast error")
		}
	}
	m := &Mirror[T]{name: name, state: state, onError: onError}
	for _, opt := range opts {
		opt(m)
	}

	if bus == nil {
		return m
	}
	ch, err := bus.Open(ctx, name)
	if err != nil {
		metrics.BroadcastMessages.WithLabelValues(name, "error").Inc()
		onError(fmt.Errorf("opening channel %s: %w", name, err))
		return m
	}

	m.ch = ch
	m.last = state.Get()
	m.wake = make(chan struct{}, 1)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.unsubscribe = state.Subscribe(m.onLocalChange)

	m.wg.Add(2)
	go m.receive()
	go m.send()

	log.Debug().Str("channel", name).Msg("mirror attached")
	return m
}

// Active reports whether a channel is open.
func (m *Mirror[T]) Active() bool { return m.ch != nil }

// Close detaches from the state and closes the channel. Messages still in
// flight are discarded.
func (m *Mirror[T]) Close() error {
	if m.ch == nil {
		return nil
	}
	var err error
	m.closeOnce.Do(func() {
		m.unsubscribe()
		m.cancel()
		err = m.ch.Close()
		m.wg.Wait()
		log.Debug().Str("channel", m.name).Msg("mirror closed")
	})
	return err
}

func equal[T any](a, b T) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

func (m *Mirror[T]) onLocalChange(v T) {
	m.mu.Lock()
	if equal(m.last, v) {
		m.mu.Unlock()
		return
	}
	m.last = v
	m.pending = v
	m.hasPending = true
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// send publishes the most recent pending value. Intermediate values are
// coalesced since every message carries the full state.
func (m *Mirror[T]) send() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}

		m.mu.Lock()
		if !m.hasPending {
			m.mu.Unlock()
			continue
		}
		v := m.pending
		m.hasPending = false
		m.mu.Unlock()

		data, err := json.Marshal(v)
		if err != nil {
			m.onError(fmt.Errorf("encoding message for %s: %w", m.name, err))
			continue
		}

		ctx, cancel := context.WithTimeout(m.ctx, publishTimeout)
		err = m.ch.Publish(ctx, data)
		cancel()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			metrics.BroadcastMessages.WithLabelValues(m.name, "error").Inc()
			m.onError(fmt.Errorf("publishing on %s: %w", m.name, err))
			continue
		}
		metrics.BroadcastMessages.WithLabelValues(m.name, "sent").Inc()
	}
}

func (m *Mirror[T]) receive() {
	defer m.wg.Done()
	for msg := range m.ch.Messages() {
		if m.ctx.Err() != nil {
			return
		}
		if msg.Err != nil {
			metrics.BroadcastMessages.WithLabelValues(m.name, "error").Inc()
			m.onError(msg.Err)
			continue
		}

		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			metrics.BroadcastMessages.WithLabelValues(m.name, "error").Inc()
			m.onError(fmt.Errorf("decoding message on %s: %w", m.name, err))
			continue
		}
		metrics.BroadcastMessages.WithLabelValues(m.name, "received").Inc()

		// A remote value supersedes any local change not yet sent.
		m.mu.Lock()
		m.last = v
		m.hasPending = false
		m.mu.Unlock()

		if err := m.state.Set(v); err != nil {
			m.onError(fmt.Errorf("applying message on %s: %w", m.name, err))
			continue
		}
		if m.onReceive != nil {
			m.onReceive(v)
		}
	}
}
