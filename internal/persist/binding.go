// Package persist binds a piece of in-memory state to a durable storage slot.
// Every change is written through to the slot before it becomes visible.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the durable slot a binding writes through to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Codec converts bound values to and from their stored form.
type Codec[T any] struct {
	Marshal   func(T) ([]byte, error)
	Unmarshal func([]byte) (T, error)
}

// JSONCodec is the default codec.
func JSONCodec[T any]() Codec[T] {
	return Codec[T]{
		Marshal: func(v T) ([]byte, error) { return json.Marshal(v) },
		Unmarshal: func(b []byte) (T, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		},
	}
}

type Option[T any] func(*Binding[T])

// WithCodec replaces the default JSON codec.
func WithCodec[T any](c Codec[T]) Option[T] {
	return func(b *Binding[T]) { b.codec = c }
}

// WithWriteTimeout bounds each write to the store.
func WithWriteTimeout[T any](d time.Duration) Option[T] {
	return func(b *Binding[T]) { b.writeTimeout = d }
}

// Binding holds the current value of one slot.
type Binding[T any] struct {
	key          string
	store        Store
	codec        Codec[T]
	writeTimeout time.Duration

	// writeMu serializes writers across store I/O; mu only guards value,
	// so readers never wait on the store.
	writeMu sync.Mutex
	mu      sync.Mutex
	value   T

	// notifyMu is taken before mu is released so subscribers observe
	// changes in the order they were written.
	notifyMu sync.Mutex
	subs     map[int]func(T)
	nextSub  int
}

// Bind loads key from store. An absent key, a stored null, or bytes the codec
// cannot decode all yield initial, which is then written back to the slot.
func Bind[T any](ctx context.Context, store Store, key string, initial T, opts ...Option[T]) (*Binding[T], error) {
	b := &Binding[T]{
		key:          key,
		store:        store,
		codec:        JSONCodec[T](),
		writeTimeout: 5 * time.Second,
		subs:         make(map[int]func(T)),
	}
	for _, opt := range opts {
		opt(b)
	}

	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}

	if ok && !isNull(raw) {
		v, err := b.codec.Unmarshal(raw)
		if err == nil {
			b.value = v
			return b, nil
		}
		log.Warn().Err(err).Str("key", key).Int("bytes", len(raw)).
			Msg("stored value is corrupt, falling back to initial value")
	}

	if err := b.write(ctx, initial); err != nil {
		return nil, err
	}
	b.value = initial
	return b, nil
}

// Key returns the storage key of the binding.
func (b *Binding[T]) Key() string { return b.key }

// Get returns the current value.
func (b *Binding[T]) Get() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Set replaces the value.
func (b *Binding[T]) Set(v T) error {
	return b.Update(func(T) T { return v })
}

// Update applies fn to the current value and stores the result. If the write
// fails the previous value stays in place and the error is returned.
// fn must not call back into the binding.
func (b *Binding[T]) Update(fn func(prev T) T) error {
	b.writeMu.Lock()
	next := fn(b.Get())

	ctx, cancel := context.WithTimeout(context.Background(), b.writeTimeout)
	err := b.write(ctx, next)
	cancel()
	if err != nil {
		b.writeMu.Unlock()
		return err
	}

	b.mu.Lock()
	b.value = next
	b.mu.Unlock()

	b.notifyMu.Lock()
	b.writeMu.Unlock()
	defer b.notifyMu.Unlock()

	for _, fn := range b.subscribers() {
		fn(next)
	}
	return nil
}

// Subscribe registers fn to be called with every new value. fn runs on the
// writer's goroutine and must not call Set or Update on the same binding.
func (b *Binding[T]) Subscribe(fn func(T)) (cancel func()) {
	b.notifyMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.notifyMu.Lock()
			delete(b.subs, id)
			b.notifyMu.Unlock()
		})
	}
}

// subscribers must be called with notifyMu held.
func (b *Binding[T]) subscribers() []func(T) {
	out := make([]func(T), 0, len(b.subs))
	for i := 0; i < b.nextSub; i++ {
		if fn, ok := b.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (b *Binding[T]) write(ctx context.Context, v T) error {
	raw, err := b.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", b.key, err)
	}
	if err := b.store.Set(ctx, b.key, raw); err != nil {
		return fmt.Errorf("writing %s: %w", b.key, err)
	}
	return nil
}

func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
