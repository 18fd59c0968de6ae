package persist

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*storage.MemoryStore
	failSet bool
	failGet bool
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.failGet {
		return nil, false, errors.New("disk on fire")
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSet {
		return errors.New("quota exceeded")
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func TestBind_AbsentKeyWritesInitial(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	b, err := Bind(ctx, store, "rocketCostMap", map[string]int64{})
	require.NoError(t, err)
	assert.Empty(t, b.Get())

	raw, ok, err := store.Get(ctx, "rocketCostMap")
	require.NoError(t, err)
	require.True(t, ok, "initial value should be written back")
	assert.Equal(t, "{}", string(raw))
}

func TestBind_ExistingKeyIsUsed(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "rocketCostMap", []byte(`{"falcon9":1000000}`)))

	b, err := Bind(ctx, store, "rocketCostMap", map[string]int64{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"falcon9": 1000000}, b.Get())
}

func TestBind_NullAndCorruptFallBackToInitial(t *testing.T) {
	for name, stored := range map[string]string{
		"null":    "null",
		"corrupt": `{"falcon9":`,
		"wrong":   `"a string"`,
		"blank":   "  ",
	} {
		t.Run(name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			ctx := context.Background()
			require.NoError(t, store.Set(ctx, "k", []byte(stored)))

			b, err := Bind(ctx, store, "k", map[string]int64{"seed": 1})
			require.NoError(t, err)
			assert.Equal(t, map[string]int64{"seed": 1}, b.Get())

			raw, _, _ := store.Get(ctx, "k")
			assert.JSONEq(t, `{"seed":1}`, string(raw), "corrupt bytes should be overwritten")
		})
	}
}

func TestBind_StoreReadError(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), failGet: true}
	_, err := Bind(context.Background(), store, "k", 0)
	assert.Error(t, err)
}

func TestUpdate_WritesThrough(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	b, err := Bind(ctx, store, "counter", 1)
	require.NoError(t, err)

	require.NoError(t, b.Update(func(prev int) int { return prev + 1 }))
	require.NoError(t, b.Set(10))

	assert.Equal(t, 10, b.Get())
	raw, _, _ := store.Get(ctx, "counter")
	assert.Equal(t, "10", string(raw))
}

func TestUpdate_FailedWriteKeepsPreviousValue(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore()}
	b, err := Bind(context.Background(), store, "counter", 1)
	require.NoError(t, err)

	called := false
	b.Subscribe(func(int) { called = true })

	store.failSet = true
	assert.Error(t, b.Set(2))
	assert.Equal(t, 1, b.Get())
	assert.False(t, called, "subscribers must not see a value that was not stored")
}

// gatedStore blocks Set until the gate is opened once armed.
type gatedStore struct {
	*storage.MemoryStore
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) Set(ctx context.Context, key string, value []byte) error {
	if s.gate != nil {
		s.entered <- struct{}{}
		<-s.gate
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func TestUpdate_ReadersDoNotWaitOnStore(t *testing.T) {
	store := &gatedStore{MemoryStore: storage.NewMemoryStore()}
	b, err := Bind(context.Background(), store, "counter", 1)
	require.NoError(t, err)

	store.entered = make(chan struct{}, 1)
	store.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- b.Set(2) }()
	<-store.entered

	got := make(chan int, 1)
	go func() { got <- b.Get() }()
	select {
	case v := <-got:
		assert.Equal(t, 1, v, "value changes only once the write lands")
	case <-time.After(time.Second):
		t.Fatal("Get blocked behind a store write")
	}

	close(store.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 2, b.Get())
}

func TestUpdate_ConcurrentWritersSerialize(t *testing.T) {
	b, err := Bind(context.Background(), storage.NewMemoryStore(), "counter", 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Update(func(prev int) int { return prev + 1 }))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, b.Get())
}

func TestSubscribe_OrderAndCancel(t *testing.T) {
	b, err := Bind(context.Background(), storage.NewMemoryStore(), "counter", 0)
	require.NoError(t, err)

	var seen []int
	cancel := b.Subscribe(func(v int) { seen = append(seen, v) })

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.Set(i))
	}
	cancel()
	cancel()
	require.NoError(t, b.Set(4))

	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestWithCodec(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "n", []byte("0x2a")))

	codec := Codec[int]{
		Marshal: func(v int) ([]byte, error) { return []byte("0x" + strconv.FormatInt(int64(v), 16)), nil },
		Unmarshal: func(b []byte) (int, error) {
			n, err := strconv.ParseInt(string(b[2:]), 16, 64)
			return int(n), err
		},
	}

	b, err := Bind(ctx, store, "n", 0, WithCodec(codec))
	require.NoError(t, err)
	assert.Equal(t, 42, b.Get())

	require.NoError(t, b.Set(255))
	raw, _, _ := store.Get(ctx, "n")
	assert.Equal(t, "0xff", string(raw))
}
