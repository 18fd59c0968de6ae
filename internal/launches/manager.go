// Package launches owns the persisted launch collection and its fetch state.
package launches

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/metrics"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/nzvengeance/launch-shelf/internal/persist"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// StorageKey is the slot holding the launch collection.
const StorageKey = "launchList"

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("launch manager closed")

// Fetcher loads the full launch collection.
type Fetcher interface {
	FetchLaunchList(ctx context.Context) ([]models.Launch, error)
}

// Options tune a Manager.
type Options struct {
	// Latency delays marking a completed fetch as resolved.
	Latency time.Duration
}

// State is a snapshot of the manager.
type State struct {
	Launches []models.Launch   `json:"launches"`
	Status   models.FetchStatus `json:"status"`
	Error    string             `json:"error,omitempty"`
}

type Manager struct {
	list    *persist.Binding[[]models.Launch]
	fetcher Fetcher
	opts    Options
	group   singleflight.Group

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	status models.FetchStatus
	err    string

	// closeMu is read-held across writes to the collection.
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

// NewManager binds the persisted collection. The status starts out resolved
// when a collection was already stored, idle otherwise.
func NewManager(ctx context.Context, store persist.Store, fetcher Fetcher, opts Options) (*Manager, error) {
	list, err := persist.Bind(ctx, store, StorageKey, []models.Launch{})
	if err != nil {
		return nil, fmt.Errorf("binding launch list: %w", err)
	}

	status := models.StatusIdle
	if len(list.Get()) > 0 {
		status = models.StatusResolved
	}

	m := &Manager{
		list:    list,
		fetcher: fetcher,
		opts:    opts,
		status:  status,
		done:    make(chan struct{}),
	}
	m.base, m.stop = context.WithCancel(context.Background())
	return m, nil
}

// State returns a copy of the collection with the current status and error.
func (m *Manager) State() State {
	m.mu.Lock()
	status, errMsg := m.status, m.err
	m.mu.Unlock()

	return State{
		Launches: models.CloneLaunches(m.list.Get()),
		Status:   status,
		Error:    errMsg,
	}
}

// Launches returns a copy of the collection.
func (m *Manager) Launches() []models.Launch {
	return models.CloneLaunches(m.list.Get())
}

// EnsureLoaded fetches the collection when none is stored yet. A stored
// collection is served as is; Refresh updates it. A failed fetch is recorded
// as the rejected status and also returned.
func (m *Manager) EnsureLoaded(ctx context.Context) error {
	if len(m.list.Get()) > 0 {
		return nil
	}
	return m.load(ctx, false)
}

// Refresh re-fetches the collection even when one is stored. If the fetch
// fails while a collection is stored, the stored collection and its resolved
// status are kept and only the error is recorded.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.load(ctx, true)
}

// load shares one fetch between concurrent callers. The fetch runs detached
// from ctx, so a caller giving up returns ctx.Err() without cancelling the
// request the others are waiting on.
func (m *Manager) load(ctx context.Context, refresh bool) error {
	ch := m.group.DoChan("launches", func() (any, error) {
		return nil, m.fetch(m.base, refresh)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) fetch(ctx context.Context, refresh bool) error {
	hasData := len(m.list.Get()) > 0
	if !refresh && hasData {
		return nil
	}

	m.closeMu.RLock()
	if m.closed {
		m.closeMu.RUnlock()
		return ErrClosed
	}
	if !hasData {
		m.setStatus(models.StatusPending, "")
	}
	m.closeMu.RUnlock()

	log.Debug().Bool("refresh", refresh).Msg("fetching launch list")
	data, err := m.fetcher.FetchLaunchList(ctx)
	metrics.FetchTotal.WithLabelValues(StorageKey, metrics.Outcome(err)).Inc()

	if err != nil {
		m.closeMu.RLock()
		defer m.closeMu.RUnlock()
		if m.closed {
			return ErrClosed
		}
		m.setFailure(err.Error(), !hasData)
		log.Warn().Err(err).Bool("refresh", refresh).Msg("failed to fetch launch list")
		return fmt.Errorf("fetching launch list: %w", err)
	}

	if err := m.wait(ctx); err != nil {
		return err
	}

	// The manager may have been torn down while the request was in flight.
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		log.Debug().Msg("dropping launch list fetched after close")
		return ErrClosed
	}

	if data == nil {
		data = []models.Launch{}
	}
	if err := m.list.Set(data); err != nil {
		m.setFailure(err.Error(), !hasData)
		return fmt.Errorf("storing launch list: %w", err)
	}
	m.setStatus(models.StatusResolved, "")

	log.Info().Int("count", len(data)).Bool("refresh", refresh).Msg("launch list loaded")
	return nil
}

func (m *Manager) setStatus(status models.FetchStatus, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.err = errMsg
}

func (m *Manager) setFailure(msg string, reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = msg
	if reject {
		m.status = models.StatusRejected
	}
}

// wait applies the configured latency unless the manager closes first.
func (m *Manager) wait(ctx context.Context) error {
	if m.opts.Latency <= 0 {
		return nil
	}
	t := time.NewTimer(m.opts.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		select {
		case <-m.done:
			return ErrClosed
		default:
		}
		return ctx.Err()
	}
}

// Replace stores fn applied to a copy of the collection. fn receives its own
// copy and may return a new or modified slice.
func (m *Manager) Replace(fn func([]models.Launch) []models.Launch) error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	return m.list.Update(func(prev []models.Launch) []models.Launch {
		next := fn(models.CloneLaunches(prev))
		if next == nil {
			next = []models.Launch{}
		}
		return next
	})
}

// Close tears the manager down and aborts fetches still in flight. A write
// already under way lands before Close returns.
func (m *Manager) Close() {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	m.closeMu.Unlock()

	m.stop()
}
