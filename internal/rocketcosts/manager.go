// Package rocketcosts owns the persisted rocket_id to cost map. The map is
// mirrored across tabs and filled by fetching every rocket referenced by the
// launch collection.
package rocketcosts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/broadcast"
	"github.com/nzvengeance/launch-shelf/internal/metrics"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/nzvengeance/launch-shelf/internal/persist"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	// StorageKey is the slot holding the cost map.
	StorageKey = "rocketCostMap"
	// ChannelName is the cross-tab channel the cost map is mirrored on.
	ChannelName = "rocket-cost-channel"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("rocket cost manager closed")

// Fetcher loads one rocket.
type Fetcher interface {
	FetchRocket(ctx context.Context, rocketID string) (models.RocketDetail, error)
}

type Options struct {
	// Concurrency bounds parallel rocket fetches. Zero means unbounded.
	Concurrency int
	// Latency delays marking a completed fetch as resolved.
	Latency time.Duration
}

// State is a snapshot of the manager.
type State struct {
	Costs  models.RocketCostMap `json:"costs"`
	Status models.FetchStatus   `json:"status"`
	Error  string               `json:"error,omitempty"`
}

type Manager struct {
	costs   *persist.Binding[models.RocketCostMap]
	mirror  *broadcast.Mirror[models.RocketCostMap]
	fetcher Fetcher
	opts    Options
	group   singleflight.Group

	// base outlives any single caller; fetches run on it so a caller that
	// gives up does not fail the callers sharing its flight.
	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	status models.FetchStatus
	err    string

	// closeMu is held for reading across every write to the map, so Close
	// returns only after the last write has landed.
	closeMu sync.RWMutex
	closed  bool
	done    chan struct{}
}

// NewManager binds the persisted cost map and mirrors it on bus. A nil bus
// keeps the map local to this tab. The status starts out resolved when a map
// was already stored, pending otherwise.
func NewManager(ctx context.Context, store persist.Store, bus broadcast.Bus, fetcher Fetcher, opts Options) (*Manager, error) {
	costs, err := persist.Bind(ctx, store, StorageKey, models.RocketCostMap{})
	if err != nil {
		return nil, fmt.Errorf("binding rocket costs: %w", err)
	}

	status := models.StatusPending
	if len(costs.Get()) > 0 {
		status = models.StatusResolved
	}

	m := &Manager{
		costs:   costs,
		fetcher: fetcher,
		opts:    opts,
		status:  status,
		done:    make(chan struct{}),
	}
	m.base, m.stop = context.WithCancel(context.Background())
	m.mirror = broadcast.Attach[models.RocketCostMap](ctx, bus, ChannelName, costs, m.onChannelError,
		broadcast.OnReceive(m.onRemote))
	return m, nil
}

// State returns a copy of the map with the current status and error.
func (m *Manager) State() State {
	m.mu.Lock()
	status, errMsg := m.status, m.err
	m.mu.Unlock()

	return State{
		Costs:  m.costs.Get().Clone(),
		Status: status,
		Error:  errMsg,
	}
}

// Costs returns a copy of the map.
func (m *Manager) Costs() models.RocketCostMap {
	return m.costs.Get().Clone()
}

// Synced reports whether the map is mirrored to other tabs.
func (m *Manager) Synced() bool {
	return m.mirror.Active()
}

// DistinctRocketIDs returns each rocket id referenced by launches once, in
// order of first appearance.
func DistinctRocketIDs(launches []models.Launch) []string {
	seen := make(map[string]struct{}, len(launches))
	ids := make([]string, 0, len(launches))
	for _, l := range launches {
		id := l.Rocket.RocketID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// EnsureLoaded fetches the cost of every rocket referenced by launches when
// the map is empty. It is a no-op for an empty launch collection.
func (m *Manager) EnsureLoaded(ctx context.Context, launches []models.Launch) error {
	if len(launches) == 0 || len(m.costs.Get()) > 0 {
		return nil
	}
	return m.load(ctx, launches, false)
}

// Refresh re-fetches every referenced rocket even when a map is stored.
// A failure keeps the stored map.
func (m *Manager) Refresh(ctx context.Context, launches []models.Launch) error {
	if len(launches) == 0 {
		return nil
	}
	return m.load(ctx, launches, true)
}

// load joins the fetch in flight or starts one. The fetch is not bound to
// ctx: when ctx ends first the caller gets ctx.Err() and the fetch still
// lands for everyone else. Only Close aborts it.
func (m *Manager) load(ctx context.Context, launches []models.Launch, refresh bool) error {
	ch := m.group.DoChan("rocket-costs", func() (any, error) {
		return nil, m.fetch(m.base, launches, refresh)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) fetch(ctx context.Context, launches []models.Launch, refresh bool) error {
	hasData := len(m.costs.Get()) > 0
	if !refresh && hasData {
		return nil
	}

	m.closeMu.RLock()
	if m.closed {
		m.closeMu.RUnlock()
		return ErrClosed
	}
	if !hasData {
		m.mu.Lock()
		m.status = models.StatusPending
		m.mu.Unlock()
	}
	m.closeMu.RUnlock()

	ids := DistinctRocketIDs(launches)
	log.Debug().Int("rockets", len(ids)).Bool("refresh", refresh).Msg("fetching rocket costs")

	rockets := make([]models.RocketDetail, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if m.opts.Concurrency > 0 {
		g.SetLimit(m.opts.Concurrency)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rocket, err := m.fetcher.FetchRocket(gctx, id)
			if err != nil {
				return err
			}
			rockets[i] = rocket
			return nil
		})
	}
	err := g.Wait()
	metrics.FetchTotal.WithLabelValues(StorageKey, metrics.Outcome(err)).Inc()

	if err != nil {
		m.closeMu.RLock()
		defer m.closeMu.RUnlock()
		if m.closed {
			return ErrClosed
		}
		m.setFailure(err.Error(), !hasData)
		log.Warn().Err(err).Bool("refresh", refresh).Msg("failed to fetch rocket costs")
		return fmt.Errorf("fetching rocket costs: %w", err)
	}

	next := make(models.RocketCostMap, len(rockets))
	for i, r := range rockets {
		id := r.RocketID
		if id == "" {
			id = ids[i]
		}
		next[id] = r.CostPerLaunch
	}

	if err := m.wait(ctx); err != nil {
		return err
	}

	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		log.Debug().Msg("dropping rocket costs fetched after close")
		return ErrClosed
	}

	if err := m.costs.Set(next); err != nil {
		m.setFailure(err.Error(), !hasData)
		return fmt.Errorf("storing rocket costs: %w", err)
	}

	m.mu.Lock()
	m.status = models.StatusResolved
	m.err = ""
	m.mu.Unlock()

	log.Info().Int("rockets", len(next)).Bool("refresh", refresh).Msg("rocket costs loaded")
	return nil
}

func (m *Manager) setFailure(msg string, reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = msg
	if reject {
		m.status = models.StatusRejected
	}
}

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

// onRemote resolves the manager when another tab delivers a populated map.
// Local edits never resolve: a rejected load stays rejected until a fetch
// succeeds or another tab supplies the map.
func (m *Manager) onRemote(v models.RocketCostMap) {
	if len(v) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != models.StatusResolved {
		m.status = models.StatusResolved
		m.err = ""
	}
}

// onChannelError records channel failures in the error slot. The status is
// left alone: local operation continues.
func (m *Manager) onChannelError(err error) {
	log.Warn().Err(err).Str("channel", ChannelName).Msg("rocket cost channel error")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err.Error()
}

// Replace stores fn applied to a copy of the map and broadcasts the result.
func (m *Manager) Replace(fn func(models.RocketCostMap) models.RocketCostMap) error {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	return m.costs.Update(func(prev models.RocketCostMap) models.RocketCostMap {
		next := fn(prev.Clone())
		if next == nil {
			next = models.RocketCostMap{}
		}
		return next
	})
}

// Subscribe calls fn with every new map, local or remote.
func (m *Manager) Subscribe(fn func(models.RocketCostMap)) (cancel func()) {
	return m.costs.Subscribe(func(v models.RocketCostMap) { fn(v.Clone()) })
}

// Close detaches from the channel and discards fetches still in flight. A
// write already under way finishes before Close returns; nothing changes the
// map afterwards.
func (m *Manager) Close() error {
	m.closeMu.Lock()
	if m.closed {
		m.closeMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.closeMu.Unlock()

	m.stop()
	return m.mirror.Close()
}
