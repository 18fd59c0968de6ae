// Package app assembles one tab: the shared store, the cross-tab channel,
// both managers and the orchestrator on top of them.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/nzvengeance/launch-shelf/internal/broadcast"
	"github.com/nzvengeance/launch-shelf/internal/config"
	"github.com/nzvengeance/launch-shelf/internal/database"
	"github.com/nzvengeance/launch-shelf/internal/launches"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/nzvengeance/launch-shelf/internal/rocketcosts"
	"github.com/nzvengeance/launch-shelf/internal/spacex"
	"github.com/nzvengeance/launch-shelf/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// App is a running tab.
type App struct {
	Ledger *ledger.Orchestrator
	Client *spacex.Client

	// DB is set for the sqlite and postgres drivers and records sync history.
	DB *database.DB

	store storage.Store
	redis *redis.Client
}

// Open builds a tab from cfg. confirm answers rollback prompts; nil keeps
// optimistic values unless a request carries its own decision.
func Open(ctx context.Context, cfg *config.Config, confirm ledger.Confirmer) (*App, error) {
	return OpenWithHub(ctx, cfg, nil, confirm)
}

// OpenWithHub is Open with an explicit in-process hub for the "memory"
// channel driver, so several tabs in one process can share it.
func OpenWithHub(ctx context.Context, cfg *config.Config, hub *broadcast.Hub, confirm ledger.Confirmer) (*App, error) {
	a := &App{}

	if cfg.StoreDriver == "redis" || cfg.ChannelDriver == "redis" {
		client, err := storage.NewRedisClient(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.redis = client
	}

	store, err := a.openStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	bus, err := a.openBus(cfg, hub)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Client = spacex.NewClient(cfg.LaunchAPIBaseURL, cfg.LaunchAPIRateLimit, cfg.LaunchAPIBurst)

	lm, err := launches.NewManager(ctx, store, a.Client, launches.Options{Latency: cfg.LaunchLatency})
	if err != nil {
		a.Close()
		return nil, err
	}
	cm, err := rocketcosts.NewManager(ctx, store, bus, a.Client, rocketcosts.Options{
		Concurrency: cfg.FetchConcurrency,
		Latency:     cfg.CostLatency,
	})
	if err != nil {
		lm.Close()
		a.Close()
		return nil, err
	}

	a.Ledger = ledger.New(lm, cm, a.Client, confirm)

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("channel", cfg.ChannelDriver).
		Bool("synced", cm.Synced()).
		Msg("tab opened")
	return a, nil
}

func (a *App) openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite", "postgres":
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connecting database: %w", err)
		}
		a.DB = db
		return db.Slots(), nil
	case "badger":
		s, err := storage.OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("opening badger: %w", err)
		}
		return s, nil
	case "redis":
		return storage.NewRedisStore(a.redis), nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownBackend, cfg.StoreDriver)
	}
}

func (a *App) openBus(cfg *config.Config, hub *broadcast.Hub) (broadcast.Bus, error) {
	switch cfg.ChannelDriver {
	case "redis":
		return broadcast.NewRedisBus(a.redis), nil
	case "memory":
		if hub == nil {
			hub = broadcast.NewHub()
		}
		return hub, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown channel driver: %s", cfg.ChannelDriver)
	}
}

// Close tears the tab down, then releases the store and connections.
func (a *App) Close() error {
	var errs []error
	if a.Ledger != nil {
		errs = append(errs, a.Ledger.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
