package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/nzvengeance/launch-shelf/internal/config"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/nzvengeance/launch-shelf/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	SyncTypeLoad    = "load"
	SyncTypeRefresh = "refresh"

	jobTimeout = 10 * time.Minute
)

// History records sync runs. *database.DB implements it.
type History interface {
	InsertSyncStatus(ctx context.Context, s *models.SyncRecord) (int, error)
	UpdateSyncStatus(ctx context.Context, id int, status string, count int, errMsg string) error
}

type Scheduler struct {
	ledger  *ledger.Orchestrator
	history History
	cfg     *config.Config
	cron    *cron.Cron
}

// NewScheduler creates a scheduler. history may be nil when no SQL database
// is configured.
func NewScheduler(l *ledger.Orchestrator, history History, cfg *config.Config) *Scheduler {
	return &Scheduler{
		ledger:  l,
		history: history,
		cfg:     cfg,
		cron:    cron.New(),
	}
}

// Start begins the scheduled refresh job
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.RefreshSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		log.Info().Msg("scheduled refresh starting")
		if err := s.RefreshAll(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("adding cron job: %w", err)
	}

	s.cron.Start()
	log.Info().Str("schedule", s.cfg.RefreshSchedule).Msg("sync scheduler started")

	if s.cfg.LoadOnStartup {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			if err := s.LoadAll(ctx); err != nil {
				log.Error().Err(err).Msg("startup load failed")
			}
		}()
	}

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("sync scheduler stopped")
}

// LoadAll loads whatever is not stored yet.
func (s *Scheduler) LoadAll(ctx context.Context) error {
	return s.run(ctx, SyncTypeLoad, s.ledger.Load)
}

// RefreshAll re-fetches launches and rocket costs.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	return s.run(ctx, SyncTypeRefresh, s.ledger.Refresh)
}

func (s *Scheduler) run(ctx context.Context, syncType string, fn func(context.Context) error) error {
	syncID := 0
	if s.history != nil {
		id, err := s.history.InsertSyncStatus(ctx, &models.SyncRecord{
			SyncType: syncType,
			Status:   "running",
		})
		if err != nil {
			log.Warn().Err(err).Str("type", syncType).Msg("failed to record sync start")
		}
		syncID = id
	}

	err := fn(ctx)
	count := len(s.ledger.LaunchState().Launches)

	if s.history != nil && syncID != 0 {
		status, msg := "success", ""
		if err != nil {
			status, msg = "error", err.Error()
		}
		if herr := s.history.UpdateSyncStatus(ctx, syncID, status, count, msg); herr != nil {
			log.Warn().Err(herr).Int("id", syncID).Msg("failed to record sync result")
		}
	}

	if err != nil {
		return fmt.Errorf("%s: %w", syncType, err)
	}
	log.Info().Str("type", syncType).Int("launches", count).Msg("sync complete")
	return nil
}
