package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/nzvengeance/launch-shelf/internal/config"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/nzvengeance/launch-shelf/internal/models"
	syncsvc "github.com/nzvengeance/launch-shelf/internal/sync"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SyncHistory reads recent sync runs. *database.DB implements it.
type SyncHistory interface {
	GetLatestSyncStatus(ctx context.Context, limit int) ([]models.SyncRecord, error)
}

type Server struct {
	ledger      *ledger.Orchestrator
	history     SyncHistory
	cfg         *config.Config
	scheduler   *syncsvc.Scheduler
	editLimiter *rate.Limiter
}

// NewServer creates the API server. history may be nil.
func NewServer(l *ledger.Orchestrator, history SyncHistory, cfg *config.Config, scheduler *syncsvc.Scheduler) *Server {
	limit := rate.Inf
	if cfg.EditRateLimit > 0 {
		limit = rate.Every(cfg.EditRateLimit)
	}
	return &Server{
		ledger:      l,
		history:     history,
		cfg:         cfg,
		scheduler:   scheduler,
		editLimiter: rate.NewLimiter(limit, 1),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))
	}

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.healthCheck)
		r.Get("/status", s.getStatus)

		r.Route("/launches", func(r chi.Router) {
			r.Get("/", s.listLaunches)
			r.Get("/{launchID}", s.getLaunch)
			r.With(s.rateLimitEdits).Put("/{launchID}/payloads/{payloadID}/type", s.setPayloadType)
		})

		r.Get("/total-cost", s.getTotalCost)
		r.Get("/rocket-costs", s.getRocketCosts)
		r.With(s.rateLimitEdits).Put("/rockets/{rocketID}/cost", s.setRocketCost)

		r.Post("/sync", s.triggerSync)
	})

	// Serve frontend SPA
	s.serveFrontend(r)

	return r
}

// --- Middleware ---

func (s *Server) rateLimitEdits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.editLimiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded - please wait before making another edit")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Health & Status ---

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ls := s.ledger.LaunchState()
	cs := s.ledger.CostState()

	var history []models.SyncRecord
	if s.history != nil {
		var err error
		history, err = s.history.GetLatestSyncStatus(r.Context(), 10)
		if err != nil {
			log.Warn().Err(err).Msg("failed to read sync history")
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"launches": map[string]interface{}{
			"count":  len(ls.Launches),
			"status": ls.Status,
			"error":  ls.Error,
		},
		"rocket_costs": map[string]interface{}{
			"count":  len(cs.Costs),
			"status": cs.Status,
			"error":  cs.Error,
		},
		"sync_status": history,
		"config": map[string]interface{}{
			"refresh_schedule": s.cfg.RefreshSchedule,
			"store_driver":     s.cfg.StoreDriver,
			"channel_driver":   s.cfg.ChannelDriver,
		},
	})
}

// --- Launches ---

func (s *Server) listLaunches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Summary())
}

func (s *Server) getLaunch(w http.ResponseWriter, r *http.Request) {
	view, ok := s.ledger.Launch(chi.URLParam(r, "launchID"))
	if !ok {
		writeError(w, http.StatusNotFound, "Launch not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type payloadTypeRequest struct {
	PayloadType     string `json:"payload_type"`
	RollbackOnError *bool  `json:"rollback_on_error"`
}

func (s *Server) setPayloadType(w http.ResponseWriter, r *http.Request) {
	var req payloadTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PayloadType == "" {
		writeError(w, http.StatusBadRequest, "payload_type is required")
		return
	}

	ctx := withDecision(r.Context(), req.RollbackOnError)
	out, err := s.ledger.ChangePayloadType(ctx, chi.URLParam(r, "launchID"), chi.URLParam(r, "payloadID"),
		models.PayloadTypeField{PayloadType: req.PayloadType})
	switch {
	case errors.Is(err, ledger.ErrLaunchNotFound):
		writeError(w, http.StatusNotFound, "Launch not found")
	case errors.Is(err, ledger.ErrPayloadNotFound):
		writeError(w, http.StatusNotFound, "Payload not found")
	case err != nil:
		log.Error().Err(err).Msg("payload type change failed")
		writeError(w, http.StatusInternalServerError, "Failed to apply change")
	default:
		writeJSON(w, http.StatusOK, out)
	}
}

// --- Rocket Costs ---

func (s *Server) getTotalCost(w http.ResponseWriter, r *http.Request) {
	sum := s.ledger.Summary()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"value":  sum.TotalCost,
		"status": sum.CostStatus,
		"error":  sum.CostError,
	})
}

func (s *Server) getRocketCosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.CostState())
}

type rocketCostRequest struct {
	CostPerLaunch   *int64 `json:"cost_per_launch"`
	RollbackOnError *bool  `json:"rollback_on_error"`
}

func (s *Server) setRocketCost(w http.ResponseWriter, r *http.Request) {
	var req rocketCostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CostPerLaunch == nil {
		writeError(w, http.StatusBadRequest, "cost_per_launch is required")
		return
	}

	rocketID := chi.URLParam(r, "rocketID")
	if !s.rocketInUse(rocketID) {
		writeError(w, http.StatusNotFound, "Rocket not found")
		return
	}

	ctx := withDecision(r.Context(), req.RollbackOnError)
	out, err := s.ledger.ChangeLaunchCost(ctx, rocketID, models.RocketCostField{CostPerLaunch: *req.CostPerLaunch})
	if err != nil {
		log.Error().Err(err).Str("rocket_id", rocketID).Msg("rocket cost change failed")
		writeError(w, http.StatusInternalServerError, "Failed to apply change")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// rocketInUse reports whether any launch flies rocketID.
func (s *Server) rocketInUse(rocketID string) bool {
	for _, l := range s.ledger.LaunchState().Launches {
		if l.Rocket.RocketID == rocketID {
			return true
		}
	}
	return false
}

// --- Sync ---

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Sync not available")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.scheduler.RefreshAll(ctx); err != nil {
			log.Error().Err(err).Msg("manual refresh failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Refresh started",
	})
}

// --- Frontend ---

func (s *Server) serveFrontend(r chi.Router) {
	staticDir := s.cfg.StaticDir
	if staticDir == "" {
		return
	}

	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		log.Warn().Str("dir", staticDir).Msg("frontend static directory not found")
		return
	}

	fs := http.FileServer(http.Dir(staticDir))

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(staticDir, r.URL.Path)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}

		fs.ServeHTTP(w, r)
	})
}

// --- Helpers ---

// withDecision applies the caller's answer to the rollback prompt, if any.
func withDecision(ctx context.Context, rollback *bool) context.Context {
	if rollback == nil {
		return ctx
	}
	if *rollback {
		return ledger.WithDecision(ctx, ledger.Rollback)
	}
	return ledger.WithDecision(ctx, ledger.Keep)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
