package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/deckd/deckd/internal/config"
)

// Health tracks the single current health state surfaced to the operator:
// ok or degraded, with a human-readable message. It is a snapshot, not a log
// stream - each update overwrites the last.
type Health struct {
	mu        sync.Mutex
	ok        bool
	message   string
	sessionID string
}

// NewHealth starts degraded until the first successful connect.
func NewHealth() *Health {
	return &Health{message: "not connected"}
}

// SetOK marks the sync healthy for the given session.
func (h *Health) SetOK(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ok = true
	h.message = "connected"
	h.sessionID = sessionID
}

// SetDegraded records the most recent problem.
func (h *Health) SetDegraded(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ok = false
	h.message = message
}

// Status returns the current state and message.
func (h *Health) Status() (ok bool, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ok, h.message
}

// HealthService serves the current health state over HTTP.
type HealthService struct {
	cfg    *config.Config
	health *Health
	server *http.Server
}

// NewHealthService creates a new HealthService.
func NewHealthService(cfg *config.Config, health *Health) *HealthService {
	return &HealthService{
		cfg:    cfg,
		health: health,
	}
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ok, message := s.health.Status()

		status := "ok"
		code := http.StatusOK
		if !ok {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"message": message,
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}
