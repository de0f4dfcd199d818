package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/deckd/deckd/internal/config"
	"github.com/deckd/deckd/internal/control"
	"github.com/deckd/deckd/internal/eventbus"
	"github.com/deckd/deckd/internal/ha"
	"github.com/deckd/deckd/internal/registry"
	"github.com/deckd/deckd/internal/state"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect
// attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// SessionService supervises the single backend connection: connect,
// authenticate, subscribe, full refresh, then consume push events until the
// connection drops, reconnecting with exponential backoff. The transport
// itself never retries; this loop owns that policy.
type SessionService struct {
	cfg    *config.Config
	client *ha.Client
	cache  *state.Cache
	caps   *control.Registry
	bus    *eventbus.Bus
	health *Health
	snap   *registry.Snapshot

	wg sync.WaitGroup
}

// NewSessionService wires the supervisor to its collaborators.
func NewSessionService(cfg *config.Config, client *ha.Client, cache *state.Cache, caps *control.Registry, bus *eventbus.Bus, health *Health, snap *registry.Snapshot) *SessionService {
	return &SessionService{
		cfg:    cfg,
		client: client,
		cache:  cache,
		caps:   caps,
		bus:    bus,
		health: health,
		snap:   snap,
	}
}

// Start loads the persisted registry snapshot and launches the supervisor
// loop. onFatalError fires on auth rejection or reconnect exhaustion.
func (s *SessionService) Start(ctx context.Context, onFatalError func(error)) {
	if s.snap != nil {
		if entries, err := s.snap.Load(); err != nil {
			log.Warn().Err(err).Msg("Failed to load registry snapshot")
		} else if len(entries) > 0 {
			s.caps.ReplaceAll(registry.CapabilityMap(entries))
			log.Info().Int("entities", len(entries)).Msg("Registry snapshot loaded")
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.run(ctx); err != nil {
			onFatalError(err)
		}
	}()
}

// Wait blocks until the supervisor loop exits.
func (s *SessionService) Wait() {
	s.wg.Wait()
}

// run reconnects with exponential backoff until the context is cancelled or
// a fatal condition is hit.
func (s *SessionService) run(ctx context.Context) error {
	haCfg := s.cfg.HomeAssistant
	retryCount := 0
	currentBackoff := haCfg.MinRetryBackoff.Duration()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := s.session(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, ha.ErrAuthRejected) {
				// Bad credentials don't fix themselves; surface and stop
				s.health.SetDegraded("authentication rejected, check the access token")
				return err
			}

			retryCount++

			if haCfg.MaxReconnects > 0 && retryCount > haCfg.MaxReconnects {
				log.Error().
					Int("max_reconnects", haCfg.MaxReconnects).
					Msg("Session: max reconnects exceeded, terminating")
				return ErrMaxReconnectsExceeded
			}

			log.Warn().
				Err(err).
				Dur("backoff", currentBackoff).
				Int("retry", retryCount).
				Int("max_reconnects", haCfg.MaxReconnects).
				Msg("Session lost, reconnecting")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(currentBackoff):
			}

			// Calculate next backoff with multiplier, capped at max
			nextBackoff := time.Duration(float64(currentBackoff) * haCfg.RetryMultiplier)
			if nextBackoff > haCfg.MaxRetryBackoff.Duration() {
				nextBackoff = haCfg.MaxRetryBackoff.Duration()
			}
			currentBackoff = nextBackoff

			continue
		}

		// Reset retry count and backoff on successful connection
		retryCount = 0
		currentBackoff = haCfg.MinRetryBackoff.Duration()
	}
}

// session runs one connection lifetime: handshake, subscription, refresh,
// then the demux loop until the stream ends.
func (s *SessionService) session(ctx context.Context) error {
	sessionID := uuid.NewString()
	haCfg := s.cfg.HomeAssistant

	if err := s.client.Connect(ctx, haCfg.URL, haCfg.Token); err != nil {
		s.health.SetDegraded(fmt.Sprintf("connect failed: %v", err))
		return err
	}

	events := s.client.Events()

	callCtx, cancel := context.WithTimeout(ctx, haCfg.CallTimeout.Duration())
	err := s.client.SubscribeEvents(callCtx, "state_changed")
	cancel()
	if err != nil {
		s.client.Close()
		s.health.SetDegraded(fmt.Sprintf("subscribe failed: %v", err))
		return err
	}

	if err := s.refresh(ctx); err != nil {
		s.client.Close()
		s.health.SetDegraded(fmt.Sprintf("refresh failed: %v", err))
		return err
	}

	s.health.SetOK(sessionID)
	s.bus.Publish(eventbus.ConnectionChanged("connected", ""))
	log.Info().Str("session", sessionID).Msg("Session established")

	demux := ha.NewDemux(s.applyChange)
	demux.Run(ctx, events)

	if ctx.Err() != nil {
		return nil
	}

	s.health.SetDegraded("connection lost")
	s.bus.Publish(eventbus.ConnectionChanged("disconnected", "connection lost"))
	return fmt.Errorf("event stream ended: %w", ha.ErrConnectionClosed)
}

// applyChange feeds one decoded push delta through the echo gate into the
// cache; only applied changes trigger a repaint.
func (s *SessionService) applyChange(ch ha.Change) {
	if s.cache.ApplyConfirmed(ch.EntityID, ch.Patch) {
		s.bus.Publish(eventbus.EntityChanged(ch.EntityID))
	}
}

// refresh pulls the full entity registry: capability sets are re-derived
// wholesale, cached state is seeded, and the snapshot is persisted.
func (s *SessionService) refresh(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.HomeAssistant.CallTimeout.Duration())
	defer cancel()

	states, err := s.client.GetStates(callCtx)
	if err != nil {
		return err
	}

	caps := make(map[string]control.CapabilitySet)
	var entries []registry.Entry

	for _, st := range states {
		if !strings.HasPrefix(st.EntityID, "light.") && !strings.HasPrefix(st.EntityID, "cover.") {
			continue
		}

		set := control.Resolve(st.EntityID, st.Attributes)
		caps[st.EntityID] = set

		name, _ := st.Attributes["friendly_name"].(string)
		entries = append(entries, registry.Entry{
			EntityID:     st.EntityID,
			FriendlyName: name,
			Capabilities: set,
		})

		for _, ch := range ha.DecodeEntity(st) {
			s.applyChange(ch)
		}
	}

	s.caps.ReplaceAll(caps)

	if s.snap != nil {
		if err := s.snap.Save(entries); err != nil {
			log.Warn().Err(err).Msg("Failed to persist registry snapshot")
		}
	}

	log.Info().Int("entities", len(entries)).Msg("Full state refresh complete")
	return nil
}
