package app

import (
	"context"

	"github.com/deckd/deckd/internal/config"
	"github.com/deckd/deckd/internal/control"
	"github.com/deckd/deckd/internal/db"
	"github.com/deckd/deckd/internal/eventbus"
	"github.com/deckd/deckd/internal/ha"
	"github.com/deckd/deckd/internal/registry"
	"github.com/deckd/deckd/internal/state"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB  *db.DB
	Bus *eventbus.Bus

	// Sync core
	Client    *ha.Client
	Echo      *state.EchoGuard
	Cache     *state.Cache
	Caps      *control.Registry
	Debouncer *control.Debouncer
	Snapshot  *registry.Snapshot

	// High-level services
	Session *SessionService
	Health  *Health
	HealthS *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Snapshot = registry.NewSnapshot(database.DB)

	// Notification bus for UI collaborators
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Sync core
	s.Client = ha.NewClient()
	s.Echo = state.NewEchoGuard(cfg.Sync.EchoWindow.Duration())
	s.Cache = state.NewCache(s.Echo)
	s.Caps = control.NewRegistry()
	s.Debouncer = control.NewDebouncer(
		s.Client,
		s.Caps,
		s.Cache,
		s.Echo,
		cfg.Sync.QuietPeriod.Duration(),
		cfg.HomeAssistant.CallTimeout.Duration(),
	)

	// Health tracking and endpoint
	s.Health = NewHealth()
	s.HealthS = NewHealthService(cfg, s.Health)
	s.Debouncer.OnError(func(entityID string, err error) {
		s.Health.SetDegraded("command for " + entityID + " failed: " + err.Error())
	})

	// Session supervisor
	s.Session = NewSessionService(cfg, s.Client, s.Cache, s.Caps, s.Bus, s.Health, s.Snapshot)

	return s, nil
}

// Start launches the long-running services.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.HealthS.Start(ctx)
	s.Session.Start(ctx, onFatalError)
	return nil
}

// Stop tears everything down in reverse dependency order.
func (s *Services) Stop() error {
	s.Debouncer.Close()
	s.Client.Close()
	s.Session.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
	defer cancel()
	s.Bus.Close(shutdownCtx)

	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// The methods below are the boundary consumed by the surface/UI layer.

// Adjust routes one operator action into the debounced command path.
func (s *Services) Adjust(adj control.Adjustment) error {
	return s.Debouncer.Adjust(adj)
}

// CancelPending discards the entity's pending sends, e.g. when the operator
// navigates away from its detail view.
func (s *Services) CancelPending(entityID string) {
	s.Debouncer.CancelPending(entityID)
}

// DisplayState returns the entity's last known state for rendering.
func (s *Services) DisplayState(entityID string) state.CachedState {
	return s.Cache.Get(entityID)
}

// Capabilities returns the entity's resolved capability set.
func (s *Services) Capabilities(entityID string) (control.CapabilitySet, bool) {
	return s.Caps.Get(entityID)
}

// OnEntityChanged registers a repaint hook invoked off the notification bus.
func (s *Services) OnEntityChanged(fn func(entityID string)) {
	s.Bus.Subscribe(eventbus.EventTypeEntityChanged, func(ev eventbus.Event) {
		if id, ok := ev.Data["entity_id"].(string); ok {
			fn(id)
		}
	})
}

// OnConnectionChanged registers a session status hook.
func (s *Services) OnConnectionChanged(fn func(status, message string)) {
	s.Bus.Subscribe(eventbus.EventTypeConnection, func(ev eventbus.Event) {
		status, _ := ev.Data["status"].(string)
		message, _ := ev.Data["message"].(string)
		fn(status, message)
	})
}
