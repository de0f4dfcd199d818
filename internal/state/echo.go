package state

import (
	"sync"
	"time"
)

// DefaultEchoWindow is how long backend confirmations are ignored after a
// local command. Long enough to cover the send/confirm round trip plus the
// partial-state frames some integrations emit while processing, short enough
// that genuine external changes are not masked for long.
const DefaultEchoWindow = 3 * time.Second

// EchoGuard tracks the most recent locally-issued command per entity and
// answers whether an incoming state notification is merely our own echo.
type EchoGuard struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

// NewEchoGuard creates a guard with the given suppression window.
// window <= 0 selects DefaultEchoWindow.
func NewEchoGuard(window time.Duration) *EchoGuard {
	if window <= 0 {
		window = DefaultEchoWindow
	}
	return &EchoGuard{
		window:  window,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// MarkSent records "now" as the entity's most recent local command,
// overwriting any prior stamp.
func (g *EchoGuard) MarkSent(entityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[entityID] = g.now()
}

// ShouldIgnore reports whether a notification for the entity falls inside the
// suppression window. Expired entries are evicted lazily here.
func (g *EchoGuard) ShouldIgnore(entityID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sent, ok := g.entries[entityID]
	if !ok {
		return false
	}
	if g.now().Sub(sent) > g.window {
		delete(g.entries, entityID)
		return false
	}
	return true
}
