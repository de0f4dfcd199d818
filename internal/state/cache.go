package state

import (
	"sync"

	"github.com/deckd/deckd/internal/colorx"
)

// EchoChecker gates confirmed writes for entities with a recent local command.
type EchoChecker interface {
	ShouldIgnore(entityID string) bool
}

// record is a single entity's cached state with its own lock, so writes for
// different entities never contend.
type record struct {
	mu    sync.Mutex
	state CachedState
}

// Cache stores the last known state per entity. Reads return copies; the
// cache never hands out shared mutable references.
type Cache struct {
	mu      sync.RWMutex
	records map[string]*record
	echo    EchoChecker
}

// NewCache creates an empty cache. echo may be nil, in which case confirmed
// updates are never suppressed.
func NewCache(echo EchoChecker) *Cache {
	return &Cache{
		records: make(map[string]*record),
		echo:    echo,
	}
}

// Get returns a copy of the entity's cached state, or a neutral default if
// the entity is untracked.
func (c *Cache) Get(entityID string) CachedState {
	c.mu.RLock()
	rec, ok := c.records[entityID]
	c.mu.RUnlock()

	if !ok {
		return CachedState{EntityID: entityID}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.state
}

// ApplyOptimistic merges a locally initiated update into the entity's record.
func (c *Cache) ApplyOptimistic(entityID string, patch Patch) {
	c.apply(entityID, patch)
}

// ApplyConfirmed merges a backend-confirmed update into the entity's record.
// Returns false without touching the cache if echo suppression is active for
// the entity.
func (c *Cache) ApplyConfirmed(entityID string, patch Patch) bool {
	if c.echo != nil && c.echo.ShouldIgnore(entityID) {
		return false
	}
	c.apply(entityID, patch)
	return true
}

func (c *Cache) apply(entityID string, patch Patch) {
	rec := c.record(entityID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s := &rec.state

	if patch.On != nil {
		s.On = *patch.On
	}
	if patch.Brightness != nil {
		s.Brightness = colorx.Clamp(*patch.Brightness, BrightnessMin, BrightnessMax)
	}
	if patch.Hue != nil {
		s.Hue = colorx.NormalizeHue(*patch.Hue)
	}
	if patch.Saturation != nil {
		s.Saturation = colorx.ClampF(*patch.Saturation, PercentMin, PercentMax)
	}
	if patch.MinMireds != nil {
		s.MinMireds = *patch.MinMireds
	}
	if patch.MaxMireds != nil {
		s.MaxMireds = *patch.MaxMireds
	}
	if patch.ColorTemp != nil {
		ct := *patch.ColorTemp
		if s.MinMireds > 0 && s.MaxMireds > s.MinMireds {
			ct = colorx.ClampF(ct, s.MinMireds, s.MaxMireds)
		}
		s.ColorTemp = ct
	}
	if patch.Position != nil {
		s.Position = colorx.Clamp(*patch.Position, PercentMin, PercentMax)
	}
	if patch.Tilt != nil {
		s.Tilt = colorx.Clamp(*patch.Tilt, PercentMin, PercentMax)
	}
}

// record returns the entity's record, creating it if needed.
func (c *Cache) record(entityID string) *record {
	c.mu.RLock()
	rec, ok := c.records[entityID]
	c.mu.RUnlock()
	if ok {
		return rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok = c.records[entityID]; ok {
		return rec
	}
	rec = &record{state: CachedState{EntityID: entityID}}
	c.records[entityID] = rec
	return rec
}

// Forget drops an entity's record. Used when an entity disappears from the
// backend registry.
func (c *Cache) Forget(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, entityID)
}
