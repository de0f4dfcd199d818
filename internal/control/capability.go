package control

import (
	"strings"
	"sync"
)

// Cover supported_features bits as reported by Home Assistant.
const (
	coverFeatureOpen            = 1
	coverFeatureClose           = 2
	coverFeatureSetPosition     = 4
	coverFeatureStop            = 8
	coverFeatureOpenTilt        = 16
	coverFeatureCloseTilt       = 32
	coverFeatureStopTilt        = 64
	coverFeatureSetTiltPosition = 128
)

// CapabilitySet lists the control axes an entity legally supports.
// Immutable once resolved; re-derived only on a full registry refresh.
type CapabilitySet struct {
	Power      bool `json:"power"`
	Brightness bool `json:"brightness"`
	ColorTemp  bool `json:"color_temp"`
	HueSat     bool `json:"hue_sat"`
	Position   bool `json:"position"`
	Tilt       bool `json:"tilt"`
	// Basic means open/close/stop without positional control (covers).
	Basic bool `json:"basic"`
}

// Supports reports whether the given axis is legal for this entity.
func (c CapabilitySet) Supports(axis Axis) bool {
	switch axis {
	case AxisPower:
		return c.Power || c.Basic
	case AxisBrightness:
		return c.Brightness
	case AxisColorTemp:
		return c.ColorTemp
	case AxisHueSat:
		return c.HueSat
	case AxisPosition:
		return c.Position
	case AxisTilt:
		return c.Tilt
	default:
		return false
	}
}

// Resolve derives an entity's capability set from its reported attribute
// metadata. Absent metadata always means "not supported".
func Resolve(entityID string, attrs map[string]any) CapabilitySet {
	switch {
	case strings.HasPrefix(entityID, "light."):
		return resolveLight(attrs)
	case strings.HasPrefix(entityID, "cover."):
		return resolveCover(attrs)
	default:
		return CapabilitySet{}
	}
}

func resolveLight(attrs map[string]any) CapabilitySet {
	caps := CapabilitySet{Power: true}

	modes, _ := attrs["supported_color_modes"].([]any)
	for _, m := range modes {
		mode, _ := m.(string)
		switch mode {
		case "brightness":
			caps.Brightness = true
		case "color_temp":
			caps.Brightness = true
			caps.ColorTemp = true
		case "hs", "rgb", "rgbw", "rgbww", "xy":
			caps.Brightness = true
			caps.HueSat = true
		}
	}

	return caps
}

func resolveCover(attrs map[string]any) CapabilitySet {
	var caps CapabilitySet

	features, ok := attrs["supported_features"].(float64)
	if !ok {
		return caps
	}
	bits := int(features)

	caps.Basic = bits&(coverFeatureOpen|coverFeatureClose|coverFeatureStop) != 0
	caps.Position = bits&coverFeatureSetPosition != 0
	caps.Tilt = bits&coverFeatureSetTiltPosition != 0

	return caps
}

// Registry caches resolved capability sets per entity. The whole map is
// replaced on a full refresh, never partially mutated.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]CapabilitySet
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]CapabilitySet)}
}

// Get returns the entity's capability set and whether it is known.
func (r *Registry) Get(entityID string) (CapabilitySet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.caps[entityID]
	return caps, ok
}

// ReplaceAll swaps in a freshly resolved capability map.
func (r *Registry) ReplaceAll(caps map[string]CapabilitySet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps = caps
}

// Snapshot returns a copy of the current capability map.
func (r *Registry) Snapshot() map[string]CapabilitySet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]CapabilitySet, len(r.caps))
	for id, caps := range r.caps {
		out[id] = caps
	}
	return out
}
