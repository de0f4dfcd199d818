// Package state holds the per-entity state cache and the echo suppression
// guard that keeps backend confirmations from reverting optimistic writes.
package state

// Value ranges enforced by the cache on every write.
const (
	BrightnessMin = 0
	BrightnessMax = 255
	PercentMin    = 0
	PercentMax    = 100
)

// CachedState is the last known state of a single entity. Lights use the
// On/Brightness/Hue/Saturation/ColorTemp fields, covers use Position/Tilt.
// A zero CachedState is a valid "unknown" default.
type CachedState struct {
	EntityID string

	// Lights
	On         bool
	Brightness int     // 0-255
	Hue        float64 // degrees, [0,360)
	Saturation float64 // 0-100
	ColorTemp  float64 // mired
	MinMireds  float64 // device-reported bound, 0 = unknown
	MaxMireds  float64 // device-reported bound, 0 = unknown

	// Covers
	Position int // 0-100
	Tilt     int // 0-100
}

// Patch is a partial update. Nil fields keep their previous value.
type Patch struct {
	On         *bool
	Brightness *int
	Hue        *float64
	Saturation *float64
	ColorTemp  *float64
	MinMireds  *float64
	MaxMireds  *float64
	Position   *int
	Tilt       *int
}

// IsEmpty returns true if the patch carries no fields.
func (p Patch) IsEmpty() bool {
	return p.On == nil && p.Brightness == nil && p.Hue == nil &&
		p.Saturation == nil && p.ColorTemp == nil &&
		p.MinMireds == nil && p.MaxMireds == nil &&
		p.Position == nil && p.Tilt == nil
}

// Helpers for building patches inline.

func Bool(v bool) *bool { return &v }

func Int(v int) *int { return &v }

func Float(v float64) *float64 { return &v }
