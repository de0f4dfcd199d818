// Package control turns raw operator input (dial rotations, button presses)
// into a minimal, correctly ordered set of outbound service calls.
package control

import (
	"strings"

	"github.com/deckd/deckd/internal/state"
)

// Axis is one independently adjustable attribute of an entity.
type Axis int

const (
	AxisPower Axis = iota
	AxisBrightness
	AxisColorTemp
	AxisHueSat
	AxisPosition
	AxisTilt
)

// String returns the axis name used in logs.
func (a Axis) String() string {
	switch a {
	case AxisPower:
		return "power"
	case AxisBrightness:
		return "brightness"
	case AxisColorTemp:
		return "color_temp"
	case AxisHueSat:
		return "hue_sat"
	case AxisPosition:
		return "position"
	case AxisTilt:
		return "tilt"
	default:
		return "unknown"
	}
}

// Adjustment is a single operator action, constructed once at the UI boundary
// and routed internally without re-parsing strings.
type Adjustment struct {
	EntityID string
	Axis     Axis

	// Value carries the target for single-valued axes: brightness 0-255,
	// color temp in mired, position/tilt 0-100, power 0/1.
	Value float64

	// Hue/Sat carry the target for AxisHueSat.
	Hue float64
	Sat float64
}

// Domain returns the entity-id domain prefix ("light", "cover", ...).
func (a Adjustment) Domain() string {
	if i := strings.IndexByte(a.EntityID, '.'); i > 0 {
		return a.EntityID[:i]
	}
	return ""
}

// patch converts the adjustment into an optimistic cache update.
func (a Adjustment) patch() state.Patch {
	switch a.Axis {
	case AxisPower:
		return state.Patch{On: state.Bool(a.Value != 0)}
	case AxisBrightness:
		return state.Patch{Brightness: state.Int(int(a.Value)), On: state.Bool(a.Value > 0)}
	case AxisColorTemp:
		return state.Patch{ColorTemp: state.Float(a.Value)}
	case AxisHueSat:
		return state.Patch{Hue: state.Float(a.Hue), Saturation: state.Float(a.Sat)}
	case AxisPosition:
		return state.Patch{Position: state.Int(int(a.Value))}
	case AxisTilt:
		return state.Patch{Tilt: state.Int(int(a.Value))}
	default:
		return state.Patch{}
	}
}

// service maps the adjustment to its Home Assistant service call.
func (a Adjustment) service() (domain, service string, data map[string]any) {
	domain = a.Domain()

	switch a.Axis {
	case AxisPower:
		if domain == "cover" {
			if a.Value != 0 {
				return domain, "open_cover", nil
			}
			return domain, "close_cover", nil
		}
		if a.Value != 0 {
			return domain, "turn_on", nil
		}
		return domain, "turn_off", nil

	case AxisBrightness:
		return domain, "turn_on", map[string]any{"brightness": int(a.Value)}

	case AxisColorTemp:
		return domain, "turn_on", map[string]any{"color_temp": int(a.Value)}

	case AxisHueSat:
		return domain, "turn_on", map[string]any{"hs_color": []float64{a.Hue, a.Sat}}

	case AxisPosition:
		return domain, "set_cover_position", map[string]any{"position": int(a.Value)}

	case AxisTilt:
		return domain, "set_cover_tilt_position", map[string]any{"tilt_position": int(a.Value)}
	}

	return domain, "", nil
}
