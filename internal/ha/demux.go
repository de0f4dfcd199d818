package ha

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/deckd/deckd/internal/control"
	"github.com/deckd/deckd/internal/state"
)

// Change is one decoded, single-axis state delta. A frame touching several
// attributes yields several independent changes so downstream consumers never
// need to know about axes they don't handle.
type Change struct {
	EntityID string
	Axis     control.Axis
	Patch    state.Patch
}

// eventEnvelope is the shape of a state_changed push event.
type eventEnvelope struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string       `json:"entity_id"`
		NewState *EntityState `json:"new_state"`
	} `json:"data"`
}

// Demux consumes the transport's push stream and fans decoded changes out to
// a single consumer callback.
type Demux struct {
	onChange func(Change)
}

// NewDemux creates a demultiplexer delivering changes to onChange.
func NewDemux(onChange func(Change)) *Demux {
	return &Demux{onChange: onChange}
}

// Run consumes frames until the stream closes or the context is cancelled.
// Decoding is tolerant: a bad frame is dropped, never an error.
func (d *Demux) Run(ctx context.Context, events <-chan EventFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			for _, ch := range DecodeStateChanged(ev.Raw) {
				d.onChange(ch)
			}
		}
	}
}

// DecodeStateChanged extracts per-axis changes from one push event. Returns
// nil for non-state events, unknown domains and malformed payloads.
func DecodeStateChanged(raw json.RawMessage) []Change {
	if len(raw) == 0 {
		return nil
	}

	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug().Err(err).Msg("Dropping undecodable event")
		return nil
	}
	if env.EventType != "state_changed" || env.Data.NewState == nil {
		return nil
	}

	if env.Data.NewState.EntityID == "" {
		env.Data.NewState.EntityID = env.Data.EntityID
	}
	return DecodeEntity(*env.Data.NewState)
}

// DecodeEntity extracts per-axis changes from a single entity state, as
// returned by get_states or carried inside a state_changed event.
func DecodeEntity(ns EntityState) []Change {
	switch {
	case strings.HasPrefix(ns.EntityID, "light."):
		return decodeLight(ns.EntityID, &ns)
	case strings.HasPrefix(ns.EntityID, "cover."):
		return decodeCover(ns.EntityID, &ns)
	default:
		return nil
	}
}

func decodeLight(entityID string, ns *EntityState) []Change {
	var changes []Change

	switch ns.State {
	case "on":
		changes = append(changes, Change{entityID, control.AxisPower, state.Patch{On: state.Bool(true)}})
	case "off":
		changes = append(changes, Change{entityID, control.AxisPower, state.Patch{On: state.Bool(false)}})
	}

	if v, ok := attrFloat(ns.Attributes, "brightness"); ok {
		changes = append(changes, Change{entityID, control.AxisBrightness,
			state.Patch{Brightness: state.Int(int(v))}})
	}

	if hs, ok := ns.Attributes["hs_color"].([]any); ok && len(hs) == 2 {
		h, hok := toFloat(hs[0])
		s, sok := toFloat(hs[1])
		if hok && sok {
			changes = append(changes, Change{entityID, control.AxisHueSat,
				state.Patch{Hue: state.Float(h), Saturation: state.Float(s)}})
		}
	}

	if ct, ok := attrFloat(ns.Attributes, "color_temp"); ok {
		patch := state.Patch{ColorTemp: state.Float(ct)}
		if min, ok := attrFloat(ns.Attributes, "min_mireds"); ok {
			patch.MinMireds = state.Float(min)
		}
		if max, ok := attrFloat(ns.Attributes, "max_mireds"); ok {
			patch.MaxMireds = state.Float(max)
		}
		changes = append(changes, Change{entityID, control.AxisColorTemp, patch})
	}

	return changes
}

func decodeCover(entityID string, ns *EntityState) []Change {
	var changes []Change

	switch ns.State {
	case "open", "opening":
		changes = append(changes, Change{entityID, control.AxisPower, state.Patch{On: state.Bool(true)}})
	case "closed", "closing":
		changes = append(changes, Change{entityID, control.AxisPower, state.Patch{On: state.Bool(false)}})
	}

	if v, ok := attrFloat(ns.Attributes, "current_position"); ok {
		changes = append(changes, Change{entityID, control.AxisPosition,
			state.Patch{Position: state.Int(int(v))}})
	}

	if v, ok := attrFloat(ns.Attributes, "current_tilt_position"); ok {
		changes = append(changes, Change{entityID, control.AxisTilt,
			state.Patch{Tilt: state.Int(int(v))}})
	}

	return changes
}

func attrFloat(attrs map[string]any, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	return toFloat(attrs[key])
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
