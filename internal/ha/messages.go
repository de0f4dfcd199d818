// Package ha speaks the Home Assistant WebSocket API: an id-correlated
// request/response channel plus a push stream of state-change events, over a
// single authenticated connection.
package ha

import "encoding/json"

// Message types used by the protocol. Auth frames are distinguished by type,
// not by id — they happen before the id-correlated phase begins.
const (
	msgTypeAuthRequired = "auth_required"
	msgTypeAuth         = "auth"
	msgTypeAuthOK       = "auth_ok"
	msgTypeAuthInvalid  = "auth_invalid"

	msgTypeResult = "result"
	msgTypeEvent  = "event"

	msgTypeCallService     = "call_service"
	msgTypeGetStates       = "get_states"
	msgTypeSubscribeEvents = "subscribe_events"
)

// frame is the envelope for every inbound message.
type frame struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`

	// auth_ok / auth_required carry the server version
	HAVersion string `json:"ha_version,omitempty"`
	// auth_invalid carries a reason
	Message string `json:"message,omitempty"`
}

// EventFrame is one push event as delivered to the demultiplexer.
type EventFrame struct {
	// Raw is the "event" object of the inbound frame.
	Raw json.RawMessage
}

// EntityState is one entry of a get_states result.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}
