package ha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnState is the lifecycle state of the client's single connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateAuthenticating
	StateReady
	StateClosed
)

// String returns the state name used in logs.
func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	handshakeTimeout = 10 * time.Second
	eventBuffer      = 256
)

// pendingResult completes one in-flight request.
type pendingResult struct {
	payload json.RawMessage
	err     error
}

// Client owns one WebSocket connection to a Home Assistant instance. It
// performs the auth handshake, correlates responses to requests by id, and
// exposes inbound push events as a channel. It never reconnects on its own;
// the caller re-invokes Connect after a drop.
type Client struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	nextID   int64
	pending  map[int64]chan pendingResult
	events   chan EventFrame
	readDone chan struct{}

	// writeMu serializes socket writes; gorilla allows one writer at a time.
	writeMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient() *Client {
	return &Client{
		state:   StateDisconnected,
		pending: make(map[int64]chan pendingResult),
	}
}

// State returns the current connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint normalizes a base URL to the WebSocket API endpoint:
// http(s) becomes ws(s) and the /api/websocket path is appended if absent.
func Endpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if !strings.HasSuffix(u.Path, "/api/websocket") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/api/websocket"
	}

	return u.String(), nil
}

// Connect dials the backend and runs the two-step auth handshake: await
// auth_required, send the token, await auth_ok or auth_invalid. On success
// the read pump starts and the client is Ready. An auth refusal returns
// ErrAuthRejected.
func (c *Client) Connect(ctx context.Context, baseURL, token string) error {
	endpoint, err := Endpoint(baseURL)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == StateReady || c.state == StateAuthenticating {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.state = StateAuthenticating
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	if err := c.authenticate(ctx, conn, token); err != nil {
		conn.Close()
		c.setState(StateDisconnected)
		return err
	}

	conn.SetReadDeadline(time.Time{})

	events := make(chan EventFrame, eventBuffer)
	readDone := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.state = StateReady
	c.pending = make(map[int64]chan pendingResult)
	c.events = events
	c.readDone = readDone
	c.mu.Unlock()

	go c.readPump(conn, events, readDone)

	log.Info().Str("endpoint", endpoint).Msg("Connected and authenticated")
	return nil
}

func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn, token string) error {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)

	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("await auth_required: %w", err)
	}
	if hello.Type != msgTypeAuthRequired && hello.Type != msgTypeAuthOK {
		return fmt.Errorf("unexpected handshake frame %q", hello.Type)
	}
	if hello.Type == msgTypeAuthOK {
		return nil
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(map[string]any{
		"type":         msgTypeAuth,
		"access_token": token,
	})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	var verdict frame
	if err := conn.ReadJSON(&verdict); err != nil {
		return fmt.Errorf("await auth verdict: %w", err)
	}

	switch verdict.Type {
	case msgTypeAuthOK:
		log.Debug().Str("ha_version", verdict.HAVersion).Msg("Authentication accepted")
		return nil
	case msgTypeAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthRejected, verdict.Message)
	default:
		return fmt.Errorf("unexpected auth verdict %q", verdict.Type)
	}
}

// readPump is the single reader for the connection's lifetime. A malformed
// frame is logged and dropped; only a socket-level error ends the loop.
func (c *Client) readPump(conn *websocket.Conn, events chan EventFrame, readDone chan struct{}) {
	defer c.teardown(conn, events, readDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Connection read failed")
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}

		switch f.Type {
		case msgTypeResult:
			c.resolve(f)

		case msgTypeEvent:
			select {
			case events <- EventFrame{Raw: f.Event}:
			default:
				log.Warn().Msg("Event buffer full, dropping frame")
			}

		case "pong":
			// keepalive, nothing to do

		default:
			log.Debug().Str("type", f.Type).Msg("Ignoring unexpected frame")
		}
	}
}

// resolve completes the pending request matching the result frame's id.
func (c *Client) resolve(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.mu.Unlock()

	if !ok {
		// Evicted by timeout, or never ours
		log.Debug().Int64("id", f.ID).Msg("Result for unknown request id")
		return
	}

	if f.Success != nil && !*f.Success {
		apiErr := f.Error
		if apiErr == nil {
			apiErr = &APIError{Code: "unknown", Message: "request failed"}
		}
		ch <- pendingResult{err: apiErr}
		return
	}

	ch <- pendingResult{payload: f.Result}
}

// teardown fails every outstanding request and closes the event stream.
func (c *Client) teardown(conn *websocket.Conn, events chan EventFrame, readDone chan struct{}) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		if c.state != StateClosed {
			c.state = StateDisconnected
		}
	}
	orphaned := c.pending
	c.pending = make(map[int64]chan pendingResult)
	c.mu.Unlock()

	for id, ch := range orphaned {
		ch <- pendingResult{err: ErrConnectionClosed}
		log.Debug().Int64("id", id).Msg("Failing request on teardown")
	}

	close(readDone)
	close(events)
}

// Request sends an id-correlated message and suspends the caller until the
// matching response, the context deadline (ErrTimeout), or connection
// teardown (ErrConnectionClosed).
func (c *Client) Request(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.state != StateReady || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.nextID++
	id := c.nextID
	ch := make(chan pendingResult, 1)
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	msg["id"] = id

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.evict(id)
		return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.payload, nil

	case <-ctx.Done():
		c.evict(id)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (c *Client) evict(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Call issues a call_service request targeting a single entity.
func (c *Client) Call(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	msg := map[string]any{
		"type":    msgTypeCallService,
		"domain":  domain,
		"service": service,
		"target":  map[string]any{"entity_id": entityID},
	}
	if len(data) > 0 {
		msg["service_data"] = data
	}

	_, err := c.Request(ctx, msg)
	return err
}

// GetStates fetches the full entity registry snapshot.
func (c *Client) GetStates(ctx context.Context) ([]EntityState, error) {
	payload, err := c.Request(ctx, map[string]any{"type": msgTypeGetStates})
	if err != nil {
		return nil, err
	}

	var states []EntityState
	if err := json.Unmarshal(payload, &states); err != nil {
		return nil, fmt.Errorf("decode get_states result: %w", err)
	}
	return states, nil
}

// SubscribeEvents subscribes to a push topic for the connection's lifetime.
// Re-invoked (not toggled) after each reconnect.
func (c *Client) SubscribeEvents(ctx context.Context, eventType string) error {
	_, err := c.Request(ctx, map[string]any{
		"type":       msgTypeSubscribeEvents,
		"event_type": eventType,
	})
	return err
}

// Events returns the inbound push stream for the current connection. The
// channel is closed on teardown; Connect creates a fresh one.
func (c *Client) Events() <-chan EventFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Close shuts the connection down permanently.
func (c *Client) Close() error {
	c.mu.Lock()
	c.state = StateClosed
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.state = s
	}
}
