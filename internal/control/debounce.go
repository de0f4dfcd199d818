package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deckd/deckd/internal/state"
)

// ErrUnsupportedCommand is returned when an adjustment targets an axis the
// entity does not support. Rejected before any network call.
var ErrUnsupportedCommand = errors.New("axis not supported by entity")

// DefaultQuietPeriod is how long a slot waits for further adjustments before
// its single coalesced call is sent.
const DefaultQuietPeriod = 250 * time.Millisecond

// Caller issues a service call to the backend. Implemented by ha.Client.
type Caller interface {
	Call(ctx context.Context, domain, service, entityID string, data map[string]any) error
}

type slotKey struct {
	entity string
	axis   Axis
}

// slot is a pending coalesced send for one (entity, axis) pair.
type slot struct {
	adj   Adjustment
	timer *time.Timer
	gen   uint64
}

// Debouncer coalesces rapid repeated adjustments into one outbound call per
// (entity, axis) after a quiet interval. Only the last value within the quiet
// period is ever sent.
type Debouncer struct {
	mu    sync.Mutex
	slots map[slotKey]*slot
	gen   uint64

	quiet       time.Duration
	callTimeout time.Duration

	caller Caller
	caps   *Registry
	cache  *state.Cache
	echo   *state.EchoGuard

	// onError surfaces failed sends (health degradation), optional.
	onError func(entityID string, err error)
}

// NewDebouncer wires a debouncer to its collaborators. quiet <= 0 selects
// DefaultQuietPeriod.
func NewDebouncer(caller Caller, caps *Registry, cache *state.Cache, echo *state.EchoGuard, quiet, callTimeout time.Duration) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Debouncer{
		slots:       make(map[slotKey]*slot),
		quiet:       quiet,
		callTimeout: callTimeout,
		caller:      caller,
		caps:        caps,
		cache:       cache,
		echo:        echo,
	}
}

// OnError registers a callback invoked when a deferred send fails.
func (d *Debouncer) OnError(fn func(entityID string, err error)) {
	d.onError = fn
}

// Adjust records a new target value for the (entity, axis) slot and
// (re)starts its quiet-period countdown. The cache is updated optimistically
// and echo suppression is stamped right away so an in-flight state frame
// cannot revert the value the operator is still dialing in.
func (d *Debouncer) Adjust(adj Adjustment) error {
	caps, ok := d.caps.Get(adj.EntityID)
	if !ok || !caps.Supports(adj.Axis) {
		return ErrUnsupportedCommand
	}

	d.cache.ApplyOptimistic(adj.EntityID, adj.patch())
	d.echo.MarkSent(adj.EntityID)

	d.mu.Lock()
	defer d.mu.Unlock()

	// Color temperature and hue/saturation cannot both be set in one call;
	// the most recently adjusted axis wins.
	switch adj.Axis {
	case AxisColorTemp:
		d.dropLocked(slotKey{adj.EntityID, AxisHueSat})
	case AxisHueSat:
		d.dropLocked(slotKey{adj.EntityID, AxisColorTemp})
	}

	key := slotKey{adj.EntityID, adj.Axis}
	d.gen++
	gen := d.gen

	if s, ok := d.slots[key]; ok {
		// Reschedule, don't queue: replace the timer so the old deadline
		// can never fire with a superseded value.
		s.timer.Stop()
		s.adj = adj
		s.gen = gen
		s.timer = time.AfterFunc(d.quiet, func() { d.fire(key, gen) })
		return nil
	}

	s := &slot{adj: adj, gen: gen}
	s.timer = time.AfterFunc(d.quiet, func() { d.fire(key, gen) })
	d.slots[key] = s
	return nil
}

// fire sends the slot's latest value, unless the slot was cancelled or
// rescheduled after this deadline was armed.
func (d *Debouncer) fire(key slotKey, gen uint64) {
	d.mu.Lock()
	s, ok := d.slots[key]
	if !ok || s.gen != gen {
		d.mu.Unlock()
		return
	}
	delete(d.slots, key)
	adj := s.adj
	d.mu.Unlock()

	// Re-stamp so the confirmation of this exact call is suppressed too.
	d.echo.MarkSent(adj.EntityID)

	domain, service, data := adj.service()
	if service == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.callTimeout)
	defer cancel()

	if err := d.caller.Call(ctx, domain, service, adj.EntityID, data); err != nil {
		log.Warn().
			Err(err).
			Str("entity", adj.EntityID).
			Str("axis", adj.Axis.String()).
			Msg("Deferred send failed")
		if d.onError != nil {
			d.onError(adj.EntityID, err)
		}
		return
	}

	log.Debug().
		Str("entity", adj.EntityID).
		Str("axis", adj.Axis.String()).
		Str("service", service).
		Msg("Coalesced command sent")
}

// CancelPending discards all of the entity's pending slots without sending.
// No send for those slots occurs after this returns.
func (d *Debouncer) CancelPending(entityID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key := range d.slots {
		if key.entity == entityID {
			d.dropLocked(key)
		}
	}
}

// Close cancels every pending slot.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key := range d.slots {
		d.dropLocked(key)
	}
}

func (d *Debouncer) dropLocked(key slotKey) {
	if s, ok := d.slots[key]; ok {
		s.timer.Stop()
		delete(d.slots, key)
	}
}
