package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deckd/deckd/internal/state"
)

// recordingCaller captures calls; an optional delay simulates a slow backend.
type recordingCaller struct {
	mu    sync.Mutex
	calls []recordedCall
	delay map[string]time.Duration
	err   error
}

type recordedCall struct {
	domain, service, entityID string
	data                      map[string]any
	at                        time.Time
}

func (c *recordingCaller) Call(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	c.mu.Lock()
	delay := c.delay[entityID]
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, recordedCall{domain, service, entityID, data, time.Now()})
	return c.err
}

func (c *recordingCaller) snapshot() []recordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedCall, len(c.calls))
	copy(out, c.calls)
	return out
}

func newTestDebouncer(t *testing.T, quiet time.Duration) (*Debouncer, *recordingCaller, *state.Cache) {
	t.Helper()

	caller := &recordingCaller{delay: make(map[string]time.Duration)}
	caps := NewRegistry()
	caps.ReplaceAll(map[string]CapabilitySet{
		"light.x": {Power: true, Brightness: true, ColorTemp: true, HueSat: true},
		"light.y": {Power: true, Brightness: true},
		"cover.z": {Basic: true, Position: true, Tilt: true},
	})

	echo := state.NewEchoGuard(3 * time.Second)
	cache := state.NewCache(echo)

	d := NewDebouncer(caller, caps, cache, echo, quiet, time.Second)
	t.Cleanup(d.Close)
	return d, caller, cache
}

func waitForCalls(t *testing.T, caller *recordingCaller, n int, timeout time.Duration) []recordedCall {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if calls := caller.snapshot(); len(calls) >= n {
			return calls
		}
		time.Sleep(5 * time.Millisecond)
	}
	return caller.snapshot()
}

func TestDebouncer_CoalescesToLastValue(t *testing.T) {
	d, caller, _ := newTestDebouncer(t, 30*time.Millisecond)

	for _, v := range []float64{10, 80, 140, 200, 50} {
		if err := d.Adjust(Adjustment{EntityID: "light.x", Axis: AxisBrightness, Value: v}); err != nil {
			t.Fatalf("Adjust: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	calls := waitForCalls(t, caller, 1, time.Second)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want exactly 1", len(calls))
	}
	if got := calls[0].data["brightness"]; got != 50 {
		t.Errorf("brightness = %v, want 50 (the last adjustment)", got)
	}
	if calls[0].domain != "light" || calls[0].service != "turn_on" {
		t.Errorf("call = %s/%s, want light/turn_on", calls[0].domain, calls[0].service)
	}

	// Quiet period passed with no further input: nothing else is sent
	time.Sleep(60 * time.Millisecond)
	if got := len(caller.snapshot()); got != 1 {
		t.Errorf("got %d calls after settling, want 1", got)
	}
}

func TestDebouncer_CancelPendingBeforeDeadline(t *testing.T) {
	d, caller, _ := newTestDebouncer(t, 40*time.Millisecond)

	if err := d.Adjust(Adjustment{EntityID: "light.x", Axis: AxisBrightness, Value: 120}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	d.CancelPending("light.x")

	time.Sleep(80 * time.Millisecond)
	if got := len(caller.snapshot()); got != 0 {
		t.Errorf("got %d calls after cancel, want 0", got)
	}
}

func TestDebouncer_ExclusiveColorAxes(t *testing.T) {
	d, caller, _ := newTestDebouncer(t, 30*time.Millisecond)

	if err := d.Adjust(Adjustment{EntityID: "light.x", Axis: AxisColorTemp, Value: 300}); err != nil {
		t.Fatalf("Adjust ct: %v", err)
	}
	if err := d.Adjust(Adjustment{EntityID: "light.x", Axis: AxisHueSat, Hue: 120, Sat: 80}); err != nil {
		t.Fatalf("Adjust hs: %v", err)
	}

	calls := waitForCalls(t, caller, 1, time.Second)
	time.Sleep(60 * time.Millisecond)
	calls = caller.snapshot()

	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1 (last-touched axis only)", len(calls))
	}
	if _, ok := calls[0].data["color_temp"]; ok {
		t.Error("stale color_temp must not appear in the payload")
	}
	if _, ok := calls[0].data["hs_color"]; !ok {
		t.Error("payload should carry hs_color for the last-touched axis")
	}
}

func TestDebouncer_UnsupportedAxisRejected(t *testing.T) {
	d, caller, _ := newTestDebouncer(t, 20*time.Millisecond)

	err := d.Adjust(Adjustment{EntityID: "light.y", Axis: AxisColorTemp, Value: 300})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("err = %v, want ErrUnsupportedCommand", err)
	}

	err = d.Adjust(Adjustment{EntityID: "light.unknown", Axis: AxisBrightness, Value: 100})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("unknown entity: err = %v, want ErrUnsupportedCommand", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := len(caller.snapshot()); got != 0 {
		t.Errorf("rejected adjustments must not reach the network, got %d calls", got)
	}
}

func TestDebouncer_SlowEntityDoesNotBlockOthers(t *testing.T) {
	d, caller, _ := newTestDebouncer(t, 20*time.Millisecond)

	caller.mu.Lock()
	caller.delay["light.x"] = 2 * time.Second // beyond the 1s call timeout
	caller.mu.Unlock()

	if err := d.Adjust(Adjustment{EntityID: "light.x", Axis: AxisBrightness, Value: 10}); err != nil {
		t.Fatalf("Adjust light.x: %v", err)
	}
	if err := d.Adjust(Adjustment{EntityID: "light.y", Axis: AxisBrightness, Value: 20}); err != nil {
		t.Fatalf("Adjust light.y: %v", err)
	}

	calls := waitForCalls(t, caller, 1, time.Second)
	if len(calls) == 0 {
		t.Fatal("light.y call never went out while light.x was stalled")
	}
	if calls[0].entityID != "light.y" {
		t.Errorf("first completed call = %s, want light.y", calls[0].entityID)
	}
}

func TestDebouncer_OptimisticWriteAndEchoStamp(t *testing.T) {
	d, _, cache := newTestDebouncer(t, 30*time.Millisecond)

	if err := d.Adjust(Adjustment{EntityID: "light.x", Axis: AxisBrightness, Value: 180}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	if got := cache.Get("light.x").Brightness; got != 180 {
		t.Errorf("optimistic brightness = %d, want 180", got)
	}

	// A confirmation arriving inside the window must not revert the value
	if cache.ApplyConfirmed("light.x", state.Patch{Brightness: state.Int(5)}) {
		t.Error("confirmation during the echo window should be refused")
	}
	if got := cache.Get("light.x").Brightness; got != 180 {
		t.Errorf("brightness after echo = %d, want 180", got)
	}
}

func TestDebouncer_PerAxisSlots(t *testing.T) {
	d, caller, _ := newTestDebouncer(t, 30*time.Millisecond)

	if err := d.Adjust(Adjustment{EntityID: "cover.z", Axis: AxisPosition, Value: 70}); err != nil {
		t.Fatalf("Adjust position: %v", err)
	}
	if err := d.Adjust(Adjustment{EntityID: "cover.z", Axis: AxisTilt, Value: 30}); err != nil {
		t.Fatalf("Adjust tilt: %v", err)
	}

	calls := waitForCalls(t, caller, 2, time.Second)
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2 (one per axis)", len(calls))
	}

	services := map[string]bool{}
	for _, c := range calls {
		services[c.service] = true
	}
	if !services["set_cover_position"] || !services["set_cover_tilt_position"] {
		t.Errorf("services = %v, want position and tilt", services)
	}
}

func TestDebouncer_OnErrorSurfacesFailure(t *testing.T) {
	d, caller, _ := newTestDebouncer(t, 20*time.Millisecond)
	caller.err = errors.New("backend unavailable")

	errCh := make(chan error, 1)
	d.OnError(func(entityID string, err error) {
		errCh <- err
	})

	if err := d.Adjust(Adjustment{EntityID: "light.x", Axis: AxisBrightness, Value: 10}); err != nil {
		t.Fatalf("Adjust: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected a non-nil error")
		}
	case <-time.After(time.Second):
		t.Error("OnError callback never fired")
	}
}
