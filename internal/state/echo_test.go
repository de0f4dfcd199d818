package state

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time manually.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(window time.Duration) (*EchoGuard, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	g := NewEchoGuard(window)
	g.now = clock.now
	return g, clock
}

func TestEchoGuard_IgnoreImmediatelyAfterMark(t *testing.T) {
	g, _ := newTestGuard(3 * time.Second)

	if g.ShouldIgnore("light.x") {
		t.Error("should not ignore before any mark")
	}

	g.MarkSent("light.x")
	if !g.ShouldIgnore("light.x") {
		t.Error("should ignore immediately after MarkSent")
	}
}

func TestEchoGuard_ExpiresAfterWindow(t *testing.T) {
	g, clock := newTestGuard(3 * time.Second)

	g.MarkSent("light.x")

	clock.advance(3 * time.Second)
	if !g.ShouldIgnore("light.x") {
		t.Error("should still ignore at exactly the window boundary")
	}

	clock.advance(time.Millisecond)
	if g.ShouldIgnore("light.x") {
		t.Error("should not ignore once the window has strictly elapsed")
	}

	// Entry evicted lazily, a second lookup stays false
	if g.ShouldIgnore("light.x") {
		t.Error("evicted entry should stay expired")
	}
}

func TestEchoGuard_MarkOverwrites(t *testing.T) {
	g, clock := newTestGuard(3 * time.Second)

	g.MarkSent("light.x")
	clock.advance(2 * time.Second)
	g.MarkSent("light.x")
	clock.advance(2 * time.Second)

	if !g.ShouldIgnore("light.x") {
		t.Error("second MarkSent should restart the window")
	}
}

func TestEchoGuard_PerEntity(t *testing.T) {
	g, _ := newTestGuard(3 * time.Second)

	g.MarkSent("light.x")
	if g.ShouldIgnore("light.y") {
		t.Error("suppression must be per entity")
	}
}
