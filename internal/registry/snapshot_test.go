package registry

import (
	"path/filepath"
	"testing"

	"github.com/deckd/deckd/internal/control"
	"github.com/deckd/deckd/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "deckd.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSnapshot_SaveLoadRoundTrip(t *testing.T) {
	database := openTestDB(t)
	s := NewSnapshot(database.DB)

	entries := []Entry{
		{
			EntityID:     "light.kitchen",
			FriendlyName: "Kitchen",
			Capabilities: control.CapabilitySet{Power: true, Brightness: true, ColorTemp: true},
		},
		{
			EntityID:     "cover.bedroom",
			FriendlyName: "Bedroom Blind",
			Capabilities: control.CapabilitySet{Basic: true, Position: true},
		},
	}

	if err := s.Save(entries); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].EntityID != "cover.bedroom" || got[1].EntityID != "light.kitchen" {
		t.Errorf("unexpected order: %+v", got)
	}
	if !got[1].Capabilities.ColorTemp {
		t.Error("capabilities lost in round trip")
	}
}

func TestSnapshot_SaveReplacesWholesale(t *testing.T) {
	database := openTestDB(t)
	s := NewSnapshot(database.DB)

	if err := s.Save([]Entry{{EntityID: "light.old", Capabilities: control.CapabilitySet{Power: true}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save([]Entry{{EntityID: "light.new", Capabilities: control.CapabilitySet{Power: true}}}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].EntityID != "light.new" {
		t.Errorf("save should replace, got %+v", got)
	}
}

func TestSnapshot_LoadEmpty(t *testing.T) {
	database := openTestDB(t)
	s := NewSnapshot(database.DB)

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("fresh database should be empty, got %+v", got)
	}
}

func TestCapabilityMap(t *testing.T) {
	m := CapabilityMap([]Entry{
		{EntityID: "light.x", Capabilities: control.CapabilitySet{Power: true}},
	})
	if caps, ok := m["light.x"]; !ok || !caps.Power {
		t.Errorf("CapabilityMap = %+v", m)
	}
}
