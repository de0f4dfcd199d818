package control

import "testing"

func TestResolve_Lights(t *testing.T) {
	tests := []struct {
		name     string
		attrs    map[string]any
		expected CapabilitySet
	}{
		{
			name:     "no_metadata",
			attrs:    map[string]any{},
			expected: CapabilitySet{Power: true},
		},
		{
			name:     "onoff_only",
			attrs:    map[string]any{"supported_color_modes": []any{"onoff"}},
			expected: CapabilitySet{Power: true},
		},
		{
			name:     "brightness",
			attrs:    map[string]any{"supported_color_modes": []any{"brightness"}},
			expected: CapabilitySet{Power: true, Brightness: true},
		},
		{
			name:     "color_temp",
			attrs:    map[string]any{"supported_color_modes": []any{"color_temp"}},
			expected: CapabilitySet{Power: true, Brightness: true, ColorTemp: true},
		},
		{
			name:     "hs",
			attrs:    map[string]any{"supported_color_modes": []any{"hs"}},
			expected: CapabilitySet{Power: true, Brightness: true, HueSat: true},
		},
		{
			name:     "xy_counts_as_color",
			attrs:    map[string]any{"supported_color_modes": []any{"xy"}},
			expected: CapabilitySet{Power: true, Brightness: true, HueSat: true},
		},
		{
			name:     "full_color_bulb",
			attrs:    map[string]any{"supported_color_modes": []any{"color_temp", "hs"}},
			expected: CapabilitySet{Power: true, Brightness: true, ColorTemp: true, HueSat: true},
		},
		{
			name:     "malformed_modes_ignored",
			attrs:    map[string]any{"supported_color_modes": "brightness"},
			expected: CapabilitySet{Power: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve("light.x", tt.attrs)
			if got != tt.expected {
				t.Errorf("Resolve = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestResolve_Covers(t *testing.T) {
	tests := []struct {
		name     string
		features float64
		expected CapabilitySet
	}{
		{"open_close_stop", 1 + 2 + 8, CapabilitySet{Basic: true}},
		{"positional", 1 + 2 + 4 + 8, CapabilitySet{Basic: true, Position: true}},
		{"tilt_only", 16 + 32 + 128, CapabilitySet{Tilt: true}},
		{"full", 1 + 2 + 4 + 8 + 128, CapabilitySet{Basic: true, Position: true, Tilt: true}},
		{"none", 0, CapabilitySet{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve("cover.x", map[string]any{"supported_features": tt.features})
			if got != tt.expected {
				t.Errorf("Resolve = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestResolve_AbsentFeaturesMeansUnsupported(t *testing.T) {
	got := Resolve("cover.x", map[string]any{})
	if got != (CapabilitySet{}) {
		t.Errorf("Resolve with no metadata = %+v, want empty set", got)
	}
}

func TestResolve_UnknownDomain(t *testing.T) {
	got := Resolve("sensor.temp", map[string]any{"supported_features": float64(255)})
	if got != (CapabilitySet{}) {
		t.Errorf("unknown domains must resolve to no capabilities, got %+v", got)
	}
}

func TestRegistry_ReplaceAll(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("light.x"); ok {
		t.Error("empty registry should not know light.x")
	}

	r.ReplaceAll(map[string]CapabilitySet{
		"light.x": {Power: true, Brightness: true},
	})

	caps, ok := r.Get("light.x")
	if !ok || !caps.Brightness {
		t.Errorf("Get after ReplaceAll = (%+v, %v)", caps, ok)
	}

	// A later full refresh replaces the map wholesale
	r.ReplaceAll(map[string]CapabilitySet{})
	if _, ok := r.Get("light.x"); ok {
		t.Error("refresh should drop entities no longer present")
	}
}

func TestCapabilitySet_Supports(t *testing.T) {
	caps := CapabilitySet{Basic: true, Position: true}

	if !caps.Supports(AxisPower) {
		t.Error("basic cover should support power (open/close)")
	}
	if !caps.Supports(AxisPosition) {
		t.Error("should support position")
	}
	if caps.Supports(AxisBrightness) || caps.Supports(AxisTilt) {
		t.Error("unsupported axes must report false")
	}
}
