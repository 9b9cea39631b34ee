package mqtt

import "testing"

func TestTopicBuilders(t *testing.T) {
	var topics Topics

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"package added", topics.PackageEvent("added"), "slotline/package/added"},
		{"package removed", topics.PackageEvent("removed"), "slotline/package/removed"},
		{"all package events", topics.AllPackageEvents(), "slotline/package/+"},
		{"override", topics.Override(2), "slotline/override/2"},
		{"all overrides", topics.AllOverrides(), "slotline/override/+"},
		{"slot enabled", topics.SlotEnabled(0), "slotline/slot/0/enabled"},
		{"all slot enabled", topics.AllSlotEnabled(), "slotline/slot/+/enabled"},
		{"system status", topics.SystemStatus(), "slotline/system/status"},
		{"event", topics.Event("override_changed"), "slotline/event/override_changed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPackageEventKind(t *testing.T) {
	tests := []struct {
		topic    string
		wantKind string
		wantOK   bool
	}{
		{"slotline/package/added", "added", true},
		{"slotline/package/changed", "changed", true},
		{"slotline/package/removed", "removed", true},
		{"slotline/package/", "", false},
		{"slotline/package/added/extra", "", false},
		{"slotline/override/0", "", false},
		{"other/package/added", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, ok := PackageEventKind(tt.topic)
			if ok != tt.wantOK || kind != tt.wantKind {
				t.Errorf("PackageEventKind(%q) = (%q, %v), want (%q, %v)",
					tt.topic, kind, ok, tt.wantKind, tt.wantOK)
			}
		})
	}
}

func TestOverrideSlot(t *testing.T) {
	tests := []struct {
		topic    string
		wantSlot int
		wantOK   bool
	}{
		{"slotline/override/0", 0, true},
		{"slotline/override/3", 3, true},
		{"slotline/override/-1", 0, false},
		{"slotline/override/abc", 0, false},
		{"slotline/override/", 0, false},
		{"slotline/package/added", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			slot, ok := OverrideSlot(tt.topic)
			if ok != tt.wantOK || slot != tt.wantSlot {
				t.Errorf("OverrideSlot(%q) = (%d, %v), want (%d, %v)",
					tt.topic, slot, ok, tt.wantSlot, tt.wantOK)
			}
		})
	}
}

func TestSlotEnabledSlot(t *testing.T) {
	tests := []struct {
		topic    string
		wantSlot int
		wantOK   bool
	}{
		{"slotline/slot/0/enabled", 0, true},
		{"slotline/slot/1/enabled", 1, true},
		{"slotline/slot/-2/enabled", 0, false},
		{"slotline/slot/x/enabled", 0, false},
		{"slotline/slot/1/disabled", 0, false},
		{"slotline/slot/1", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			slot, ok := SlotEnabledSlot(tt.topic)
			if ok != tt.wantOK || slot != tt.wantSlot {
				t.Errorf("SlotEnabledSlot(%q) = (%d, %v), want (%d, %v)",
					tt.topic, slot, ok, tt.wantSlot, tt.wantOK)
			}
		})
	}
}
