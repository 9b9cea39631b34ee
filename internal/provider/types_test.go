package provider

import (
	"errors"
	"testing"
)

func mustSet(t *testing.T, specs ...string) FeatureSet {
	t.Helper()
	fs, err := ParseFeatureSet(specs)
	if err != nil {
		t.Fatalf("ParseFeatureSet(%v): %v", specs, err)
	}
	return fs
}

func TestParseFeature(t *testing.T) {
	tests := []struct {
		in      string
		want    Feature
		wantErr bool
	}{
		{in: "emergency", want: FeatureEmergency},
		{in: "mmtel", want: FeatureMMTel},
		{in: "rcs", want: FeatureRCS},
		{in: "telepathy", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFeature(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownFeature) {
					t.Errorf("error = %v, want ErrUnknownFeature", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFeature(%s): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFeature(%s) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFeaturePair(t *testing.T) {
	pair, err := ParseFeaturePair("1/mmtel")
	if err != nil {
		t.Fatalf("ParseFeaturePair: %v", err)
	}
	if pair.Slot != 1 || pair.Feature != FeatureMMTel {
		t.Errorf("pair = %v, want 1/mmtel", pair)
	}
	if got := pair.String(); got != "1/mmtel" {
		t.Errorf("String() = %s, want 1/mmtel", got)
	}

	for _, bad := range []string{"", "mmtel", "x/mmtel", "-1/mmtel", "0/telepathy", "0/1/mmtel"} {
		if _, err := ParseFeaturePair(bad); err == nil {
			t.Errorf("ParseFeaturePair(%q) succeeded, want error", bad)
		}
	}
}

func TestFeatureSetBindable(t *testing.T) {
	tests := []struct {
		name  string
		specs []string
		want  bool
	}{
		{name: "empty", specs: nil, want: false},
		{name: "emergency only", specs: []string{"0/emergency"}, want: false},
		{name: "mmtel", specs: []string{"0/mmtel"}, want: true},
		{name: "emergency plus rcs", specs: []string{"0/emergency", "0/rcs"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustSet(t, tt.specs...).Bindable(); got != tt.want {
				t.Errorf("Bindable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeatureSetDiff(t *testing.T) {
	prev := mustSet(t, "0/mmtel", "0/rcs", "1/mmtel")
	next := mustSet(t, "0/mmtel", "1/rcs")

	added, removed := prev.Diff(next)
	if len(added) != 1 || added[0].String() != "1/rcs" {
		t.Errorf("added = %v, want [1/rcs]", added)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v, want 2 pairs", removed)
	}
}

func TestFeatureSetOperationsDoNotShareStorage(t *testing.T) {
	orig := mustSet(t, "0/mmtel", "0/rcs")

	clone := orig.Clone()
	clone.Remove(FeaturePair{Slot: 0, Feature: FeatureRCS})
	if orig.Len() != 2 {
		t.Error("Clone shares storage with the original")
	}

	sub := orig.Subtract(mustSet(t, "0/mmtel"))
	if sub.Len() != 1 || orig.Len() != 2 {
		t.Error("Subtract mutated its receiver")
	}

	forSlot := orig.ForSlot(0)
	forSlot.Remove(FeaturePair{Slot: 0, Feature: FeatureMMTel})
	if orig.Len() != 2 {
		t.Error("ForSlot shares storage with the original")
	}
}

func TestFeatureSetEqual(t *testing.T) {
	a := mustSet(t, "0/mmtel", "1/rcs")
	b := mustSet(t, "1/rcs", "0/mmtel")
	if !a.Equal(b) {
		t.Error("order must not affect equality")
	}
	if a.Equal(mustSet(t, "0/mmtel")) {
		t.Error("sets of different size compare equal")
	}
}

func TestParseStrategyKind(t *testing.T) {
	tests := []struct {
		in   string
		want StrategyKind
	}{
		{in: "current", want: StrategyCurrent},
		{in: "legacy", want: StrategyLegacy},
		{in: "static", want: StrategyStatic},
		{in: "", want: StrategyCurrent},
		{in: "unrecognised", want: StrategyCurrent},
	}
	for _, tt := range tests {
		if got := ParseStrategyKind(tt.in); got != tt.want {
			t.Errorf("ParseStrategyKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCandidateDeepCopy(t *testing.T) {
	cand := &Candidate{
		Package:  "com.example.p",
		Declared: mustSet(t, "0/mmtel"),
		Strategy: StrategyCurrent,
	}

	cp := cand.DeepCopy()
	cp.Declared.Add(FeaturePair{Slot: 0, Feature: FeatureRCS})

	if cand.Declared.Len() != 1 {
		t.Error("DeepCopy shares the declared set")
	}
}
