package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
)

const testMarker = "slotline.permission.BIND_PROVIDER"

// memoryDirectory is an in-memory Directory for catalog tests.
type memoryDirectory struct {
	mu      sync.Mutex
	entries []Descriptor
	err     error
}

func (d *memoryDirectory) Query(_ context.Context, packageFilter string) ([]Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []Descriptor
	for _, desc := range d.entries {
		if packageFilter == "" || desc.Package == packageFilter {
			out = append(out, desc)
		}
	}
	return out, nil
}

func staticEntry(pkg string, features ...DescriptorFeature) Descriptor {
	return Descriptor{Package: pkg, Marker: testMarker, Features: features}
}

func TestDiscoverAdmitsMatchingMarker(t *testing.T) {
	dir := &memoryDirectory{entries: []Descriptor{
		staticEntry("com.example.a", DescriptorFeature{Slot: 0, Feature: "mmtel"}),
		staticEntry("com.example.b", DescriptorFeature{Slot: 0, Feature: "rcs"}),
	}}
	catalog := NewCatalog(dir, testMarker)

	admitted, err := catalog.Discover(context.Background(), "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(admitted) != 2 {
		t.Fatalf("admitted %d candidates, want 2", len(admitted))
	}
	if catalog.Count() != 2 {
		t.Errorf("Count() = %d, want 2", catalog.Count())
	}
}

func TestDiscoverRejectsMarkerMismatch(t *testing.T) {
	dir := &memoryDirectory{entries: []Descriptor{
		{Package: "com.example.rogue", Marker: "some.other.marker",
			Features: []DescriptorFeature{{Slot: 0, Feature: "mmtel"}}},
		staticEntry("com.example.good", DescriptorFeature{Slot: 0, Feature: "mmtel"}),
	}}
	catalog := NewCatalog(dir, testMarker)

	admitted, err := catalog.Discover(context.Background(), "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(admitted) != 1 || admitted[0].Package != "com.example.good" {
		t.Errorf("admitted = %v, want only com.example.good", admitted)
	}
	if _, err := catalog.Get("com.example.rogue"); !errors.Is(err, ErrCandidateNotFound) {
		t.Errorf("Get(rogue) error = %v, want ErrCandidateNotFound", err)
	}
}

func TestDiscoverMarkerMismatchAllowedWhenConfigured(t *testing.T) {
	dir := &memoryDirectory{entries: []Descriptor{
		{Package: "com.example.rogue", Marker: "some.other.marker",
			Features: []DescriptorFeature{{Slot: 0, Feature: "mmtel"}}},
	}}
	catalog := NewCatalog(dir, testMarker)
	catalog.SetAllowMarkerMismatch(true)

	admitted, err := catalog.Discover(context.Background(), "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(admitted) != 1 {
		t.Errorf("admitted %d candidates, want 1", len(admitted))
	}
}

func TestDynamicCandidateMarkedPendingQuery(t *testing.T) {
	dir := &memoryDirectory{entries: []Descriptor{
		{Package: "com.example.dyn", Marker: testMarker, DynamicQuery: true},
	}}
	catalog := NewCatalog(dir, testMarker)

	if _, err := catalog.Discover(context.Background(), ""); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	cand, err := catalog.Get("com.example.dyn")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !cand.PendingQuery {
		t.Error("dynamic candidate must be marked pending query")
	}

	fs := mustSet(t, "0/mmtel")
	if err := catalog.SetDeclared("com.example.dyn", fs); err != nil {
		t.Fatalf("SetDeclared: %v", err)
	}
	cand, _ = catalog.Get("com.example.dyn")
	if cand.PendingQuery {
		t.Error("resolved candidate must clear pending query")
	}
	if !cand.Declared.Equal(fs) {
		t.Errorf("declared = %v, want %v", cand.Declared.Strings(), fs.Strings())
	}
}

func TestGetReturnsCopy(t *testing.T) {
	dir := &memoryDirectory{entries: []Descriptor{
		staticEntry("com.example.a", DescriptorFeature{Slot: 0, Feature: "mmtel"}),
	}}
	catalog := NewCatalog(dir, testMarker)
	if _, err := catalog.Discover(context.Background(), ""); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	cand, err := catalog.Get("com.example.a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cand.Declared.Add(FeaturePair{Slot: 5, Feature: FeatureRCS})

	fresh, _ := catalog.Get("com.example.a")
	if fresh.Declared.Len() != 1 {
		t.Error("Get must return an isolated copy")
	}
}

func TestRemove(t *testing.T) {
	dir := &memoryDirectory{entries: []Descriptor{
		staticEntry("com.example.a", DescriptorFeature{Slot: 0, Feature: "mmtel"}),
	}}
	catalog := NewCatalog(dir, testMarker)
	if _, err := catalog.Discover(context.Background(), ""); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if !catalog.Remove("com.example.a") {
		t.Error("Remove returned false for a known candidate")
	}
	if catalog.Remove("com.example.a") {
		t.Error("Remove returned true for an absent candidate")
	}
	if catalog.Count() != 0 {
		t.Errorf("Count() = %d, want 0", catalog.Count())
	}
}

func TestDiscoverDirectoryError(t *testing.T) {
	dir := &memoryDirectory{err: errors.New("directory offline")}
	catalog := NewCatalog(dir, testMarker)

	if _, err := catalog.Discover(context.Background(), ""); err == nil {
		t.Error("Discover must surface directory errors")
	}
}

func TestDiscoverSkipsDescriptorWithBadFeature(t *testing.T) {
	dir := &memoryDirectory{entries: []Descriptor{
		staticEntry("com.example.bad", DescriptorFeature{Slot: 0, Feature: "telepathy"}),
		staticEntry("com.example.good", DescriptorFeature{Slot: 0, Feature: "mmtel"}),
	}}
	catalog := NewCatalog(dir, testMarker)

	admitted, err := catalog.Discover(context.Background(), "")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(admitted) != 1 || admitted[0].Package != "com.example.good" {
		t.Errorf("admitted = %v, want only com.example.good", admitted)
	}
}
