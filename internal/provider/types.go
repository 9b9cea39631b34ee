package provider

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Feature is a discrete capability unit a provider can expose for a slot.
type Feature int

const (
	// FeatureEmergency is the emergency pseudo-feature. It is tracked for
	// callback completeness but never alone justifies a live connection.
	FeatureEmergency Feature = iota

	// FeatureMMTel is multimedia telephony (voice/video calling).
	FeatureMMTel

	// FeatureRCS is rich communication services (chat, presence).
	FeatureRCS
)

// String returns the lowercase feature name.
func (f Feature) String() string {
	switch f {
	case FeatureEmergency:
		return "emergency"
	case FeatureMMTel:
		return "mmtel"
	case FeatureRCS:
		return "rcs"
	default:
		return fmt.Sprintf("feature(%d)", int(f))
	}
}

// ParseFeature converts a feature name to a Feature.
func ParseFeature(s string) (Feature, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emergency":
		return FeatureEmergency, nil
	case "mmtel":
		return FeatureMMTel, nil
	case "rcs":
		return FeatureRCS, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, s)
	}
}

// FeatureStatus is the readiness state a provider reports for a live feature.
type FeatureStatus int

const (
	StatusUnavailable FeatureStatus = iota
	StatusInitialising
	StatusReady
)

// String returns the lowercase status name.
func (s FeatureStatus) String() string {
	switch s {
	case StatusUnavailable:
		return "unavailable"
	case StatusInitialising:
		return "initialising"
	case StatusReady:
		return "ready"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// FeaturePair scopes a feature to a hardware slot.
type FeaturePair struct {
	Slot    int
	Feature Feature
}

// String returns the "slot/feature" form used in persistence and logs.
func (p FeaturePair) String() string {
	return strconv.Itoa(p.Slot) + "/" + p.Feature.String()
}

// ParseFeaturePair parses the "slot/feature" form produced by String.
func ParseFeaturePair(s string) (FeaturePair, error) {
	slotStr, featStr, ok := strings.Cut(s, "/")
	if !ok {
		return FeaturePair{}, fmt.Errorf("%w: %q", ErrInvalidPair, s)
	}
	slot, err := strconv.Atoi(slotStr)
	if err != nil || slot < 0 {
		return FeaturePair{}, fmt.Errorf("%w: bad slot in %q", ErrInvalidPair, s)
	}
	feat, err := ParseFeature(featStr)
	if err != nil {
		return FeaturePair{}, err
	}
	return FeaturePair{Slot: slot, Feature: feat}, nil
}

// FeatureSet is a set of (slot, feature) pairs.
//
// The zero value is not usable; construct with NewFeatureSet. Methods never
// mutate their receiver's arguments; Diff and Subtract return new values.
type FeatureSet map[FeaturePair]struct{}

// NewFeatureSet builds a set from the given pairs.
func NewFeatureSet(pairs ...FeaturePair) FeatureSet {
	fs := make(FeatureSet, len(pairs))
	for _, p := range pairs {
		fs[p] = struct{}{}
	}
	return fs
}

// Add inserts a pair into the set.
func (fs FeatureSet) Add(p FeaturePair) { fs[p] = struct{}{} }

// Remove deletes a pair from the set.
func (fs FeatureSet) Remove(p FeaturePair) { delete(fs, p) }

// Has reports whether the pair is in the set.
func (fs FeatureSet) Has(p FeaturePair) bool {
	_, ok := fs[p]
	return ok
}

// Len returns the number of pairs.
func (fs FeatureSet) Len() int { return len(fs) }

// Clone returns an independent copy of the set.
func (fs FeatureSet) Clone() FeatureSet {
	cpy := make(FeatureSet, len(fs))
	for p := range fs {
		cpy[p] = struct{}{}
	}
	return cpy
}

// Bindable reports whether the set justifies a live connection: it must
// contain at least one non-emergency pair.
func (fs FeatureSet) Bindable() bool {
	for p := range fs {
		if p.Feature != FeatureEmergency {
			return true
		}
	}
	return false
}

// ForSlot returns the subset of pairs scoped to the given slot.
func (fs FeatureSet) ForSlot(slot int) FeatureSet {
	out := make(FeatureSet)
	for p := range fs {
		if p.Slot == slot {
			out[p] = struct{}{}
		}
	}
	return out
}

// Subtract returns the pairs in fs that are not in other.
func (fs FeatureSet) Subtract(other FeatureSet) FeatureSet {
	out := make(FeatureSet)
	for p := range fs {
		if !other.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Union returns the combined set of fs and other.
func (fs FeatureSet) Union(other FeatureSet) FeatureSet {
	out := fs.Clone()
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Equal reports whether both sets contain exactly the same pairs.
func (fs FeatureSet) Equal(other FeatureSet) bool {
	if len(fs) != len(other) {
		return false
	}
	for p := range fs {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Diff compares fs (current) against next (desired) and returns the pairs
// to add and to remove, both in deterministic order.
func (fs FeatureSet) Diff(next FeatureSet) (added, removed []FeaturePair) {
	for p := range next {
		if !fs.Has(p) {
			added = append(added, p)
		}
	}
	for p := range fs {
		if !next.Has(p) {
			removed = append(removed, p)
		}
	}
	sortPairs(added)
	sortPairs(removed)
	return added, removed
}

// Pairs returns all pairs in deterministic order.
func (fs FeatureSet) Pairs() []FeaturePair {
	out := make([]FeaturePair, 0, len(fs))
	for p := range fs {
		out = append(out, p)
	}
	sortPairs(out)
	return out
}

// Strings returns the "slot/feature" form of every pair, sorted.
// Used for persistence and API responses.
func (fs FeatureSet) Strings() []string {
	pairs := fs.Pairs()
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.String())
	}
	return out
}

// ParseFeatureSet rebuilds a set from its Strings form.
func ParseFeatureSet(items []string) (FeatureSet, error) {
	fs := make(FeatureSet, len(items))
	for _, s := range items {
		p, err := ParseFeaturePair(s)
		if err != nil {
			return nil, err
		}
		fs[p] = struct{}{}
	}
	return fs, nil
}

// sortPairs orders pairs by slot, then feature.
func sortPairs(pairs []FeaturePair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Slot != pairs[j].Slot {
			return pairs[i].Slot < pairs[j].Slot
		}
		return pairs[i].Feature < pairs[j].Feature
	})
}

// StrategyKind selects which remote-interface flavor a candidate binds with.
type StrategyKind string

const (
	// StrategyCurrent is the current remote interface generation.
	StrategyCurrent StrategyKind = "current"

	// StrategyLegacy is the previous interface generation, kept for
	// providers that have not migrated yet.
	StrategyLegacy StrategyKind = "legacy"

	// StrategyStatic is the compatibility flavor for providers declared
	// entirely through static configuration.
	StrategyStatic StrategyKind = "static"
)

// ParseStrategyKind maps a descriptor flavor string to a StrategyKind.
// Empty and unknown values fall back to StrategyCurrent.
func ParseStrategyKind(s string) StrategyKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StrategyLegacy):
		return StrategyLegacy
	case string(StrategyStatic):
		return StrategyStatic
	default:
		return StrategyCurrent
	}
}

// Candidate is a discovered provider and its declared capabilities.
type Candidate struct {
	// Package is the provider identity. At most one ActiveConnection
	// exists per package at any time.
	Package string

	// Declared is the set of (slot, feature) pairs the candidate supports.
	// For pending-query candidates this is empty until the capability
	// query completes.
	Declared FeatureSet

	// PendingQuery marks candidates whose features must be discovered
	// through a dynamic capability query rather than static declaration.
	PendingQuery bool

	// Strategy selects the connection flavor used to bind this candidate.
	Strategy StrategyKind

	// Marker is the protection marker the candidate's remote interface
	// declares. Checked against the expected value during discovery.
	Marker string
}

// DeepCopy returns an independent copy of the candidate.
func (c *Candidate) DeepCopy() *Candidate {
	if c == nil {
		return nil
	}
	cpy := *c
	cpy.Declared = c.Declared.Clone()
	return &cpy
}
