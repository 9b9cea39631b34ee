package binding

import (
	"fmt"
	"sync"

	"github.com/nerrad567/slotline/internal/provider"
)

// RemoteFeature is a live handle to one feature instance hosted by a
// bound provider. Handles are minted fresh on every successful bind;
// a handle obtained before a crash is never reused after reconnection.
type RemoteFeature struct {
	// ID uniquely identifies this handle instance. Rebinds of the same
	// slot/feature produce a new ID.
	ID string

	// Package is the provider that hosts the feature.
	Package string

	// Slot is the slot the feature is attached to.
	Slot int

	// Feature is the feature type.
	Feature provider.Feature

	// RemoteID is the identifier returned by the provider when the
	// feature was created.
	RemoteID string

	mu     sync.RWMutex
	status provider.FeatureStatus
	config map[string]string
}

// Status returns the most recent status pushed by the provider.
func (f *RemoteFeature) Status() provider.FeatureStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

func (f *RemoteFeature) setStatus(status provider.FeatureStatus) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

// Pair returns the slot/feature pair this handle serves.
func (f *RemoteFeature) Pair() provider.FeaturePair {
	return provider.FeaturePair{Slot: f.Slot, Feature: f.Feature}
}

// Registration returns the registration facet of this handle.
func (f *RemoteFeature) Registration() *RegistrationHandle {
	return &RegistrationHandle{feature: f}
}

// Config returns the config facet of this handle.
func (f *RemoteFeature) Config() *ConfigHandle {
	return &ConfigHandle{feature: f}
}

// String implements fmt.Stringer.
func (f *RemoteFeature) String() string {
	return fmt.Sprintf("%s[%d/%s]", f.Package, f.Slot, f.Feature)
}

// RegistrationState describes whether a feature instance is registered
// with its provider's network side.
type RegistrationState int

const (
	RegistrationNone RegistrationState = iota
	RegistrationInProgress
	RegistrationRegistered
)

func (s RegistrationState) String() string {
	switch s {
	case RegistrationRegistered:
		return "registered"
	case RegistrationInProgress:
		return "registering"
	default:
		return "not_registered"
	}
}

// RegistrationHandle exposes the registration state of one live feature
// instance. Like the feature handle it is scoped to a single bind; after
// a rebind callers must fetch a fresh one.
type RegistrationHandle struct {
	feature *RemoteFeature
}

// State derives the registration state from the feature's status.
func (r *RegistrationHandle) State() RegistrationState {
	switch r.feature.Status() {
	case provider.StatusReady:
		return RegistrationRegistered
	case provider.StatusInitialising:
		return RegistrationInProgress
	default:
		return RegistrationNone
	}
}

// Pair returns the slot/feature pair this facet belongs to.
func (r *RegistrationHandle) Pair() provider.FeaturePair {
	return r.feature.Pair()
}

// Package returns the provider hosting the feature.
func (r *RegistrationHandle) Package() string {
	return r.feature.Package
}

// ConfigHandle exposes per-feature configuration values. The store is
// scoped to one bind: a rebind mints a fresh handle with an empty store,
// so stale values never survive a provider restart.
type ConfigHandle struct {
	feature *RemoteFeature
}

// Get returns the value for key, if set.
func (c *ConfigHandle) Get(key string) (string, bool) {
	c.feature.mu.RLock()
	defer c.feature.mu.RUnlock()
	v, ok := c.feature.config[key]
	return v, ok
}

// Set stores a value for key.
func (c *ConfigHandle) Set(key, value string) {
	c.feature.mu.Lock()
	if c.feature.config == nil {
		c.feature.config = make(map[string]string)
	}
	c.feature.config[key] = value
	c.feature.mu.Unlock()
}

// Values returns a copy of all stored key/value pairs.
func (c *ConfigHandle) Values() map[string]string {
	c.feature.mu.RLock()
	defer c.feature.mu.RUnlock()
	out := make(map[string]string, len(c.feature.config))
	for k, v := range c.feature.config {
		out[k] = v
	}
	return out
}

// Pair returns the slot/feature pair this facet belongs to.
func (c *ConfigHandle) Pair() provider.FeaturePair {
	return c.feature.Pair()
}
