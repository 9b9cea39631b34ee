// Package provider defines the candidate model for per-slot feature
// providers: which packages exist, which (slot, feature) pairs they declare,
// and how a connection to them is established.
//
// The Catalog caches candidates discovered through a Directory and enforces
// the permission-marker guard. The Store persists slot overrides and
// dynamically-queried feature sets so they survive restarts.
package provider
