// Package binding owns the connection lifecycle of a single provider:
// connect, live feature diffing, crash detection and reconnection backoff.
//
// One Controller exists per provider identity. State transitions are
// UNBOUND → BINDING → BOUND, with crashes returning the controller to
// UNBOUND with a retry pending. The controller never decides ownership;
// it receives desired feature sets from the resolver and reconciles the
// live connection against them.
package binding
