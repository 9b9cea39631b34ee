// Package api implements the HTTP REST API and WebSocket server for
// the slot feature resolver.
//
// This package provides:
//   - REST endpoints for candidate inspection, per-slot overrides and
//     slot enable state
//   - WebSocket hub broadcasting resolver events in real time
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API server sits between operator tooling and the resolver
// orchestrator. Override and slot-enable commands are applied through
// the orchestrator's serialized event queue, so responses reflect the
// applied state. Resolver events (candidate changes, feature status,
// controller transitions) flow out through the WebSocket hub, which
// the orchestrator uses as its event broadcaster.
//
// # Graceful Degradation
//
// The server operates without MQTT and without InfluxDB. Those
// dependencies only feed the metrics endpoint's connectivity flags.
package api
