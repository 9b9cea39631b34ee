// Package mqtt wraps paho.mqtt.golang for the resolver's external event
// feeds: package install/remove/change notifications and per-slot
// override commands arrive over the broker, and resolver status is
// published back.
//
// The client tracks subscriptions and restores them on reconnect, so
// callers subscribe once and survive broker restarts.
package mqtt
