package provider

import "context"

// StatusObserver receives feature status transitions pushed by the provider
// for a single live feature.
type StatusObserver func(status FeatureStatus)

// ConnectionEvents receives asynchronous lifecycle callbacks for a long-lived
// provider connection. Callbacks arrive on the transport's own goroutines;
// implementations must be safe to call from there.
type ConnectionEvents interface {
	// OnConnected delivers the live connection after a successful connect.
	OnConnected(conn Connection)

	// OnDisconnected signals a clean remote-side disconnect.
	OnDisconnected()

	// OnDied signals that the remote process crashed.
	OnDied()
}

// Connection is a live remote connection to one provider.
//
// CreateFeature and RemoveFeature are issued per (slot, feature) pair.
// All methods may be called from multiple goroutines.
type Connection interface {
	// CreateFeature instantiates a feature on the provider and returns
	// the remote reference id. The observer receives status transitions
	// for the created feature until it is removed.
	CreateFeature(slot int, feature Feature, observer StatusObserver) (string, error)

	// RemoveFeature tears down a previously created feature.
	RemoveFeature(slot int, feature Feature) error

	// SetSlotEnabled turns provider processing for a slot on or off.
	SetSlotEnabled(slot int, enabled bool) error

	// SubscribeFeatureSetChanged registers for provider-initiated feature
	// set updates. Returns a cancel func that must be called on teardown.
	SubscribeFeatureSetChanged(fn func(FeatureSet)) (cancel func())

	// SubscribeDeath registers a one-shot crash notification. Returns a
	// cancel func; cancelling after a clean unbind prevents stale
	// callbacks racing a crash.
	SubscribeDeath(fn func()) (cancel func())

	// Close releases the connection.
	Close() error
}

// Strategy is one remote-interface flavor a candidate can bind with.
// It is selected per candidate at discovery time.
type Strategy interface {
	// InterfaceName identifies the remote interface this strategy binds.
	InterfaceName() string

	// Connect issues an asynchronous connect request for the package.
	// The outcome is delivered through events; the returned cancel func
	// abandons the attempt (a late OnConnected must then be ignored by
	// the caller). A non-nil error means the request itself was rejected.
	Connect(pkg string, events ConnectionEvents) (cancel func(), err error)

	// QueryFeatures opens a transient connection, requests a feature
	// report and closes it. Distinct from the long-lived Connect path.
	QueryFeatures(ctx context.Context, pkg string) (FeatureSet, error)
}

// StrategySet maps connection flavors to their strategies.
type StrategySet map[StrategyKind]Strategy

// For returns the strategy for the candidate's flavor.
func (s StrategySet) For(c *Candidate) (Strategy, error) {
	if st, ok := s[c.Strategy]; ok {
		return st, nil
	}
	return nil, ErrNoStrategy
}
