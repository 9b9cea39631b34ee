package resolver

import "errors"

var (
	// ErrInvalidSlot is returned when a slot index is outside the
	// configured slot count.
	ErrInvalidSlot = errors.New("resolver: slot index out of range")

	// ErrFeatureNotAvailable is returned when no live handle exists for
	// a requested slot/feature pair.
	ErrFeatureNotAvailable = errors.New("resolver: feature not available")

	// ErrStopped is returned for operations issued after Stop.
	ErrStopped = errors.New("resolver: orchestrator stopped")

	// ErrNoCatalog is returned when an orchestrator is constructed
	// without a candidate catalog.
	ErrNoCatalog = errors.New("resolver: catalog is required")

	// ErrNoStrategies is returned when an orchestrator is constructed
	// without connection strategies.
	ErrNoStrategies = errors.New("resolver: strategy set is required")
)
