package binding

import "errors"

var (
	// ErrAlreadyBound is returned when Bind is called on a controller
	// that is not in the unbound state.
	ErrAlreadyBound = errors.New("binding: controller already bound or binding")

	// ErrNotBound is returned for operations that require a live connection.
	ErrNotBound = errors.New("binding: controller not bound")

	// ErrNoStrategy is returned when a controller is constructed without
	// a connection strategy.
	ErrNoStrategy = errors.New("binding: connection strategy is required")

	// ErrNoPackage is returned when a controller is constructed without
	// a provider package name.
	ErrNoPackage = errors.New("binding: provider package is required")
)
