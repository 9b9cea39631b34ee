package provider

import "errors"

// Domain errors for the provider package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, provider.ErrCandidateNotFound) {
//	    // handle not found case
//	}
var (
	// ErrCandidateNotFound is returned when a package is not in the catalog.
	ErrCandidateNotFound = errors.New("provider: candidate not found")

	// ErrUnknownFeature is returned when a feature name is not recognised.
	ErrUnknownFeature = errors.New("provider: unknown feature")

	// ErrInvalidPair is returned when a "slot/feature" string cannot be parsed.
	ErrInvalidPair = errors.New("provider: invalid feature pair")

	// ErrMarkerMismatch is returned when a candidate's protection marker
	// does not match the expected value.
	ErrMarkerMismatch = errors.New("provider: permission marker mismatch")

	// ErrDirectoryUnavailable is returned when the provider directory
	// cannot be queried.
	ErrDirectoryUnavailable = errors.New("provider: directory unavailable")

	// ErrNoStrategy is returned when no connection strategy is registered
	// for a candidate's flavor.
	ErrNoStrategy = errors.New("provider: no connection strategy")
)
