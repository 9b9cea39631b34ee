// Package query coordinates transient capability queries against
// providers whose supported feature set is not declared statically.
//
// Queries are deduplicated per package, retried on a fixed delay, and
// their results handed back to the resolver as completion callbacks.
package query
