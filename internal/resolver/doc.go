// Package resolver decides which provider serves each slot's features
// and drives the binding controllers towards that decision.
//
// All catalog and assignment mutation flows through a single serialized
// event queue, so ordering between package churn, override changes and
// query completions is total. Reads (feature handles, snapshots,
// observer registration) take their own locks and never enter the
// queue.
package resolver
