// Package core defines the sentinel errors shared across the camwatch
// server layers. Callers match them with errors.Is.
package core

import "errors"

var (
	// Auth / authorization errors. Never retried internally.
	ErrAuth      = errors.New("invalid or expired session")
	ErrForbidden = errors.New("insufficient permissions")

	// Lookup errors.
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")

	// Capture source could not be opened or read; retried a bounded
	// number of times by the worker, then terminal for that worker.
	ErrSourceUnavailable = errors.New("capture source unavailable")

	// Outbound notification failed after all delivery attempts.
	ErrTransientDelivery = errors.New("notification delivery failed")

	// Durable write failed; the triggering mutation is rolled back.
	ErrPersistence = errors.New("persistence failure")
)
