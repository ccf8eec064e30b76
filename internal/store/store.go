// Package store persists the provisioning history: connect attempts and
// mode transitions. The history is diagnostic data, never consulted to make
// a provisioning decision, so writers treat failures as advisory.
package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// AppendAttempt records a finished connect request.
	AppendAttempt(rec *AttemptRecord) error

	// AppendTransition records a device-mode change.
	AppendTransition(rec *TransitionRecord) error

	// RecentAttempts returns up to n attempts, newest first.
	RecentAttempts(n int) ([]*AttemptRecord, error)

	// RecentTransitions returns up to n transitions, newest first.
	RecentTransitions(n int) ([]*TransitionRecord, error)

	// Close the store
	Close() error
}
