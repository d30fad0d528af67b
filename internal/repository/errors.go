package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by a conditional write that found a row already
	// holding its uniqueness key.
	ErrConflict = errors.New("conflict")
	// ErrStore wraps every driver level failure (connectivity, timeouts,
	// unavailable replicas). Callers may retry the whole operation.
	ErrStore = errors.New("store failure")
	// ErrLocked is returned when a lease is held by another owner.
	ErrLocked = errors.New("lock held by another owner")
	// ErrLeaseLost is returned when extending or releasing a lease that has
	// expired or been taken over.
	ErrLeaseLost = errors.New("lease no longer owned")
)
