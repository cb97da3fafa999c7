package engine

import "errors"

// Engine errors.
var (
	// ErrInvalidTransition is returned when the requested target state is
	// not reachable from the aggregate's current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrValidation is returned for business-rule violations: missing
	// cancellation reason, non-positive payment, settled invoice cancel.
	ErrValidation = errors.New("transition validation failed")
	// ErrAggregateNotFound is returned when the aggregate does not exist.
	ErrAggregateNotFound = errors.New("aggregate not found")
	// ErrConflict is returned when a concurrent transition won the race;
	// the caller may retry once with fresh state.
	ErrConflict = errors.New("aggregate was modified concurrently")
	// ErrUnknownKind is returned for a kind no definition was registered for.
	ErrUnknownKind = errors.New("unknown aggregate kind")
)
