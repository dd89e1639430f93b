// Package service holds the placement lifecycle orchestrator.  Handlers map
// the sentinel errors below to HTTP status codes; details are attached with
// fmt.Errorf("%w: ...") so errors.Is keeps working.
package service

import "errors"

var (
	// ErrUnauthenticated means no actor could be resolved for the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the actor is known but may not act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means a referenced placement or registration is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput covers missing fields and unknown enum values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict covers uniqueness violations and stale-state transitions.
	ErrConflict = errors.New("conflict")
)
