// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested user or challenge does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted indicates the weekly challenge was already completed.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrValidation indicates a rejected input (bad delta, blank badge, empty name).
	ErrValidation = errors.New("validation")

	// ErrAlreadyExists indicates a unique constraint violation on insert.
	ErrAlreadyExists = errors.New("already exists")
)
