package core

import "errors"

var (
	// ErrUnauthorized covers both unknown tokens and disabled devices;
	// callers never learn which.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict marks an operation against a job that is no longer in the
	// expected state: already claimed, already acknowledged, or reclaimed.
	ErrConflict = errors.New("job not in expected state")

	ErrNotFound = errors.New("not found")

	ErrValidation = errors.New("validation failed")
)
