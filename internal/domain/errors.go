package domain

import "errors"

var (
	// ErrValidation marks a reading rejected before any processing.
	ErrValidation = errors.New("validation failed")

	// ErrStorage marks a failed append or query against the time-series store.
	ErrStorage = errors.New("storage failure")

	// ErrRemoteUnavailable marks a scorer or predictor call that timed out,
	// could not connect, or returned a non-success status.
	ErrRemoteUnavailable = errors.New("remote service unavailable")

	// ErrNotFound marks a remote lookup that succeeded but had nothing to return.
	ErrNotFound = errors.New("not found")
)
