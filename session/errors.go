package session

import "errors"

var (
	// ErrInvalidState is returned when an operation is not valid from the
	// current phase, e.g. Resume while idle
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidStation is returned by Play for stations without a stream URL
	ErrInvalidStation = errors.New("invalid station")

	// ErrStreamFailure wraps engine-reported failures
	ErrStreamFailure = errors.New("stream failure")

	// ErrReleaseFailure wraps errors from releasing a stream handle. These are
	// logged and never returned to callers.
	ErrReleaseFailure = errors.New("stream release failure")
)
