package service

import "errors"

var (
	// ErrUnknownStrategy is returned when a resolution names a strategy the
	// executor does not implement. The conflict is left in resolving for
	// manual intervention.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")

	// ErrConflictClosed is returned when a resolution targets a conflict
	// that already resolved with a different resolution.
	ErrConflictClosed = errors.New("conflict already resolved")

	// ErrIncompleteResolution is returned when a merge/manual resolution
	// does not cover every field listed in the conflict.
	ErrIncompleteResolution = errors.New("resolution does not cover all conflicting fields")

	// ErrManualResolutionRequired is returned by AutoResolve when the
	// governing rule defaults to manual.
	ErrManualResolutionRequired = errors.New("conflict requires manual resolution")

	// ErrTimestampUnavailable is returned when timestamp_wins cannot find a
	// modification timestamp on either side.
	ErrTimestampUnavailable = errors.New("no modification timestamp available on either store")
)
