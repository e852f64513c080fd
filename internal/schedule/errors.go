package schedule

import "errors"

var (
	// ErrBlockNotFound is returned when a blocked interval does not exist.
	ErrBlockNotFound = errors.New("blocked interval not found")

	// ErrMissingTenant is returned when an operation omits the tenant id.
	ErrMissingTenant = errors.New("tenant id is required")

	// ErrInvalidInterval is returned when interval parameters violate an
	// invariant.
	ErrInvalidInterval = errors.New("invalid blocked interval")

	// ErrInvalidWindow is returned when a requested time window is
	// malformed.
	ErrInvalidWindow = errors.New("invalid time window")
)
