package queue

import "errors"

// Queue errors.
var (
	ErrItemNotFound     = errors.New("queue item not found")
	ErrAlreadyFinalized = errors.New("queue item already processed")
	ErrMissingTenant    = errors.New("tenant id is required")
)
