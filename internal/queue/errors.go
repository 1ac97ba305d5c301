package queue

import "errors"

// Queue errors.
var (
	// ErrNotFound is returned when a notification does not exist, or exists
	// but is not in the state the operation requires.
	ErrNotFound = errors.New("notification not found or not in required state")

	// ErrDuplicateID is returned when inserting a record whose id already exists.
	ErrDuplicateID = errors.New("notification id already exists")

	// ErrTooManyIDs is returned when a bulk operation exceeds the id limit.
	ErrTooManyIDs = errors.New("too many ids in bulk operation")

	// ErrIntegrationDisabled is returned when enqueueing for a disabled integration.
	ErrIntegrationDisabled = errors.New("integration is disabled")
)
