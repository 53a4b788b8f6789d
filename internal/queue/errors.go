package queue

import "errors"

// Validation errors.
var (
	ErrTenantRequired    = errors.New("court id is required")
	ErrTitleRequired     = errors.New("title must not be empty")
	ErrInvalidQueueType  = errors.New("invalid queue type")
	ErrInvalidSourceType = errors.New("invalid source type")
	ErrInvalidSourceID   = errors.New("invalid source id")
	ErrInvalidCaseID     = errors.New("invalid case id")
	ErrInvalidCaseType   = errors.New("invalid case type")
	ErrInvalidPriority   = errors.New("priority must be between 1 and 4")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidID         = errors.New("invalid queue item id")
	ErrReasonRequired    = errors.New("reject reason must not be empty")
)

// Repository errors.
var (
	ErrItemNotFound    = errors.New("queue item not found")
	ErrClaimConflict   = errors.New("queue item is not available for claiming")
	ErrDuplicateSource = errors.New("an open queue item already exists for this source")
)

// State errors.
var (
	ErrItemClosed  = errors.New("queue item is already closed")
	ErrNotAssignee = errors.New("queue item is not assigned to this user")
)
