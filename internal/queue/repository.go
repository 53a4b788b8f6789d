package queue

import (
	"context"
	"time"

	"github.com/bissquit/clerk-queue/internal/domain"
)

// Repository defines the interface for queue item storage.
// Every method is scoped by court id; mutations are single conditional statements.
type Repository interface {
	Create(ctx context.Context, item *domain.QueueItem) error
	Get(ctx context.Context, courtID, id string) (*domain.QueueItem, error)
	Search(ctx context.Context, courtID string, filter Filter) ([]*domain.QueueItem, int64, error)
	Stats(ctx context.Context, courtID string, userID *int64, since time.Time) (*domain.QueueStats, error)

	// Claim assigns a pending, unassigned item. Returns ErrClaimConflict when no row matches.
	Claim(ctx context.Context, courtID, id string, userID int64) (*domain.QueueItem, error)
	// Release returns an item held by userID to pending. Returns ErrItemNotFound when no row matches.
	Release(ctx context.Context, courtID, id string, userID int64) (*domain.QueueItem, error)
	Advance(ctx context.Context, courtID, id string, change StepChange) (*domain.QueueItem, error)
	// Reject closes a non-terminal item. Returns ErrItemNotFound when no open row matches.
	Reject(ctx context.Context, courtID, id, reason string) (*domain.QueueItem, error)

	CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error)
}

// Filter holds filter options for searching queue items.
type Filter struct {
	Status     *domain.QueueStatus
	QueueType  *domain.QueueType
	Priority   *int
	AssignedTo *int64
	CaseID     *string
	Offset     int
	Limit      int
}

// StepChange describes the write performed by an advance.
type StepChange struct {
	Step   domain.Step
	Status domain.QueueStatus
	// Complete sets completed_at (keeping an existing value) and clears the assignee.
	Complete bool
	// ConfirmedStep is the step whose payload is recorded under metadata.step_data.
	ConfirmedStep domain.Step
	StepData      map[string]any
}
