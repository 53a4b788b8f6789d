package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// Search paging defaults.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// TransitionPublisher receives queue item transitions after they are stored.
type TransitionPublisher interface {
	PublishTransition(ctx context.Context, t domain.Transition) error
}

// Config contains queue engine configuration.
type Config struct {
	// EnforceAssignee makes advance and reject fail with ErrNotAssignee
	// unless the acting user holds the claim.
	EnforceAssignee bool
	// Location defines the day boundary used by the today counter.
	Location *time.Location
}

// Service implements queue business logic.
type Service struct {
	repo      Repository
	publisher TransitionPublisher
	config    Config
	now       func() time.Time
}

// NewService creates a new queue service. publisher may be nil.
func NewService(repo Repository, publisher TransitionPublisher, config Config) *Service {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		config:    config,
		now:       time.Now,
	}
}

// CreateInput holds data for creating a queue item.
type CreateInput struct {
	QueueType   domain.QueueType
	Priority    int
	Title       string
	Description *string
	SourceType  domain.SourceType
	SourceID    string
	CaseID      *string
	CaseType    domain.CaseType
	CaseNumber  *string
	SubmittedBy *int64
	Metadata    domain.Metadata
}

// AdvanceInput holds data for confirming the current step of an item.
type AdvanceInput struct {
	Actor    *int64
	StepData map[string]any
}

// RejectInput holds data for rejecting an item.
type RejectInput struct {
	Actor  *int64
	Reason string
}

// SearchResult is one page of queue items.
type SearchResult struct {
	Items  []*domain.QueueItem `json:"items"`
	Total  int64               `json:"total"`
	Offset int                 `json:"offset"`
	Limit  int                 `json:"limit"`
}

// Create validates input and stores a new pending item on the first step of its pipeline.
func (s *Service) Create(ctx context.Context, courtID string, input CreateInput) (*domain.QueueItem, error) {
	if courtID == "" {
		return nil, ErrTenantRequired
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if !input.QueueType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQueueType, input.QueueType)
	}
	if !input.SourceType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSourceType, input.SourceType)
	}
	if err := uuid.Validate(input.SourceID); err != nil {
		return nil, ErrInvalidSourceID
	}
	if input.CaseID != nil {
		if err := uuid.Validate(*input.CaseID); err != nil {
			return nil, ErrInvalidCaseID
		}
	}

	priority := input.Priority
	if priority == 0 {
		priority = domain.PriorityNormal
	}
	if !domain.IsValidPriority(priority) {
		return nil, ErrInvalidPriority
	}

	caseType := input.CaseType
	if caseType == "" {
		caseType = domain.CaseTypeCriminal
	}
	if !caseType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCaseType, caseType)
	}

	firstStep, _ := domain.FirstStep(input.QueueType)

	metadata := input.Metadata
	if metadata == nil {
		metadata = domain.Metadata{}
	}

	item := &domain.QueueItem{
		CourtID:     courtID,
		QueueType:   input.QueueType,
		Priority:    priority,
		Status:      domain.QueueStatusPending,
		Title:       title,
		Description: input.Description,
		SourceType:  input.SourceType,
		SourceID:    input.SourceID,
		CaseID:      input.CaseID,
		CaseType:    caseType,
		CaseNumber:  input.CaseNumber,
		SubmittedBy: input.SubmittedBy,
		CurrentStep: firstStep,
		Metadata:    metadata,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		if errors.Is(err, ErrDuplicateSource) {
			return nil, err
		}
		return nil, fmt.Errorf("create queue item: %w", err)
	}

	s.notify(ctx, domain.TransitionCreated, "", item, input.SubmittedBy, nil)
	return item, nil
}

// Get returns a single item of the court.
func (s *Service) Get(ctx context.Context, courtID, id string) (*domain.QueueItem, error) {
	if err := validateRef(courtID, id); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, courtID, id)
}

// Search returns a page of the court's items ordered by priority, then age.
func (s *Service) Search(ctx context.Context, courtID string, filter Filter) (*SearchResult, error) {
	if courtID == "" {
		return nil, ErrTenantRequired
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *filter.Status)
	}
	if filter.QueueType != nil && !filter.QueueType.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQueueType, *filter.QueueType)
	}
	if filter.Priority != nil && !domain.IsValidPriority(*filter.Priority) {
		return nil, ErrInvalidPriority
	}
	if filter.CaseID != nil {
		if err := uuid.Validate(*filter.CaseID); err != nil {
			return nil, ErrInvalidCaseID
		}
	}

	filter.Offset, filter.Limit = normalizePage(filter.Offset, filter.Limit)

	items, total, err := s.repo.Search(ctx, courtID, filter)
	if err != nil {
		return nil, fmt.Errorf("search queue: %w", err)
	}

	return &SearchResult{
		Items:  items,
		Total:  total,
		Offset: filter.Offset,
		Limit:  filter.Limit,
	}, nil
}

// Stats returns dashboard counters for the court. userID scopes the "my items" counter.
func (s *Service) Stats(ctx context.Context, courtID string, userID *int64) (*domain.QueueStats, error) {
	if courtID == "" {
		return nil, ErrTenantRequired
	}

	stats, err := s.repo.Stats(ctx, courtID, userID, s.startOfDay())
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return stats, nil
}

// Claim assigns a pending item to userID. Concurrent claims are resolved by the store.
func (s *Service) Claim(ctx context.Context, courtID, id string, userID int64) (*domain.QueueItem, error) {
	if err := validateRef(courtID, id); err != nil {
		return nil, err
	}

	item, err := s.repo.Claim(ctx, courtID, id, userID)
	if err != nil {
		if errors.Is(err, ErrClaimConflict) {
			recordClaimConflict()
		}
		return nil, err
	}

	s.notify(ctx, domain.TransitionClaimed, item.CurrentStep, item, &userID, nil)
	return item, nil
}

// Release returns an item held by userID to the pending pool.
func (s *Service) Release(ctx context.Context, courtID, id string, userID int64) (*domain.QueueItem, error) {
	if err := validateRef(courtID, id); err != nil {
		return nil, err
	}

	item, err := s.repo.Release(ctx, courtID, id, userID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, domain.TransitionReleased, item.CurrentStep, item, &userID, nil)
	return item, nil
}

// Advance confirms the item's current step and moves it along its pipeline.
// Reaching the last named step completes the item. Advancing from the last named
// step moves it to the completed marker; an item on the marker is returned unchanged.
func (s *Service) Advance(ctx context.Context, courtID, id string, input AdvanceInput) (*domain.QueueItem, error) {
	if err := validateRef(courtID, id); err != nil {
		return nil, err
	}

	item, err := s.repo.Get(ctx, courtID, id)
	if err != nil {
		return nil, err
	}

	if item.Status == domain.QueueStatusRejected {
		return nil, ErrItemClosed
	}
	if item.CurrentStep == domain.StepCompleted {
		return item, nil
	}
	// A completed item still on its last named step has no holder left to check.
	if item.Status != domain.QueueStatusCompleted {
		if err := s.checkAssignee(item, input.Actor); err != nil {
			return nil, err
		}
	}

	change := StepChange{
		ConfirmedStep: item.CurrentStep,
		StepData:      input.StepData,
	}

	next, ok := domain.NextStep(item.QueueType, item.CurrentStep)
	switch {
	case ok && !domain.IsLastStep(item.QueueType, next):
		change.Step = next
		change.Status = domain.QueueStatusProcessing
	case ok:
		change.Step = next
		change.Status = domain.QueueStatusCompleted
		change.Complete = true
	default:
		change.Step = domain.StepCompleted
		change.Status = domain.QueueStatusCompleted
		change.Complete = true
	}

	from := item.CurrentStep
	updated, err := s.repo.Advance(ctx, courtID, id, change)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			// Rejected between the read and the write.
			return nil, ErrItemClosed
		}
		return nil, fmt.Errorf("advance queue item: %w", err)
	}

	s.notify(ctx, domain.TransitionAdvanced, from, updated, input.Actor, input.StepData)
	return updated, nil
}

// Reject closes a non-terminal item and records the reason in its metadata.
func (s *Service) Reject(ctx context.Context, courtID, id string, input RejectInput) (*domain.QueueItem, error) {
	if err := validateRef(courtID, id); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	item, err := s.repo.Get(ctx, courtID, id)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, ErrItemClosed
	}
	if err := s.checkAssignee(item, input.Actor); err != nil {
		return nil, err
	}

	updated, err := s.repo.Reject(ctx, courtID, id, reason)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrItemClosed
		}
		return nil, fmt.Errorf("reject queue item: %w", err)
	}

	s.notify(ctx, domain.TransitionRejected, item.CurrentStep, updated, input.Actor,
		map[string]any{domain.MetadataKeyRejectReason: reason})
	return updated, nil
}

// CountByStatus returns item counts across all courts, for the queue size gauge.
func (s *Service) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int64, error) {
	return s.repo.CountByStatus(ctx)
}

func (s *Service) checkAssignee(item *domain.QueueItem, actor *int64) error {
	if !s.config.EnforceAssignee {
		return nil
	}
	if actor == nil || !item.IsAssignedTo(*actor) {
		return ErrNotAssignee
	}
	return nil
}

func (s *Service) startOfDay() time.Time {
	now := s.now().In(s.config.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location)
}

// notify records the transition and hands it to the publisher.
// Publish failures are logged only: the item is already stored.
func (s *Service) notify(ctx context.Context, action domain.TransitionAction, from domain.Step, item *domain.QueueItem, actor *int64, payload map[string]any) {
	recordTransition(item.QueueType, action)

	if s.publisher == nil {
		return
	}

	t := domain.Transition{
		ItemID:     item.ID,
		CourtID:    item.CourtID,
		QueueType:  item.QueueType,
		Action:     action,
		FromStep:   from,
		ToStep:     item.CurrentStep,
		Status:     item.Status,
		SourceType: item.SourceType,
		SourceID:   item.SourceID,
		CaseID:     item.CaseID,
		Actor:      actor,
		Payload:    payload,
		OccurredAt: item.UpdatedAt,
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = s.now()
	}

	if err := s.publisher.PublishTransition(ctx, t); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to publish queue transition",
			"item_id", item.ID,
			"action", action,
			"error", err,
		)
	}
}

func validateRef(courtID, id string) error {
	if courtID == "" {
		return ErrTenantRequired
	}
	if err := uuid.Validate(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return offset, limit
}
