package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository is an in-memory Repository that applies each mutation atomically.
type mockRepository struct {
	mu    sync.Mutex
	items map[string]*domain.QueueItem
	now   func() time.Time

	createErr error
	writes    int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		items: make(map[string]*domain.QueueItem),
		now:   time.Now,
	}
}

func cloneItem(item *domain.QueueItem) *domain.QueueItem {
	c := *item
	c.Metadata = item.Metadata.Merge(nil)
	return &c
}

func (m *mockRepository) Create(_ context.Context, item *domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.items {
		if existing.CourtID == item.CourtID &&
			existing.SourceType == item.SourceType &&
			existing.SourceID == item.SourceID &&
			!existing.Status.IsTerminal() {
			return ErrDuplicateSource
		}
	}

	now := m.now()
	item.ID = uuid.NewString()
	item.CreatedAt = now
	item.UpdatedAt = now
	m.items[item.ID] = cloneItem(item)
	m.writes++
	return nil
}

func (m *mockRepository) lookup(courtID, id string) (*domain.QueueItem, bool) {
	item, ok := m.items[id]
	if !ok || item.CourtID != courtID {
		return nil, false
	}
	return item, true
}

func (m *mockRepository) Get(_ context.Context, courtID, id string) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(courtID, id)
	if !ok {
		return nil, ErrItemNotFound
	}
	return cloneItem(item), nil
}

func (m *mockRepository) Search(_ context.Context, courtID string, filter Filter) ([]*domain.QueueItem, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []*domain.QueueItem
	for _, item := range m.items {
		if item.CourtID != courtID {
			continue
		}
		if filter.Status != nil && item.Status != *filter.Status {
			continue
		}
		if filter.QueueType != nil && item.QueueType != *filter.QueueType {
			continue
		}
		if filter.Priority != nil && item.Priority != *filter.Priority {
			continue
		}
		if filter.AssignedTo != nil && !item.IsAssignedTo(*filter.AssignedTo) {
			continue
		}
		matched = append(matched, cloneItem(item))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return []*domain.QueueItem{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

func (m *mockRepository) Stats(_ context.Context, courtID string, userID *int64, since time.Time) (*domain.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &domain.QueueStats{}
	var totalMinutes float64
	var completed int
	for _, item := range m.items {
		if item.CourtID != courtID {
			continue
		}
		if item.Status == domain.QueueStatusPending {
			stats.PendingCount++
		}
		if userID != nil && item.IsAssignedTo(*userID) &&
			(item.Status == domain.QueueStatusInReview || item.Status == domain.QueueStatusProcessing) {
			stats.MyCount++
		}
		if !item.CreatedAt.Before(since) && !item.Status.IsTerminal() {
			stats.TodayCount++
		}
		if !item.Status.IsTerminal() && item.Priority <= domain.PriorityUrgentMax {
			stats.UrgentCount++
		}
		if item.Status == domain.QueueStatusCompleted && item.CompletedAt != nil {
			totalMinutes += item.CompletedAt.Sub(item.CreatedAt).Minutes()
			completed++
		}
	}
	if completed > 0 {
		avg := totalMinutes / float64(completed)
		stats.AvgProcessingMinutes = &avg
	}
	return stats, nil
}

func (m *mockRepository) Claim(_ context.Context, courtID, id string, userID int64) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(courtID, id)
	if !ok || item.Status != domain.QueueStatusPending || item.AssignedTo != nil {
		return nil, ErrClaimConflict
	}
	item.AssignedTo = &userID
	item.Status = domain.QueueStatusInReview
	item.UpdatedAt = m.now()
	m.writes++
	return cloneItem(item), nil
}

func (m *mockRepository) Release(_ context.Context, courtID, id string, userID int64) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(courtID, id)
	if !ok || !item.IsAssignedTo(userID) || item.Status.IsTerminal() {
		return nil, ErrItemNotFound
	}
	item.AssignedTo = nil
	item.Status = domain.QueueStatusPending
	item.UpdatedAt = m.now()
	m.writes++
	return cloneItem(item), nil
}

func (m *mockRepository) Advance(_ context.Context, courtID, id string, change StepChange) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(courtID, id)
	if !ok || item.Status == domain.QueueStatusRejected {
		return nil, ErrItemNotFound
	}
	now := m.now()
	item.CurrentStep = change.Step
	item.Status = change.Status
	item.UpdatedAt = now
	if change.Complete {
		if item.CompletedAt == nil {
			item.CompletedAt = &now
		}
		item.AssignedTo = nil
	}
	if change.StepData != nil {
		all, _ := item.Metadata[domain.MetadataKeyStepData].(map[string]any)
		if all == nil {
			all = map[string]any{}
		}
		all[string(change.ConfirmedStep)] = change.StepData
		item.Metadata = item.Metadata.Merge(domain.Metadata{domain.MetadataKeyStepData: all})
	}
	m.writes++
	return cloneItem(item), nil
}

func (m *mockRepository) Reject(_ context.Context, courtID, id, reason string) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.lookup(courtID, id)
	if !ok || item.Status.IsTerminal() {
		return nil, ErrItemNotFound
	}
	now := m.now()
	item.Status = domain.QueueStatusRejected
	item.CompletedAt = &now
	item.UpdatedAt = now
	item.AssignedTo = nil
	item.Metadata = item.Metadata.Merge(domain.RejectionPatch(reason))
	m.writes++
	return cloneItem(item), nil
}

func (m *mockRepository) CountByStatus(_ context.Context) (map[domain.QueueStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.QueueStatus]int64)
	for _, item := range m.items {
		counts[item.Status]++
	}
	return counts, nil
}

func (m *mockRepository) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// mockPublisher records published transitions.
type mockPublisher struct {
	mu          sync.Mutex
	transitions []domain.Transition
	err         error
}

func (m *mockPublisher) PublishTransition(_ context.Context, t domain.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return m.err
}

func (m *mockPublisher) actions() []domain.TransitionAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TransitionAction, len(m.transitions))
	for i, t := range m.transitions {
		out[i] = t.Action
	}
	return out
}

const testCourt = "nysd"

func newTestService(t *testing.T) (*Service, *mockRepository, *mockPublisher) {
	t.Helper()
	repo := newMockRepository()
	publisher := &mockPublisher{}
	return NewService(repo, publisher, Config{}), repo, publisher
}

func createItem(t *testing.T, s *Service, queueType domain.QueueType) *domain.QueueItem {
	t.Helper()
	item, err := s.Create(context.Background(), testCourt, CreateInput{
		QueueType:  queueType,
		Title:      "Motion to dismiss",
		SourceType: domain.SourceTypeFiling,
		SourceID:   uuid.NewString(),
	})
	require.NoError(t, err)
	return item
}

func TestService_Create_Defaults(t *testing.T) {
	s, _, _ := newTestService(t)

	item, err := s.Create(context.Background(), testCourt, CreateInput{
		QueueType:  domain.QueueTypeFiling,
		Title:      "  Complaint  ",
		SourceType: domain.SourceTypeFiling,
		SourceID:   uuid.NewString(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "Complaint", item.Title)
	assert.Equal(t, domain.PriorityNormal, item.Priority)
	assert.Equal(t, domain.CaseTypeCriminal, item.CaseType)
	assert.Equal(t, domain.QueueStatusPending, item.Status)
	assert.Equal(t, domain.StepReview, item.CurrentStep)
	assert.NotNil(t, item.Metadata)
	assert.Nil(t, item.AssignedTo)
	assert.Nil(t, item.CompletedAt)
}

func TestService_Create_InitialStepFollowsPipeline(t *testing.T) {
	s, _, _ := newTestService(t)

	for _, queueType := range []domain.QueueType{
		domain.QueueTypeFiling,
		domain.QueueTypeMotion,
		domain.QueueTypeOrder,
		domain.QueueTypeDeadlineAlert,
		domain.QueueTypeGeneral,
	} {
		t.Run(string(queueType), func(t *testing.T) {
			item := createItem(t, s, queueType)
			first, ok := domain.FirstStep(queueType)
			require.True(t, ok)
			assert.Equal(t, first, item.CurrentStep)
		})
	}

	order := createItem(t, s, domain.QueueTypeOrder)
	assert.Equal(t, domain.StepDocket, order.CurrentStep)
}

func TestService_Create_Validation(t *testing.T) {
	s, repo, _ := newTestService(t)
	badCase := "not-a-uuid"

	valid := func() CreateInput {
		return CreateInput{
			QueueType:  domain.QueueTypeFiling,
			Title:      "Complaint",
			SourceType: domain.SourceTypeFiling,
			SourceID:   uuid.NewString(),
		}
	}

	tests := []struct {
		name    string
		court   string
		mutate  func(*CreateInput)
		wantErr error
	}{
		{"missing court", "", func(*CreateInput) {}, ErrTenantRequired},
		{"empty title", testCourt, func(in *CreateInput) { in.Title = "   " }, ErrTitleRequired},
		{"unknown queue type", testCourt, func(in *CreateInput) { in.QueueType = "appeal" }, ErrInvalidQueueType},
		{"unknown source type", testCourt, func(in *CreateInput) { in.SourceType = "fax" }, ErrInvalidSourceType},
		{"source id not uuid", testCourt, func(in *CreateInput) { in.SourceID = "42" }, ErrInvalidSourceID},
		{"case id not uuid", testCourt, func(in *CreateInput) { in.CaseID = &badCase }, ErrInvalidCaseID},
		{"priority too high", testCourt, func(in *CreateInput) { in.Priority = 5 }, ErrInvalidPriority},
		{"priority negative", testCourt, func(in *CreateInput) { in.Priority = -1 }, ErrInvalidPriority},
		{"unknown case type", testCourt, func(in *CreateInput) { in.CaseType = "bankruptcy" }, ErrInvalidCaseType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid()
			tt.mutate(&input)

			_, err := s.Create(context.Background(), tt.court, input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, repo.writeCount(), "invalid input must never reach the store")
}

func TestService_Create_Uniqueness(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	input := CreateInput{
		QueueType:  domain.QueueTypeGeneral,
		Title:      "Calendar change",
		SourceType: domain.SourceTypeCalendarEvent,
		SourceID:   uuid.NewString(),
	}

	first, err := s.Create(ctx, testCourt, input)
	require.NoError(t, err)

	_, err = s.Create(ctx, testCourt, input)
	assert.ErrorIs(t, err, ErrDuplicateSource)

	// Another court may queue the same source.
	_, err = s.Create(ctx, "cand", input)
	require.NoError(t, err)

	_, err = s.Advance(ctx, testCourt, first.ID, AdvanceInput{})
	require.NoError(t, err)

	_, err = s.Create(ctx, testCourt, input)
	assert.NoError(t, err, "a closed item frees its source")
}

func TestService_Create_WrapsStoreErrors(t *testing.T) {
	s, repo, publisher := newTestService(t)
	repo.createErr = errors.New("connection refused")

	_, err := s.Create(context.Background(), testCourt, CreateInput{
		QueueType:  domain.QueueTypeFiling,
		Title:      "Complaint",
		SourceType: domain.SourceTypeFiling,
		SourceID:   uuid.NewString(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create queue item")
	assert.Empty(t, publisher.actions())
}

func TestService_Advance_PipelineCompletes(t *testing.T) {
	for _, queueType := range []domain.QueueType{
		domain.QueueTypeFiling,
		domain.QueueTypeMotion,
		domain.QueueTypeOrder,
		domain.QueueTypeDeadlineAlert,
		domain.QueueTypeGeneral,
	} {
		t.Run(string(queueType), func(t *testing.T) {
			s, _, _ := newTestService(t)
			ctx := context.Background()
			item := createItem(t, s, queueType)

			steps := domain.PipelineSteps(queueType)
			last := steps[len(steps)-1]
			for call := 1; call <= len(steps); call++ {
				var err error
				item, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{})
				require.NoError(t, err)

				switch {
				case call == len(steps):
					assert.Equal(t, domain.StepCompleted, item.CurrentStep)
					assert.Equal(t, domain.QueueStatusCompleted, item.Status)
				case item.CurrentStep == last:
					assert.Equal(t, domain.QueueStatusCompleted, item.Status, "reaching the last step completes")
					require.NotNil(t, item.CompletedAt)
				default:
					assert.Equal(t, domain.QueueStatusProcessing, item.Status)
					assert.Nil(t, item.CompletedAt)
					assert.Equal(t, steps[call], item.CurrentStep)
				}
			}
			require.NotNil(t, item.CompletedAt)
		})
	}
}

func TestService_FilingScenario(t *testing.T) {
	s, _, publisher := newTestService(t)
	ctx := context.Background()

	item := createItem(t, s, domain.QueueTypeFiling)
	assert.Equal(t, domain.StepReview, item.CurrentStep)
	assert.Equal(t, domain.QueueStatusPending, item.Status)

	item, err := s.Claim(ctx, testCourt, item.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStatusInReview, item.Status)
	require.NotNil(t, item.AssignedTo)
	assert.Equal(t, int64(7), *item.AssignedTo)

	actor := int64(7)
	expected := []struct {
		step   domain.Step
		status domain.QueueStatus
	}{
		{domain.StepDocket, domain.QueueStatusProcessing},
		{domain.StepNEF, domain.QueueStatusProcessing},
		{domain.StepServe, domain.QueueStatusCompleted},
	}
	for _, want := range expected {
		item, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{Actor: &actor})
		require.NoError(t, err)
		assert.Equal(t, want.step, item.CurrentStep)
		assert.Equal(t, want.status, item.Status)
	}
	assert.NotNil(t, item.CompletedAt)
	assert.Nil(t, item.AssignedTo)

	assert.Equal(t, []domain.TransitionAction{
		domain.TransitionCreated,
		domain.TransitionClaimed,
		domain.TransitionAdvanced,
		domain.TransitionAdvanced,
		domain.TransitionAdvanced,
	}, publisher.actions())
}

func TestService_Advance_TerminalIdempotence(t *testing.T) {
	s, repo, publisher := newTestService(t)
	ctx := context.Background()

	item := createItem(t, s, domain.QueueTypeOrder)
	for item.Status != domain.QueueStatusCompleted {
		var err error
		item, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{})
		require.NoError(t, err)
	}
	require.Equal(t, domain.StepServe, item.CurrentStep)
	completedAt := item.CompletedAt

	item, err := s.Advance(ctx, testCourt, item.ID, AdvanceInput{})
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, item.CurrentStep)
	assert.Equal(t, domain.QueueStatusCompleted, item.Status)
	assert.Equal(t, completedAt, item.CompletedAt, "completed_at is set once")

	last := publisher.transitions[len(publisher.transitions)-1]
	assert.Equal(t, domain.StepServe, last.FromStep)
	assert.Equal(t, domain.StepCompleted, last.ToStep)

	writes := repo.writeCount()
	for i := 0; i < 3; i++ {
		again, err := s.Advance(ctx, testCourt, item.ID, AdvanceInput{})
		require.NoError(t, err)
		assert.Equal(t, domain.StepCompleted, again.CurrentStep)
		assert.Equal(t, domain.QueueStatusCompleted, again.Status)
		assert.Equal(t, item.CompletedAt, again.CompletedAt)
	}
	assert.Equal(t, writes, repo.writeCount())
}

func TestService_Advance_CompletedLastStepSkipsAssigneeCheck(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, nil, Config{EnforceAssignee: true})
	ctx := context.Background()

	item := createItem(t, s, domain.QueueTypeFiling)
	item, err := s.Claim(ctx, testCourt, item.ID, 3)
	require.NoError(t, err)

	owner := int64(3)
	for item.Status != domain.QueueStatusCompleted {
		item, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{Actor: &owner})
		require.NoError(t, err)
	}
	require.Equal(t, domain.StepServe, item.CurrentStep)
	require.Nil(t, item.AssignedTo)

	other := int64(4)
	item, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{Actor: &other})
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, item.CurrentStep)
}

func TestService_Advance_RecordsStepData(t *testing.T) {
	s, _, publisher := newTestService(t)
	ctx := context.Background()

	item := createItem(t, s, domain.QueueTypeFiling)
	item, err := s.Advance(ctx, testCourt, item.ID, AdvanceInput{
		StepData: map[string]any{"reviewer_note": "complete"},
	})
	require.NoError(t, err)

	data, ok := item.Metadata.StepData(domain.StepReview)
	require.True(t, ok)
	assert.Equal(t, "complete", data["reviewer_note"])

	last := publisher.transitions[len(publisher.transitions)-1]
	assert.Equal(t, domain.StepReview, last.FromStep)
	assert.Equal(t, domain.StepDocket, last.ToStep)
	assert.Equal(t, "complete", last.Payload["reviewer_note"])
}

func TestService_Advance_RejectedItemIsClosed(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	item := createItem(t, s, domain.QueueTypeFiling)
	_, err := s.Reject(ctx, testCourt, item.ID, RejectInput{Reason: "duplicate filing"})
	require.NoError(t, err)

	_, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{})
	assert.ErrorIs(t, err, ErrItemClosed)
}

func TestService_RejectScenario(t *testing.T) {
	s, _, publisher := newTestService(t)
	ctx := context.Background()

	item, err := s.Create(ctx, testCourt, CreateInput{
		QueueType:  domain.QueueTypeFiling,
		Title:      "Exhibit list",
		SourceType: domain.SourceTypeDocument,
		SourceID:   uuid.NewString(),
		Metadata:   domain.Metadata{"filed_via": "ecf"},
	})
	require.NoError(t, err)

	item, err = s.Reject(ctx, testCourt, item.ID, RejectInput{Reason: "non-conforming format"})
	require.NoError(t, err)

	assert.Equal(t, domain.QueueStatusRejected, item.Status)
	assert.NotNil(t, item.CompletedAt)
	assert.Equal(t, "non-conforming format", item.Metadata.RejectReason())
	assert.Equal(t, "ecf", item.Metadata["filed_via"])

	last := publisher.transitions[len(publisher.transitions)-1]
	assert.Equal(t, domain.TransitionRejected, last.Action)
	assert.Equal(t, "non-conforming format", last.Payload[domain.MetadataKeyRejectReason])
}

func TestService_Reject_Errors(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	item := createItem(t, s, domain.QueueTypeMotion)

	_, err := s.Reject(ctx, testCourt, item.ID, RejectInput{Reason: "  "})
	assert.ErrorIs(t, err, ErrReasonRequired)

	_, err = s.Reject(ctx, testCourt, uuid.NewString(), RejectInput{Reason: "x"})
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = s.Reject(ctx, "cand", item.ID, RejectInput{Reason: "x"})
	assert.ErrorIs(t, err, ErrItemNotFound, "other courts cannot see the item")

	_, err = s.Reject(ctx, testCourt, item.ID, RejectInput{Reason: "x"})
	require.NoError(t, err)

	_, err = s.Reject(ctx, testCourt, item.ID, RejectInput{Reason: "again"})
	assert.ErrorIs(t, err, ErrItemClosed)
}

func TestService_Claim_Exclusive(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	item := createItem(t, s, domain.QueueTypeFiling)

	const clerks = 16
	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < clerks; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := s.Claim(ctx, testCourt, item.ID, userID)
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, ErrClaimConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(clerks-1), conflicts.Load())
}

func TestService_Claim_Conflicts(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	item := createItem(t, s, domain.QueueTypeFiling)

	_, err := s.Claim(ctx, testCourt, uuid.NewString(), 7)
	assert.ErrorIs(t, err, ErrClaimConflict, "unknown id")

	_, err = s.Claim(ctx, "cand", item.ID, 7)
	assert.ErrorIs(t, err, ErrClaimConflict, "wrong court")

	_, err = s.Claim(ctx, testCourt, "not-a-uuid", 7)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.Claim(ctx, testCourt, item.ID, 7)
	require.NoError(t, err)
	_, err = s.Claim(ctx, testCourt, item.ID, 7)
	assert.ErrorIs(t, err, ErrClaimConflict, "already held, even by the same user")
}

func TestService_Release(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	item := createItem(t, s, domain.QueueTypeFiling)

	_, err := s.Claim(ctx, testCourt, item.ID, 7)
	require.NoError(t, err)

	_, err = s.Release(ctx, testCourt, item.ID, 8)
	assert.ErrorIs(t, err, ErrItemNotFound, "only the assignee can release")

	released, err := s.Release(ctx, testCourt, item.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStatusPending, released.Status)
	assert.Nil(t, released.AssignedTo)
	assert.Equal(t, domain.StepReview, released.CurrentStep)

	_, err = s.Claim(ctx, testCourt, item.ID, 8)
	assert.NoError(t, err, "released item is claimable again")
}

func TestService_EnforceAssignee(t *testing.T) {
	repo := newMockRepository()
	s := NewService(repo, nil, Config{EnforceAssignee: true})
	ctx := context.Background()

	item := createItem(t, s, domain.QueueTypeFiling)
	owner, other := int64(7), int64(8)

	_, err := s.Advance(ctx, testCourt, item.ID, AdvanceInput{Actor: &owner})
	assert.ErrorIs(t, err, ErrNotAssignee, "unclaimed items cannot be advanced")

	_, err = s.Claim(ctx, testCourt, item.ID, owner)
	require.NoError(t, err)

	_, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{Actor: &other})
	assert.ErrorIs(t, err, ErrNotAssignee)

	_, err = s.Reject(ctx, testCourt, item.ID, RejectInput{Actor: &other, Reason: "x"})
	assert.ErrorIs(t, err, ErrNotAssignee)

	_, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{})
	assert.ErrorIs(t, err, ErrNotAssignee, "anonymous actor")

	advanced, err := s.Advance(ctx, testCourt, item.ID, AdvanceInput{Actor: &owner})
	require.NoError(t, err)
	assert.Equal(t, domain.StepDocket, advanced.CurrentStep)
}

func TestService_PublishFailureIsIgnored(t *testing.T) {
	repo := newMockRepository()
	publisher := &mockPublisher{err: errors.New("broker unavailable")}
	s := NewService(repo, publisher, Config{})

	item := createItem(t, s, domain.QueueTypeGeneral)
	assert.Equal(t, domain.QueueStatusPending, item.Status)
	assert.Len(t, publisher.actions(), 1)
}

func TestService_Stats(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	repo := newMockRepository()
	repo.now = func() time.Time { return now }
	s := NewService(repo, nil, Config{})
	s.now = func() time.Time { return now }
	ctx := context.Background()

	createItem(t, s, domain.QueueTypeFiling)
	createItem(t, s, domain.QueueTypeFiling)

	stats, err := s.Stats(ctx, testCourt, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PendingCount)
	assert.Equal(t, int64(2), stats.TodayCount)
	assert.Equal(t, int64(0), stats.MyCount)
	assert.Nil(t, stats.AvgProcessingMinutes, "no completed items means no average")
}

func TestService_Stats_AverageAndUrgent(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	repo.now = func() time.Time { return now }
	s := NewService(repo, nil, Config{})
	s.now = func() time.Time { return now }
	ctx := context.Background()

	item, err := s.Create(ctx, testCourt, CreateInput{
		QueueType:  domain.QueueTypeGeneral,
		Priority:   domain.PriorityCritical,
		Title:      "Emergency motion",
		SourceType: domain.SourceTypeMotion,
		SourceID:   uuid.NewString(),
	})
	require.NoError(t, err)
	createItem(t, s, domain.QueueTypeFiling)

	stats, err := s.Stats(ctx, testCourt, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.UrgentCount)

	_, err = s.Claim(ctx, testCourt, item.ID, 7)
	require.NoError(t, err)
	me := int64(7)
	stats, err = s.Stats(ctx, testCourt, &me)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.MyCount)

	repo.now = func() time.Time { return now.Add(90 * time.Minute) }
	_, err = s.Advance(ctx, testCourt, item.ID, AdvanceInput{})
	require.NoError(t, err)

	stats, err = s.Stats(ctx, testCourt, nil)
	require.NoError(t, err)
	require.NotNil(t, stats.AvgProcessingMinutes)
	assert.InDelta(t, 90.0, *stats.AvgProcessingMinutes, 0.001)
	assert.Equal(t, int64(0), stats.UrgentCount)
	assert.Equal(t, int64(1), stats.TodayCount, "completed items leave the today counter")

	stats, err = s.Stats(ctx, testCourt, &me)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.MyCount, "completed items leave the assigned counter")
}

func TestService_StartOfDay_UsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := NewService(newMockRepository(), nil, Config{Location: loc})
	// 02:00 UTC is still the previous evening in New York.
	s.now = func() time.Time { return time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC) }

	start := s.startOfDay()
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), start)
}

func TestService_Search(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createItem(t, s, domain.QueueTypeFiling)
	}
	urgent, err := s.Create(ctx, testCourt, CreateInput{
		QueueType:  domain.QueueTypeMotion,
		Priority:   domain.PriorityCritical,
		Title:      "TRO",
		SourceType: domain.SourceTypeMotion,
		SourceID:   uuid.NewString(),
	})
	require.NoError(t, err)

	result, err := s.Search(ctx, testCourt, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.Total)
	assert.Equal(t, DefaultLimit, result.Limit)
	require.Len(t, result.Items, 4)
	assert.Equal(t, urgent.ID, result.Items[0].ID, "most urgent first")

	queueType := domain.QueueTypeMotion
	result, err = s.Search(ctx, testCourt, Filter{QueueType: &queueType})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	result, err = s.Search(ctx, "cand", Filter{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Empty(t, result.Items)
}

func TestService_Search_Validation(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	status := domain.QueueStatus("archived")
	_, err := s.Search(ctx, testCourt, Filter{Status: &status})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	priority := 9
	_, err = s.Search(ctx, testCourt, Filter{Priority: &priority})
	assert.ErrorIs(t, err, ErrInvalidPriority)

	caseID := "abc"
	_, err = s.Search(ctx, testCourt, Filter{CaseID: &caseID})
	assert.ErrorIs(t, err, ErrInvalidCaseID)

	_, err = s.Search(ctx, "", Filter{})
	assert.ErrorIs(t, err, ErrTenantRequired)
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name                 string
		offset, limit        int
		wantOffset, wantLimt int
	}{
		{"defaults", 0, 0, 0, DefaultLimit},
		{"negative offset", -5, 10, 0, 10},
		{"negative limit", 0, -3, 0, 1},
		{"over max", 40, 1000, 40, MaxLimit},
		{"within range", 20, 50, 20, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, limit := normalizePage(tt.offset, tt.limit)
			assert.Equal(t, tt.wantOffset, offset)
			assert.Equal(t, tt.wantLimt, limit)
		})
	}
}

func TestService_CountByStatus(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	item := createItem(t, s, domain.QueueTypeFiling)
	createItem(t, s, domain.QueueTypeFiling)
	_, err := s.Reject(ctx, testCourt, item.ID, RejectInput{Reason: "withdrawn"})
	require.NoError(t, err)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.QueueStatusPending])
	assert.Equal(t, int64(1), counts[domain.QueueStatusRejected])

	RecordQueueSize(counts)
}
