package domain

import "time"

// QueueType is the category of a queue item. It selects the pipeline.
type QueueType string

// Queue types.
const (
	QueueTypeFiling        QueueType = "filing"
	QueueTypeMotion        QueueType = "motion"
	QueueTypeOrder         QueueType = "order"
	QueueTypeDeadlineAlert QueueType = "deadline_alert"
	QueueTypeGeneral       QueueType = "general"
)

// IsValid checks if the queue type is one of the known categories.
func (t QueueType) IsValid() bool {
	switch t {
	case QueueTypeFiling, QueueTypeMotion, QueueTypeOrder,
		QueueTypeDeadlineAlert, QueueTypeGeneral:
		return true
	}
	return false
}

// QueueStatus represents the lifecycle status of a queue item.
type QueueStatus string

// Queue statuses.
const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusInReview   QueueStatus = "in_review"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusRejected   QueueStatus = "rejected"
)

// IsValid checks if the status is valid.
func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusInReview, QueueStatusProcessing,
		QueueStatusCompleted, QueueStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are expected.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusRejected
}

// Step is a position in a queue item's pipeline.
type Step string

// Pipeline steps. StepCompleted marks an item that ran past its last named step.
const (
	StepReview     Step = "review"
	StepDocket     Step = "docket"
	StepNEF        Step = "nef"
	StepRouteJudge Step = "route_judge"
	StepServe      Step = "serve"
	StepCompleted  Step = "completed"
)

// IsValid checks if the step is valid.
func (s Step) IsValid() bool {
	switch s {
	case StepReview, StepDocket, StepNEF, StepRouteJudge, StepServe, StepCompleted:
		return true
	}
	return false
}

// SourceType is the kind of event that produced a queue item.
type SourceType string

// Source types.
const (
	SourceTypeFiling        SourceType = "filing"
	SourceTypeMotion        SourceType = "motion"
	SourceTypeOrder         SourceType = "order"
	SourceTypeDocument      SourceType = "document"
	SourceTypeDeadline      SourceType = "deadline"
	SourceTypeCalendarEvent SourceType = "calendar_event"
)

// IsValid checks if the source type is valid.
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeFiling, SourceTypeMotion, SourceTypeOrder,
		SourceTypeDocument, SourceTypeDeadline, SourceTypeCalendarEvent:
		return true
	}
	return false
}

// CaseType is the denormalized kind of the associated case.
type CaseType string

// Case types.
const (
	CaseTypeCriminal CaseType = "criminal"
	CaseTypeCivil    CaseType = "civil"
)

// IsValid checks if the case type is valid.
func (c CaseType) IsValid() bool {
	return c == CaseTypeCriminal || c == CaseTypeCivil
}

// Priority levels. Lower is more urgent.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4

	// PriorityUrgentMax is the highest priority value still counted as urgent.
	PriorityUrgentMax = PriorityHigh
)

// IsValidPriority checks that p is within 1..4.
func IsValidPriority(p int) bool {
	return p >= PriorityCritical && p <= PriorityLow
}

// QueueItem is a unit of clerk work.
type QueueItem struct {
	ID          string      `json:"id"`
	CourtID     string      `json:"court_id"`
	QueueType   QueueType   `json:"queue_type"`
	Priority    int         `json:"priority"`
	Status      QueueStatus `json:"status"`
	Title       string      `json:"title"`
	Description *string     `json:"description,omitempty"`
	SourceType  SourceType  `json:"source_type"`
	SourceID    string      `json:"source_id"`
	CaseID      *string     `json:"case_id,omitempty"`
	CaseType    CaseType    `json:"case_type"`
	CaseNumber  *string     `json:"case_number,omitempty"`
	AssignedTo  *int64      `json:"assigned_to,omitempty"`
	SubmittedBy *int64      `json:"submitted_by,omitempty"`
	CurrentStep Step        `json:"current_step"`
	Metadata    Metadata    `json:"metadata"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// IsAssignedTo reports whether the item is currently held by userID.
func (q *QueueItem) IsAssignedTo(userID int64) bool {
	return q.AssignedTo != nil && *q.AssignedTo == userID
}

// QueueStats holds dashboard aggregates for one tenant.
type QueueStats struct {
	PendingCount int64 `json:"pending_count"`
	MyCount      int64 `json:"my_count"`
	TodayCount   int64 `json:"today_count"`
	UrgentCount  int64 `json:"urgent_count"`
	// AvgProcessingMinutes is nil when no item has completed yet.
	AvgProcessingMinutes *float64 `json:"avg_processing_mins"`
}
