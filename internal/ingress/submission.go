package ingress

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/queue"
)

// SourceSubmissions labels items created from submission events.
const SourceSubmissions = "submissions"

// Submission errors.
var (
	ErrMissingCourt      = errors.New("submission has no court id")
	ErrUnknownSubmission = errors.New("unknown submission kind")
	ErrMissingSourceID   = errors.New("submission has no source id")
)

// SubmissionKind is the kind of document a party or chambers submitted.
type SubmissionKind string

// Submission kinds.
const (
	SubmissionFiling        SubmissionKind = "filing"
	SubmissionMotion        SubmissionKind = "motion"
	SubmissionOrder         SubmissionKind = "order"
	SubmissionDocument      SubmissionKind = "document"
	SubmissionCalendarEvent SubmissionKind = "calendar_event"
)

// Submission is the event emitted when a filing, motion or order is submitted.
type Submission struct {
	CourtID     string          `json:"court_id"`
	Kind        SubmissionKind  `json:"kind"`
	SourceID    string          `json:"source_id"`
	Title       string          `json:"title"`
	Description *string         `json:"description,omitempty"`
	CaseID      *string         `json:"case_id,omitempty"`
	CaseNumber  *string         `json:"case_number,omitempty"`
	CaseType    string          `json:"case_type,omitempty"`
	SubmittedBy *int64          `json:"submitted_by,omitempty"`
	Priority    *int            `json:"priority,omitempty"`
	Metadata    domain.Metadata `json:"metadata,omitempty"`
}

type submissionRoute struct {
	queueType  domain.QueueType
	sourceType domain.SourceType
	priority   int
	label      string
}

var submissionRoutes = map[SubmissionKind]submissionRoute{
	SubmissionFiling:        {domain.QueueTypeFiling, domain.SourceTypeFiling, domain.PriorityNormal, "Filing"},
	SubmissionMotion:        {domain.QueueTypeMotion, domain.SourceTypeMotion, domain.PriorityHigh, "Motion"},
	SubmissionOrder:         {domain.QueueTypeOrder, domain.SourceTypeOrder, domain.PriorityNormal, "Order"},
	SubmissionDocument:      {domain.QueueTypeGeneral, domain.SourceTypeDocument, domain.PriorityNormal, "Document"},
	SubmissionCalendarEvent: {domain.QueueTypeGeneral, domain.SourceTypeCalendarEvent, domain.PriorityNormal, "Calendar event"},
}

// CreateInput maps the submission onto a queue create call.
func (s Submission) CreateInput() (string, queue.CreateInput, error) {
	courtID := strings.TrimSpace(s.CourtID)
	if courtID == "" {
		return "", queue.CreateInput{}, ErrMissingCourt
	}
	if strings.TrimSpace(s.SourceID) == "" {
		return "", queue.CreateInput{}, ErrMissingSourceID
	}

	route, ok := submissionRoutes[s.Kind]
	if !ok {
		return "", queue.CreateInput{}, fmt.Errorf("%w: %q", ErrUnknownSubmission, s.Kind)
	}

	priority := route.priority
	if s.Priority != nil {
		priority = *s.Priority
	}

	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = route.label + " requires clerk review"
		if s.CaseNumber != nil && *s.CaseNumber != "" {
			title = fmt.Sprintf("%s in %s requires clerk review", route.label, *s.CaseNumber)
		}
	}

	return courtID, queue.CreateInput{
		QueueType:   route.queueType,
		Priority:    priority,
		Title:       title,
		Description: s.Description,
		SourceType:  route.sourceType,
		SourceID:    s.SourceID,
		CaseID:      s.CaseID,
		CaseType:    domain.CaseType(s.CaseType),
		CaseNumber:  s.CaseNumber,
		SubmittedBy: s.SubmittedBy,
		Metadata:    s.Metadata,
	}, nil
}
