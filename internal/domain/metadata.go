package domain

import "time"

// Well-known metadata keys.
const (
	MetadataKeyRejectReason = "reject_reason"
	MetadataKeyStepData     = "step_data"
)

// Metadata is the open key-value document attached to a queue item.
// The engine only merges into it and never branches on its contents.
type Metadata map[string]any

// Merge returns a copy of m with the top-level keys of patch applied on top.
func (m Metadata) Merge(patch Metadata) Metadata {
	out := make(Metadata, len(m)+len(patch))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// RejectReason returns the stored rejection reason, if any.
func (m Metadata) RejectReason() string {
	if v, ok := m[MetadataKeyRejectReason].(string); ok {
		return v
	}
	return ""
}

// StepData returns the payload recorded when step was confirmed.
func (m Metadata) StepData(step Step) (map[string]any, bool) {
	all, ok := m[MetadataKeyStepData].(map[string]any)
	if !ok {
		return nil, false
	}
	data, ok := all[string(step)].(map[string]any)
	return data, ok
}

// RejectionPatch builds the metadata patch applied on rejection.
func RejectionPatch(reason string) Metadata {
	return Metadata{MetadataKeyRejectReason: reason}
}

// TransitionAction names what happened to a queue item.
type TransitionAction string

// Transition actions.
const (
	TransitionCreated  TransitionAction = "created"
	TransitionClaimed  TransitionAction = "claimed"
	TransitionReleased TransitionAction = "released"
	TransitionAdvanced TransitionAction = "advanced"
	TransitionRejected TransitionAction = "rejected"
)

// Transition describes a state change of a queue item for downstream collaborators.
type Transition struct {
	ItemID     string           `json:"item_id"`
	CourtID    string           `json:"court_id"`
	QueueType  QueueType        `json:"queue_type"`
	Action     TransitionAction `json:"action"`
	FromStep   Step             `json:"from_step,omitempty"`
	ToStep     Step             `json:"to_step"`
	Status     QueueStatus      `json:"status"`
	SourceType SourceType       `json:"source_type"`
	SourceID   string           `json:"source_id"`
	CaseID     *string          `json:"case_id,omitempty"`
	Actor      *int64           `json:"actor,omitempty"`
	Payload    map[string]any   `json:"payload,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}
