package queue

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bissquit/clerk-queue/internal/domain"
	"github.com/bissquit/clerk-queue/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrTenantRequired, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrTitleRequired, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidQueueType, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidSourceType, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidSourceID, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidCaseID, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidCaseType, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidPriority, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrInvalidID, Status: http.StatusBadRequest, Code: httputil.CodeValidation, Message: "invalid UUID format"},
	{Error: ErrReasonRequired, Status: http.StatusBadRequest, Code: httputil.CodeValidation},
	{Error: ErrItemNotFound, Status: http.StatusNotFound, Code: httputil.CodeNotFound},
	{Error: ErrClaimConflict, Status: http.StatusConflict, Code: httputil.CodeConflict},
	{Error: ErrDuplicateSource, Status: http.StatusConflict, Code: httputil.CodeDuplicate},
	{Error: ErrItemClosed, Status: http.StatusConflict, Code: httputil.CodeClosed},
	{Error: ErrNotAssignee, Status: http.StatusForbidden, Code: httputil.CodeForbidden},
}

// Handler handles HTTP requests for the clerk queue.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new queue handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers queue routes. Callers must install tenant and auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.Search)
		r.Post("/", h.Create)
		r.Get("/stats", h.Stats)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/claim", h.Claim)
		r.Post("/{id}/release", h.Release)
		r.Post("/{id}/advance", h.Advance)
		r.Post("/{id}/reject", h.Reject)
	})
}

// CreateQueueItemRequest represents request body for creating a queue item.
type CreateQueueItemRequest struct {
	QueueType   string         `json:"queue_type" validate:"required,oneof=filing motion order deadline_alert general"`
	Priority    *int           `json:"priority" validate:"omitempty,min=1,max=4"`
	Title       string         `json:"title" validate:"required,max=500"`
	Description *string        `json:"description"`
	SourceType  string         `json:"source_type" validate:"required,oneof=filing motion order document deadline calendar_event"`
	SourceID    string         `json:"source_id" validate:"required,uuid"`
	CaseID      *string        `json:"case_id" validate:"omitempty,uuid"`
	CaseType    string         `json:"case_type" validate:"omitempty,oneof=criminal civil"`
	CaseNumber  *string        `json:"case_number" validate:"omitempty,max=100"`
	SubmittedBy *int64         `json:"submitted_by"`
	Metadata    map[string]any `json:"metadata"`
}

// AdvanceRequest represents the optional request body for advancing a queue item.
type AdvanceRequest struct {
	StepData map[string]any `json:"step_data"`
}

// RejectRequest represents request body for rejecting a queue item.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// Search handles GET /queue.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		httputil.ErrorWithCode(w, http.StatusBadRequest, httputil.CodeValidation, err.Error())
		return
	}

	result, err := h.service.Search(r.Context(), httputil.GetCourtID(r.Context()), filter)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// Stats handles GET /queue/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var userID *int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = &id
	} else if id, ok := httputil.GetUserID(r.Context()); ok {
		userID = &id
	}

	stats, err := h.service.Stats(r.Context(), httputil.GetCourtID(r.Context()), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, stats)
}

// Get handles GET /queue/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), httputil.GetCourtID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Create handles POST /queue.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateQueueItemRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := CreateInput{
		QueueType:   domain.QueueType(req.QueueType),
		Title:       req.Title,
		Description: req.Description,
		SourceType:  domain.SourceType(req.SourceType),
		SourceID:    req.SourceID,
		CaseID:      req.CaseID,
		CaseType:    domain.CaseType(req.CaseType),
		CaseNumber:  req.CaseNumber,
		SubmittedBy: req.SubmittedBy,
		Metadata:    req.Metadata,
	}
	if req.Priority != nil {
		input.Priority = *req.Priority
	}
	if input.SubmittedBy == nil {
		if id, ok := httputil.GetUserID(r.Context()); ok {
			input.SubmittedBy = &id
		}
	}

	item, err := h.service.Create(r.Context(), httputil.GetCourtID(r.Context()), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, item)
}

// Claim handles POST /queue/{id}/claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	item, err := h.service.Claim(r.Context(), httputil.GetCourtID(r.Context()), chi.URLParam(r, "id"), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Release handles POST /queue/{id}/release.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	item, err := h.service.Release(r.Context(), httputil.GetCourtID(r.Context()), chi.URLParam(r, "id"), userID)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Advance handles POST /queue/{id}/advance. The body is optional.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var req AdvanceRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	input := AdvanceInput{StepData: req.StepData}
	if id, ok := httputil.GetUserID(r.Context()); ok {
		input.Actor = &id
	}

	item, err := h.service.Advance(r.Context(), httputil.GetCourtID(r.Context()), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

// Reject handles POST /queue/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := RejectInput{Reason: req.Reason}
	if id, ok := httputil.GetUserID(r.Context()); ok {
		input.Actor = &id
	}

	item, err := h.service.Reject(r.Context(), httputil.GetCourtID(r.Context()), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, item)
}

func parseFilter(q url.Values) (Filter, error) {
	var f Filter

	if v := q.Get("status"); v != "" {
		status := domain.QueueStatus(v)
		f.Status = &status
	}
	if v := q.Get("queue_type"); v != "" {
		queueType := domain.QueueType(v)
		f.QueueType = &queueType
	}
	if v := q.Get("priority"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("invalid priority")
		}
		f.Priority = &p
	}
	if v := q.Get("assigned_to"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errors.New("invalid assigned_to")
		}
		f.AssignedTo = &id
	}
	if v := q.Get("case_id"); v != "" {
		f.CaseID = &v
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("invalid offset")
		}
		f.Offset = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, errors.New("invalid limit")
		}
		f.Limit = n
	}

	return f, nil
}
