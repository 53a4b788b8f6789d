package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/clerk-queue/internal/pkg/ctxlog"
)

// Error codes let clients tell failure classes apart without parsing messages.
const (
	CodeValidation = "validation_error"
	CodeNotFound   = "not_found"
	CodeConflict   = "conflict"
	CodeDuplicate  = "duplicate"
	CodeClosed     = "closed"
	CodeForbidden  = "forbidden"
	CodeInternal   = "internal_error"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Code    string
	Message string // if empty, uses err.Error()
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// Unmapped errors are logged and reported as 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			ErrorWithCode(w, m.Status, m.Code, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	ErrorWithCode(w, http.StatusInternalServerError, CodeInternal, "internal error")
}
