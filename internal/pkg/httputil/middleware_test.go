package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubValidator struct {
	userID int64
	role   string
	err    error
}

func (s stubValidator) ValidateToken(_ context.Context, _ string) (int64, string, error) {
	return s.userID, s.role, s.err
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		validator  stubValidator
		wantStatus int
		wantUser   int64
	}{
		{"valid token", "Bearer abc", stubValidator{userID: 7, role: "clerk"}, http.StatusOK, 7},
		{"lowercase scheme", "bearer abc", stubValidator{userID: 9}, http.StatusOK, 9},
		{"missing header", "", stubValidator{}, http.StatusUnauthorized, 0},
		{"wrong scheme", "Basic abc", stubValidator{}, http.StatusUnauthorized, 0},
		{"invalid token", "Bearer abc", stubValidator{err: errors.New("expired")}, http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser int64
			var gotRole string
			handler := AuthMiddleware(tt.validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserID(r.Context())
				gotRole = GetRole(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.validator.role, gotRole)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	handler := CORSMiddleware([]string{"https://clerk.example.gov"})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/queue", nil)
	r.Header.Set("Origin", "https://clerk.example.gov")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://clerk.example.gov", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), HeaderCourtDistrict)
}
