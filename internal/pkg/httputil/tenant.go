package httputil

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Tenant headers, in resolution order.
const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderCourtDistrict = "X-Court-District"
)

// TenantMiddleware resolves the court id for the request and stores it in context.
// Sources are tried in order: X-Tenant-ID, X-Court-District, host subdomain, ?tenant=.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		courtID := ResolveCourtID(r)
		if courtID == "" {
			respondError(w, http.StatusBadRequest, "missing required header: X-Court-District")
			return
		}

		ctx := context.WithValue(r.Context(), CourtIDKey, courtID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ResolveCourtID returns the sanitized court id of r, or "" if none is present.
func ResolveCourtID(r *http.Request) string {
	for _, h := range []string{HeaderTenantID, HeaderCourtDistrict} {
		if id := SanitizeCourtID(r.Header.Get(h)); id != "" {
			return id
		}
	}

	host := r.Host
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	if labels := strings.Split(host, "."); len(labels) >= 3 && net.ParseIP(host) == nil {
		if id := SanitizeCourtID(labels[0]); id != "" {
			return id
		}
	}

	for _, v := range r.URL.Query()["tenant"] {
		if id := SanitizeCourtID(v); id != "" {
			return id
		}
	}
	return ""
}

// SanitizeCourtID lowercases raw and keeps only letters, digits and hyphens.
func SanitizeCourtID(raw string) string {
	lowered := cases.Lower(language.Und).String(strings.TrimSpace(raw))

	var b strings.Builder
	for _, r := range lowered {
		if r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GetCourtID extracts the resolved court id from context.
func GetCourtID(ctx context.Context) string {
	if id, ok := ctx.Value(CourtIDKey).(string); ok {
		return id
	}
	return ""
}

// WithCourtID returns a context carrying courtID, as TenantMiddleware would.
func WithCourtID(ctx context.Context, courtID string) context.Context {
	return context.WithValue(ctx, CourtIDKey, courtID)
}
