package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pantrynav/pantrynav/internal/auth"
)

func TestAdminAuth(t *testing.T) {
	t.Parallel()

	tok, err := auth.GenerateAdminToken()
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}

	var seenID string
	handler := AdminAuth(AdminAuthConfig{Logger: discardLogger(), TokenHash: tok.Hash})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = auth.AdminFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"wrong token", "Bearer pnt_00000000_00000000000000000000000000000000", http.StatusUnauthorized},
		{"valid token", "Bearer " + tok.Plaintext, http.StatusOK},
		{"valid token again", "Bearer " + tok.Plaintext, http.StatusOK},
	}

	// Subtests share the handler's verification memo, so they run in order.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/cache/service_locations/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("WWW-Authenticate header missing on 401")
			}
		})
	}

	if seenID != tok.ID {
		t.Errorf("admin id in context = %q, want %q", seenID, tok.ID)
	}
}

func TestAdminAuth_DisabledWithoutHash(t *testing.T) {
	t.Parallel()

	handler := AdminAuth(AdminAuthConfig{Logger: discardLogger()})(okHandler())

	req := httptest.NewRequest(http.MethodDelete, "/admin/cache/weather_data", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestAdminAuth_DefaultLogger(t *testing.T) {
	t.Parallel()

	handler := AdminAuth(AdminAuthConfig{TokenHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/cache/weather_data/stats", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
