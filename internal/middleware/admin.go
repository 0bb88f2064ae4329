package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pantrynav/pantrynav/internal/auth"
)

const (
	// minAuthDuration is the minimum time to spend on a failed check to
	// prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond
)

// AdminAuthConfig holds configuration for the admin auth middleware.
type AdminAuthConfig struct {
	Logger *slog.Logger
	// TokenHash is the Argon2id hash of the admin token. Empty disables the
	// admin routes entirely.
	TokenHash string
}

// AdminAuth returns a middleware that requires "Authorization: Bearer <token>"
// matching the configured hash. Verified tokens are remembered by QuickHash so
// Argon2 runs once per token per process.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var verified sync.Map // QuickHash(token) -> token id

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.TokenHash == "" {
				writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
				return
			}

			token := extractBearerToken(r)
			if token == "" {
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			key := auth.QuickHash(token)
			if id, ok := verified.Load(key); ok {
				next.ServeHTTP(w, r.WithContext(auth.ContextWithAdmin(r.Context(), id.(string))))
				return
			}

			start := time.Now()
			match, err := auth.VerifyToken(token, cfg.TokenHash)
			if err != nil || !match {
				if elapsed := time.Since(start); elapsed < minAuthDuration {
					time.Sleep(minAuthDuration - elapsed)
				}
				reason := "invalid_token"
				if err != nil {
					reason = "invalid_hash"
				}
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", reason),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			id, err := auth.ParseTokenID(token)
			if err != nil {
				// Hand-set tokens that do not follow the generated format.
				id = key[:8]
			}
			verified.Store(key, id)

			cfg.Logger.Info("admin authentication successful",
				slog.String("token_id", id),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithAdmin(r.Context(), id)))
		})
	}
}

// extractBearerToken returns the token of an "Authorization: Bearer" header.
func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing admin token")
}
