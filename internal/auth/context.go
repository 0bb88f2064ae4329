package auth

import "context"

type contextKey string

const adminContextKey contextKey = "admin_token_id"

// ContextWithAdmin marks the context as authenticated with the admin token id.
func ContextWithAdmin(ctx context.Context, tokenID string) context.Context {
	return context.WithValue(ctx, adminContextKey, tokenID)
}

// AdminFromContext returns the admin token id, or "" when the request was not
// authenticated.
func AdminFromContext(ctx context.Context) string {
	id, _ := ctx.Value(adminContextKey).(string)
	return id
}
