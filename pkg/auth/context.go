// Package auth carries the authenticated caller identity and verifies
// bearer tokens against the issuer's JWKS.
package auth

import (
	"context"

	apperrors "meterhub-backend/pkg/errors"
)

type contextKey string

const userContextKey contextKey = "userContext"

// UserContext identifies the authenticated caller for the request.
type UserContext struct {
	UserID  string // internal user id
	OAuthID string // token subject
	IsAdmin bool
}

// WithUser attaches the caller identity to the context.
func WithUser(ctx context.Context, user UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext extracts the caller identity set by the auth
// middleware.
func GetUserFromContext(ctx context.Context) (UserContext, error) {
	user, ok := ctx.Value(userContextKey).(UserContext)
	if !ok {
		return UserContext{}, apperrors.NewUnauthorizedError("no authenticated user in context")
	}
	return user, nil
}
