package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"meterhub-backend/application/ports"
	"meterhub-backend/domain/entities"
	"meterhub-backend/pkg/auth"
	"meterhub-backend/pkg/common"
	apperrors "meterhub-backend/pkg/errors"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Claims, error)
}

// Authenticate validates the bearer token on every request and resolves the
// caller to an internal user, creating one on first sight of a new subject.
func Authenticate(verifier TokenVerifier, users ports.UserRepository, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				common.RespondError(w, http.StatusUnauthorized, string(apperrors.ErrorTypeUnauthorized), "missing authorization header")
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Warn("Token rejected",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				common.RespondAppError(w, err)
				return
			}

			user, err := resolveUser(r.Context(), users, claims)
			if err != nil {
				logger.Error("Failed to resolve user", zap.Error(err), zap.String("subject", claims.Subject))
				common.RespondAppError(w, err)
				return
			}

			ctx := auth.WithUser(r.Context(), auth.UserContext{
				UserID:  user.ID,
				OAuthID: claims.Subject,
				IsAdmin: claims.IsAdmin,
			})

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveUser looks up the caller by token subject and provisions a user
// record on first login.
func resolveUser(ctx context.Context, users ports.UserRepository, claims auth.Claims) (*entities.User, error) {
	user, err := users.GetByOAuthID(ctx, claims.Subject)
	if err == nil {
		return user, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	user = entities.NewUser(claims.Subject, claims.Email)
	if err := users.Create(ctx, user); err != nil {
		// Another request may have provisioned the same subject concurrently.
		if apperrors.IsConflict(err) {
			return users.GetByOAuthID(ctx, claims.Subject)
		}
		return nil, err
	}
	return user, nil
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return authHeader
}

// RequireAdmin rejects requests from non-admin callers.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.GetUserFromContext(r.Context())
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
		if !user.IsAdmin {
			common.RespondError(w, http.StatusForbidden, string(apperrors.ErrorTypeForbidden), "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
