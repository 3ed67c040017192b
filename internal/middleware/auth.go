package middleware

import (
	"context"
	"net/http"
	"strings"

	"housing-backend/internal/auth"
)

type contextKey string

const ActorIDKey contextKey = "actor_id"

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
}

func NewAuthMiddleware(jwtManager *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// Authenticate validates the bearer token and stores the operator id in the
// request context. There are no role checks.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeJSONError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtManager.ValidateToken(parts[1])
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := WithActor(r.Context(), claims.OperatorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithActor(ctx context.Context, actorID int) context.Context {
	return context.WithValue(ctx, ActorIDKey, actorID)
}

// ActorFromContext returns the authenticated operator, nil for anonymous
// requests.
func ActorFromContext(ctx context.Context) *int {
	id, ok := ctx.Value(ActorIDKey).(int)
	if !ok {
		return nil
	}
	return &id
}
