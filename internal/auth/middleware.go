package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/db"
)

type ctxKey string

const userCtxKey ctxKey = "user"

// RequireAuth is chi middleware that validates the bearer token.
func RequireAuth(tm *TokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := tm.Validate(r.Context(), r)
			if err != nil {
				if errors.Is(err, ErrNoToken) || errors.Is(err, ErrInvalidToken) {
					apperr.Write(w, r, logger, apperr.Unauthorized("authentication required"))
					return
				}
				apperr.Write(w, r, logger, apperr.Internal("authentication failed", err))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// WithUser returns ctx carrying u.
func WithUser(ctx context.Context, u *db.User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// GetUserFromCtx extracts user from request context.
func GetUserFromCtx(ctx context.Context) *db.User {
	u, _ := ctx.Value(userCtxKey).(*db.User)
	return u
}
