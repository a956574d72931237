// Package auth guards routes that need a signed-in user with a usable token.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/pysugar/outlook-relay/internal/apperrors"
	"github.com/pysugar/outlook-relay/internal/auth/microsoft"
	"github.com/pysugar/outlook-relay/internal/auth/session"
	"github.com/pysugar/outlook-relay/internal/auth/token"
	"github.com/pysugar/outlook-relay/internal/db"
	"github.com/pysugar/outlook-relay/internal/db/models"
	"github.com/pysugar/outlook-relay/internal/logging"
)

type contextKey struct{}

// UserFromContext returns the user attached by RequireUser, or nil.
func UserFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(contextKey{}).(*models.User)
	return u
}

// WithUser attaches user to ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// RequireUser rejects requests without a signed-in, active user whose token
// is valid or refreshable. Rejections clear the session.
func RequireUser(database *gorm.DB, tokens *token.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := session.FromContext(r.Context())

			raw := sess.Get(microsoft.SessionUserID)
			if raw == "" {
				apperrors.Write(w, r, apperrors.NewUnauthorized(apperrors.ErrCodeNotLoggedIn, "Not signed in"))
				return
			}
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				sess.Clear()
				apperrors.Write(w, r, apperrors.NewUnauthorized(apperrors.ErrCodeNotLoggedIn, "Not signed in"))
				return
			}

			user, err := db.GetActiveUser(database, uint(id))
			if err != nil {
				if !db.IsNotFound(err) {
					apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeDatabaseError, "Failed to load user", err))
					return
				}
				sess.Clear()
				apperrors.Write(w, r, apperrors.NewUnauthorized(apperrors.ErrCodeAccountDisabled, "User does not exist or is disabled"))
				return
			}

			if err := tokens.EnsureFresh(r.Context(), user); err != nil {
				if !errors.Is(err, token.ErrReauthRequired) {
					apperrors.Write(w, r, apperrors.NewInternal(apperrors.ErrCodeUnexpectedError, "Failed to refresh token", err))
					return
				}
				sess.Clear()
				apperrors.Write(w, r, apperrors.NewUnauthorized(apperrors.ErrCodeTokenExpired, "Token expired, please sign in again"))
				return
			}

			ctx := logging.WithUserID(r.Context(), user.ID)
			ctx = WithUser(ctx, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
