package middleware

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/stocklens/api/internal/auth"
	"github.com/stocklens/api/internal/store"
)

type AuthMiddleware struct {
	Store      *store.Store
	CookieName string
}

// RequireAuth resolves the session cookie to a principal or rejects the
// request. No store writes happen for unauthenticated requests beyond the
// single session lookup.
func (m AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.CookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		principal, err := m.Store.GetSessionPrincipalByTokenHash(r.Context(), auth.HashToken(cookie.Value))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Session is invalid", nil)
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load session", nil)
			return
		}

		_ = m.Store.TouchSession(r.Context(), principal.SessionID)

		ctx := WithActor(r.Context(), Actor{
			SessionID: principal.SessionID,
			UserID:    principal.UserID,
			Email:     principal.Email,
			Username:  principal.Username,
			CSRFToken: principal.CSRFToken,
			ExpiresAt: principal.ExpiresAt,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
