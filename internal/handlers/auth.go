package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stocklens/api/internal/audit"
	"github.com/stocklens/api/internal/auth"
	"github.com/stocklens/api/internal/httpx"
	"github.com/stocklens/api/internal/middleware"
	"github.com/stocklens/api/internal/store"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type userPayload struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON", nil)
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)

	details := map[string]string{}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		details["email"] = "A valid email is required"
	}
	if len(req.Username) < 3 {
		details["username"] = "Username must be at least 3 characters"
	}
	if len(req.Password) < 6 {
		details["password"] = "Password must be at least 6 characters"
	}
	if len(details) > 0 {
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "validation_failed", "Invalid registration input", details)
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.Logger.Error("hash password", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to register", nil)
		return
	}

	user, err := s.Store.CreateUser(r.Context(), req.Email, req.Username, passwordHash)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			httpx.WriteError(w, r, http.StatusConflict, "email_taken", "Email or username is already registered", nil)
			return
		}
		s.Logger.Error("create user", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to register", nil)
		return
	}

	s.recordAudit(r, audit.Entry{
		UserID:     &user.ID,
		Action:     "auth.register",
		EntityType: "user",
		EntityID:   &user.ID,
	})

	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"user": userPayload{ID: user.ID, Email: user.Email, Username: user.Username},
	})
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON", nil)
		return
	}

	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		httpx.WriteError(w, r, http.StatusUnprocessableEntity, "validation_failed", "Identifier and password are required", nil)
		return
	}

	var user store.User
	var err error
	if strings.Contains(req.Identifier, "@") {
		user, err = s.Store.GetUserByEmail(r.Context(), strings.ToLower(req.Identifier))
	} else {
		user, err = s.Store.GetUserByUsername(r.Context(), req.Identifier)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials", nil)
			return
		}
		s.Logger.Error("load user", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to log in", nil)
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials", nil)
		return
	}

	// Rotate any session the browser still holds before issuing a new one.
	if cookie, cookieErr := r.Cookie(s.Config.SessionCookieName); cookieErr == nil && cookie.Value != "" {
		_ = s.Store.RevokeSessionByTokenHash(r.Context(), auth.HashToken(cookie.Value))
	}

	token, err := auth.GenerateToken()
	if err != nil {
		s.Logger.Error("generate session token", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to log in", nil)
		return
	}
	csrfToken, err := auth.GenerateToken()
	if err != nil {
		s.Logger.Error("generate csrf token", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to log in", nil)
		return
	}

	expiresAt := time.Now().Add(s.Config.SessionTTL)
	if _, err := s.Store.CreateSession(r.Context(), user.ID, auth.HashToken(token), csrfToken, expiresAt); err != nil {
		s.Logger.Error("create session", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to log in", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.Config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	s.recordAudit(r, audit.Entry{
		UserID:     &user.ID,
		Action:     "auth.login",
		EntityType: "user",
		EntityID:   &user.ID,
	})

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user":      userPayload{ID: user.ID, Email: user.Email, Username: user.Username},
		"csrfToken": csrfToken,
	})
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}

	if err := s.Store.RevokeSessionByID(r.Context(), actor.SessionID); err != nil {
		s.Logger.Error("revoke session", "error", err)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to log out", nil)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.Config.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.Config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	s.recordAudit(r, audit.Entry{
		UserID:     &actor.UserID,
		Action:     "auth.logout",
		EntityType: "user",
		EntityID:   &actor.UserID,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user": userPayload{ID: actor.UserID, Email: actor.Email, Username: actor.Username},
	})
}

func (s *Server) GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": actor.CSRFToken})
}

// recordAudit writes an audit entry, downgrading failures to a warning so a
// logging problem never affects the response already in flight.
func (s *Server) recordAudit(r *http.Request, entry audit.Entry) {
	entry.RequestID = middleware.RequestIDFromContext(r.Context())
	if err := s.Audit.Log(r.Context(), entry); err != nil {
		s.Logger.Warn("audit log", "action", entry.Action, "error", err)
	}
}
