package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/api"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

// authHandler serves /api/auth/*.
type authHandler struct {
	users      identity.UserRepo
	sessions   identity.SessionRepo
	hasher     *identity.Hasher
	sessionTTL time.Duration
	lockout    *identity.Lockout
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func (h *authHandler) logger(ctx context.Context) *slog.Logger {
	return appctx.Logger(ctx, h.log)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userView struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type loginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expires_at"`
	User      userView `json:"user"`
}

func viewOf(u *identity.User) userView {
	return userView{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName, Role: u.Role}
}

// Login handles POST /api/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonBadRequest, "username and password required")
		return
	}

	ctx := r.Context()
	if h.lockout.Locked(ctx, req.Username) {
		h.metrics.LoginThrottled()
		h.logger(ctx).Info("login refused, username locked", "username", req.Username)
		api.WriteTooManyRequests(w, "too many failed login attempts, try again later")
		return
	}

	user, err := h.hasher.Authenticate(ctx, h.users, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidPassword) {
			h.logger(ctx).Error("login failed", "error", err)
			api.WriteInternalError(w, "login failed")
			return
		}
		if err := h.lockout.Fail(ctx, req.Username); err != nil {
			h.logger(ctx).Warn("login failure count failed", "error", err)
		}
		h.logger(ctx).Info("login rejected", "username", req.Username)
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid username or password")
		return
	}
	_ = h.lockout.Clear(ctx, req.Username)

	session, err := h.sessions.Create(ctx, user.ID, h.sessionTTL)
	if err != nil {
		h.logger(r.Context()).Error("session create failed", "error", err)
		api.WriteInternalError(w, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	api.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User:      viewOf(user),
	})
}

// Logout handles POST /api/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := auth.GetSessionFromContext(r.Context()); session != nil {
		if err := h.sessions.Delete(r.Context(), session.Token); err != nil {
			h.logger(r.Context()).Warn("session delete failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
	})
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Me handles GET /api/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	api.WriteJSON(w, http.StatusOK, struct {
		userView
		CanManageOptions bool `json:"can_manage_options"`
	}{viewOf(user), user.Can(identity.CapManageOptions)})
}
