// Package auth provides session authentication middleware for HTTP servers.
package auth

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/api"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

type contextKey string

const (
	sessionContextKey contextKey = "session"
	userContextKey    contextKey = "user"
)

// AuthGateConfig configures the session auth gate middleware.
type AuthGateConfig struct {
	// RequireAuth returns true if the given path requires session authentication.
	// Constructed by the server at router setup time using IsAuthRequired().
	RequireAuth func(path string) bool

	// Log is the base logger for auth-related warnings and errors.
	Log *slog.Logger

	// SessionRepo provides session lookup by token.
	// May be nil only if RequireAuth always returns false (tests only).
	SessionRepo identity.SessionRepo

	// UserRepo provides user lookup by ID.
	// May be nil only if RequireAuth always returns false (tests only).
	UserRepo identity.UserRepo

	// BasePath is the external base path for UI routing (optional).
	// Used to construct login redirects for browser UI requests.
	BasePath string
}

// NewAuthGate returns a middleware that enforces session authentication.
// If RequireAuth returns false for the request path, the request passes through
// without token parsing, session validation, or context enrichment.
func NewAuthGate(cfg AuthGateConfig) func(http.Handler) http.Handler {
	cfg.Log = logutil.NoopIfNil(cfg.Log)
	basePath := normalizeBasePath(cfg.BasePath)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAuth(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			sessionToken := extractSessionToken(r)
			if sessionToken == "" {
				handleUnauthorized(w, r, basePath, api.ReasonUnauthenticated, "authentication required")
				return
			}

			session, err := cfg.SessionRepo.Get(r.Context(), sessionToken)
			if err != nil {
				if errors.Is(err, identity.ErrSessionExpired) {
					handleUnauthorized(w, r, basePath, api.ReasonSessionExpired, "session has expired")
					return
				}
				handleUnauthorized(w, r, basePath, api.ReasonUnauthenticated, "session not found or expired")
				return
			}
			if session.IsExpired() {
				handleUnauthorized(w, r, basePath, api.ReasonSessionExpired, "session has expired")
				return
			}

			user, err := cfg.UserRepo.Get(r.Context(), session.UserID)
			if err != nil {
				cfg.Log.Warn("session references missing user", "user_id", session.UserID, "error", err)
				handleUnauthorized(w, r, basePath, api.ReasonUnauthenticated, "session user not found")
				return
			}

			ctx := WithIdentity(r.Context(), session, user)

			// Handler-only enrichment; the access log keeps its fixed fields.
			ctx = appctx.WithAttrs(ctx, "user_id", session.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var forbiddenPage = template.Must(template.New("forbidden").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Forbidden</title></head>
<body><p>{{.}}</p></body></html>
`))

// RequireCapability rejects authenticated users lacking capability. It must
// run behind the auth gate. UI requests get an HTML page, others JSON.
func RequireCapability(capability, basePath string) func(http.Handler) http.Handler {
	basePath = normalizeBasePath(basePath)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				handleUnauthorized(w, r, basePath, api.ReasonUnauthenticated, "authentication required")
				return
			}
			if user.Can(capability) {
				next.ServeHTTP(w, r)
				return
			}

			appctx.Logger(r.Context(), nil).Info("capability denied", "capability", capability, "role", user.Role)
			msg := "Sorry, you are not allowed to access this page."
			if isUIPath(r.URL.Path, basePath) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_ = forbiddenPage.Execute(w, msg)
				return
			}
			api.WriteForbidden(w, api.ReasonMissingCapability, msg)
		})
	}
}

func handleUnauthorized(w http.ResponseWriter, r *http.Request, basePath, reason, message string) {
	if shouldRedirectToLogin(r, basePath) {
		redirectToLogin(w, r, basePath)
		return
	}
	api.WriteUnauthorized(w, reason, message)
}

func normalizeBasePath(basePath string) string {
	if basePath == "" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}

func uiPrefix(basePath string) string {
	if basePath == "" {
		return "/ui"
	}
	return basePath + "/ui"
}

func shouldRedirectToLogin(r *http.Request, basePath string) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return isUIPath(r.URL.Path, basePath)
}

func isUIPath(path, basePath string) bool {
	prefix := uiPrefix(basePath)
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, basePath string) {
	original := r.URL.Path
	if r.URL.RawQuery != "" {
		original += "?" + r.URL.RawQuery
	}
	loginURL := uiPrefix(basePath) + "/login?redirect=" + url.QueryEscape(original)
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// extractSessionToken gets the session token from cookie or Authorization header.
func extractSessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return ""
}

// WithIdentity returns ctx carrying session and user.
func WithIdentity(ctx context.Context, session *identity.Session, user *identity.User) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return context.WithValue(ctx, userContextKey, user)
}

// GetSessionFromContext returns the session from request context.
func GetSessionFromContext(ctx context.Context) *identity.Session {
	session, _ := ctx.Value(sessionContextKey).(*identity.Session)
	return session
}

// GetUserFromContext returns the user from request context.
func GetUserFromContext(ctx context.Context) *identity.User {
	user, _ := ctx.Value(userContextKey).(*identity.User)
	return user
}
