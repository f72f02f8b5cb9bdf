// Package ui provides the admin web pages: login and the Sophi settings
// screen with its settings-update endpoint.
package ui

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/i18n"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// noticeKeyPrefix namespaces the per-session notice transient.
const noticeKeyPrefix = "settings_errors:"

// Config configures a Handler.
type Config struct {
	BasePath   string
	SessionTTL time.Duration
	NoticeTTL  time.Duration

	Users    identity.UserRepo
	Sessions identity.SessionRepo
	Hasher   *identity.Hasher
	Settings *settings.Manager
	Renderer *settings.Renderer
	Cache    cache.CacheWithCounter
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// Handler serves the UI pages.
type Handler struct {
	basePath   string
	sessionTTL time.Duration
	noticeTTL  time.Duration
	templates  *template.Template

	users    identity.UserRepo
	sessions identity.SessionRepo
	hasher   *identity.Hasher
	manager  *settings.Manager
	renderer *settings.Renderer
	cache    cache.CacheWithCounter
	lockout  *identity.Lockout
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func (h *Handler) logger(ctx context.Context) *slog.Logger {
	return appctx.Logger(ctx, h.log)
}

var funcs = template.FuncMap{
	"t": func(l *i18n.Localizer, id, fallback string) string { return l.T(id, fallback) },
}

// NewHandler creates a new UI handler.
func NewHandler(c Config) (*Handler, error) {
	tmpl, err := template.New("ui").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	if c.Settings == nil || c.Renderer == nil {
		return nil, errors.New("ui: settings manager and renderer are required")
	}

	// Normalize base path
	basePath := c.BasePath
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")

	if c.SessionTTL <= 0 {
		c.SessionTTL = 24 * time.Hour
	}
	if c.NoticeTTL <= 0 {
		c.NoticeTTL = cache.TTLNotice
	}

	return &Handler{
		basePath:   basePath,
		sessionTTL: c.SessionTTL,
		noticeTTL:  c.NoticeTTL,
		templates:  tmpl,
		users:      c.Users,
		sessions:   c.Sessions,
		hasher:     c.Hasher,
		manager:    c.Settings,
		renderer:   c.Renderer,
		cache:      c.Cache,
		lockout:    identity.NewLockout(c.Cache),
		metrics:    c.Metrics,
		log:        logutil.NoopIfNil(c.Log),
	}, nil
}

// SettingsURL is the settings page location, with settings-updated set
// after a save.
func (h *Handler) SettingsURL(updated bool) string {
	u := h.basePath + "/ui/settings?page=" + settings.PageSlug
	if updated {
		u += "&settings-updated=true"
	}
	return u
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("template render failed", "template", name, "error", err)
	}
}

type loginPage struct {
	BasePath string
	Redirect string
	Username string
	Error    string
	Tr       *i18n.Localizer
}

// LoginPage serves GET /ui/login.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login.html", loginPage{
		BasePath: h.basePath,
		Redirect: h.safeRedirect(r.URL.Query().Get("redirect")),
		Tr:       i18n.FromContext(r.Context()),
	})
}

// Login serves POST /ui/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tr := i18n.FromContext(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	page := loginPage{
		BasePath: h.basePath,
		Redirect: h.safeRedirect(r.PostForm.Get("redirect")),
		Username: username,
		Tr:       tr,
	}

	if h.lockout.Locked(ctx, username) {
		h.metrics.LoginThrottled()
		page.Error = tr.T("login_throttled", "Too many failed login attempts. Please try again later.")
		h.render(w, http.StatusTooManyRequests, "login.html", page)
		return
	}

	user, err := h.hasher.Authenticate(ctx, h.users, username, r.PostForm.Get("password"))
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidPassword) {
			h.logger(r.Context()).Error("login failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if err := h.lockout.Fail(ctx, username); err != nil {
			h.logger(ctx).Warn("login failure count failed", "error", err)
		}
		h.logger(r.Context()).Info("login rejected", "username", username)
		page.Error = tr.T("login_failed", "Invalid username or password.")
		h.render(w, http.StatusUnauthorized, "login.html", page)
		return
	}
	_ = h.lockout.Clear(ctx, username)

	session, err := h.sessions.Create(ctx, user.ID, h.sessionTTL)
	if err != nil {
		h.logger(r.Context()).Error("session create failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
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
	h.logger(r.Context()).Info("login succeeded", "user_id", user.ID)
	http.Redirect(w, r, page.Redirect, http.StatusSeeOther)
}

// safeRedirect keeps post-login redirects on this UI. Anything else lands
// on the settings page.
func (h *Handler) safeRedirect(target string) string {
	u, err := url.Parse(target)
	if err != nil || target == "" || u.IsAbs() || u.Host != "" || strings.HasPrefix(target, "//") {
		return h.SettingsURL(false)
	}
	if !strings.HasPrefix(u.Path, h.basePath+"/ui/") || strings.HasPrefix(u.Path, h.basePath+"/ui/login") {
		return h.SettingsURL(false)
	}
	return target
}

// Logout serves POST /ui/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if s := auth.GetSessionFromContext(r.Context()); s != nil {
		if err := h.sessions.Delete(r.Context(), s.Token); err != nil {
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
	http.Redirect(w, r, h.basePath+"/ui/login", http.StatusSeeOther)
}

type fieldView struct {
	ID      string
	Label   string
	Control template.HTML
}

type sectionView struct {
	ID     string
	Title  string
	Fields []fieldView
}

type settingsPage struct {
	BasePath  string
	Group     string
	Nonce     string
	ActionURL string
	ReturnURL string
	Notices   []settings.Notice
	Sections  []sectionView
	User      *identity.User
	Tr        *i18n.Localizer
}

// SettingsPage serves GET /ui/settings.
func (h *Handler) SettingsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tr := i18n.FromContext(ctx)
	session := auth.GetSessionFromContext(ctx)

	rec, err := h.manager.Get(ctx)
	if err != nil {
		h.logger(r.Context()).Error("settings read failed", "error", err)
		http.Error(w, "failed to read settings", http.StatusInternalServerError)
		return
	}
	values := rec.Values()

	page := settingsPage{
		BasePath:  h.basePath,
		Group:     settings.Group,
		ActionURL: h.basePath + "/ui/options",
		ReturnURL: h.SettingsURL(false),
		User:      auth.GetUserFromContext(ctx),
		Tr:        tr,
	}
	if session != nil {
		page.Nonce = Nonce(session.Token, settings.Group)
		page.Notices = settings.LocalizeNotices(h.takeNotices(ctx, session.Token), tr)
	}

	for _, s := range h.manager.Registry().Sections() {
		sv := sectionView{ID: s.ID, Title: tr.T(s.TitleID, s.Title)}
		for _, f := range s.Fields {
			control, err := h.renderer.Field(f, values, tr)
			if err != nil {
				h.logger(r.Context()).Error("field render failed", "field", f.Key, "error", err)
				http.Error(w, "failed to render settings", http.StatusInternalServerError)
				return
			}
			sv.Fields = append(sv.Fields, fieldView{
				ID:      "sophi-settings-" + f.Key,
				Label:   tr.T(f.LabelID, f.Label),
				Control: control,
			})
		}
		page.Sections = append(page.Sections, sv)
	}

	h.render(w, http.StatusOK, "settings.html", page)
}

// UpdateOptions serves POST /ui/options, the settings-update endpoint the
// settings form posts to.
func (h *Handler) UpdateOptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tr := i18n.FromContext(ctx)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	page := r.PostForm.Get("option_page")
	if page != settings.Group {
		h.logger(r.Context()).Info("unknown options page", "option_page", page)
		http.Error(w, tr.T("options_page_unknown", "Error: Options page not found in the allowed options list."), http.StatusBadRequest)
		return
	}

	session := auth.GetSessionFromContext(ctx)
	if session == nil || !VerifyNonce(r.PostForm.Get("_nonce"), session.Token, page) {
		http.Error(w, tr.T("link_expired", "The link you followed has expired."), http.StatusForbidden)
		return
	}

	sub := make(settings.Submission)
	for _, key := range settings.Keys {
		if vals, ok := r.PostForm[settings.FieldName(key)]; ok && len(vals) > 0 {
			sub[key] = vals[0]
		}
	}

	res, err := h.manager.Update(ctx, sub)
	if err != nil {
		h.logger(r.Context()).Error("settings save failed", "error", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}

	notices := res.Notices
	if res.Saved && !settings.HasErrors(notices) {
		notices = append(notices, settings.SavedNotice)
	}
	h.putNotices(ctx, session.Token, notices)

	http.Redirect(w, r, h.SettingsURL(true), http.StatusSeeOther)
}

func (h *Handler) putNotices(ctx context.Context, token string, notices []settings.Notice) {
	if h.cache == nil || len(notices) == 0 {
		return
	}
	data, err := json.Marshal(notices)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, noticeKeyPrefix+token, data, h.noticeTTL); err != nil {
		h.logger(ctx).Warn("notice transient write failed", "error", err)
	}
}

// takeNotices reads and deletes the notice transient.
func (h *Handler) takeNotices(ctx context.Context, token string) []settings.Notice {
	if h.cache == nil {
		return nil
	}
	key := noticeKeyPrefix + token
	data, err := h.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			h.logger(ctx).Warn("notice transient read failed", "error", err)
		}
		return nil
	}
	_ = h.cache.Delete(ctx, key)

	var notices []settings.Notice
	if err := json.Unmarshal(data, &notices); err != nil {
		return nil
	}
	return notices
}
