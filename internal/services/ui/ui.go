// Package ui provides the /ui/* endpoints as a registry service.
package ui

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/ui"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/interceptors"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cfg"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("ui", New)
}

// Config holds ui service configuration (service-local knobs only).
type Config struct {
	// Ratelimit names the ratelimit profile guarding POST /login.
	Ratelimit struct {
		Profile string `mapstructure:"profile"`
	} `mapstructure:"ratelimit"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the UI service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates a new UI service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := cfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "ui", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	// Derive cross-cutting values from global config
	hc := ui.Config{
		Users:    d.UserRepo,
		Sessions: d.SessionRepo,
		Hasher:   d.Hasher,
		Settings: d.Settings,
		Renderer: d.Renderer,
		Cache:    d.Cache,
		Metrics:  d.Metrics,
		Log:      log,
	}
	var interceptorsCfg map[string]map[string]any
	if d.Config != nil {
		hc.BasePath = d.Config.ExternalBasePath
		hc.SessionTTL = time.Duration(d.Config.Server.SessionTTLHours) * time.Hour
		hc.NoticeTTL = time.Duration(d.Config.Settings.NoticeTTLSeconds) * time.Second
		interceptorsCfg = d.Config.HTTP.Interceptors
	}

	uiHandler, err := ui.NewHandler(hc)
	if err != nil {
		return nil, err
	}

	loginMiddleware, err := interceptors.Build(interceptorsCfg, "ratelimit", c.Ratelimit.Profile, log)
	if err != nil {
		return nil, fmt.Errorf("ui: %w", err)
	}

	r := chi.NewRouter()
	r.Get("/login", uiHandler.LoginPage) // public
	if loginMiddleware != nil {
		r.With(loginMiddleware).Post("/login", uiHandler.Login)
	} else {
		r.Post("/login", uiHandler.Login)
	}
	r.Post("/logout", uiHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireCapability(identity.CapManageOptions, hc.BasePath))
		r.Get("/settings", uiHandler.SettingsPage)
		r.Post("/options", uiHandler.UpdateOptions)
	})

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's router, mounted under {base}/ui.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "ui"
}

// Unprotected returns paths that don't require session authentication.
func (s *Service) Unprotected() []string {
	return []string{"/login"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
