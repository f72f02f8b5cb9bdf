// Package api provides the /api/* endpoints: session login for API clients
// and JSON access to the Sophi settings.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/api"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/interceptors"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cfg"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// Ratelimit holds rate limiting configuration for this service.
	Ratelimit RatelimitConfig `mapstructure:"ratelimit"`
}

// RatelimitConfig holds the per-service rate limiting opt-in.
type RatelimitConfig struct {
	// Profile is the name of the ratelimit profile to use from
	// [http.interceptors.ratelimit.profiles.<name>].
	Profile string `mapstructure:"profile"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates a new API service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.NoopIfNil(log)

	var c Config
	unused, err := cfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.Settings == nil || d.Curator == nil {
		return nil, errors.New("api: settings manager and curator auth are required")
	}

	sessionTTL := 24 * time.Hour
	basePath := ""
	var interceptorsCfg map[string]map[string]any
	if d.Config != nil {
		if d.Config.Server.SessionTTLHours > 0 {
			sessionTTL = time.Duration(d.Config.Server.SessionTTLHours) * time.Hour
		}
		basePath = d.Config.ExternalBasePath
		interceptorsCfg = d.Config.HTTP.Interceptors
	}

	loginMiddleware, err := interceptors.Build(interceptorsCfg, "ratelimit", c.Ratelimit.Profile, log)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	authH := &authHandler{
		users:      d.UserRepo,
		sessions:   d.SessionRepo,
		hasher:     d.Hasher,
		sessionTTL: sessionTTL,
		lockout:    identity.NewLockout(d.Cache),
		metrics:    d.Metrics,
		log:        log,
	}
	settingsH := &settingsHandler{
		manager: d.Settings,
		curator: d.Curator,
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(limitBody)

	r.Get("/healthz", api.NewHealthHandler(map[string]api.HealthCheck{
		"options": func(ctx context.Context) error {
			_, err := d.Settings.Get(ctx)
			return err
		},
	}))

	r.Route("/auth", func(r chi.Router) {
		// Apply ratelimit middleware only to /login
		if loginMiddleware != nil {
			r.With(loginMiddleware).Post("/login", authH.Login)
		} else {
			r.Post("/login", authH.Login)
		}
		r.Post("/logout", authH.Logout)
		r.Get("/me", authH.Me)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireCapability(identity.CapManageOptions, basePath))
		r.Get("/settings", settingsH.Get)
		r.Put("/settings", settingsH.Put)
		r.Get("/settings/schema", settingsH.Schema)
		r.Get("/curator/token", settingsH.Token)
	})

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's router, mounted under {base}/api.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that don't require session authentication.
func (s *Service) Unprotected() []string {
	return []string{"/healthz", "/auth/login"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
