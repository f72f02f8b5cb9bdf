package server

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/auth"
	httpmw "github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/middleware"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
	AtHostRoot   bool // true for endpoints that stay at host root, outside the base path
}

// routeGroups is the single source of truth for gating decisions.
var routeGroups = []RouteGroup{
	{Name: "healthz", PathPrefix: "/healthz", RequiresAuth: false, AtHostRoot: true},
	{Name: "metrics", PathPrefix: "/metrics", RequiresAuth: false, AtHostRoot: true},

	// Exceptions come from Service.Unprotected().
	{Name: "api", PathPrefix: "/api", RequiresAuth: true, AtHostRoot: false},
	{Name: "ui", PathPrefix: "/ui", RequiresAuth: true, AtHostRoot: false},
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired reports whether path needs a session. Paths declared by
// mounted services through Unprotected() are public.
func IsAuthRequired(path string, basePath string, mountedServices []service.Service) bool {
	for _, rg := range routeGroups {
		if rg.AtHostRoot && pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	// The bare base path only redirects.
	if path == basePath+"/" || (basePath != "" && path == basePath) {
		return false
	}

	for _, svc := range mountedServices {
		if svc == nil {
			continue
		}
		svcBase := basePath
		if prefix := svc.Prefix(); prefix != "" {
			svcBase += "/" + prefix
		}
		for _, unprotected := range svc.Unprotected() {
			if pathMatchesPrefix(path, svcBase+unprotected) {
				return false
			}
		}
	}

	for _, rg := range routeGroups {
		if !rg.AtHostRoot && pathMatchesPrefix(path, basePath+rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}

	// Unknown paths require auth.
	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == '/'
}

// mountService mounts a service and tracks it for lifecycle management.
func (s *Server) mountService(r chi.Router, svc service.Service) {
	if svc == nil {
		return
	}
	if prefix := svc.Prefix(); prefix != "" {
		r.Mount("/"+prefix, svc.Handler())
	} else {
		r.Mount("/", svc.Handler())
	}
	s.mountedServices = append(s.mountedServices, svc)
}

// mountOrder lists the core services first, then any others by name.
func (s *Server) mountOrder() []string {
	var names []string
	for _, name := range service.CoreServices {
		if _, ok := s.services[name]; ok {
			names = append(names, name)
		}
	}
	var extra []string
	for name := range s.services {
		if !slices.Contains(service.CoreServices, name) {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	return append(names, extra...)
}

// setupRoutes creates the chi router with all route groups mounted.
func (s *Server) setupRoutes() chi.Router {
	d := deps.GetDeps()
	basePath := strings.TrimSuffix(s.cfg.ExternalBasePath, "/")
	r := chi.NewRouter()

	// Order is invariant:
	// [RealIP] -> RequestID -> request-scoped logger -> access log -> recoverer -> locale -> auth gate
	if s.cfg.Server.BehindProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.RequestID)
	r.Use(httpmw.RequestLoggerMiddleware(s.logger))
	r.Use(httpmw.AccessLogMiddleware(s.logger, d.Metrics))
	r.Use(chimw.Recoverer)
	if d.Catalog != nil {
		r.Use(d.Catalog.Middleware)
	}

	// The closure reads s.mountedServices at request time.
	requireAuth := func(path string) bool {
		return IsAuthRequired(path, basePath, s.mountedServices)
	}
	r.Use(auth.NewAuthGate(auth.AuthGateConfig{
		RequireAuth: requireAuth,
		Log:         s.logger,
		SessionRepo: d.SessionRepo,
		UserRepo:    d.UserRepo,
		BasePath:    basePath,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.Metrics.Enabled && d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	settingsPage := basePath + "/ui/settings?page=sophi"
	mount := func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.Redirect(w, req, settingsPage, http.StatusFound)
		})
		for _, name := range s.mountOrder() {
			s.mountService(r, s.services[name])
		}
	}
	if basePath != "" {
		r.Route(basePath, mount)
	} else {
		mount(r)
	}

	return r
}
