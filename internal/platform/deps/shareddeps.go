// Package deps provides shared dependencies for all services.
package deps

import (
	"sync"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/curator"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/config"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/i18n"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

var (
	sharedDeps     *Deps
	sharedDepsOnce sync.Once
)

// Deps holds the dependencies services are built from. The server process
// constructs them once; services read them in their constructors.
type Deps struct {
	// Identity (for session-gated endpoints)
	UserRepo    identity.UserRepo
	SessionRepo identity.SessionRepo
	Hasher      *identity.Hasher

	// Settings screen
	Settings *settings.Manager
	Renderer *settings.Renderer
	Curator  *curator.Auth

	// Catalog translates screen labels and notices.
	Catalog *i18n.Catalog

	// Cache holds notice transients, the token cache and login counters.
	Cache cache.CacheWithCounter

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Config (for handlers that need config values)
	Config *config.Config
}

// SetDeps sets the shared dependencies. Must be called once at startup
// before any services are constructed.
func SetDeps(d *Deps) {
	sharedDepsOnce.Do(func() {
		sharedDeps = d
	})
}

// GetDeps returns the shared dependencies.
// Returns nil if SetDeps has not been called.
func GetDeps() *Deps {
	return sharedDeps
}

// ResetDeps is for testing only. Resets the singleton.
func ResetDeps() {
	sharedDeps = nil
	sharedDepsOnce = sync.Once{}
}
