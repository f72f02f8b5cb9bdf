// Package interceptors holds named HTTP middleware constructors. Services
// opt in per route with [http.services.<svc>.<interceptor>] profile = "<name>"
// and profiles live under [http.interceptors.<interceptor>.profiles.<name>].
package interceptors

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
)

// Middleware is an HTTP middleware function.
type Middleware func(http.Handler) http.Handler

// NewInterceptor builds a middleware from one profile table.
type NewInterceptor func(conf map[string]any, log *slog.Logger) (Middleware, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewInterceptor)
)

// MustRegister registers an interceptor constructor by name. Called from
// init(); a duplicate name panics.
func MustRegister(name string, fn NewInterceptor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("interceptor %q already registered", name))
	}
	registry[name] = fn
}

// Get returns the interceptor constructor for the given name.
func Get(name string) (NewInterceptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered interceptor names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
