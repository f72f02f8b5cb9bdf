// Package service holds the HTTP service registry. Services register a
// constructor by name from init() and the server mounts them under
// {base}/{Prefix()}.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
)

// CoreServices lists service names that are always constructed, whether or
// not [http.services.<name>] appears in TOML. Their order is the mount order.
var CoreServices = []string{"api", "ui"}

// ErrNotRegistered is returned by Build for an unknown service name.
var ErrNotRegistered = errors.New("service not registered")

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register registers a service constructor by name. A duplicate name is an
// error.
func Register(name string, newFunc NewService) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is like Register but panics on error. For use in init().
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor for a registered service, or nil.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the registered names, sorted.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BuildAll constructs the named services with their config tables. Each
// service logs with a "service" attribute. On error the services built so
// far are closed.
func BuildAll(names []string, conf ConfigSource, log *slog.Logger) (map[string]Service, error) {
	log = logutil.NoopIfNil(log)
	built := make(map[string]Service, len(names))
	for _, name := range names {
		newFn := Get(name)
		if newFn == nil {
			closeAll(built)
			return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
		}
		var raw map[string]any
		if conf != nil {
			raw = conf(name)
		}
		svc, err := newFn(raw, log.With("service", name))
		if err != nil {
			closeAll(built)
			return nil, fmt.Errorf("failed to create %s service: %w", name, err)
		}
		built[name] = svc
	}
	return built, nil
}

func closeAll(services map[string]Service) {
	for _, svc := range services {
		_ = svc.Close()
	}
}

// resetRegistry is for testing only. Clears the registry.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}
