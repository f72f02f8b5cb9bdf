// Package store provides option persistence and driver abstractions.
//
// An option is a named JSON document. The settings screen keeps its whole
// record under a single option name; drivers never look inside the value.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Common errors for store operations.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Driver defines the lifecycle of a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (json, sqlite).
	Name() string
}

// OptionStore reads and writes named option documents.
type OptionStore interface {
	// GetOption returns the stored value. Returns ErrNotFound if absent.
	GetOption(ctx context.Context, name string) ([]byte, error)

	// UpdateOption creates or replaces the value. Last writer wins.
	UpdateOption(ctx context.Context, name string, value []byte) error

	// DeleteOption removes the option. Deleting an absent option is not an error.
	DeleteOption(ctx context.Context, name string) error

	// ListOptions returns the stored option names, sorted.
	ListOptions(ctx context.Context) ([]string, error)
}

// Backend is a driver that stores options.
type Backend interface {
	Driver
	OptionStore
}

// Option is the persisted row.
type Option struct {
	Name      string `json:"name" gorm:"primaryKey"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}

// DriverConfig holds configuration for driver selection and initialization.
type DriverConfig struct {
	// Driver is the driver name: json, sqlite
	Driver string `json:"driver"`

	// DataDir is the directory for data files (json files, sqlite db)
	DataDir string `json:"data_dir"`
}

// DriverFactory is a function that creates a driver instance.
type DriverFactory func(cfg *DriverConfig) (Backend, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a driver instance based on the configuration.
func New(cfg *DriverConfig) (Backend, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	return factory(cfg)
}

// Open creates and initializes a driver.
func Open(ctx context.Context, cfg *DriverConfig) (Backend, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := b.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.Driver, err)
	}
	return b, nil
}

// AvailableDrivers returns the sorted list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
