// Package json implements a JSON file-based option store.
// It uses atomic writes (temp file + fsync + rename) and in-process locking.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store"
)

const optionsFile = "options.json"

func init() {
	store.Register("json", NewDriver)
}

// Driver implements store.Backend using a single JSON file.
type Driver struct {
	dataDir string
	mu      sync.RWMutex
	closed  bool

	// In-memory state loaded from JSON, keyed by option name.
	options map[string]*store.Option
}

// NewDriver creates a new JSON driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Backend, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json driver")
	}

	return &Driver{
		dataDir: cfg.DataDir,
		options: make(map[string]*store.Option),
	}, nil
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return "json"
}

// Init loads data from the JSON file.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(d.dataDir, optionsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load options: %w", err)
	}
	if err := json.Unmarshal(data, &d.options); err != nil {
		return fmt.Errorf("failed to parse options: %w", err)
	}
	if d.options == nil {
		d.options = make(map[string]*store.Option)
	}
	return nil
}

// Close releases resources.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// GetOption returns the stored value.
func (d *Driver) GetOption(ctx context.Context, name string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	opt, ok := d.options[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return []byte(opt.Value), nil
}

// UpdateOption creates or replaces the value and persists the file.
func (d *Driver) UpdateOption(ctx context.Context, name string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	prev, existed := d.options[name]
	d.options[name] = &store.Option{
		Name:      name,
		Value:     string(value),
		UpdatedAt: time.Now().Unix(),
	}

	if err := d.saveFile(); err != nil {
		// Roll back the in-memory state so it matches disk.
		if existed {
			d.options[name] = prev
		} else {
			delete(d.options, name)
		}
		return err
	}
	return nil
}

// DeleteOption removes the option.
func (d *Driver) DeleteOption(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return store.ErrClosed
	}

	prev, ok := d.options[name]
	if !ok {
		return nil
	}
	delete(d.options, name)

	if err := d.saveFile(); err != nil {
		d.options[name] = prev
		return err
	}
	return nil
}

// ListOptions returns the stored option names, sorted.
func (d *Driver) ListOptions(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, store.ErrClosed
	}

	names := make([]string, 0, len(d.options))
	for name := range d.options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// saveFile atomically writes the options map.
// Pattern: write to temp file, fsync, rename. Caller holds d.mu.
func (d *Driver) saveFile() error {
	path := filepath.Join(d.dataDir, optionsFile)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(d.options, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Fsync to ensure data is on disk
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Ensure Driver implements store.Backend.
var _ store.Backend = (*Driver)(nil)
