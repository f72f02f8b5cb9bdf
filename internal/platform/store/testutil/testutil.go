// Package testutil provides shared test helpers for store driver tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store"
)

// SettingsDoc is a representative option document.
const SettingsDoc = `{"environment":"prod","collector_url":"collector.sophi.io","sophi_client_secret":"s3cret","query_integration":1}`

// RunDriverTests runs the common option store conformance tests against a driver.
func RunDriverTests(t *testing.T, name string, cfg *store.DriverConfig) {
	t.Helper()
	ctx := context.Background()

	driver, err := store.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open %s driver: %v", name, err)
	}
	defer driver.Close()

	if driver.Name() != name {
		t.Errorf("expected driver name %q, got %q", name, driver.Name())
	}

	t.Run("GetMissing", func(t *testing.T) {
		_, err := driver.GetOption(ctx, "missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateThenGet", func(t *testing.T) {
		if err := driver.UpdateOption(ctx, "sophi_settings", []byte(SettingsDoc)); err != nil {
			t.Fatalf("UpdateOption failed: %v", err)
		}
		got, err := driver.GetOption(ctx, "sophi_settings")
		if err != nil {
			t.Fatalf("GetOption failed: %v", err)
		}
		if string(got) != SettingsDoc {
			t.Errorf("round trip mismatch: got %s", got)
		}
	})

	t.Run("LastWriterWins", func(t *testing.T) {
		if err := driver.UpdateOption(ctx, "sophi_settings", []byte(`{"environment":"stg"}`)); err != nil {
			t.Fatalf("UpdateOption failed: %v", err)
		}
		got, err := driver.GetOption(ctx, "sophi_settings")
		if err != nil {
			t.Fatalf("GetOption failed: %v", err)
		}
		if string(got) != `{"environment":"stg"}` {
			t.Errorf("expected second write to win, got %s", got)
		}
	})

	t.Run("List", func(t *testing.T) {
		if err := driver.UpdateOption(ctx, "another_option", []byte(`{}`)); err != nil {
			t.Fatalf("UpdateOption failed: %v", err)
		}
		names, err := driver.ListOptions(ctx)
		if err != nil {
			t.Fatalf("ListOptions failed: %v", err)
		}
		if len(names) != 2 || names[0] != "another_option" || names[1] != "sophi_settings" {
			t.Errorf("expected sorted [another_option sophi_settings], got %v", names)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := driver.DeleteOption(ctx, "another_option"); err != nil {
			t.Fatalf("DeleteOption failed: %v", err)
		}
		if _, err := driver.GetOption(ctx, "another_option"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		if err := driver.DeleteOption(ctx, "another_option"); err != nil {
			t.Errorf("deleting an absent option should succeed, got %v", err)
		}
	})
}

// MemoryStore is an in-memory store.OptionStore for tests of store consumers.
type MemoryStore struct {
	mu      sync.Mutex
	Options map[string][]byte
	Writes  int
	Err     error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Options: make(map[string][]byte)}
}

func (m *MemoryStore) GetOption(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	v, ok := m.Options[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) UpdateOption(ctx context.Context, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Writes++
	m.Options[name] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) DeleteOption(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.Options, name)
	return nil
}

func (m *MemoryStore) ListOptions(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	names := make([]string, 0, len(m.Options))
	for name := range m.Options {
		names = append(names, name)
	}
	return names, nil
}

var _ store.OptionStore = (*MemoryStore)(nil)
