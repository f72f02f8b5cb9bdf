package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cfg"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store"
)

// Accessor reads the persisted record merged over the schema defaults.
type Accessor struct {
	options  store.OptionStore
	registry *Registry
}

// NewAccessor returns an accessor over options.
func NewAccessor(options store.OptionStore, registry *Registry) *Accessor {
	return &Accessor{options: options, registry: registry}
}

// Registry returns the schema the accessor defaults from.
func (a *Accessor) Registry() *Registry {
	return a.registry
}

// Get loads the record. Persisted keys win over defaults even when their
// value is empty; keys never saved take the default.
func (a *Accessor) Get(ctx context.Context) (Record, error) {
	merged := a.registry.defaultMap()

	raw, err := a.options.GetOption(ctx, OptionName)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return Record{}, fmt.Errorf("load %s: %w", OptionName, err)
	default:
		var persisted map[string]any
		if err := json.Unmarshal(raw, &persisted); err != nil {
			return Record{}, fmt.Errorf("decode %s: %w", OptionName, err)
		}
		for k, v := range persisted {
			if _, known := merged[k]; known && v != nil {
				merged[k] = v
			}
		}
	}

	var rec Record
	if err := cfg.WeakDecode(merged, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", OptionName, err)
	}
	return rec, nil
}

// Value returns one field of the merged record in form representation.
func (a *Accessor) Value(ctx context.Context, key string) (string, error) {
	if _, ok := a.registry.Default(key); !ok {
		return "", ErrUnknownField
	}
	rec, err := a.Get(ctx)
	if err != nil {
		return "", err
	}
	return rec.Get(key)
}

// save persists rec as the option.
func (a *Accessor) save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := a.options.UpdateOption(ctx, OptionName, data); err != nil {
		return fmt.Errorf("save %s: %w", OptionName, err)
	}
	return nil
}
