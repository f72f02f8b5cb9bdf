// Package cfg decodes loosely typed maps (TOML driver sections, stored option
// blobs, form submissions) into typed structs.
package cfg

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// Setter is the interface a configuration struct may implement
// to set default options.
type Setter interface {
	ApplyDefaults()
}

// Decode decodes the given raw input map to the target pointer c.
// If c implements Setter, ApplyDefaults() is called automatically.
func Decode(input map[string]any, c any) error {
	_, err := decode(input, c, false)
	return err
}

// WeakDecode is Decode with weakly typed input: "1" decodes into an int field,
// 1 into a string field, "true" into a bool field. Used for values that went
// through an HTML form or a JSON round trip.
func WeakDecode(input map[string]any, c any) error {
	_, err := decode(input, c, true)
	return err
}

// DecodeWithUnused decodes input to c and returns any unused keys (sorted).
// If c implements Setter, ApplyDefaults() is called automatically.
func DecodeWithUnused(input map[string]any, c any) ([]string, error) {
	return decode(input, c, false)
}

// MustDecodeStrict decodes input to c and returns an error if any keys are unused.
func MustDecodeStrict(input map[string]any, c any) error {
	unused, err := DecodeWithUnused(input, c)
	if err != nil {
		return err
	}
	if len(unused) > 0 {
		return fmt.Errorf("unused config keys: %v", unused)
	}
	return nil
}

func decode(input map[string]any, c any, weak bool) ([]string, error) {
	var md mapstructure.Metadata
	config := &mapstructure.DecoderConfig{
		Metadata:         &md,
		Result:           c,
		TagName:          "mapstructure",
		WeaklyTypedInput: weak,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	if s, ok := c.(Setter); ok {
		s.ApplyDefaults()
	}

	unused := md.Unused
	sort.Strings(unused)
	return unused, nil
}
