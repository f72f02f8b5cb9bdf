// Package sealed wraps an option store and encrypts selected fields of JSON
// option documents at rest with XChaCha20-Poly1305.
//
// Sealed values look like "SEALED:v1:<base64(nonce|ciphertext|tag)>". Values
// without the prefix are passed through on read so plaintext records written
// before a key was configured stay readable and get sealed on the next write.
// Writes always encrypt, including values that happen to carry the prefix.
package sealed

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store"
)

const prefix = "SEALED:v1:"

// ErrDecrypt is returned when a sealed value cannot be opened with the key.
var ErrDecrypt = errors.New("sealed value could not be decrypted")

// Store seals the configured fields of each option before delegating.
type Store struct {
	next   store.OptionStore
	key    []byte
	fields map[string][]string // option name -> sealed field names
}

// New wraps next. fields maps option names to the top-level JSON fields that
// must never reach the backend in plaintext.
func New(next store.OptionStore, key []byte, fields map[string][]string) (*Store, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("sealed: key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Store{next: next, key: k, fields: fields}, nil
}

// IsSealed reports whether v carries the sealed prefix.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, prefix)
}

// GetOption returns the option with sealed fields opened.
func (s *Store) GetOption(ctx context.Context, name string) ([]byte, error) {
	raw, err := s.next.GetOption(ctx, name)
	if err != nil {
		return nil, err
	}
	fields := s.fields[name]
	if len(fields) == 0 {
		return raw, nil
	}
	return s.transform(raw, name, fields, s.open)
}

// UpdateOption seals the configured fields, then writes.
func (s *Store) UpdateOption(ctx context.Context, name string, value []byte) error {
	fields := s.fields[name]
	if len(fields) > 0 {
		sealedValue, err := s.transform(value, name, fields, s.seal)
		if err != nil {
			return err
		}
		value = sealedValue
	}
	return s.next.UpdateOption(ctx, name, value)
}

// DeleteOption delegates.
func (s *Store) DeleteOption(ctx context.Context, name string) error {
	return s.next.DeleteOption(ctx, name)
}

// ListOptions delegates.
func (s *Store) ListOptions(ctx context.Context) ([]string, error) {
	return s.next.ListOptions(ctx)
}

func (s *Store) transform(raw []byte, name string, fields []string, fn func(v, aad string) (string, error)) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("sealed: option %s is not a JSON object: %w", name, err)
	}
	for _, f := range fields {
		v, ok := doc[f].(string)
		if !ok || v == "" {
			continue
		}
		out, err := fn(v, name+"."+f)
		if err != nil {
			return nil, fmt.Errorf("sealed: %s.%s: %w", name, f, err)
		}
		doc[f] = out
	}
	return json.Marshal(doc)
}

// seal always encrypts, even input that already carries the prefix.
func (s *Store) seal(plaintext, aad string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(aad))
	return prefix + base64.StdEncoding.EncodeToString(out), nil
}

func (s *Store) open(value, aad string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(data) < aead.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(aad))
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}

// Ensure Store implements store.OptionStore.
var _ store.OptionStore = (*Store)(nil)
