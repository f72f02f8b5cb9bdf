package settings_test

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
)

type fixedDomain string

func (d fixedDomain) Domain() string { return string(d) }

type tokenCall struct {
	ID     string
	Secret string
	Env    settings.Environment
}

// stubTokens records every exchange and fails with err when set.
type stubTokens struct {
	mu    sync.Mutex
	calls []tokenCall
	err   error
}

func (s *stubTokens) RequestAccessToken(ctx context.Context, clientID, clientSecret string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, _ := settings.EnvironmentFromContext(ctx)
	s.calls = append(s.calls, tokenCall{clientID, clientSecret, env})
	if s.err != nil {
		return nil, s.err
	}
	return &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"}, nil
}

func (s *stubTokens) Calls() []tokenCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tokenCall(nil), s.calls...)
}

var errRejected = errors.New("Invalid credentials! Please confirm your client ID and secret then try again.")
