// Package curator exchanges Sophi client credentials for Curator access
// tokens and caches the issued token.
package curator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/config"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

// TokenCacheKey holds the last issued access token.
const TokenCacheKey = "sophi_curator_access_token"

// Messages surfaced to administrators through settings notices.
const (
	msgInvalidCredentials = "Invalid credentials! Please confirm your client ID and secret then try again."
	msgNoCredentials      = "Both client ID and client secret are required for Curator integration!"
)

var (
	// ErrInvalidCredentials is returned when the auth server rejects the client.
	ErrInvalidCredentials = errors.New(msgInvalidCredentials)

	// ErrNotConfigured is returned by AccessToken when no credentials are saved.
	ErrNotConfigured = errors.New(msgNoCredentials)

	// ErrUnknownEnvironment is returned when no endpoint is configured for the environment.
	ErrUnknownEnvironment = errors.New("no auth endpoint for environment")
)

// RecordSource provides the saved settings.
type RecordSource interface {
	Get(ctx context.Context) (settings.Record, error)
}

// Config configures an Auth.
type Config struct {
	// Environments maps an environment to its token endpoint.
	Environments map[string]config.CuratorEnvironment

	// Settings selects the environment and, for AccessToken, the credentials.
	// Nil means production.
	Settings RecordSource

	// HTTPClient performs the token request. Nil uses http.DefaultClient.
	HTTPClient *http.Client

	Cache   cache.Cache
	Metrics *metrics.Metrics
	Log     *slog.Logger
}

// Auth requests Curator access tokens.
type Auth struct {
	envs     map[string]config.CuratorEnvironment
	settings RecordSource
	client   *http.Client
	cache    cache.Cache
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New returns an Auth. Missing environments fall back to the built-in endpoints.
func New(c Config) *Auth {
	envs := config.DefaultCuratorEnvironments()
	for name, env := range c.Environments {
		envs[name] = env
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Auth{
		envs:     envs,
		settings: c.Settings,
		client:   client,
		cache:    c.Cache,
		metrics:  c.Metrics,
		log:      logutil.NoopIfNil(c.Log),
	}
}

// environment resolves the endpoint for the environment carried by ctx, or
// the saved environment when ctx has none.
func (a *Auth) environment(ctx context.Context) (settings.Environment, config.CuratorEnvironment, error) {
	env := settings.EnvProduction
	if submitted, ok := settings.EnvironmentFromContext(ctx); ok {
		env = submitted
	} else if a.settings != nil {
		rec, err := a.settings.Get(ctx)
		if err != nil {
			a.log.Warn("curator: reading environment failed, using production", "error", err)
		} else if rec.Environment.Valid() {
			env = rec.Environment
		}
	}
	ep, ok := a.envs[string(env)]
	if !ok || ep.TokenURL == "" {
		return env, config.CuratorEnvironment{}, fmt.Errorf("%w: %s", ErrUnknownEnvironment, env)
	}
	return env, ep, nil
}

// RequestAccessToken performs a client credentials grant against the auth
// server of the environment in ctx (see settings.WithEnvironment), falling
// back to the saved one. Errors carry a message suitable for
// display.
func (a *Auth) RequestAccessToken(ctx context.Context, clientID, clientSecret string) (*oauth2.Token, error) {
	env, ep, err := a.environment(ctx)
	if err != nil {
		a.metrics.TokenRequest(metrics.TokenFailed)
		return nil, err
	}

	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     ep.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if ep.Audience != "" {
		cc.EndpointParams = map[string][]string{"audience": {ep.Audience}}
	}

	tok, err := cc.Token(context.WithValue(ctx, oauth2.HTTPClient, a.client))
	if err != nil {
		mapped := mapTokenError(err)
		if errors.Is(mapped, ErrInvalidCredentials) {
			a.metrics.TokenRequest(metrics.TokenRejected)
		} else {
			a.metrics.TokenRequest(metrics.TokenFailed)
		}
		a.log.Warn("curator token request failed", "environment", env, "error", err)
		return nil, mapped
	}

	a.metrics.TokenRequest(metrics.TokenIssued)
	a.log.Debug("curator token issued", "environment", env, "expiry", tok.Expiry)
	return tok, nil
}

// mapTokenError turns an exchange failure into an administrator-facing error.
func mapTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return fmt.Errorf("Could not reach the Sophi auth server: %w", err)
	}
	status := 0
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || rerr.ErrorCode == "invalid_client" || rerr.ErrorCode == "access_denied":
		return ErrInvalidCredentials
	case rerr.ErrorDescription != "":
		return errors.New(rerr.ErrorDescription)
	case status != 0:
		return fmt.Errorf("Sophi auth server returned %d %s.", status, http.StatusText(status))
	default:
		return errors.New("Sophi auth server returned an invalid response.")
	}
}

// AccessToken returns a valid token for the saved credentials, reusing the
// cached one until shortly before it expires.
func (a *Auth) AccessToken(ctx context.Context) (*oauth2.Token, error) {
	if tok := a.cached(ctx); tok != nil {
		a.metrics.TokenRequest(metrics.TokenCached)
		return tok, nil
	}

	if a.settings == nil {
		return nil, ErrNotConfigured
	}
	rec, err := a.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if rec.ClientID == "" || rec.ClientSecret == "" {
		return nil, ErrNotConfigured
	}

	tok, err := a.RequestAccessToken(ctx, rec.ClientID, rec.ClientSecret)
	if err != nil {
		return nil, err
	}
	a.store(ctx, tok)
	return tok, nil
}

func (a *Auth) cached(ctx context.Context) *oauth2.Token {
	if a.cache == nil {
		return nil
	}
	raw, err := a.cache.Get(ctx, TokenCacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			a.log.Warn("curator: token cache read failed", "error", err)
		}
		return nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal(raw, &tok); err != nil || tok.AccessToken == "" {
		return nil
	}
	if !tok.Expiry.IsZero() && time.Until(tok.Expiry) <= cache.TTLTokenSkew {
		return nil
	}
	return &tok
}

func (a *Auth) store(ctx context.Context, tok *oauth2.Token) {
	if a.cache == nil {
		return
	}
	ttl := cache.TTLDefault
	if !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry) - cache.TTLTokenSkew
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, TokenCacheKey, data, ttl); err != nil {
		a.log.Warn("curator: token cache write failed", "error", err)
	}
}

// ClearCache drops the cached token. It is registered as a settings save
// hook so new credentials or a new environment take effect at once.
func (a *Auth) ClearCache(ctx context.Context, _ settings.Record) error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Delete(ctx, TokenCacheKey)
}

var _ settings.TokenRequester = (*Auth)(nil)
