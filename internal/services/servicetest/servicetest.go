// Package servicetest wires the shared deps the HTTP services are built
// from, backed by in-memory stores and a fake Sophi auth server.
package servicetest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/curator"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/config"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/auth"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/i18n"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store/testutil"
)

// Credentials accepted by the fake auth server and the seeded users.
const (
	ClientID     = "cid"
	ClientSecret = "csecret"
	Password     = "correct horse battery"
)

// Options tweak the fixture.
type Options struct {
	RejectInvalid bool

	// Interceptors becomes Config.HTTP.Interceptors.
	Interceptors map[string]map[string]any
}

// Fixture holds the wired deps and handles to their fakes.
type Fixture struct {
	Deps      *deps.Deps
	Store     *testutil.MemoryStore
	Metrics   *metrics.Metrics
	TokenHits *atomic.Int32

	Admin  *identity.User
	Editor *identity.User

	sessions map[string]*identity.Session
}

// New builds the deps and installs them with deps.SetDeps. The deps are
// reset when the test ends.
func New(t *testing.T, opts Options) *Fixture {
	t.Helper()
	ctx := context.Background()

	hits := &atomic.Int32{}
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"access_denied"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "curator-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(authSrv.Close)

	conf := config.DevConfig()
	conf.Settings.RejectInvalid = opts.RejectInvalid
	conf.HTTP.Interceptors = opts.Interceptors
	conf.Curator.Environments = map[string]config.CuratorEnvironment{
		"prod": {TokenURL: authSrv.URL + "/prod", Audience: "https://api.sophi.io"},
		"stg":  {TokenURL: authSrv.URL + "/stg", Audience: "https://api.sophi.works"},
		"dev":  {TokenURL: authSrv.URL + "/dev", Audience: "https://api.sophi.works"},
	}

	c := memory.New(time.Minute, 0)
	t.Cleanup(func() { c.Close() })
	m := metrics.New()
	st := testutil.NewMemoryStore()

	registry := settings.NewRegistry(staticDomain("news.example.com"))
	cur := curator.New(curator.Config{
		Environments: conf.Curator.Environments,
		Settings:     settings.NewAccessor(st, registry),
		HTTPClient:   authSrv.Client(),
		Cache:        c,
		Metrics:      m,
	})
	manager := settings.NewManager(st, registry, settings.NewSanitizer(cur, nil), settings.ManagerConfig{
		RejectInvalid: opts.RejectInvalid,
		Metrics:       m,
	})
	manager.OnSave(cur.ClearCache)

	catalog, err := i18n.NewCatalog("en")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	hasher := identity.NewFastHasher()
	users := identity.NewMemoryUserRepo()
	sessions := identity.NewMemorySessionRepo()

	f := &Fixture{
		Store:     st,
		Metrics:   m,
		TokenHits: hits,
		sessions:  make(map[string]*identity.Session),
	}
	f.Admin = seedUser(t, ctx, users, hasher, "admin", identity.RoleAdmin)
	f.Editor = seedUser(t, ctx, users, hasher, "editor", identity.RoleEditor)
	for _, u := range []*identity.User{f.Admin, f.Editor} {
		s, err := sessions.Create(ctx, u.ID, time.Hour)
		if err != nil {
			t.Fatalf("session: %v", err)
		}
		f.sessions[u.ID] = s
	}

	f.Deps = &deps.Deps{
		UserRepo:    users,
		SessionRepo: sessions,
		Hasher:      hasher,
		Settings:    manager,
		Renderer:    settings.NewRenderer(registry),
		Curator:     cur,
		Catalog:     catalog,
		Cache:       c,
		Metrics:     m,
		Config:      conf,
	}
	deps.ResetDeps()
	deps.SetDeps(f.Deps)
	t.Cleanup(deps.ResetDeps)
	return f
}

func seedUser(t *testing.T, ctx context.Context, repo identity.UserRepo, h *identity.Hasher, name, role string) *identity.User {
	t.Helper()
	hash, err := h.Hash(Password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &identity.User{Username: name, DisplayName: name, PasswordHash: hash, Role: role}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

// As returns r carrying u and u's session, as the auth gate would set them.
func (f *Fixture) As(r *http.Request, u *identity.User) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), f.sessions[u.ID], u))
}

// Session returns the session seeded for u.
func (f *Fixture) Session(u *identity.User) *identity.Session {
	return f.sessions[u.ID]
}

// SaveRecord persists rec directly, bypassing the sanitizer.
func (f *Fixture) SaveRecord(t *testing.T, rec settings.Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := f.Store.UpdateOption(context.Background(), settings.OptionName, data); err != nil {
		t.Fatalf("save: %v", err)
	}
}

// StoredRecord decodes the persisted option.
func (f *Fixture) StoredRecord(t *testing.T) settings.Record {
	t.Helper()
	data, err := f.Store.GetOption(context.Background(), settings.OptionName)
	if err != nil {
		t.Fatalf("get option: %v", err)
	}
	var rec settings.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rec
}

// ValidRecord is a record the sanitizer accepts without notices.
func ValidRecord() settings.Record {
	return settings.Record{
		Environment:      settings.EnvStaging,
		CollectorURL:     "collector.example.com",
		TrackerClientID:  "news.example.com",
		ClientID:         ClientID,
		ClientSecret:     ClientSecret,
		CuratorURL:       "https://curator.example.com",
		QueryIntegration: 1,
	}
}

type staticDomain string

func (d staticDomain) Domain() string { return string(d) }
