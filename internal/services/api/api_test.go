package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/frameworks/service"
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/interceptors/ratelimit"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/services/servicetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, opts servicetest.Options, conf map[string]any) (*servicetest.Fixture, service.Service) {
	t.Helper()
	f := servicetest.New(t, opts)
	svc, err := New(conf, quietLogger())
	require.NoError(t, err)
	return f, svc
}

func do(svc service.Service, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)
	return w
}

func errorReason(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			ReasonCode string `json:"reason_code"`
			Message    string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env.Error.ReasonCode
}

func TestNew_FailsWithoutSharedDeps(t *testing.T) {
	deps.ResetDeps()
	_, err := New(map[string]any{}, quietLogger())
	assert.Error(t, err)
}

func TestService_Metadata(t *testing.T) {
	_, svc := newService(t, servicetest.Options{}, nil)

	assert.Equal(t, "api", svc.Prefix())
	assert.ElementsMatch(t, []string{"/healthz", "/auth/login"}, svc.Unprotected())
	assert.NotNil(t, svc.Handler())
	assert.NoError(t, svc.Close())
}

func TestNew_WarnsOnUnusedConfigKeys(t *testing.T) {
	servicetest.New(t, servicetest.Options{})

	var buf strings.Builder
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	_, err := New(map[string]any{"unknown_key": "value"}, log)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "unused config keys")
}

func TestNew_UnknownRatelimitProfile(t *testing.T) {
	servicetest.New(t, servicetest.Options{})
	_, err := New(map[string]any{"ratelimit": map[string]any{"profile": "missing"}}, quietLogger())
	assert.Error(t, err)
}

func TestService_Healthz(t *testing.T) {
	_, svc := newService(t, servicetest.Options{}, nil)

	w := do(svc, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"options":"ok"}}`, w.Body.String())
}

func TestService_HealthzStoreDown(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)
	f.Store.Err = errors.New("disk unavailable")

	w := do(svc, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"options":"error"}}`, w.Body.String())
}

func TestLogin(t *testing.T) {
	_, svc := newService(t, servicetest.Options{}, nil)

	tests := []struct {
		name   string
		body   string
		status int
		reason string
	}{
		{"no body", "", http.StatusBadRequest, "bad_request"},
		{"missing password", `{"username":"admin"}`, http.StatusBadRequest, "bad_request"},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized, "invalid_credentials"},
		{"unknown user", `{"username":"ghost","password":"nope"}`, http.StatusUnauthorized, "invalid_credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(svc, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.reason, errorReason(t, w))
		})
	}

	t.Run("success", func(t *testing.T) {
		body := `{"username":"admin","password":"` + servicetest.Password + `"}`
		w := do(svc, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp loginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "admin", resp.User.Username)
		assert.Equal(t, identity.RoleAdmin, resp.User.Role)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "session", cookies[0].Name)
		assert.Equal(t, resp.Token, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})
}

func TestLogin_RateLimited(t *testing.T) {
	opts := servicetest.Options{Interceptors: map[string]map[string]any{
		"ratelimit": {"profiles": map[string]any{
			"login": map[string]any{"requests_per_window": int64(2), "window_seconds": int64(60)},
		}},
	}}
	_, svc := newService(t, opts, map[string]any{"ratelimit": map[string]any{"profile": "login"}})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"admin","password":"nope"}`))
		codes = append(codes, do(svc, req).Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestLogin_LocksUsernameAfterRepeatedFailures(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	bad := `{"username":"admin","password":"nope"}`
	for i := 0; i < identity.MaxLoginFailures+3; i++ {
		w := do(svc, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(bad)))
		if i < identity.MaxLoginFailures {
			require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
		} else {
			require.Equal(t, http.StatusTooManyRequests, w.Code, "attempt %d", i+1)
		}
	}

	good := `{"username":"Admin","password":"` + servicetest.Password + `"}`
	w := do(svc, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(good)))
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "the correct password must not get through a locked username")

	mw := httptest.NewRecorder()
	f.Metrics.Handler().ServeHTTP(mw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mw.Body.String(), "sophi_admin_login_throttled_total 4")
}

func TestLogin_LockoutSharedWithLoginForm(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	form := identity.NewLockout(f.Deps.Cache)
	for i := 0; i < identity.MaxLoginFailures; i++ {
		require.NoError(t, form.Fail(t.Context(), "admin"))
	}

	good := `{"username":"admin","password":"` + servicetest.Password + `"}`
	w := do(svc, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(good)))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLogin_SuccessClearsFailures(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	bad := `{"username":"admin","password":"nope"}`
	for i := 0; i < identity.MaxLoginFailures-1; i++ {
		do(svc, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(bad)))
	}
	good := `{"username":"admin","password":"` + servicetest.Password + `"}`
	require.Equal(t, http.StatusOK, do(svc, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(good))).Code)

	assert.False(t, identity.NewLockout(f.Deps.Cache).Locked(t.Context(), "admin"))
}

func TestLogoutAndMe(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	w := do(svc, f.As(httptest.NewRequest(http.MethodGet, "/auth/me", nil), f.Editor))
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "editor", me["username"])
	assert.Equal(t, false, me["can_manage_options"])

	w = do(svc, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(svc, f.As(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), f.Admin))
	require.Equal(t, http.StatusOK, w.Code)
	_, err := f.Deps.SessionRepo.Get(t.Context(), f.Session(f.Admin).Token)
	assert.ErrorIs(t, err, identity.ErrSessionNotFound)
}

func TestSettings_RequireManageOptions(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	for _, path := range []string{"/settings", "/settings/schema", "/curator/token"} {
		w := do(svc, f.As(httptest.NewRequest(http.MethodGet, path, nil), f.Editor))
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, "missing_capability", errorReason(t, w))

		w = do(svc, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestGetSettings_DefaultsAndMask(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	w := do(svc, f.As(httptest.NewRequest(http.MethodGet, "/settings", nil), f.Admin))
	require.Equal(t, http.StatusOK, w.Code)
	var rec settings.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, settings.EnvProduction, rec.Environment)
	assert.Equal(t, "collector.sophi.io", rec.CollectorURL)
	assert.Equal(t, "news.example.com", rec.TrackerClientID)
	assert.Empty(t, rec.ClientSecret)
	assert.Equal(t, 1, rec.QueryIntegration)

	f.SaveRecord(t, servicetest.ValidRecord())
	w = do(svc, f.As(httptest.NewRequest(http.MethodGet, "/settings", nil), f.Admin))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), servicetest.ClientSecret)
	assert.Contains(t, w.Body.String(), `"sophi_client_secret":"********"`)
}

func putSettings(f *servicetest.Fixture, svc service.Service, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/settings", strings.NewReader(body))
	return do(svc, f.As(req, f.Admin))
}

func TestPutSettings_Valid(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	w := putSettings(f, svc, `{
		"environment": "stg",
		"collector_url": "https://collector.example.com",
		"tracker_client_id": "news.example.com",
		"sophi_client_id": "cid",
		"sophi_client_secret": "csecret",
		"sophi_curator_url": "https://curator.example.com",
		"query_integration": true
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp updateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Saved)
	assert.Empty(t, resp.Notices)
	assert.Equal(t, "collector.example.com", resp.Record.CollectorURL)
	assert.Equal(t, SecretMask, resp.Record.ClientSecret)
	assert.Equal(t, int32(1), f.TokenHits.Load())

	assert.Equal(t, servicetest.ValidRecord(), f.StoredRecord(t))
}

func TestPutSettings_MaskKeepsStoredSecret(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)
	f.SaveRecord(t, servicetest.ValidRecord())

	w := putSettings(f, svc, `{
		"environment": "prod",
		"collector_url": "collector.example.com",
		"sophi_client_id": "cid",
		"sophi_client_secret": "********",
		"sophi_curator_url": "https://curator.example.com",
		"query_integration": 0
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored := f.StoredRecord(t)
	assert.Equal(t, servicetest.ClientSecret, stored.ClientSecret)
	assert.Equal(t, settings.EnvProduction, stored.Environment)
	assert.Equal(t, 0, stored.QueryIntegration)
	assert.Empty(t, stored.TrackerClientID)
}

func TestPutSettings_BadInput(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	tests := []struct {
		name   string
		body   string
		reason string
	}{
		{"not json", `{`, "bad_request"},
		{"unknown field", `{"collector_url":"c.example.com","favourite_color":"blue"}`, "invalid_field"},
		{"nested value", `{"collector_url":{"host":"c.example.com"}}`, "invalid_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := putSettings(f, svc, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.reason, errorReason(t, w))
		})
	}
	assert.Zero(t, f.Store.Writes)
}

func TestPutSettings_WarnAndSave(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)

	w := putSettings(f, svc, `{"environment":"qa","sophi_client_id":"cid","sophi_client_secret":"wrong"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp updateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Saved)

	kinds := make([]settings.ErrorKind, 0, len(resp.Notices))
	for _, n := range resp.Notices {
		kinds = append(kinds, n.Kind)
	}
	assert.Equal(t, []settings.ErrorKind{
		settings.ExternalAuthFailure,
		settings.MissingRequiredField,
		settings.MissingRequiredField,
		settings.InvalidFormat,
	}, kinds)
	assert.Equal(t, "Invalid credentials! Please confirm your client ID and secret then try again.", resp.Notices[0].Message)
	assert.Equal(t, settings.EnvProduction, f.StoredRecord(t).Environment)
}

func TestPutSettings_RejectInvalid(t *testing.T) {
	f, svc := newService(t, servicetest.Options{RejectInvalid: true}, nil)

	w := putSettings(f, svc, `{"collector_url":""}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	var resp updateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Saved)
	require.NotEmpty(t, resp.Notices)
	assert.Equal(t, settings.RejectedNotice.Message, resp.Notices[len(resp.Notices)-1].Message)
	assert.Zero(t, f.Store.Writes)
}

func TestSchema(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)
	f.SaveRecord(t, servicetest.ValidRecord())

	w := do(svc, f.As(httptest.NewRequest(http.MethodGet, "/settings/schema", nil), f.Admin))
	require.Equal(t, http.StatusOK, w.Code)

	var cats []categorizedSettings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cats))
	require.Len(t, cats, 3)
	assert.Equal(t, "Environment settings", cats[0].CategoryName)
	assert.Equal(t, "Collector settings", cats[1].CategoryName)
	assert.Equal(t, "Sophi API settings", cats[2].CategoryName)

	env := cats[0].Settings[0]
	assert.Equal(t, "environment", env.Key)
	assert.Equal(t, "select", env.Type)
	assert.Equal(t, "stg", env.Value)
	assert.Equal(t, "prod", env.DefaultValue)
	require.Len(t, env.Options, 3)
	assert.Equal(t, "Production", env.Options[0].Label)

	byKey := map[string]settingInfo{}
	for _, s := range cats[2].Settings {
		byKey[s.Key] = s
	}
	assert.Equal(t, "password", byKey["sophi_client_secret"].Type)
	assert.Equal(t, SecretMask, byKey["sophi_client_secret"].Value)
	assert.Equal(t, "checkbox", byKey["query_integration"].Type)
	assert.Equal(t, "1", byKey["query_integration"].DefaultValue)
	assert.Equal(t, "sophi_api", byKey["query_integration"].Category)
}

func TestCuratorToken(t *testing.T) {
	f, svc := newService(t, servicetest.Options{}, nil)
	get := func() *httptest.ResponseRecorder {
		return do(svc, f.As(httptest.NewRequest(http.MethodGet, "/curator/token", nil), f.Admin))
	}

	w := get()
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, f.TokenHits.Load())

	bad := servicetest.ValidRecord()
	bad.ClientSecret = "wrong"
	f.SaveRecord(t, bad)
	w = get()
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "upstream_error", errorReason(t, w))

	f.SaveRecord(t, servicetest.ValidRecord())
	w = get()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "curator-token")

	var status tokenStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "Bearer", status.TokenType)
	require.NotNil(t, status.Expiry)

	hits := f.TokenHits.Load()
	require.Equal(t, http.StatusOK, get().Code)
	assert.Equal(t, hits, f.TokenHits.Load(), "second call should be served from the cache")
}
