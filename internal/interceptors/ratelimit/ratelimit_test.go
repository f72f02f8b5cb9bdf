package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/interceptors"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache/memory"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

type failingCounter struct{}

func (failingCounter) Increment(context.Context, string, int64, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("cache down")
}
func (failingCounter) GetCount(context.Context, string) (int64, error) { return 0, nil }
func (failingCounter) Reset(context.Context, string) error             { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newLimiter(t *testing.T, limit int64) *Limiter {
	t.Helper()
	c := memory.New(time.Minute, 0)
	t.Cleanup(func() { c.Close() })
	return &Limiter{
		cache:   c,
		keyFunc: func(r *http.Request) string { return r.RemoteAddr },
		limit:   limit,
		window:  time.Minute,
		methods: []string{http.MethodPost},
		log:     discard(),
	}
}

func TestInit_RegistersInterceptor(t *testing.T) {
	if fn, ok := interceptors.Get("ratelimit"); !ok || fn == nil {
		t.Fatal("expected ratelimit interceptor to be registered")
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	c := Config{Methods: []string{"post", "put"}}
	c.ApplyDefaults()

	if c.RequestsPerWindow != 10 {
		t.Errorf("RequestsPerWindow = %d, want 10", c.RequestsPerWindow)
	}
	if c.WindowSeconds != 900 {
		t.Errorf("WindowSeconds = %d, want 900", c.WindowSeconds)
	}
	if c.Methods[0] != "POST" || c.Methods[1] != "PUT" {
		t.Errorf("methods should be upper-cased, got %v", c.Methods)
	}

	var empty Config
	empty.ApplyDefaults()
	if len(empty.Methods) != 1 || empty.Methods[0] != http.MethodPost {
		t.Errorf("default methods should be [POST], got %v", empty.Methods)
	}
}

func TestLimiter_BlocksRequestsOverLimit(t *testing.T) {
	handler := newLimiter(t, 2).Wrap(okHandler())

	for i := 1; i <= 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/ui/login", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/ui/login", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3: expected status 429, got %d", rec.Code)
	}

	val, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || val < 1 {
		t.Errorf("Retry-After should be a positive integer, got %q", rec.Header().Get("Retry-After"))
	}

	var envelope struct {
		Error struct {
			ReasonCode string `json:"reason_code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope.Error.ReasonCode != "rate_limited" {
		t.Errorf("expected reason_code 'rate_limited', got %q", envelope.Error.ReasonCode)
	}
}

func TestLimiter_OnlyCountsConfiguredMethods(t *testing.T) {
	handler := newLimiter(t, 1).Wrap(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/ui/login", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %d should never be limited, got %d", i, rec.Code)
		}
	}
}

func TestLimiter_DifferentClientsTrackedSeparately(t *testing.T) {
	handler := newLimiter(t, 1).Wrap(okHandler())

	for _, addr := range []string{"192.0.2.1:1000", "192.0.2.2:1000"} {
		req := httptest.NewRequest("POST", "/ui/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("first request from %s should pass, got %d", addr, rec.Code)
		}
	}
}

func TestLimiter_AllowsOnCacheError(t *testing.T) {
	l := &Limiter{
		cache:   failingCounter{},
		keyFunc: func(*http.Request) string { return "k" },
		limit:   1,
		window:  time.Minute,
		methods: []string{http.MethodPost},
		log:     discard(),
	}

	rec := httptest.NewRecorder()
	l.Wrap(okHandler()).ServeHTTP(rec, httptest.NewRequest("POST", "/ui/login", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected fail-open 200, got %d", rec.Code)
	}
}

func TestNew_WithDeps(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	m := metrics.New()

	deps.ResetDeps()
	deps.SetDeps(&deps.Deps{Cache: c, Metrics: m})
	defer deps.ResetDeps()

	mw, err := New(map[string]any{"requests_per_window": int64(1), "window_seconds": 30}, discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	handler := mw(okHandler())

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/ui/login", nil)
		req.RemoteAddr = "198.51.100.7:4242"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected [200 429], got %v", codes)
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var throttled float64
	for _, mf := range families {
		if mf.GetName() == "sophi_admin_login_throttled_total" {
			throttled = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	if throttled != 1 {
		t.Errorf("expected 1 throttled login, got %v", throttled)
	}
}
