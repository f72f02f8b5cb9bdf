package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.SettingsSaved(metrics.SaveSaved)
		m.Notice("missing_required_field")
		m.TokenRequest(metrics.TokenIssued)
		m.LoginThrottled()
		m.ObserveHTTP("/ui/settings", http.MethodGet, 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := metrics.New()

	m.SettingsSaved(metrics.SaveSaved)
	m.SettingsSaved(metrics.SaveSaved)
	m.SettingsSaved(metrics.SaveRejected)
	m.Notice("invalid_format")
	m.TokenRequest(metrics.TokenCached)

	count, err := testutil.GatherAndCount(m.Registry(), "sophi_admin_settings_saves_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome label")

	expected := `
# HELP sophi_admin_settings_saves_total Settings submissions by outcome.
# TYPE sophi_admin_settings_saves_total counter
sophi_admin_settings_saves_total{outcome="rejected"} 1
sophi_admin_settings_saves_total{outcome="saved"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "sophi_admin_settings_saves_total"))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := metrics.New()
	m.ObserveHTTP("", http.MethodPost, 303, 5*time.Millisecond)
	m.LoginThrottled()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `sophi_admin_http_request_duration_seconds_count{method="POST",route="unmatched",status="303"} 1`)
	assert.Contains(t, string(body), "sophi_admin_login_throttled_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
