// Package ratelimit provides a fixed-window rate limiting interceptor on top
// of the cache counters. The admin services put it in front of the login
// form so password guessing is bounded per client address.
package ratelimit

import (
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/api"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/interceptors"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cfg"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/middleware"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
)

func init() {
	interceptors.MustRegister("ratelimit", New)
}

// Config defines rate limiting parameters decoded from a profile.
type Config struct {
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`

	// Methods are the HTTP methods that count against the limit. Other
	// methods pass untouched so the login page itself always renders.
	Methods []string `mapstructure:"methods"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 10
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = int(cache.TTLLoginWindow / time.Second)
	}
	if len(c.Methods) == 0 {
		c.Methods = []string{http.MethodPost}
	}
	for i, m := range c.Methods {
		c.Methods[i] = strings.ToUpper(m)
	}
}

// Limiter counts requests per client key in the cache.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	methods []string
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New creates a ratelimit interceptor from a profile table. The cache and
// metrics come from the shared deps.
func New(conf map[string]any, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := cfg.Decode(conf, &c); err != nil {
		return nil, err
	}

	l := &Limiter{
		keyFunc: middleware.ClientIP,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		methods: c.Methods,
		log:     logutil.NoopIfNil(log),
	}
	if d := deps.GetDeps(); d != nil {
		l.cache = d.Cache
		l.metrics = d.Metrics
	}
	return l.Wrap, nil
}

// Wrap is the middleware function that applies rate limiting.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cache == nil || !slices.Contains(l.methods, r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		key := l.keyFunc(r)
		count, resetAt, err := l.cache.Increment(r.Context(), "ratelimit:"+r.URL.Path+":"+key, 1, l.window)
		if err != nil {
			// Fail open; the cache being down must not lock admins out.
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			l.metrics.LoginThrottled()
			l.log.Info("request throttled", "client", key, "path", r.URL.Path, "count", count)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many attempts, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}
