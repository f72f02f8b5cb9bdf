// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the public origin (scheme + host + port) for this instance.
	// The settings screen derives the default tracker client id from its host.
	// Example: "https://news.example.com"
	PublicOrigin string `toml:"public_origin"`

	// ExternalBasePath is the optional path prefix for all endpoints except /healthz.
	// Example: "/admin" or empty string
	ExternalBasePath string `toml:"external_base_path"`

	// ListenAddr is the address to listen on.
	// Example: ":9300"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// TLS configuration
	TLS TLSConfig `toml:"tls"`

	// OutboundHTTP configuration
	OutboundHTTP OutboundHTTPConfig `toml:"outbound_http"`

	// Store configuration for the option store.
	Store StoreConfig `toml:"store"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Settings configuration for the Sophi settings screen.
	Settings SettingsConfig `toml:"settings"`

	// Curator configuration for the token exchange.
	Curator CuratorConfig `toml:"curator"`

	// Metrics configuration
	Metrics MetricsConfig `toml:"metrics"`

	// HTTP holds per-service HTTP configuration.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode() with Setter interface.
	Services map[string]map[string]any `toml:"services"`

	// Interceptors maps interceptor names to their raw config maps.
	// Ratelimit profiles live at [http.interceptors.ratelimit.profiles.<name>].
	// Per-service opt-in is [http.services.<svc>.ratelimit] with profile = "<name>".
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// BootstrapAdmin holds super admin bootstrap configuration.
	BootstrapAdmin BootstrapAdminConfig `toml:"bootstrap_admin"`

	// SessionTTLHours is how long an admin session stays valid. Default: 24.
	SessionTTLHours int `toml:"session_ttl_hours"`

	// BehindProxy takes the client address from proxy forwarding headers.
	// Enable only when a reverse proxy overwrites them.
	BehindProxy bool `toml:"behind_proxy"`
}

// BootstrapAdminConfig holds bootstrap admin credentials.
type BootstrapAdminConfig struct {
	// Username for the super admin. Default: "admin"
	Username string `toml:"username"`

	// Password for the super admin. If empty on first boot, a random password is generated.
	Password string `toml:"password"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned
	Mode string `toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// SelfSignedDir holds the generated certificate in selfsigned mode.
	// Default: .sophi/certs
	SelfSignedDir string `toml:"selfsigned_dir"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off
	SSRFMode string `toml:"ssrf_mode"`

	// TimeoutMS is the overall request timeout in milliseconds
	TimeoutMS int `toml:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`

	// MaxRedirects is the maximum number of redirects to follow
	MaxRedirects int `toml:"max_redirects"`

	// MaxResponseBytes is the maximum response body size
	MaxResponseBytes int64 `toml:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only)
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// StoreConfig holds option store settings.
type StoreConfig struct {
	// Driver is the store driver name: json or sqlite.
	Driver string `toml:"driver"`

	// DataDir is where driver files live.
	DataDir string `toml:"data_dir"`

	// EncryptionKey is a base64 encoded 32-byte key. When set, sensitive
	// option fields are sealed at rest.
	EncryptionKey string `toml:"encryption_key"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	// Example: [cache.drivers.redis] addr = "localhost:6379"
	Drivers map[string]any `toml:"drivers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (tokens, secrets).
	// Default: false. Use only for debugging.
	AllowSensitive bool `toml:"allow_sensitive"`

	// File is an optional rotating log file written alongside stdout.
	File string `toml:"file"`

	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`
}

// SettingsConfig holds settings screen behavior.
type SettingsConfig struct {
	// RejectInvalid refuses to persist a submission that produced notices.
	// Default: false (notices are shown, the record is saved anyway).
	RejectInvalid bool `toml:"reject_invalid"`

	// NoticeTTLSeconds is how long post-save notices wait to be displayed.
	NoticeTTLSeconds int `toml:"notice_ttl_seconds"`

	// DefaultLocale is used when the browser sends no usable Accept-Language.
	DefaultLocale string `toml:"default_locale"`
}

// CuratorConfig holds the Sophi auth endpoints per environment.
type CuratorConfig struct {
	// Environments maps a settings environment (prod, stg, dev) to its auth endpoint.
	Environments map[string]CuratorEnvironment `toml:"environments"`
}

// CuratorEnvironment is one auth endpoint.
type CuratorEnvironment struct {
	TokenURL string `toml:"token_url"`
	Audience string `toml:"audience"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled mounts GET /metrics. Default: true.
	Enabled bool `toml:"enabled"`
}

// DefaultCuratorEnvironments returns the built-in Sophi auth endpoints.
func DefaultCuratorEnvironments() map[string]CuratorEnvironment {
	return map[string]CuratorEnvironment{
		"prod": {TokenURL: "https://sophi-works.auth0.com/oauth/token", Audience: "https://api.sophi.io"},
		"stg":  {TokenURL: "https://sophi-works.auth0.com/oauth/token", Audience: "https://api.sophi.works"},
		"dev":  {TokenURL: "https://sophi-works.auth0.com/oauth/token", Audience: "https://api.sophi.works"},
	}
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// BuildCacheDriverConfig returns the raw config map for a cache driver.
// Returns nil if the driver is not configured in [cache.drivers.<name>].
func (c *Config) BuildCacheDriverConfig(driver string) map[string]any {
	if c.Cache.Drivers == nil {
		return nil
	}
	raw, ok := c.Cache.Drivers[driver].(map[string]any)
	if !ok {
		return nil
	}
	// Return a copy to prevent mutation
	result := make(map[string]any, len(raw))
	for k, v := range raw {
		result[k] = v
	}
	return result
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  PublicOrigin: %q,\n", c.PublicOrigin))
	sb.WriteString(fmt.Sprintf("  ExternalBasePath: %q,\n", c.ExternalBasePath))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString("  Server: {\n")
	sb.WriteString("    BootstrapAdmin: {\n")
	sb.WriteString(fmt.Sprintf("      Username: %q,\n", c.Server.BootstrapAdmin.Username))
	sb.WriteString("      Password: [REDACTED],\n")
	sb.WriteString("    },\n")
	sb.WriteString(fmt.Sprintf("    SessionTTLHours: %d,\n", c.Server.SessionTTLHours))
	sb.WriteString(fmt.Sprintf("    BehindProxy: %v,\n", c.Server.BehindProxy))
	sb.WriteString("  },\n")
	sb.WriteString("  TLS: {\n")
	sb.WriteString(fmt.Sprintf("    Mode: %q,\n", c.TLS.Mode))
	sb.WriteString(fmt.Sprintf("    CertFile: %q,\n", c.TLS.CertFile))
	sb.WriteString(fmt.Sprintf("    KeyFile: %q,\n", c.TLS.KeyFile))
	sb.WriteString(fmt.Sprintf("    SelfSignedDir: %q,\n", c.TLS.SelfSignedDir))
	sb.WriteString("  },\n")
	sb.WriteString("  OutboundHTTP: {\n")
	sb.WriteString(fmt.Sprintf("    SSRFMode: %q,\n", c.OutboundHTTP.SSRFMode))
	sb.WriteString(fmt.Sprintf("    TimeoutMS: %d,\n", c.OutboundHTTP.TimeoutMS))
	sb.WriteString(fmt.Sprintf("    MaxRedirects: %d,\n", c.OutboundHTTP.MaxRedirects))
	sb.WriteString(fmt.Sprintf("    MaxResponseBytes: %d,\n", c.OutboundHTTP.MaxResponseBytes))
	sb.WriteString(fmt.Sprintf("    InsecureSkipVerify: %v,\n", c.OutboundHTTP.InsecureSkipVerify))
	sb.WriteString("  },\n")
	sb.WriteString("  Store: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Store.Driver))
	sb.WriteString(fmt.Sprintf("    DataDir: %q,\n", c.Store.DataDir))
	if c.Store.EncryptionKey != "" {
		sb.WriteString("    EncryptionKey: [REDACTED],\n")
	} else {
		sb.WriteString("    EncryptionKey: <unset>,\n")
	}
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Cache.Driver))
	sb.WriteString(fmt.Sprintf("    DriversCount: %d,\n", len(c.Cache.Drivers)))
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	sb.WriteString(fmt.Sprintf("    Level: %q,\n", c.Logging.Level))
	sb.WriteString(fmt.Sprintf("    AllowSensitive: %v,\n", c.Logging.AllowSensitive))
	sb.WriteString(fmt.Sprintf("    File: %q,\n", c.Logging.File))
	sb.WriteString("  },\n")
	sb.WriteString("  Settings: {\n")
	sb.WriteString(fmt.Sprintf("    RejectInvalid: %v,\n", c.Settings.RejectInvalid))
	sb.WriteString(fmt.Sprintf("    NoticeTTLSeconds: %d,\n", c.Settings.NoticeTTLSeconds))
	sb.WriteString(fmt.Sprintf("    DefaultLocale: %q,\n", c.Settings.DefaultLocale))
	sb.WriteString("  },\n")
	sb.WriteString("  Curator: {\n")
	envs := make([]string, 0, len(c.Curator.Environments))
	for name := range c.Curator.Environments {
		envs = append(envs, name)
	}
	sort.Strings(envs)
	for _, name := range envs {
		env := c.Curator.Environments[name]
		sb.WriteString(fmt.Sprintf("    %s: {TokenURL: %q, Audience: %q},\n", name, env.TokenURL, env.Audience))
	}
	sb.WriteString("  },\n")
	sb.WriteString("  Metrics: {\n")
	sb.WriteString(fmt.Sprintf("    Enabled: %v,\n", c.Metrics.Enabled))
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}

// PublicScheme returns "http" or "https" from PublicOrigin.
// Returns "https" if PublicOrigin is empty or unparseable.
func (c *Config) PublicScheme() string {
	if c.PublicOrigin == "" {
		return "https"
	}
	u, err := url.Parse(c.PublicOrigin)
	if err != nil || u.Scheme == "" {
		return "https"
	}
	return strings.ToLower(u.Scheme)
}
