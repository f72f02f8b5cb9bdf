package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "SOPHI_ADMIN_"

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// EnvFile is a dotenv file whose values act as environment variables
	// that are not already set. A missing file is ignored unless
	// RequireEnvFile is set.
	EnvFile        string
	RequireEnvFile bool

	// LookupEnv reads environment variables. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// ModeFlag is the --mode flag value (overrides every other source).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag (or environment) values that override config file values.
type FlagOverrides struct {
	ListenAddr            *string
	PublicOrigin          *string
	ExternalBasePath      *string
	SSRFMode              *string
	TLSMode               *string
	AdminUsername         *string
	AdminPassword         *string
	StoreDriver           *string
	StoreDataDir          *string
	StoreEncryptionKey    *string
	CacheDriver           *string
	LoggingLevel          *string
	LoggingFile           *string
	LoggingAllowSensitive *string // "true", "false", or "" (unset)
	RejectInvalid         *string // "true", "false", or "" (unset)
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode   string        `toml:"mode"`
	Server *serverConfig `toml:"server"`

	PublicOrigin     string `toml:"public_origin"`
	ExternalBasePath string `toml:"external_base_path"`
	ListenAddr       string `toml:"listen_addr"`

	TLS          *TLSConfig          `toml:"tls"`
	OutboundHTTP *OutboundHTTPConfig `toml:"outbound_http"`
	Store        *StoreConfig        `toml:"store"`
	Cache        *cacheConfig        `toml:"cache"`
	Logging      *loggingConfig      `toml:"logging"`
	Settings     *settingsConfig     `toml:"settings"`
	Curator      *curatorConfig      `toml:"curator"`
	Metrics      *metricsConfig      `toml:"metrics"`
	HTTP         *httpFileConfig     `toml:"http"`
}

// httpFileConfig holds per-service HTTP configuration from TOML.
type httpFileConfig struct {
	Services     map[string]map[string]any `toml:"services"`
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// serverConfig holds server-specific settings in TOML.
type serverConfig struct {
	BootstrapAdmin  *bootstrapAdmin `toml:"bootstrap_admin"`
	SessionTTLHours int             `toml:"session_ttl_hours"`
	BehindProxy     bool            `toml:"behind_proxy"`
}

// bootstrapAdmin holds bootstrap admin credentials in TOML.
type bootstrapAdmin struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// cacheConfig holds cache settings from TOML.
type cacheConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

// loggingConfig holds logging settings from TOML.
type loggingConfig struct {
	Level          string `toml:"level"`
	AllowSensitive bool   `toml:"allow_sensitive"`
	File           string `toml:"file"`
	MaxSizeMB      int    `toml:"max_size_mb"`
	MaxBackups     int    `toml:"max_backups"`
	MaxAgeDays     int    `toml:"max_age_days"`
}

type settingsConfig struct {
	RejectInvalid    *bool  `toml:"reject_invalid"`
	NoticeTTLSeconds int    `toml:"notice_ttl_seconds"`
	DefaultLocale    string `toml:"default_locale"`
}

type curatorConfig struct {
	Environments map[string]CuratorEnvironment `toml:"environments"`
}

type metricsConfig struct {
	Enabled *bool `toml:"enabled"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > SOPHI_ADMIN_MODE > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay SOPHI_ADMIN_* environment variables (dotenv file values included)
//  5. Overlay CLI flags
//  6. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error (fail fast). Unknown/undecoded TOML keys produce a warning
// but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	lookup, err := envLookup(opts)
	if err != nil {
		return nil, err
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if v, ok := lookup(EnvPrefix + "MODE"); ok && v != "" {
		modeStr = v
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, envOverrides(lookup))
	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := validatePublicOrigin(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envLookup returns a lookup that consults the process environment first and
// the dotenv file second.
func envLookup(opts LoaderOptions) (func(string) (string, bool), error) {
	base := opts.LookupEnv
	if base == nil {
		base = os.LookupEnv
	}
	if opts.EnvFile == "" {
		return base, nil
	}

	fileEnv, err := godotenv.Read(opts.EnvFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !opts.RequireEnvFile {
			return base, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", opts.EnvFile, err)
	}

	return func(key string) (string, bool) {
		if v, ok := base(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}

// envOverrides maps SOPHI_ADMIN_* variables onto the same override set as CLI flags.
func envOverrides(lookup func(string) (string, bool)) FlagOverrides {
	get := func(name string) *string {
		if v, ok := lookup(EnvPrefix + name); ok {
			return &v
		}
		return nil
	}
	return FlagOverrides{
		ListenAddr:            get("LISTEN_ADDR"),
		PublicOrigin:          get("PUBLIC_ORIGIN"),
		ExternalBasePath:      get("EXTERNAL_BASE_PATH"),
		SSRFMode:              get("SSRF_MODE"),
		TLSMode:               get("TLS_MODE"),
		AdminUsername:         get("ADMIN_USERNAME"),
		AdminPassword:         get("ADMIN_PASSWORD"),
		StoreDriver:           get("STORE_DRIVER"),
		StoreDataDir:          get("STORE_DATA_DIR"),
		StoreEncryptionKey:    get("STORE_ENCRYPTION_KEY"),
		CacheDriver:           get("CACHE_DRIVER"),
		LoggingLevel:          get("LOG_LEVEL"),
		LoggingFile:           get("LOG_FILE"),
		LoggingAllowSensitive: get("LOG_ALLOW_SENSITIVE"),
		RejectInvalid:         get("SETTINGS_REJECT_INVALID"),
	}
}

// presetForMode returns the base config for a given mode.
func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production-safe strict defaults.
func StrictConfig() *Config {
	return &Config{
		Mode:             string(ModeStrict),
		PublicOrigin:     "https://localhost:9300",
		ExternalBasePath: "",
		ListenAddr:       ":9300",
		Server: ServerConfig{
			SessionTTLHours: 24,
		},
		TLS: TLSConfig{
			Mode: "off",
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:           "strict",
			TimeoutMS:          10000,
			ConnectTimeoutMS:   2000,
			MaxRedirects:       1,
			MaxResponseBytes:   1048576,
			InsecureSkipVerify: false,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".sophi/data",
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level:          "info",
			AllowSensitive: false,
			MaxSizeMB:      100,
			MaxBackups:     5,
			MaxAgeDays:     30,
		},
		Settings: SettingsConfig{
			RejectInvalid:    false,
			NoticeTTLSeconds: 30,
			DefaultLocale:    "en",
		},
		Curator: CuratorConfig{
			Environments: DefaultCuratorEnvironments(),
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// DevConfig returns development mode defaults.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.PublicOrigin = "http://localhost:9300"
	cfg.OutboundHTTP.SSRFMode = "off"
	cfg.OutboundHTTP.MaxRedirects = 3
	cfg.OutboundHTTP.InsecureSkipVerify = true
	cfg.Store.Driver = "json"
	cfg.Logging.Level = "debug"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}
	if fc.ExternalBasePath != "" {
		cfg.ExternalBasePath = fc.ExternalBasePath
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil {
		if fc.Server.BootstrapAdmin != nil {
			cfg.Server.BootstrapAdmin.Username = fc.Server.BootstrapAdmin.Username
			cfg.Server.BootstrapAdmin.Password = fc.Server.BootstrapAdmin.Password
		}
		if fc.Server.SessionTTLHours != 0 {
			cfg.Server.SessionTTLHours = fc.Server.SessionTTLHours
		}
		cfg.Server.BehindProxy = fc.Server.BehindProxy
	}

	if fc.TLS != nil {
		if fc.TLS.Mode != "" {
			cfg.TLS.Mode = fc.TLS.Mode
		}
		if fc.TLS.CertFile != "" {
			cfg.TLS.CertFile = fc.TLS.CertFile
		}
		if fc.TLS.KeyFile != "" {
			cfg.TLS.KeyFile = fc.TLS.KeyFile
		}
		if fc.TLS.SelfSignedDir != "" {
			cfg.TLS.SelfSignedDir = fc.TLS.SelfSignedDir
		}
	}

	if fc.OutboundHTTP != nil {
		if fc.OutboundHTTP.SSRFMode != "" {
			cfg.OutboundHTTP.SSRFMode = fc.OutboundHTTP.SSRFMode
		}
		if fc.OutboundHTTP.TimeoutMS != 0 {
			cfg.OutboundHTTP.TimeoutMS = fc.OutboundHTTP.TimeoutMS
		}
		if fc.OutboundHTTP.ConnectTimeoutMS != 0 {
			cfg.OutboundHTTP.ConnectTimeoutMS = fc.OutboundHTTP.ConnectTimeoutMS
		}
		if fc.OutboundHTTP.MaxRedirects != 0 {
			cfg.OutboundHTTP.MaxRedirects = fc.OutboundHTTP.MaxRedirects
		}
		if fc.OutboundHTTP.MaxResponseBytes != 0 {
			cfg.OutboundHTTP.MaxResponseBytes = fc.OutboundHTTP.MaxResponseBytes
		}
		// InsecureSkipVerify is a bool, overlay always when section present
		cfg.OutboundHTTP.InsecureSkipVerify = fc.OutboundHTTP.InsecureSkipVerify
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if fc.Store.EncryptionKey != "" {
			cfg.Store.EncryptionKey = fc.Store.EncryptionKey
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		// AllowSensitive is a bool, overlay when section present
		cfg.Logging.AllowSensitive = fc.Logging.AllowSensitive
		if fc.Logging.File != "" {
			cfg.Logging.File = fc.Logging.File
		}
		if fc.Logging.MaxSizeMB != 0 {
			cfg.Logging.MaxSizeMB = fc.Logging.MaxSizeMB
		}
		if fc.Logging.MaxBackups != 0 {
			cfg.Logging.MaxBackups = fc.Logging.MaxBackups
		}
		if fc.Logging.MaxAgeDays != 0 {
			cfg.Logging.MaxAgeDays = fc.Logging.MaxAgeDays
		}
	}

	if fc.Settings != nil {
		if fc.Settings.RejectInvalid != nil {
			cfg.Settings.RejectInvalid = *fc.Settings.RejectInvalid
		}
		if fc.Settings.NoticeTTLSeconds != 0 {
			cfg.Settings.NoticeTTLSeconds = fc.Settings.NoticeTTLSeconds
		}
		if fc.Settings.DefaultLocale != "" {
			cfg.Settings.DefaultLocale = fc.Settings.DefaultLocale
		}
	}

	if fc.Curator != nil {
		for name, env := range fc.Curator.Environments {
			merged := cfg.Curator.Environments[name]
			if env.TokenURL != "" {
				merged.TokenURL = env.TokenURL
			}
			if env.Audience != "" {
				merged.Audience = env.Audience
			}
			cfg.Curator.Environments[name] = merged
		}
	}

	if fc.Metrics != nil && fc.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *fc.Metrics.Enabled
	}

	if fc.HTTP != nil {
		if len(fc.HTTP.Services) > 0 {
			if cfg.HTTP.Services == nil {
				cfg.HTTP.Services = make(map[string]map[string]any)
			}
			for name, svcCfg := range fc.HTTP.Services {
				cfg.HTTP.Services[name] = svcCfg
			}
		}
		if len(fc.HTTP.Interceptors) > 0 {
			if cfg.HTTP.Interceptors == nil {
				cfg.HTTP.Interceptors = make(map[string]map[string]any)
			}
			for name, intCfg := range fc.HTTP.Interceptors {
				cfg.HTTP.Interceptors[name] = intCfg
			}
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.PublicOrigin != nil && *f.PublicOrigin != "" {
		cfg.PublicOrigin = *f.PublicOrigin
	}
	if f.ExternalBasePath != nil && *f.ExternalBasePath != "" {
		cfg.ExternalBasePath = *f.ExternalBasePath
	}
	if f.SSRFMode != nil && *f.SSRFMode != "" {
		cfg.OutboundHTTP.SSRFMode = *f.SSRFMode
	}
	if f.TLSMode != nil && *f.TLSMode != "" {
		cfg.TLS.Mode = *f.TLSMode
	}
	if f.AdminUsername != nil && *f.AdminUsername != "" {
		cfg.Server.BootstrapAdmin.Username = *f.AdminUsername
	}
	if f.AdminPassword != nil && *f.AdminPassword != "" {
		cfg.Server.BootstrapAdmin.Password = *f.AdminPassword
	}
	if f.StoreDriver != nil && *f.StoreDriver != "" {
		cfg.Store.Driver = *f.StoreDriver
	}
	if f.StoreDataDir != nil && *f.StoreDataDir != "" {
		cfg.Store.DataDir = *f.StoreDataDir
	}
	if f.StoreEncryptionKey != nil && *f.StoreEncryptionKey != "" {
		cfg.Store.EncryptionKey = *f.StoreEncryptionKey
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.LoggingFile != nil && *f.LoggingFile != "" {
		cfg.Logging.File = *f.LoggingFile
	}
	if f.LoggingAllowSensitive != nil && *f.LoggingAllowSensitive != "" {
		// Parse "true" or "false" string (only apply when explicitly set)
		cfg.Logging.AllowSensitive = *f.LoggingAllowSensitive == "true"
	}
	if f.RejectInvalid != nil && *f.RejectInvalid != "" {
		cfg.Settings.RejectInvalid = *f.RejectInvalid == "true"
	}
}

// validate checks enum-like and structural config fields.
func validate(cfg *Config) error {
	// mode is already validated by ParseMode before we get here

	switch cfg.TLS.Mode {
	case "off", "selfsigned":
	case "static":
		if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls.mode static requires tls.cert_file and tls.key_file")
		}
	default:
		return fmt.Errorf("invalid tls.mode %q: must be one of off, static, selfsigned", cfg.TLS.Mode)
	}

	switch cfg.OutboundHTTP.SSRFMode {
	case "strict", "off":
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be one of strict, off", cfg.OutboundHTTP.SSRFMode)
	}

	switch cfg.Store.Driver {
	case "json", "sqlite":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of json, sqlite", cfg.Store.Driver)
	}

	if cfg.Store.EncryptionKey != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Store.EncryptionKey)
		if err != nil {
			return fmt.Errorf("invalid store.encryption_key: not base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("invalid store.encryption_key: decoded length %d, want 32", len(key))
		}
	}

	// cache.driver (empty defaults to memory)
	switch cfg.Cache.Driver {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory or redis", cfg.Cache.Driver)
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	if cfg.Server.SessionTTLHours <= 0 {
		return fmt.Errorf("invalid server.session_ttl_hours %d: must be positive", cfg.Server.SessionTTLHours)
	}

	if cfg.Settings.NoticeTTLSeconds <= 0 {
		return fmt.Errorf("invalid settings.notice_ttl_seconds %d: must be positive", cfg.Settings.NoticeTTLSeconds)
	}

	if _, err := language.Parse(cfg.Settings.DefaultLocale); err != nil {
		return fmt.Errorf("invalid settings.default_locale %q: %w", cfg.Settings.DefaultLocale, err)
	}

	for name, env := range cfg.Curator.Environments {
		u, err := url.Parse(env.TokenURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("invalid curator.environments.%s.token_url %q: must be an absolute URL", name, env.TokenURL)
		}
		if env.Audience == "" {
			return fmt.Errorf("curator.environments.%s.audience must not be empty", name)
		}
	}

	return nil
}

// validatePublicOrigin checks the public_origin config value when set.
// Must be an absolute URL with http/https scheme, a host, no userinfo,
// query, fragment, or base path. Whitespace is rejected, not trimmed.
func validatePublicOrigin(cfg *Config) error {
	if cfg.PublicOrigin == "" {
		return nil
	}

	origin := cfg.PublicOrigin

	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}

	if !u.IsAbs() {
		return fmt.Errorf("invalid public_origin %q: must be an absolute URL with http or https scheme", origin)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https, got %q", origin, u.Scheme)
	}

	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}

	if u.User != nil {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo", origin)
	}

	if u.RawQuery != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a query string", origin)
	}

	if u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include a fragment", origin)
	}

	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path (use external_base_path for base path)", origin)
	}

	return nil
}
