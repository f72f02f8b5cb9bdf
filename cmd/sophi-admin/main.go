// Package main is the entrypoint for the sophi-admin server.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/curator"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/identity"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/components/settings"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/config"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/deps"
	httpclient "github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/client"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/http/server"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/i18n"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/metrics"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/siteinfo"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store/sealed"

	// Register cache drivers, store drivers, interceptors and services
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache/memory"
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache/redis"
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store/json"
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/platform/store/sqlite"
	_ "github.com/MahdiBaghbani/sophi-admin-go/internal/services/loader"
)

// sealedFields lists option fields encrypted at rest when a key is configured.
var sealedFields = map[string][]string{
	settings.OptionName: {settings.KeyClientSecret},
}

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	envFile := flag.String("env-file", ".env", "Dotenv file with SOPHI_ADMIN_* variables (ignored when missing)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin (overrides config)")
	externalBasePath := flag.String("external-base-path", "", "External base path (overrides config)")
	ssrfMode := flag.String("ssrf-mode", "", "SSRF protection mode: strict or off (overrides config)")
	tlsMode := flag.String("tls-mode", "", "TLS mode: off, static, or selfsigned (overrides config)")
	adminUsername := flag.String("admin-username", "", "Bootstrap admin username (overrides config)")
	adminPassword := flag.String("admin-password", "", "Bootstrap admin password (overrides config)")
	storeDriver := flag.String("store-driver", "", "Option store driver: json or sqlite (overrides config)")
	storeDataDir := flag.String("store-data-dir", "", "Option store data directory (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	loggingFile := flag.String("logging-file", "", "Rotating log file path (overrides config)")
	loggingAllowSensitive := flag.String("logging-allow-sensitive", "", "Allow sensitive values in logs: true or false (overrides config)")
	rejectInvalid := flag.String("reject-invalid", "", "Refuse to save settings that raise notices: true or false (overrides config)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Precedence: mode preset -> TOML file -> environment -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		EnvFile:    *envFile,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:            listenAddr,
			PublicOrigin:          publicOrigin,
			ExternalBasePath:      externalBasePath,
			SSRFMode:              ssrfMode,
			TLSMode:               tlsMode,
			AdminUsername:         adminUsername,
			AdminPassword:         adminPassword,
			StoreDriver:           storeDriver,
			StoreDataDir:          storeDataDir,
			CacheDriver:           cacheDriver,
			LoggingLevel:          loggingLevel,
			LoggingFile:           loggingFile,
			LoggingAllowSensitive: loggingAllowSensitive,
			RejectInvalid:         rejectInvalid,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logutil.New(cfg.Logging.Level, logutil.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("effective configuration", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	backend, err := store.Open(ctx, &store.DriverConfig{Driver: cfg.Store.Driver, DataDir: cfg.Store.DataDir})
	if err != nil {
		return err
	}
	defer backend.Close()

	var options store.OptionStore = backend
	if cfg.Store.EncryptionKey != "" {
		// validate already checked the key decodes to 32 bytes
		key, _ := base64.StdEncoding.DecodeString(cfg.Store.EncryptionKey)
		sealedStore, err := sealed.New(backend, key, sealedFields)
		if err != nil {
			return err
		}
		options = sealedStore
		logger.Info("option store encryption enabled")
	}

	cacheInstance, err := cache.New(cfg.Cache.Driver, cfg.BuildCacheDriverConfig(cfg.Cache.Driver))
	if err != nil {
		return err
	}
	defer cacheInstance.Close()

	site, err := siteinfo.New(cfg.PublicOrigin)
	if err != nil {
		return err
	}

	catalog, err := i18n.NewCatalog(cfg.Settings.DefaultLocale)
	if err != nil {
		return err
	}

	m := metrics.New()

	// Identity
	users := identity.NewMemoryUserRepo()
	sessions := identity.NewMemorySessionRepo()
	hasher := identity.NewHasher()
	bootstrap := identity.NewBootstrap(users, hasher, logger)
	if _, err := bootstrap.EnsureSuperAdmin(ctx, cfg.Server.BootstrapAdmin.Username, cfg.Server.BootstrapAdmin.Password); err != nil {
		return err
	}

	// Outbound requests to the Sophi auth server go through the SSRF-guarded client.
	outbound := httpclient.New(&cfg.OutboundHTTP, logger)

	registry := settings.NewRegistry(site)
	cur := curator.New(curator.Config{
		Environments: cfg.Curator.Environments,
		Settings:     settings.NewAccessor(options, registry),
		HTTPClient:   outbound.StandardClient(),
		Cache:        cacheInstance,
		Metrics:      m,
		Log:          logger,
	})
	manager := settings.NewManager(options, registry, settings.NewSanitizer(cur, logger), settings.ManagerConfig{
		RejectInvalid: cfg.Settings.RejectInvalid,
		Metrics:       m,
		Log:           logger,
	})
	manager.OnSave(cur.ClearCache)

	deps.SetDeps(&deps.Deps{
		UserRepo:    users,
		SessionRepo: sessions,
		Hasher:      hasher,
		Settings:    manager,
		Renderer:    settings.NewRenderer(registry),
		Curator:     cur,
		Catalog:     catalog,
		Cache:       cacheInstance,
		Metrics:     m,
		Config:      cfg,
	})

	services, err := service.BuildAll(service.CoreServices, cfg.BuildServiceConfig, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		return err
	}

	go identity.SweepExpired(ctx, sessions, 10*time.Minute, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("server started, press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
