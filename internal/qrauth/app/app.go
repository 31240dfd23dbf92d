package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/omnipdf/qrauth/internal/qrauth/http"
	"github.com/omnipdf/qrauth/internal/qrauth/identity"
	"github.com/omnipdf/qrauth/internal/qrauth/metrics"
	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/memory"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/postgres"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/redis"
	"github.com/omnipdf/qrauth/internal/qrauth/store/drivers/sqlite"
	"github.com/omnipdf/qrauth/pkg/cryptox"
	"github.com/omnipdf/qrauth/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

const storeConnectTimeout = 10 * time.Second

// Application encapsulates the QR login service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	store   store.Sessions
	keys    *AuthKeys
	metrics *metrics.Recorder

	// Services
	qrService *service.QRService
	sweeper   *service.Sweeper

	// HTTP server
	server *http.Server
	router *httpapi.Router

	started bool
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	return NewWithLogger(cfg, slogx.New(slogx.Config{
		Service: "qrauth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	}))
}

// NewWithLogger is New with a caller supplied logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	keys, err := InitAuthKeys(app.cfg, app.logger)
	if err != nil {
		_ = app.store.Close()
		return nil, fmt.Errorf("failed to initialize auth keys: %w", err)
	}
	app.keys = keys

	if err := app.initServices(); err != nil {
		_ = app.store.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Start launches background workers: the remote JWKS refresher, if any, and
// the expiry sweeper.
func (app *Application) Start(ctx context.Context) error {
	if app.keys.Refresher != nil {
		if err := app.keys.Refresher.Start(ctx); err != nil {
			return fmt.Errorf("failed to load identity provider keys: %w", err)
		}
	}
	app.sweeper.Start(ctx)
	app.started = true
	return nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		_ = app.store.Close()
		return err
	}

	app.logger.Info("qr auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down qr auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.started {
		app.sweeper.Stop()
		if app.keys.Refresher != nil {
			app.keys.Refresher.Stop()
		}
		app.started = false
	}

	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing session store", "error", err)
		return err
	}

	app.logger.Info("qr auth service stopped")
	return nil
}

// initStore opens the configured session store and applies its migrations.
func (app *Application) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()

	switch app.cfg.StoreDriver {
	case DriverSQLite:
		db, err := sqlite.NewStore(app.cfg.SQLiteDSN)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply sqlite migrations: %w", err)
		}
		app.store = db

	case DriverPostgres:
		db, err := postgres.NewStore(ctx, app.cfg.PostgresDSN, postgres.Options{MaxConns: app.cfg.PostgresPool})
		if err != nil {
			return fmt.Errorf("failed to open postgres store: %w", err)
		}
		if err := db.ApplyMigrations(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to apply postgres migrations: %w", err)
		}
		app.store = db

	case DriverRedis:
		db, err := redis.NewStore(ctx, app.cfg.RedisURL, redis.Options{Prefix: app.cfg.RedisPrefix})
		if err != nil {
			return fmt.Errorf("failed to open redis store: %w", err)
		}
		app.store = db

	default:
		app.store = memory.NewStore()
		if app.cfg.Env == "production" {
			app.logger.Warn("memory session store in production: sessions are lost on restart and not shared between replicas")
		}
	}

	app.logger.Info("session store ready", "driver", app.cfg.StoreDriver)
	return nil
}

// initServices initializes the business logic services.
func (app *Application) initServices() error {
	pepper := app.cfg.TokenPepper
	if pepper == "" {
		var err error
		if pepper, err = cryptox.GenerateToken(cryptox.TokenSize256); err != nil {
			return fmt.Errorf("failed to generate token pepper: %w", err)
		}
		if app.cfg.StoreDriver != DriverMemory {
			app.logger.Warn("QR_TOKEN_PEPPER is not set, sessions will not survive a restart or be shared between replicas")
		}
	}
	fingerprint, err := cryptox.NewFingerprinter(pepper)
	if err != nil {
		return fmt.Errorf("failed to initialize token fingerprints: %w", err)
	}

	app.metrics.TrackStoreSize(app.store.Count)

	app.qrService = &service.QRService{
		Store: app.store,
		Credentials: &identity.CredentialIssuer{
			Keys:     app.keys.Credentials,
			Issuer:   app.cfg.Issuer,
			Audience: app.cfg.Audience,
			TTL:      app.cfg.CredentialTTL,
			Scopes:   app.cfg.CredentialScopes,
		},
		Metrics:     app.metrics,
		Fingerprint: fingerprint,
		TTL:         app.cfg.SessionTTL,
		Grace:       app.cfg.AuthGrace,
	}

	app.sweeper = service.NewSweeper(app.store, app.logger, app.cfg.SweepInterval, app.cfg.SweepRetention)
	app.sweeper.Metrics = app.metrics
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys.Credentials.KeySet,
		app.keys.Bearer,
		BuildVersion,
		app.store,
		app.logger,
	)

	router.QRService = app.qrService
	if app.cfg.MetricsEnabled {
		router.Metrics = app.metrics
	}
	router.PayloadBaseURL = app.cfg.PayloadBaseURL
	router.WatchInterval = app.cfg.WatchInterval
	router.WatchOrigins = app.cfg.WatchOrigins
	router.AllowQRApprover = app.cfg.AllowQRApprover
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
