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

	httpapi "github.com/aussiebroadwan/mfagate/internal/mfa/http"
	"github.com/aussiebroadwan/mfagate/internal/mfa/gateway"
	"github.com/aussiebroadwan/mfagate/internal/mfa/service"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store/drivers/memory"
	redisstore "github.com/aussiebroadwan/mfagate/internal/mfa/store/drivers/redis"
	"github.com/aussiebroadwan/mfagate/internal/mfa/store/drivers/sqlite"
	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
	"github.com/aussiebroadwan/mfagate/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

// BuildVersion is reported by /health and in logs. cmd/mfa overrides it
// with the value stamped in via -ldflags.
var BuildVersion = "v0.1.0"

// Application encapsulates the MFA service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	pending    store.PendingActivations
	rdb        *redis.Client // nil unless REDIS_ADDR is set
	identity   gateway.Identity
	keyManager *jwtx.KeyManager

	// Services
	tokenService        *service.TokenService
	mfaService          *service.MFAService
	loginService        *service.LoginService
	firstLoginService   *service.FirstLoginService
	bootstrapService    *service.BootstrapService // nil with an external identity service
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mfa-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initPending(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initIdentity(); err != nil {
		app.closeStores()
		return nil, err
	}

	keyManager, err := initKeys(app.cfg, app.logger)
	if err != nil {
		app.closeStores()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("mfa service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreKind,
		"redis_pending", app.rdb != nil,
		"external_identity", app.cfg.IdentityURL != "",
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			app.closeStores()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mfa service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("mfa service stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured store and applies migrations.
func (app *Application) initDatabase() error {
	switch app.cfg.StoreKind {
	case "memory":
		app.db = memory.New()
		app.logger.Warn("using in-memory store; all state is lost on restart")
		return nil
	case "sqlite", "":
	default:
		return fmt.Errorf("unknown store driver %q", app.cfg.StoreKind)
	}

	host := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initPending moves pending activations to Redis when an address is
// configured. Otherwise they share the main store.
func (app *Application) initPending() error {
	if app.cfg.RedisAddr == "" {
		app.pending = app.db.PendingActivations()
		return nil
	}

	app.rdb = redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.rdb.Ping(ctx).Err(); err != nil {
		_ = app.rdb.Close()
		app.rdb = nil
		return fmt.Errorf("failed to connect to redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.pending = redisstore.NewPendingStore(app.rdb, app.cfg.RedisPrefix)
	app.logger.Info("pending activations stored in redis", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) initIdentity() error {
	if app.cfg.IdentityURL == "" {
		app.identity = gateway.NewLocal(app.db)
		return nil
	}

	remote, err := gateway.NewRemote(gateway.RemoteOptions{
		BaseURL:          app.cfg.IdentityURL,
		Token:            app.cfg.IdentityToken,
		Timeout:          app.cfg.IdentityTimeout,
		FailureThreshold: app.cfg.IdentityFailures,
		OpenTimeout:      app.cfg.IdentityOpenDuration,
		Logger:           app.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize identity gateway: %w", err)
	}
	app.identity = remote
	app.logger.Info("using external identity service", "url", app.cfg.IdentityURL)
	return nil
}

func (app *Application) policy() service.Config {
	return service.Config{
		Issuer:            app.cfg.Issuer,
		MaxFailedAttempts: app.cfg.MaxFailedAttempts,
		PendingTTL:        app.cfg.PendingTTL,
		BackupCodeCount:   app.cfg.BackupCodeCount,
		TOTPSkew:          uint(app.cfg.TOTPSkew),
		ReplayProtection:  app.cfg.ReplayProtection,
		StepUpTTL:         app.cfg.StepUpTTL,
		SessionTTL:        app.cfg.SessionTTL,
		MinPasswordLength: app.cfg.MinPasswordLength,
	}
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	policy := app.policy()

	app.tokenService = service.NewTokenService(policy, app.keyManager, app.identity)
	app.mfaService = service.NewMFAService(policy, app.db, app.pending, app.identity)
	app.loginService = service.NewLoginService(app.identity, app.tokenService, app.mfaService)
	app.firstLoginService = service.NewFirstLoginService(policy, app.identity, app.tokenService, app.mfaService)

	if app.cfg.IdentityURL == "" {
		app.bootstrapService = &service.BootstrapService{
			Store: app.db,
			Token: app.cfg.BootstrapToken,
		}
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.pending,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.StaleSessionAge,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.keyManager.Verifier, BuildVersion, app.logger)

	router.Database = app.db
	if app.rdb != nil {
		router.Pending = app.pending.(httpapi.Pinger)
	}
	router.Identity = app.identity
	router.Keys = app.keyManager
	router.KeySet = app.keyManager.KeySet

	router.MFAService = app.mfaService
	router.LoginService = app.loginService
	router.FirstLoginService = app.firstLoginService
	router.BootstrapService = app.bootstrapService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
