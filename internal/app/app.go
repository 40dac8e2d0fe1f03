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

	"caregiver-hub/internal/config"
	"caregiver-hub/internal/database"
	"caregiver-hub/internal/event"
	"caregiver-hub/internal/handler"
	"caregiver-hub/internal/middleware"
	"caregiver-hub/internal/queue"
	"caregiver-hub/internal/repository"
	"caregiver-hub/internal/router"
	"caregiver-hub/internal/security"
	"caregiver-hub/internal/service"
	"caregiver-hub/internal/validation"
)

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, database.Options{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectRetries: cfg.DBConnectRetries,
		ConnectBackoff: cfg.DBConnectBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	components, err := Build(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := components.Users.SeedAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed admin user: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	go components.Ledger.StartPurgeTicker(backgroundCtx, cfg.SessionPurgeInterval)

	cleanupFuncs := []func(){backgroundCancel}

	auditEvents, unsubscribeAudit := components.Bus.Subscribe()
	go components.Audit.Run(backgroundCtx, auditEvents)
	cleanupFuncs = append(cleanupFuncs, unsubscribeAudit)

	if cfg.AMQPURL != "" {
		events, unsubscribe := components.Bus.Subscribe()
		forwarder := queue.NewForwarder(cfg.AMQPExchange, queue.AMQPDialer(cfg.AMQPURL, cfg.AMQPExchange))
		go forwarder.Run(backgroundCtx, events)
		cleanupFuncs = append(cleanupFuncs, unsubscribe)
		slog.Info("event forwarding enabled", "exchange", cfg.AMQPExchange)
	}

	cleanupFuncs = append(cleanupFuncs, db.Close)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           components.Handler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		db:           db,
		cleanupFuncs: cleanupFuncs,
	}, nil
}

// Components is the wired object graph behind the HTTP server.
type Components struct {
	Handler http.Handler
	Ledger  *service.SessionLedger
	Users   *service.UserService
	Audit   *service.AuditService
	Bus     *event.InMemoryBus
}

// Build wires repositories, services and handlers on top of db.
func Build(cfg *config.Config, db *database.DB) (*Components, error) {
	userRepo := repository.NewUserRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	pairingRepo := repository.NewPairingCodeRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	signer, err := security.NewTokenSigner(security.SignerConfig{
		AccessSecret:      cfg.JWTAccessSecret,
		RefreshSecret:     cfg.JWTRefreshSecret,
		AccessTTL:         cfg.JWTAccessTTL,
		PatientRefreshTTL: cfg.PatientRefreshTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token signer: %w", err)
	}

	bus := event.NewBus()

	ledger := service.NewSessionLedger(sessionRepo, db, hasher, signer, cfg.SessionTTL)
	devices := service.NewDeviceRegistry(deviceRepo, patientRepo, db, bus)
	pairing := service.NewPairingService(pairingRepo, patientRepo, bus, cfg.PairingCodeTTL)
	patients := service.NewPatientService(patientRepo, pairing, db, bus)
	users := service.NewUserService(userRepo, hasher, bus)
	audit := service.NewAuditService(auditRepo)
	authService := service.NewAuthService(service.AuthServiceDeps{
		Users:            userRepo,
		Patients:         patientRepo,
		Ledger:           ledger,
		Pairing:          pairing,
		Devices:          devices,
		Signer:           signer,
		Hasher:           hasher,
		Tx:               db,
		Bus:              bus,
		AllowRawDeviceID: cfg.DeviceLoginAllowRaw,
	})

	validate := validation.New()
	appRouter := router.New(router.Options{
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	}, middleware.NewAuthMiddleware(authService), router.Handlers{
		Auth: handler.NewAuthHandler(authService, ledger, validate, handler.CookieConfig{
			Name:   cfg.RefreshCookieName,
			Path:   cfg.RefreshCookiePath,
			Secure: cfg.CookieSecure,
		}),
		Patient: handler.NewPatientHandler(patients, pairing, validate),
		Device:  handler.NewDeviceHandler(devices, validate),
		User:    handler.NewUserHandler(users, validate),
		Audit:   handler.NewAuditHandler(audit),
		Health:  handler.NewHealthHandler(db),
		Docs:    handler.NewDocsHandler(cfg.OpenAPISpecPath),
	})

	return &Components{
		Handler: appRouter,
		Ledger:  ledger,
		Users:   users,
		Audit:   audit,
		Bus:     bus,
	}, nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		slog.Info("shutdown requested", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}

// cleanup runs in registration order: background work stops before the pool
// closes.
func (a *App) cleanup() {
	for _, fn := range a.cleanupFuncs {
		fn()
	}
}
