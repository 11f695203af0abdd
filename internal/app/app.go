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

	"crm-api/internal/config"
	"crm-api/internal/database"
	"crm-api/internal/event"
	"crm-api/internal/handler"
	"crm-api/internal/metrics"
	"crm-api/internal/middleware"
	"crm-api/internal/repository"
	"crm-api/internal/router"
	"crm-api/internal/service"
	"crm-api/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	server        *http.Server
	db            *database.DB
	leads         *service.LeadService
	opportunities *service.OpportunityService
	stopHub       context.CancelFunc
	hubDone       chan struct{}
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, database.Options{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	pool := db.Pool
	userRepo := repository.NewUserRepository(pool)
	tokenRepo := repository.NewTokenRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	leadRepo := repository.NewLeadRepository(pool)
	opportunityRepo := repository.NewOpportunityRepository(pool)
	slog.Info("database ready")

	authService := service.NewAuthService(userRepo, tokenRepo, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err := authService.EnsureBootstrapAdmin(ctx, cfg.BootstrapTenantID, cfg.BootstrapAdminPassword); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed admin user: %w", err)
	}
	if removed, err := authService.CleanExpiredTokens(ctx); err != nil {
		slog.Warn("failed to clean expired refresh tokens", "error", err)
	} else if removed > 0 {
		slog.Info("expired refresh tokens removed", "count", removed)
	}

	bus := event.NewBus()
	hub := websocket.NewHub(bus, cfg.CORSOrigins)
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	deletion := service.DeletionOptions{
		Window:        cfg.UndoWindow,
		CommitTimeout: cfg.DeleteCommitTimeout,
		Logger:        slog.Default(),
	}
	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.New()
		deletion.Observer = collector
	}

	auditService := service.NewAuditService(auditRepo)
	leadService := service.NewLeadService(leadRepo, bus, auditService, cfg.ViewCacheTTL, deletion)
	opportunityService := service.NewOpportunityService(opportunityRepo, bus, auditService, cfg.ViewCacheTTL, deletion)

	appRouter := router.New(cfg, middleware.NewAuthMiddleware(authService), router.Handlers{
		Health:      handler.NewHealthHandler(db),
		Docs:        handler.NewDocsHandler(),
		Auth:        handler.NewAuthHandler(authService, auditService),
		Lead:        handler.NewLeadHandler(leadService),
		Opportunity: handler.NewOpportunityHandler(opportunityService),
		Audit:       handler.NewAuditHandler(auditService),
		WS:          handler.NewWSHandler(hub),
	}, collector)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:        server,
		db:            db,
		leads:         leadService,
		opportunities: opportunityService,
		stopHub:       stopHub,
		hubDone:       hubDone,
	}, nil
}

// Run serves until SIGINT or SIGTERM, then drains in dependency order: HTTP,
// pending deletions, websocket clients, database pool.
func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var runErr error
	select {
	case sig := <-stop:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}

	// Deletions still inside their window are committed now, so the hub must
	// outlive them to deliver the final notifications.
	if err := a.leads.Shutdown(ctx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("flush lead deletions: %w", err))
	}
	if err := a.opportunities.Shutdown(ctx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("flush opportunity deletions: %w", err))
	}

	a.stopHub()
	select {
	case <-a.hubDone:
	case <-ctx.Done():
		slog.Warn("websocket hub did not stop in time")
	}

	a.db.Close()
	slog.Info("server stopped")
	return runErr
}
