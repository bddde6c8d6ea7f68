package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/policy-portal/auth"
	"github.com/upb/policy-portal/config"
	"github.com/upb/policy-portal/handlers"
	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/internal/apiclient"
	"github.com/upb/policy-portal/internal/session"
	"github.com/upb/policy-portal/middleware"
	"github.com/upb/policy-portal/repositories"
	"github.com/upb/policy-portal/repositories/postgres"
	"github.com/upb/policy-portal/services"
	"github.com/upb/policy-portal/services/audit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Sessions  repositories.SessionRepository
	AuditLogs repositories.AuditRepository

	// Services
	SessionManager *session.Manager
	Backend        *apiclient.Client
	AuthService    *services.AuthService
	Audit          *audit.Service
	Screens        access.ScreenSource
	ScreenWatcher  *access.ScreenWatcher

	// HTTP
	SessionMiddleware *middleware.SessionMiddleware
	GuardMiddleware   *middleware.GuardMiddleware
	HealthHandler     *handlers.HealthHandler
	PortalHandler     *handlers.PortalHandler
	ResourceHandler   *handlers.ResourceHandler

	authHandler *auth.Handler
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies opens the database and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := factory.GetDB().InitSchema(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesFromFactory(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesFromFactory wires dependencies on top of an open database.
func NewDependenciesFromFactory(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	deps.initRepositories()

	if err := deps.initBackend(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize backend client: %w", err)
	}

	if err := deps.initScreens(cfg.Access); err != nil {
		return nil, fmt.Errorf("failed to load screen table: %w", err)
	}

	if err := deps.initAudit(); err != nil {
		return nil, fmt.Errorf("failed to start audit service: %w", err)
	}

	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// LoadScreens returns the built-in screen table, overlaid with the
// configured screens file when there is one.
func LoadScreens(cfg config.AccessConfig) (*access.ScreenTable, error) {
	table := access.DefaultScreenTable()
	if cfg.ScreensFile == "" {
		return table, nil
	}
	overrides, err := access.LoadScreenTable(cfg.ScreensFile)
	if err != nil {
		return nil, err
	}
	return table.WithOverrides(overrides), nil
}

// initScreens uses the built-in table, or a watcher over the screens file
// when one is configured.
func (d *Dependencies) initScreens(cfg config.AccessConfig) error {
	if cfg.ScreensFile == "" {
		d.Screens = access.DefaultScreenTable()
		return nil
	}
	watcher, err := access.NewScreenWatcher(access.DefaultScreenTable(), cfg.ScreensFile, d.Logger.Named("screens"))
	if err != nil {
		return err
	}
	d.ScreenWatcher = watcher
	d.Screens = watcher
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Sessions = repos.Sessions
	d.AuditLogs = repos.AuditLogs
	d.SessionManager = session.NewManager(d.Sessions, d.Config.Session.TTL, d.Logger)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initBackend(cfg *config.Config) error {
	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
	}, d.Logger.Named("backend"))
	if err != nil {
		return err
	}
	d.Backend = client

	var verifier services.TokenVerifier
	if cfg.Backend.JWKSURL != "" {
		verifier = session.NewJWKSVerifier(session.VerifierConfig{
			JWKSURL:     cfg.Backend.JWKSURL,
			Issuer:      cfg.Backend.Issuer,
			CacheTTL:    cfg.Backend.CacheTTL,
			HTTPTimeout: 10 * time.Second,
		})
		d.Logger.Info("backend token verification enabled")
	} else {
		d.Logger.Warn("backend token verification disabled, token claims are trusted as issued")
	}

	d.AuthService = services.NewAuthService(client, verifier, d.Logger)
	return nil
}

func (d *Dependencies) initAudit() error {
	d.Audit = audit.NewService(d.AuditLogs, d.Logger.Named("audit"), audit.DefaultConfig())
	return d.Audit.Start()
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.SessionMiddleware = middleware.NewSessionMiddleware(
		d.SessionManager, cfg.Session.CookieName, cfg.Session.Secure, cfg.Access.LoginPath, d.Logger)
	d.GuardMiddleware = middleware.NewGuardMiddleware(
		d.Screens, cfg.Access, cfg.Session.Secure, d.Audit, d.Logger)

	d.authHandler = auth.NewHandler(cfg, d.AuthService, d.SessionManager, d.SessionMiddleware, d.Audit, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB.DB, d.Backend, d.Logger).WithAuditQueue(d.Audit)
	d.PortalHandler = handlers.NewPortalHandler(d.Screens, d.AuditLogs, cfg.Session.Secure, d.Logger)
	d.ResourceHandler = handlers.NewResourceHandler(
		d.Backend, d.SessionMiddleware, d.Audit, cfg.Access.LoginPath, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Drain queued audit events before the database goes away
	if d.Audit != nil {
		if err := d.Audit.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
		d.Audit = nil
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
