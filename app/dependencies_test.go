package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/policy-portal/config"
	"github.com/upb/policy-portal/internal/access"
	"github.com/upb/policy-portal/repositories/postgres"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewDependenciesFromFactory(t *testing.T) {
	t.Run("wires every component", func(t *testing.T) {
		deps, mock := newMockDependencies(t, testConfig())

		assert.NotNil(t, deps.Sessions)
		assert.NotNil(t, deps.AuditLogs)
		assert.NotNil(t, deps.SessionManager)
		assert.NotNil(t, deps.Backend)
		assert.NotNil(t, deps.AuthService)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.SessionMiddleware)
		assert.NotNil(t, deps.GuardMiddleware)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.PortalHandler)
		assert.NotNil(t, deps.ResourceHandler)
		assert.NotNil(t, deps.AuthHandler())

		req, err := deps.Screens.Request(access.ScreenOrganizationWrite)
		require.NoError(t, err)
		assert.True(t, req.Equal(access.OwnerOnly))
		assert.Nil(t, deps.ScreenWatcher)

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("applies screen overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "screens.yaml")
		require.NoError(t, os.WriteFile(path, []byte("screens:\n  - name: reports\n    group: everyone\n"), 0o600))

		cfg := testConfig()
		cfg.Access.ScreensFile = path
		deps, mock := newMockDependencies(t, cfg)
		require.NotNil(t, deps.ScreenWatcher)

		req, err := deps.Screens.Request(access.ScreenReports)
		require.NoError(t, err)
		assert.True(t, req.Contains(access.RoleUser))

		req, err = deps.Screens.Request(access.ScreenUsers)
		require.NoError(t, err)
		assert.False(t, req.Contains(access.RoleUser))

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("invalid backend URL", func(t *testing.T) {
		cfg := testConfig()
		cfg.Backend.BaseURL = "not-a-url"

		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		factory := postgres.NewRepositoryFactoryFromDB(postgres.Wrap(db, zap.NewNop()), zap.NewNop())
		deps, err := NewDependenciesFromFactory(cfg, factory, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "backend client")
	})

	t.Run("unreadable screens file", func(t *testing.T) {
		cfg := testConfig()
		cfg.Access.ScreensFile = filepath.Join(t.TempDir(), "missing.yaml")

		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		factory := postgres.NewRepositoryFactoryFromDB(postgres.Wrap(db, zap.NewNop()), zap.NewNop())
		deps, err := NewDependenciesFromFactory(cfg, factory, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "screen table")
	})
}

func TestDependenciesClose(t *testing.T) {
	deps, mock := newMockDependencies(t, testConfig())

	mock.ExpectClose()
	require.NoError(t, deps.Close(context.Background()))

	// Second close finds nothing left to release
	assert.NoError(t, deps.Close(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadScreens(t *testing.T) {
	table, err := LoadScreens(config.AccessConfig{})
	require.NoError(t, err)
	assert.Equal(t, len(access.DefaultScreenTable().Entries()), len(table.Entries()))
}

func TestNewDependenciesDatabaseFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Host = "invalid-host-that-does-not-exist"

	deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize database")
}

// Test helpers

func newMockDependencies(t *testing.T, cfg *config.Config) (*Dependencies, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	factory := postgres.NewRepositoryFactoryFromDB(postgres.Wrap(db, logger), logger)
	deps, err := NewDependenciesFromFactory(cfg, factory, logger)
	require.NoError(t, err)
	return deps, mock
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "portal",
			Password:        "portal",
			Database:        "portal_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Backend: config.BackendConfig{
			BaseURL: "http://backend.test/api",
			Timeout: 5 * time.Second,
		},
		Session: config.SessionConfig{
			CookieName: "portal_session",
			TTL:        time.Hour,
		},
		Access: config.AccessConfig{
			FallbackPath:  "/dashboard",
			LoginPath:     "/login",
			NotifyOnDeny:  true,
			DeniedMessage: "denied",
		},
		Observability: config.ObservabilityConfig{
			LogLevel:  "debug",
			LogFormat: "json",
		},
	}
}
