package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Backend       BackendConfig
	Session       SessionConfig
	Access        AccessConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// BackendConfig describes the remote policy/license API
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
	// JWKSURL enables signature verification of backend tokens when set
	JWKSURL  string
	Issuer   string
	CacheTTL time.Duration
}

// SessionConfig holds browser session settings
type SessionConfig struct {
	CookieName    string
	TTL           time.Duration
	Secure        bool
	PurgeInterval time.Duration
}

// AccessConfig holds access guard settings
type AccessConfig struct {
	FallbackPath  string
	LoginPath     string
	NotifyOnDeny  bool
	DeniedMessage string
	// ScreensFile is an optional YAML file overriding the built-in screen table
	ScreensFile string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		Database: loadDatabaseConfig(),
		Backend: BackendConfig{
			BaseURL:  getEnv("BACKEND_URL", "http://localhost:9000/api"),
			Timeout:  getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
			JWKSURL:  getEnv("BACKEND_JWKS_URL", ""),
			Issuer:   getEnv("BACKEND_TOKEN_ISSUER", ""),
			CacheTTL: getEnvAsDuration("BACKEND_JWKS_CACHE_TTL", time.Hour),
		},
		Session: SessionConfig{
			CookieName:    getEnv("SESSION_COOKIE_NAME", "portal_session"),
			TTL:           getEnvAsDuration("SESSION_TTL", 12*time.Hour),
			Secure:        getEnvAsBool("SESSION_COOKIE_SECURE", true),
			PurgeInterval: getEnvAsDuration("SESSION_PURGE_INTERVAL", 15*time.Minute),
		},
		Access: AccessConfig{
			FallbackPath:  getEnv("ACCESS_FALLBACK_PATH", "/dashboard"),
			LoginPath:     getEnv("ACCESS_LOGIN_PATH", "/login"),
			NotifyOnDeny:  getEnvAsBool("ACCESS_NOTIFY_ON_DENY", true),
			DeniedMessage: getEnv("ACCESS_DENIED_MESSAGE", "You do not have permission to access that page."),
			ScreensFile:   getEnv("ACCESS_SCREENS_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}
	cfg.Server.TLS.Enabled = getEnvAsBool("TLS_ENABLED", false)
	cfg.Server.TLS.CertFile = getEnv("TLS_CERT_FILE", "certs/cert.pem")
	cfg.Server.TLS.KeyFile = getEnv("TLS_KEY_FILE", "certs/key.pem")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend URL must be absolute: %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive")
	}

	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if !strings.HasPrefix(c.Access.FallbackPath, "/") {
		return fmt.Errorf("access fallback path must be absolute: %q", c.Access.FallbackPath)
	}
	if !strings.HasPrefix(c.Access.LoginPath, "/") {
		return fmt.Errorf("access login path must be absolute: %q", c.Access.LoginPath)
	}

	if c.IsProduction() && !c.Session.Secure {
		return fmt.Errorf("secure session cookies are required in production")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		cfg.ConnectionString = dbURL
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "portal")
	cfg.Password = getEnv("DB_PASSWORD", "portal")
	cfg.Database = getEnv("DB_NAME", "portal")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
