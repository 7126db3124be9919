package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names. The URL-style database variables are listed
// in the order the validator consults them.
const (
	EnvDatabasePrivateURL = "DATABASE_PRIVATE_URL"
	EnvPostgresURL        = "POSTGRES_URL"
	EnvDatabaseURL        = "DATABASE_URL"
	EnvDatabaseReadURL    = "DATABASE_URL_READ"

	EnvPGHost     = "PGHOST"
	EnvPGPort     = "PGPORT"
	EnvPGUser     = "PGUSER"
	EnvPGPassword = "PGPASSWORD"
	EnvPGDatabase = "PGDATABASE"

	EnvEnvironment = "ENVIRONMENT"
)

const (
	DefaultPGPort         = "5432"
	defaultJWTSecret      = "dev-only-secret-change-me"
	EnvironmentProduction = "production"
)

// Config is populated once at startup and passed down explicitly.
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig

	// Warnings collects non-fatal problems found while loading
	// (bad numbers, insecure defaults). main logs them.
	Warnings []string
}

// ServerConfig holds HTTP and auth settings.
type ServerConfig struct {
	Port       string
	JWTSecret  string
	JWTTTL     time.Duration
	CORSOrigin string
	LogLevel   string
}

// DatabaseConfig holds every database-related variable the service reads.
type DatabaseConfig struct {
	PrivateURL  string // DATABASE_PRIVATE_URL (private network)
	PostgresURL string // POSTGRES_URL (pooled)
	URL         string // DATABASE_URL (generic)
	ReadURL     string // DATABASE_URL_READ (replica)

	Host     string
	Port     string // defaults to 5432
	User     string
	Password string
	Name     string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration

	// Production enables strict URL structure checks before connecting.
	Production bool
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, "could not load .env file, relying on system environment variables")
	}
	cfg := FromLookup(os.LookupEnv)
	cfg.Warnings = append(warnings, cfg.Warnings...)
	return cfg
}

// FromLookup builds a Config from an arbitrary lookup function, which keeps
// tests away from the real environment.
func FromLookup(lookup func(string) (string, bool)) *Config {
	l := loader{lookup: lookup}

	cfg := &Config{
		Environment: l.str(EnvEnvironment, "development"),
		Server: ServerConfig{
			Port:       l.str("PORT", "8080"),
			JWTSecret:  l.str("JWT_SECRET", ""),
			JWTTTL:     time.Duration(l.integer("JWT_TTL_HOURS", 72)) * time.Hour,
			CORSOrigin: l.str("CORS_ORIGIN", "http://localhost:5173"),
			LogLevel:   l.str("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			PrivateURL:      l.str(EnvDatabasePrivateURL, ""),
			PostgresURL:     l.str(EnvPostgresURL, ""),
			URL:             l.str(EnvDatabaseURL, ""),
			ReadURL:         l.str(EnvDatabaseReadURL, ""),
			Host:            l.str(EnvPGHost, ""),
			Port:            l.str(EnvPGPort, DefaultPGPort),
			User:            l.str(EnvPGUser, ""),
			Password:        l.str(EnvPGPassword, ""),
			Name:            l.str(EnvPGDatabase, ""),
			MaxOpenConns:    l.integer("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    l.integer("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: l.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnectTimeout:  l.duration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
	}
	cfg.Database.Production = cfg.IsProduction()

	if cfg.Server.JWTSecret == "" {
		cfg.Server.JWTSecret = defaultJWTSecret
		l.warn("JWT_SECRET is not set, using an insecure development secret")
	}

	cfg.Warnings = l.warnings
	return cfg
}

type loader struct {
	lookup   func(string) (string, bool)
	warnings []string
}

func (l *loader) warn(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

// str returns the trimmed value, or def when unset or blank.
func (l *loader) str(key, def string) string {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func (l *loader) integer(key string, def int) int {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		l.warn("%s=%q is not a valid non-negative integer, using %d", key, raw, def)
		return def
	}
	return n
}

// duration accepts Go durations ("90s") or a bare number of seconds.
func (l *loader) duration(key string, def time.Duration) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return def
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		l.warn("%s=%q is not a valid duration, using %s", key, raw, def)
		return def
	}
	return d
}
