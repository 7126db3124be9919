package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

// ErrUnsupportedScheme is returned when no Go driver serves a URL's family.
var ErrUnsupportedScheme = errors.New("unsupported database scheme")

func init() {
	// sqlx only knows "sqlite3"; modernc registers as "sqlite".
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// PoolConfig tunes the connection pool behind each engine.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DriverDSN translates a connection URL into the database/sql driver name
// and DSN the Go drivers expect. Postgres URLs are passed through in sync
// form, MySQL URLs are rebuilt as go-sql-driver DSNs and SQLite URLs follow
// the sqlite:///relative and sqlite:////absolute convention.
func DriverDSN(raw string) (string, string, error) {
	spec, err := ParseConnectionSpec(raw)
	if err != nil {
		return "", "", err
	}

	switch spec.Family {
	case FamilyPostgres:
		_, rest, _ := splitScheme(NormalizeURL(strings.TrimSpace(raw), false))
		return "pgx", "postgresql://" + rest, nil

	case FamilyMySQL:
		return "mysql", mysqlDSN(raw, spec), nil

	case FamilySQLite:
		path := spec.Database
		if path == "" {
			path = ":memory:"
		}
		return "sqlite", path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil

	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, spec.Scheme)
	}
}

func mysqlDSN(raw string, spec ConnectionSpec) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	port := spec.Port
	if port == "" {
		port = "3306"
	}
	cfg.Addr = net.JoinHostPort(spec.Host, port)
	cfg.User = spec.User
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil && u.User != nil {
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = spec.Database
	cfg.ParseTime = true

	for key, value := range spec.Params {
		switch key {
		case "sslmode":
			if value != "disable" {
				cfg.TLSConfig = "true"
			}
		default:
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN()
}

// OpenURL is the default Opener. It opens the pool, applies the pool limits
// and pings under the connect timeout, closing the pool again when the ping
// fails.
func OpenURL(ctx context.Context, role Role, raw string, pool PoolConfig) (*sqlx.DB, error) {
	driverName, dsn, err := DriverDSN(raw)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", role, err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if driverName == "sqlite" && strings.HasPrefix(dsn, ":memory:") {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	timeout := pool.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", role, err)
	}
	return db, nil
}
