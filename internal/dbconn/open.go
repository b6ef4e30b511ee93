package dbconn

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/emanehab99/gstar-stats/internal/config"
	"github.com/emanehab99/gstar-stats/internal/logging"
)

var log = logging.For("dbconn")

// DB is a connection pool tagged with the dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Rebind is shorthand for db.Dialect.Rebind.
func (db *DB) Rebind(query string) string { return db.Dialect.Rebind(query) }

type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry pings three times, five seconds apart.
var DefaultRetry = RetryPolicy{Attempts: 3, Delay: 5 * time.Second}

// Wrap tags an already opened pool. SQLite pools get the usual pragmas.
func Wrap(sqlDB *sql.DB, d Dialect) (*DB, error) {
	if d == SQLite {
		if err := configureSQLiteConnection(sqlDB); err != nil {
			return nil, fmt.Errorf("dbconn: configure sqlite: %w", err)
		}
	}
	return &DB{DB: sqlDB, Dialect: d}, nil
}

// Open connects to the database described by cfg. Connection establishment is
// retried per policy; after the last failed ping the error is returned.
func Open(ctx context.Context, cfg config.DBConfig, policy RetryPolicy) (*DB, error) {
	d, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(d, cfg)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("dbconn: creating DB dir: %w", err)
		}
	}

	sqlDB, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("dbconn: opening %s: %w", d, err)
	}
	if err := pingWithRetry(ctx, sqlDB, d, policy); err != nil {
		sqlDB.Close()
		return nil, err
	}
	db, err := Wrap(sqlDB, d)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, d Dialect, policy RetryPolicy) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			log.WithField("event", "connected").WithField("driver", d).Debug("database connection established")
			return nil
		}
		log.WithField("event", "ping_failed").
			WithField("driver", d).
			WithField("attempt", i).
			WithError(err).
			Warn("database connection failed")
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("dbconn: connecting to %s: %w", d, ctx.Err())
		case <-time.After(policy.Delay):
		}
	}
	return fmt.Errorf("dbconn: connecting to %s after %d attempts: %w", d, attempts, err)
}

// DSN builds the driver-specific data source name.
func DSN(d Dialect, cfg config.DBConfig) (string, error) {
	switch d {
	case SQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return "", fmt.Errorf("dbconn: sqlite3 requires a path")
		}
		return sqliteDSN(cfg.Path), nil
	case MySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(hostOrLocal(cfg.Host), strconv.Itoa(portOr(cfg.Port, 3306)))
		mc.DBName = cfg.Database
		mc.ParseTime = true
		mc.Loc = time.UTC
		return mc.FormatDSN(), nil
	case Postgres:
		opts := []string{
			"host=" + quoteValue(hostOrLocal(cfg.Host)),
			"port=" + strconv.Itoa(portOr(cfg.Port, 5432)),
			"sslmode=disable",
		}
		if cfg.User != "" {
			opts = append(opts, "user="+quoteValue(cfg.User))
		}
		if cfg.Password != "" {
			opts = append(opts, "password="+quoteValue(cfg.Password))
		}
		if cfg.Database != "" {
			opts = append(opts, "dbname="+quoteValue(cfg.Database))
		}
		return strings.Join(opts, " "), nil
	default:
		return "", fmt.Errorf("dbconn: unsupported dialect %q", d)
	}
}

func hostOrLocal(h string) string {
	if strings.TrimSpace(h) == "" {
		return "localhost"
	}
	return h
}

func portOr(p, def int) int {
	if p <= 0 {
		return def
	}
	return p
}

// quoteValue quotes a keyword/value connection parameter for lib/pq.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
