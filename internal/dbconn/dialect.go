package dbconn

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Dialect names a supported SQL backend. Its value is the database/sql driver name.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "mysql", "":
		return MySQL, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	default:
		return "", fmt.Errorf("dbconn: unsupported driver %q", driver)
	}
}

func (d Dialect) DriverName() string { return string(d) }

// Rebind rewrites ? placeholders into the dialect's bind syntax.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Placeholders returns "?, ?, ..." sized to n, for IN lists.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Upsert builds an insert that overwrites the non-key columns when a row with
// the same key already exists.
func (d Dialect) Upsert(table, key string, cols []string) string {
	var sets []string
	for _, c := range cols {
		if c == key {
			continue
		}
		if d == MySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), Placeholders(len(cols)))
	if d == MySQL {
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return insert + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET ", key) + strings.Join(sets, ", ")
}

// ColumnKind is a portable column type used to build DDL.
type ColumnKind int

const (
	KeyColumn ColumnKind = iota
	TextColumn
	TimeColumn
	IntColumn
	BigIntColumn
	FloatColumn
)

func (d Dialect) ColumnType(k ColumnKind) string {
	switch k {
	case KeyColumn:
		if d == SQLite {
			return "TEXT"
		}
		return "VARCHAR(255)"
	case TextColumn:
		if d == MySQL {
			return "VARCHAR(255)"
		}
		return "TEXT"
	case TimeColumn:
		switch d {
		case Postgres:
			return "TIMESTAMP"
		default:
			return "DATETIME"
		}
	case IntColumn:
		return "INTEGER"
	case BigIntColumn:
		return "BIGINT"
	case FloatColumn:
		if d == SQLite {
			return "REAL"
		}
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}

// CreateIndex returns an idempotent index statement. MySQL has no IF NOT EXISTS
// for indexes, so it gets none and Init tolerates the duplicate error.
func (d Dialect) CreateIndex(name, table string, cols ...string) string {
	if d == MySQL {
		return fmt.Sprintf("CREATE INDEX %s ON %s(%s)", name, table, strings.Join(cols, ", "))
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, strings.Join(cols, ", "))
}

// IsDuplicateKey reports whether err is a unique or primary key violation on
// any of the supported backends.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicateIndex reports whether err is MySQL's "duplicate key name" on CREATE INDEX.
func IsDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1061
}
