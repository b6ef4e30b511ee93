package dbconn

import (
	"database/sql"
	"fmt"
	"net/url"
)

// sqliteDSN carries the pragmas as connection parameters so every pooled
// connection gets them, not only the first.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + q.Encode()
}

func configureSQLiteConnection(db *sql.DB) error {
	if db == nil {
		return nil
	}
	for _, stmt := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	return nil
}
