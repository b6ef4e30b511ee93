package dbconn

import (
	"fmt"

	gormmysql "gorm.io/driver/mysql"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Gorm opens an ORM session on top of an existing pool. The pool stays owned
// by the caller; closing it closes the session.
func Gorm(db *DB) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch db.Dialect {
	case SQLite:
		dialector = gormsqlite.Dialector{Conn: db.DB}
	case MySQL:
		dialector = gormmysql.New(gormmysql.Config{Conn: db.DB, SkipInitializeWithVersion: true})
	default:
		return nil, fmt.Errorf("dbconn: gorm session not supported for %s", db.Dialect)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("dbconn: gorm open %s: %w", db.Dialect, err)
	}
	return gdb, nil
}
