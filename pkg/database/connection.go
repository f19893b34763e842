package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type Connection struct {
	db     *sql.DB
	config *Config
}

func NewConnection(config *Config) (*Connection, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; a small pool avoids SQLITE_BUSY storms
	// under concurrent workers.
	if config.MaxOpenConn > 0 {
		db.SetMaxOpenConns(config.MaxOpenConn)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	conn := &Connection{
		db:     db,
		config: config,
	}

	return conn, nil
}

func (c *Connection) DB() *sql.DB {
	return c.db
}

func (c *Connection) Close() {
	if c.db != nil {
		_ = c.db.Close()
	}
}
