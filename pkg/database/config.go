package database

import "time"

type Config struct {
	// Path is the SQLite database file. ":memory:" opens an in-memory
	// database (used by tests).
	Path        string
	BusyTimeout time.Duration
	MaxOpenConn int
}

func NewDefaultConfig(path string) *Config {
	return &Config{
		Path:        path,
		BusyTimeout: 5 * time.Second,
		MaxOpenConn: 1,
	}
}
